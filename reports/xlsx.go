// Package reports renders the bookings spreadsheet exported from the back
// office and the payment receipts downloaded from the portal.
package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingsSheet is the name of the sheet holding the exported bookings.
const BookingsSheet = "Bookings"

var bookingColumns = []struct {
	title string
	width float64
}{
	{"Reference", 14},
	{"Source", 12},
	{"External ID", 14},
	{"Status", 12},
	{"Customer", 24},
	{"Email", 28},
	{"Phone", 16},
	{"Vehicle", 28},
	{"Pickup", 18},
	{"Return", 18},
	{"Currency", 10},
	{"Total", 12},
	{"Deposit", 12},
	{"Paid", 12},
	{"Balance", 12},
	{"Bond", 12},
	{"Bond status", 14},
}

// BookingsXLSX renders bookings as a spreadsheet, one row per booking.
// Customers are looked up by id and may be missing. Times are rendered in
// loc, UTC when nil.
func BookingsXLSX(bookings []db.Booking, customers map[primitive.ObjectID]*db.Customer, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(BookingsSheet)
	if err != nil {
		return nil, fmt.Errorf("cannot create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("cannot remove default sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	for i, col := range bookingColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		cell := name + "1"
		if err := f.SetCellValue(BookingsSheet, cell, col.title); err != nil {
			return nil, err
		}
		if err := f.SetColWidth(BookingsSheet, name, name, col.width); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(bookingColumns))
	if err := f.SetCellStyle(BookingsSheet, "A1", last+"1", header); err != nil {
		return nil, err
	}

	for i, b := range bookings {
		row := i + 2
		var name, email, phone string
		if c := customers[b.CustomerID]; c != nil {
			name, email, phone = c.FullName(), c.Email, c.Phone
		}
		acct := b.Account()
		values := []any{
			b.Reference,
			string(b.Source),
			b.ExternalID,
			string(b.Status),
			name,
			email,
			phone,
			b.Vehicle,
			formatTime(b.PickupAt, loc),
			formatTime(b.ReturnAt, loc),
			b.Currency,
			toUnits(acct.TotalCents),
			toUnits(acct.DepositCents),
			toUnits(b.PaidCents),
			toUnits(max(acct.TotalCents-b.PaidCents, 0)),
			toUnits(b.BondCents),
			string(b.BondStatus),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(BookingsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("cannot write row %d: %w", row, err)
		}
	}
	if len(bookings) > 0 {
		from, _ := excelize.CoordinatesToCellName(12, 2)
		to, _ := excelize.CoordinatesToCellName(16, len(bookings)+1)
		if err := f.SetCellStyle(BookingsSheet, from, to, money); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(BookingsSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("cannot write spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// toUnits converts cents to currency units for spreadsheet cells.
func toUnits(cents int64) float64 {
	return float64(cents) / 100
}

// formatMoney renders an amount with its currency code.
func formatMoney(currency string, cents int64) string {
	return fmt.Sprintf("%s %s", currencyCode(currency), payments.FormatAmount(cents))
}
