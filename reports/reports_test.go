package reports

import (
	"bytes"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testBooking(customer primitive.ObjectID) db.Booking {
	return db.Booking{
		Reference:    "BK-0A1B2C3D",
		Source:       db.SourceVEVS,
		ExternalID:   "4312",
		CustomerID:   customer,
		Vehicle:      "Toyota Corolla (ABC123)",
		PickupAt:     time.Date(2026, 11, 1, 23, 30, 0, 0, time.UTC),
		ReturnAt:     time.Date(2026, 11, 5, 7, 0, 0, 0, time.UTC),
		Status:       db.StatusConfirmed,
		Currency:     "aud",
		TotalCents:   123450,
		DepositCents: 30000,
		PaidCents:    30000,
		BondCents:    50000,
		BondStatus:   payments.BondAuthorized,
	}
}

func TestBookingsXLSX(t *testing.T) {
	c := qt.New(t)
	customerID := primitive.NewObjectID()
	customers := map[primitive.ObjectID]*db.Customer{
		customerID: {ID: customerID, FirstName: "Alex", LastName: "Nguyen", Email: "alex@example.com"},
	}
	orphan := testBooking(primitive.NewObjectID())
	orphan.Reference = "BK-FFFFFFFF"

	data, err := BookingsXLSX([]db.Booking{testBooking(customerID), orphan}, customers, time.FixedZone("AEST", 10*3600))
	c.Assert(err, qt.IsNil)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(f.Close(), qt.IsNil) }()
	c.Assert(f.GetSheetList(), qt.DeepEquals, []string{BookingsSheet})

	rows, err := f.GetRows(BookingsSheet)
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 3)
	c.Assert(rows[0][0], qt.Equals, "Reference")
	c.Assert(rows[1][0], qt.Equals, "BK-0A1B2C3D")
	c.Assert(rows[1][4], qt.Equals, "Alex Nguyen")
	c.Assert(rows[1][8], qt.Equals, "2026-11-02 09:30")
	c.Assert(rows[2][4], qt.Equals, "")

	total, err := f.GetCellValue(BookingsSheet, "L2", excelize.Options{RawCellValue: true})
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, "1234.5")
	balance, err := f.GetCellValue(BookingsSheet, "O2", excelize.Options{RawCellValue: true})
	c.Assert(err, qt.IsNil)
	c.Assert(balance, qt.Equals, "934.5")
}

func TestBookingsXLSXEmpty(t *testing.T) {
	c := qt.New(t)
	data, err := BookingsXLSX(nil, nil, nil)
	c.Assert(err, qt.IsNil)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)
	rows, err := f.GetRows(BookingsSheet)
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 1)
}

func TestReceiptPDF(t *testing.T) {
	c := qt.New(t)
	b := testBooking(primitive.NewObjectID())
	owner := &db.Owner{
		Type:      payments.OwnerBooking,
		Booking:   &b,
		Reference: b.Reference,
		Currency:  b.Currency,
		PaidCents: b.PaidCents,
	}
	data, err := ReceiptPDF(Receipt{
		Brand:    "Coastal Cars",
		Owner:    owner,
		Customer: &db.Customer{FirstName: "Alex", Email: "alex@example.com"},
		Summary: payments.Summary{
			Account:      b.Account(),
			PaidCents:    30000,
			BalanceCents: 93450,
			HeldCents:    50000,
		},
		Payments: []db.Payment{
			{Kind: payments.KindDeposit, Status: payments.StatusSucceeded, AmountCents: 30000, AmountReceivedCents: 30000},
			{Kind: payments.KindBond, Status: payments.StatusRequiresCapture, AmountCents: 50000, AmountCapturableCents: 50000},
			{Kind: payments.KindBalance, Status: payments.StatusCanceled, AmountCents: 93450},
		},
		IssuedAt: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.HasPrefix(data, []byte("%PDF-")), qt.IsTrue)
	c.Assert(len(data) > 500, qt.IsTrue)

	_, err = ReceiptPDF(Receipt{})
	c.Assert(err, qt.ErrorMatches, "missing owner")
}

func TestFormatMoney(t *testing.T) {
	c := qt.New(t)
	c.Assert(formatMoney("aud", 123450), qt.Equals, "AUD 1234.50")
	c.Assert(formatMoney("nzd", 5), qt.Equals, "NZD 0.05")
}
