package reports

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
)

// Receipt is what ReceiptPDF renders.
type Receipt struct {
	Brand    string
	Owner    *db.Owner
	Customer *db.Customer
	Summary  payments.Summary
	Payments []db.Payment
	Deposits []db.Deposit
	IssuedAt time.Time
	Location *time.Location
}

func currencyCode(c string) string {
	return strings.ToUpper(c)
}

// ReceiptPDF renders the payment receipt of an owner: the collected payments,
// the offline deposits and the resulting totals. Bond holds are listed but
// never counted as paid.
func ReceiptPDF(r Receipt) ([]byte, error) {
	if r.Owner == nil {
		return nil, fmt.Errorf("missing owner")
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	issued := r.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	currency := r.Owner.Currency

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+r.Owner.Reference, false)
	pdf.SetAuthor(r.Brand, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	title := "RECEIPT"
	if r.Brand != "" {
		title = r.Brand + " - RECEIPT"
	}
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, "Reference: "+r.Owner.Reference)
	pdf.Ln(6)
	pdf.Cell(0, 6, "Issued: "+issued.In(loc).Format("2006-01-02 15:04"))
	pdf.Ln(6)
	if r.Customer != nil {
		pdf.Cell(0, 6, "Customer: "+r.Customer.FullName())
		pdf.Ln(6)
		if r.Customer.Email != "" {
			pdf.Cell(0, 6, "Email: "+r.Customer.Email)
			pdf.Ln(6)
		}
	}
	if b := r.Owner.Booking; b != nil {
		pdf.Cell(0, 6, "Vehicle: "+b.Vehicle)
		pdf.Ln(6)
		pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
			b.PickupAt.In(loc).Format("2006-01-02 15:04"), b.ReturnAt.In(loc).Format("2006-01-02 15:04")))
		pdf.Ln(6)
	}
	if j := r.Owner.Job; j != nil {
		pdf.Cell(0, 6, "Vehicle: "+j.Vehicle)
		pdf.Ln(6)
		pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
			j.StartAt.In(loc).Format("2006-01-02"), j.EndAt.In(loc).Format("2006-01-02")))
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(221, 235, 247)
	pdf.CellFormat(40, 7, "Date", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 7, "Kind", "1", 0, "L", true, 0, "")
	pdf.CellFormat(45, 7, "Status", "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 7, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	rows := 0
	for _, p := range r.Payments {
		amount := p.AmountReceivedCents - p.AmountRefundedCents
		switch {
		case p.Kind == payments.KindBond && p.Status == payments.StatusRequiresCapture:
			amount = p.AmountCapturableCents
		case !p.Status.Collected():
			continue
		}
		pdf.CellFormat(40, 6, p.UpdatedAt.In(loc).Format("2006-01-02"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, string(p.Kind), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, string(p.Status), "1", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, formatMoney(currency, amount), "1", 1, "R", false, 0, "")
		rows++
	}
	for _, d := range r.Deposits {
		pdf.CellFormat(40, 6, d.ReceivedAt.In(loc).Format("2006-01-02"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, "offline", "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, string(d.Method), "1", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, formatMoney(currency, d.AmountCents), "1", 1, "R", false, 0, "")
		rows++
	}
	if rows == 0 {
		pdf.CellFormat(0, 6, "No payments received yet", "1", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	s := r.Summary
	pdf.SetFont("Helvetica", "", 11)
	line := func(label string, cents int64) {
		pdf.CellFormat(120, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, formatMoney(currency, cents), "", 1, "R", false, 0, "")
	}
	line("Total", s.Account.TotalCents)
	line("Paid", s.PaidCents)
	if s.RefundedCents > 0 {
		line("Refunded", s.RefundedCents)
	}
	if s.HeldCents > 0 {
		line("Bond held", s.HeldCents)
	}
	pdf.SetFont("Helvetica", "B", 12)
	line("Balance due", s.BalanceCents)

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Bond holds are authorizations on your card and are released after the vehicle is returned.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("cannot render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
