package importer

import (
	"encoding/json"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/db"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var sydney = time.FixedZone("AEST", 10*3600)

func TestMapStatus(t *testing.T) {
	c := qt.New(t)
	for in, want := range map[string]db.BookingStatus{
		"confirmed":     db.StatusConfirmed,
		"Approved":      db.StatusConfirmed,
		"pending":       db.StatusPending,
		"not_confirmed": db.StatusPending,
		"cancelled":     db.StatusCancelled,
		" canceled ":    db.StatusCancelled,
		"collected":     db.StatusCompleted,
		"completed":     db.StatusCompleted,
		"returned":      db.StatusCompleted,
	} {
		got, err := MapStatus(in)
		c.Assert(err, qt.IsNil, qt.Commentf("status %q", in))
		c.Assert(got, qt.Equals, want, qt.Commentf("status %q", in))
	}
	_, err := MapStatus("on_hold")
	c.Assert(err, qt.ErrorMatches, `unknown status "on_hold"`)
}

const vevsFixture = `{
	"id": 4312,
	"ref_id": "R-4312",
	"status": "confirmed",
	"date_from": "2026-11-02 09:30:00",
	"date_to": "2026-11-05 17:00:00",
	"pickup_location": "Sydney Airport",
	"return_location": "Sydney CBD",
	"car": {"name": "Toyota Corolla", "registration": "ABC123"},
	"client": {"first_name": "Alex", "last_name": "Nguyen", "email": "Alex@Example.com", "phone": "0412 345 678"},
	"total_price": "1,234.50",
	"required_deposit": "300",
	"security_deposit": "500.00",
	"currency": "AUD"
}`

func TestBookingFromVEVS(t *testing.T) {
	c := qt.New(t)
	var r VEVSReservation
	c.Assert(json.Unmarshal([]byte(vevsFixture), &r), qt.IsNil)
	c.Assert(r.ID, qt.Equals, flexString("4312"))

	m := &Mapper{Location: sydney}
	b, customer, err := m.BookingFromVEVS(r)
	c.Assert(err, qt.IsNil)
	c.Assert(b.Source, qt.Equals, db.SourceVEVS)
	c.Assert(b.ExternalID, qt.Equals, "4312")
	c.Assert(b.Status, qt.Equals, db.StatusConfirmed)
	c.Assert(b.TotalCents, qt.Equals, int64(123450))
	c.Assert(b.DepositCents, qt.Equals, int64(30000))
	c.Assert(b.BondCents, qt.Equals, int64(50000))
	c.Assert(b.Currency, qt.Equals, "aud")
	c.Assert(b.Vehicle, qt.Equals, "Toyota Corolla (ABC123)")
	c.Assert(b.PickupAt, qt.Equals, time.Date(2026, 11, 1, 23, 30, 0, 0, time.UTC))
	c.Assert(b.ReturnAt.Location(), qt.Equals, time.UTC)
	c.Assert(customer.Email, qt.Equals, "alex@example.com")
	c.Assert(customer.Phone, qt.Equals, "+61412345678")
	c.Assert(customer.FirstName, qt.Equals, "Alex")

	bad := r
	bad.TotalPrice = "12.345"
	_, _, err = m.BookingFromVEVS(bad)
	c.Assert(err, qt.ErrorMatches, "total_price: .*")

	bad = r
	bad.DateTo = "2026-11-01 09:00:00"
	_, _, err = m.BookingFromVEVS(bad)
	c.Assert(err, qt.ErrorMatches, "return .* before pickup .*")

	bad = r
	bad.DateFrom = "02/11/2026"
	_, _, err = m.BookingFromVEVS(bad)
	c.Assert(err, qt.ErrorMatches, `invalid date_from .*`)

	noDeposit := r
	noDeposit.RequiredDeposit, noDeposit.SecurityDeposit = "", ""
	noDeposit.Client.Phone = "not a phone"
	b, customer, err = m.BookingFromVEVS(noDeposit)
	c.Assert(err, qt.IsNil)
	c.Assert(b.DepositCents, qt.Equals, int64(0))
	c.Assert(b.BondCents, qt.Equals, int64(0))
	c.Assert(customer.Phone, qt.Equals, "")
}

func TestJobFromDreamDrives(t *testing.T) {
	c := qt.New(t)
	flow := &db.Flow{ID: primitive.NewObjectID(), Slug: "campervan", Currency: "nzd"}
	r := DreamDrivesBooking{
		BookingID:  "dd-77",
		Flow:       "campervan",
		Status:     "pending",
		Vehicle:    "Hiace Camper",
		Start:      time.Date(2026, 12, 20, 10, 0, 0, 0, sydney),
		End:        time.Date(2026, 12, 27, 10, 0, 0, 0, sydney),
		TotalCents: 250000,
		Customer:   FeedCustomer{FirstName: "Kim", Email: "kim@example.com"},
	}
	m := &Mapper{}
	j, customer, err := m.JobFromDreamDrives(r, flow)
	c.Assert(err, qt.IsNil)
	c.Assert(j.FlowID, qt.Equals, flow.ID)
	c.Assert(j.Source, qt.Equals, db.SourceDreamDrives)
	c.Assert(j.ExternalID, qt.Equals, "dd-77")
	c.Assert(j.Currency, qt.Equals, "nzd")
	c.Assert(j.StartAt, qt.Equals, time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC))
	c.Assert(customer.Email, qt.Equals, "kim@example.com")

	r.End = r.Start.Add(-time.Hour)
	_, _, err = m.JobFromDreamDrives(r, flow)
	c.Assert(err, qt.ErrorMatches, "invalid period .*")
}
