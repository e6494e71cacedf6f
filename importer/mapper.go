package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/payments"
	"go.vocdoni.io/dvote/log"
)

var feedStatuses = map[string]db.BookingStatus{
	"confirmed":     db.StatusConfirmed,
	"approved":      db.StatusConfirmed,
	"pending":       db.StatusPending,
	"not_confirmed": db.StatusPending,
	"cancelled":     db.StatusCancelled,
	"canceled":      db.StatusCancelled,
	"collected":     db.StatusCompleted,
	"completed":     db.StatusCompleted,
	"returned":      db.StatusCompleted,
}

// MapStatus translates a feed status into a booking status.
func MapStatus(s string) (db.BookingStatus, error) {
	status, ok := feedStatuses[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

// Mapper turns feed records into bookings, jobs and customers.
type Mapper struct {
	Location        *time.Location
	DefaultCurrency string
	PhoneCountry    string
}

// Customer maps a feed driver. Phones that cannot be parsed are dropped.
func (m *Mapper) Customer(fc FeedCustomer) *db.Customer {
	c := &db.Customer{
		FirstName: strings.TrimSpace(fc.FirstName),
		LastName:  strings.TrimSpace(fc.LastName),
		Email:     strings.ToLower(strings.TrimSpace(fc.Email)),
	}
	if c.Email != "" && !internal.ValidEmail(c.Email) {
		log.Debugw("dropping invalid feed email", "email", c.Email)
		c.Email = ""
	}
	if fc.Phone != "" {
		country := m.PhoneCountry
		if country == "" {
			country = internal.DefaultPhoneCountry
		}
		phone, err := internal.SanitizeAndVerifyPhoneNumber(fc.Phone, country)
		if err != nil {
			log.Debugw("dropping invalid feed phone", "phone", fc.Phone, "error", err)
		} else {
			c.Phone = phone
		}
	}
	return c
}

func (m *Mapper) currency(c string) string {
	if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
		return c
	}
	if m.DefaultCurrency != "" {
		return m.DefaultCurrency
	}
	return db.DefaultCurrency
}

func optionalAmount(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return payments.ParseAmount(s)
}

// BookingFromVEVS maps a VEVS reservation. The booking customer is left
// unset, the caller resolves it from the returned customer.
func (m *Mapper) BookingFromVEVS(r VEVSReservation) (*db.Booking, *db.Customer, error) {
	if r.ID == "" {
		return nil, nil, fmt.Errorf("reservation without id")
	}
	status, err := MapStatus(r.Status)
	if err != nil {
		return nil, nil, err
	}
	loc := m.Location
	if loc == nil {
		loc = time.UTC
	}
	pickup, err := time.ParseInLocation(VEVSTimeLayout, r.DateFrom, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid date_from %q", r.DateFrom)
	}
	ret, err := time.ParseInLocation(VEVSTimeLayout, r.DateTo, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid date_to %q", r.DateTo)
	}
	if ret.Before(pickup) {
		return nil, nil, fmt.Errorf("return %s before pickup %s", r.DateTo, r.DateFrom)
	}
	total, err := payments.ParseAmount(r.TotalPrice)
	if err != nil {
		return nil, nil, fmt.Errorf("total_price: %w", err)
	}
	deposit, err := optionalAmount(r.RequiredDeposit)
	if err != nil {
		return nil, nil, fmt.Errorf("required_deposit: %w", err)
	}
	bond, err := optionalAmount(r.SecurityDeposit)
	if err != nil {
		return nil, nil, fmt.Errorf("security_deposit: %w", err)
	}
	vehicle := r.Car.Name
	if r.Car.Registration != "" {
		vehicle = fmt.Sprintf("%s (%s)", r.Car.Name, r.Car.Registration)
	}
	b := &db.Booking{
		Source:         db.SourceVEVS,
		ExternalID:     string(r.ID),
		Vehicle:        vehicle,
		PickupAt:       pickup.UTC(),
		ReturnAt:       ret.UTC(),
		PickupLocation: r.PickupLocation,
		ReturnLocation: r.ReturnLocation,
		Status:         status,
		Currency:       m.currency(r.Currency),
		TotalCents:     total,
		DepositCents:   min(deposit, total),
		BondCents:      bond,
	}
	return b, m.Customer(r.Client), nil
}

// JobFromDreamDrives maps a Dream Drives booking run under flow.
func (m *Mapper) JobFromDreamDrives(r DreamDrivesBooking, flow *db.Flow) (*db.Job, *db.Customer, error) {
	if r.BookingID == "" {
		return nil, nil, fmt.Errorf("booking without id")
	}
	status, err := MapStatus(r.Status)
	if err != nil {
		return nil, nil, err
	}
	if r.Start.IsZero() || r.End.Before(r.Start) {
		return nil, nil, fmt.Errorf("invalid period %s - %s", r.Start, r.End)
	}
	if r.TotalCents < 0 {
		return nil, nil, fmt.Errorf("negative total %d", r.TotalCents)
	}
	currency := r.Currency
	if currency == "" {
		currency = flow.Currency
	}
	j := &db.Job{
		FlowID:     flow.ID,
		Source:     db.SourceDreamDrives,
		ExternalID: string(r.BookingID),
		Vehicle:    r.Vehicle,
		StartAt:    r.Start.UTC(),
		EndAt:      r.End.UTC(),
		Status:     status,
		Currency:   m.currency(currency),
		TotalCents: r.TotalCents,
	}
	return j, m.Customer(r.Customer), nil
}
