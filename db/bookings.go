package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.vocdoni.io/dvote/log"
)

// DefaultCurrency is used when a record does not name one.
const DefaultCurrency = "aud"

// maxReferenceAttempts bounds the retries on a reference or token collision.
const maxReferenceAttempts = 5

// BookingFilter narrows down booking listings. Zero fields match everything.
type BookingFilter struct {
	Status     BookingStatus
	Source     Source
	CustomerID primitive.ObjectID
	Search     string
	From       time.Time
	To         time.Time
}

func (f BookingFilter) bson() bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Source != "" {
		filter["source"] = f.Source
	}
	if !f.CustomerID.IsZero() {
		filter["customerId"] = f.CustomerID
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		filter["reference"] = bson.M{"$regex": "^" + regexp.QuoteMeta(strings.ToUpper(s))}
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		r := bson.M{}
		if !f.From.IsZero() {
			r["$gte"] = f.From
		}
		if !f.To.IsZero() {
			r["$lt"] = f.To
		}
		filter["pickupAt"] = r
	}
	return filter
}

// CreateBooking inserts a new booking, assigning its reference and portal
// token when missing. The generated values are retried on collision.
func (ms *MongoStorage) CreateBooking(b *Booking) error {
	if b.CustomerID.IsZero() || b.TotalCents < 0 || b.DepositCents < 0 || b.BondCents < 0 {
		return ErrInvalidData
	}
	now := time.Now()
	b.ID = primitive.NewObjectID()
	b.CreatedAt, b.UpdatedAt = now, now
	b.PaidCents = 0
	if b.Source == "" {
		b.Source = SourceManual
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
	if b.BondStatus == "" {
		b.BondStatus = payments.BondNone
	}
	fixedRef, fixedToken := b.Reference != "", b.PortalToken != ""

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	for range maxReferenceAttempts {
		if !fixedRef {
			b.Reference = internal.NewReference(internal.ReferencePrefix)
		}
		if !fixedToken {
			b.PortalToken = internal.NewPortalToken()
		}
		_, err := ms.bookings.InsertOne(ctx, b)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) || (fixedRef && fixedToken) {
			return fmt.Errorf("cannot insert booking: %w", storageErr(err))
		}
		log.Debugw("booking reference collision, retrying", "reference", b.Reference)
	}
	return fmt.Errorf("cannot insert booking: %w", ErrAlreadyExists)
}

// Booking returns the booking with the given reference.
func (ms *MongoStorage) Booking(reference string) (*Booking, error) {
	return findOne[Booking](ms.bookings, bson.M{"reference": strings.ToUpper(reference)})
}

// BookingByPortalToken returns the booking the portal token belongs to.
func (ms *MongoStorage) BookingByPortalToken(token string) (*Booking, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return findOne[Booking](ms.bookings, bson.M{"portalToken": token})
}

// BookingByExternalID returns the booking imported from source with id.
func (ms *MongoStorage) BookingByExternalID(source Source, id string) (*Booking, error) {
	return findOne[Booking](ms.bookings, bson.M{"source": source, "externalId": id})
}

// Bookings returns a page of bookings, newest pickups first.
func (ms *MongoStorage) Bookings(f BookingFilter, page, pageSize int) (int, []Booking, error) {
	return paginate[Booking](ms.bookings, f.bson(), bson.D{{Key: "pickupAt", Value: -1}}, page, pageSize)
}

// AllBookings returns every booking matching the filter, used by exports.
func (ms *MongoStorage) AllBookings(f BookingFilter) ([]Booking, error) {
	return findAll[Booking](ms.bookings, f.bson(), bson.D{{Key: "pickupAt", Value: 1}})
}

// UpdateBooking updates the editable fields of the booking identified by its
// reference. Payment related caches are never written here.
func (ms *MongoStorage) UpdateBooking(b *Booking) error {
	if b.Reference == "" {
		return ErrInvalidData
	}
	editable := Booking{
		CustomerID:     b.CustomerID,
		Vehicle:        b.Vehicle,
		PickupAt:       b.PickupAt,
		ReturnAt:       b.ReturnAt,
		PickupLocation: b.PickupLocation,
		ReturnLocation: b.ReturnLocation,
		Status:         b.Status,
		Currency:       b.Currency,
		TotalCents:     b.TotalCents,
		DepositCents:   b.DepositCents,
		BondCents:      b.BondCents,
		Notes:          b.Notes,
		UpdatedAt:      time.Now(),
	}
	updateDoc, err := dynamicUpdateDocument(editable, nil)
	if err != nil {
		return fmt.Errorf("failed to create update document: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := ms.bookings.UpdateOne(ctx, bson.M{"reference": b.Reference}, updateDoc)
	if err != nil {
		return fmt.Errorf("cannot update booking: %w", storageErr(err))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertBookingFromFeed creates or refreshes the booking imported from an
// external feed, keyed by (source, externalId). Local fields such as the
// reference, the portal token, the payment caches and the notes are kept. A
// feed reporting pending does not move back a booking confirmed locally.
func (ms *MongoStorage) UpsertBookingFromFeed(b *Booking) (UpsertResult, error) {
	if b.Source == "" || b.Source == SourceManual || b.ExternalID == "" {
		return UpsertResult{}, ErrInvalidData
	}
	existing, err := ms.BookingByExternalID(b.Source, b.ExternalID)
	if errors.Is(err, ErrNotFound) {
		if err := ms.CreateBooking(b); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				// a concurrent import won the insert, refresh it instead
				return ms.UpsertBookingFromFeed(b)
			}
			return UpsertResult{}, err
		}
		return UpsertResult{Created: true}, nil
	}
	if err != nil {
		return UpsertResult{}, err
	}

	status := b.Status
	if status == StatusPending && existing.Status == StatusConfirmed {
		status = StatusConfirmed
	}
	set := bson.M{
		"customerId":     b.CustomerID,
		"vehicle":        b.Vehicle,
		"pickupAt":       b.PickupAt,
		"returnAt":       b.ReturnAt,
		"pickupLocation": b.PickupLocation,
		"returnLocation": b.ReturnLocation,
		"status":         status,
		"currency":       orDefault(b.Currency, existing.Currency),
		"totalCents":     b.TotalCents,
		"depositCents":   b.DepositCents,
		"bondCents":      b.BondCents,
		"updatedAt":      time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	if _, err := ms.bookings.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": set}); err != nil {
		return UpsertResult{}, fmt.Errorf("cannot update booking: %w", storageErr(err))
	}
	b.ID, b.Reference, b.PortalToken = existing.ID, existing.Reference, existing.PortalToken
	b.PaidCents, b.BondStatus, b.Status = existing.PaidCents, existing.BondStatus, status
	return UpsertResult{}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
