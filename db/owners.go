package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Owner is the common view of a booking or a job used by the payment flows.
type Owner struct {
	Type        payments.OwnerType
	Booking     *Booking
	Job         *Job
	Flow        *Flow
	Reference   string
	CustomerID  primitive.ObjectID
	Status      BookingStatus
	Currency    string
	PaidCents   int64
	BondStatus  payments.BondStatus
	PortalToken string
}

// Account returns what the owner is expected to pay.
func (o *Owner) Account() (payments.Account, error) {
	if o.Booking != nil {
		return o.Booking.Account(), nil
	}
	if o.Job == nil || o.Flow == nil {
		return payments.Account{}, ErrInvalidData
	}
	return o.Job.Account(o.Flow)
}

func ownerFromBooking(b *Booking) *Owner {
	return &Owner{
		Type:        payments.OwnerBooking,
		Booking:     b,
		Reference:   b.Reference,
		CustomerID:  b.CustomerID,
		Status:      b.Status,
		Currency:    b.Currency,
		PaidCents:   b.PaidCents,
		BondStatus:  b.BondStatus,
		PortalToken: b.PortalToken,
	}
}

func (ms *MongoStorage) ownerFromJob(j *Job) (*Owner, error) {
	flow, err := ms.FlowByID(j.FlowID)
	if err != nil {
		return nil, fmt.Errorf("flow of job %s: %w", j.Reference, err)
	}
	return &Owner{
		Type:        payments.OwnerJob,
		Job:         j,
		Flow:        flow,
		Reference:   j.Reference,
		CustomerID:  j.CustomerID,
		Status:      j.Status,
		Currency:    j.Currency,
		PaidCents:   j.PaidCents,
		BondStatus:  j.BondStatus,
		PortalToken: j.PortalToken,
	}, nil
}

// Owner loads the booking or job identified by type and reference.
func (ms *MongoStorage) Owner(t payments.OwnerType, reference string) (*Owner, error) {
	switch t {
	case payments.OwnerBooking:
		b, err := ms.Booking(reference)
		if err != nil {
			return nil, err
		}
		return ownerFromBooking(b), nil
	case payments.OwnerJob:
		j, err := ms.Job(reference)
		if err != nil {
			return nil, err
		}
		return ms.ownerFromJob(j)
	default:
		return nil, ErrInvalidData
	}
}

// OwnerByPortalToken finds the booking or job a portal token belongs to.
func (ms *MongoStorage) OwnerByPortalToken(token string) (*Owner, error) {
	b, err := ms.BookingByPortalToken(token)
	if err == nil {
		return ownerFromBooking(b), nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	j, err := ms.JobByPortalToken(token)
	if err != nil {
		return nil, err
	}
	return ms.ownerFromJob(j)
}

func (ms *MongoStorage) ownerCollection(t payments.OwnerType) (*mongo.Collection, error) {
	switch t {
	case payments.OwnerBooking:
		return ms.bookings, nil
	case payments.OwnerJob:
		return ms.jobs, nil
	}
	return nil, ErrInvalidData
}

func (ms *MongoStorage) updateOwner(t payments.OwnerType, filter, set bson.M) (bool, error) {
	coll, err := ms.ownerCollection(t)
	if err != nil {
		return false, err
	}
	set["updatedAt"] = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("cannot update %s: %w", t, storageErr(err))
	}
	return res.ModifiedCount > 0, nil
}

// SetOwnerPaid stores the recomputed paid amount of the owner.
func (ms *MongoStorage) SetOwnerPaid(t payments.OwnerType, reference string, paidCents int64) error {
	_, err := ms.updateOwner(t, bson.M{"reference": reference}, bson.M{"paidCents": paidCents})
	return err
}

// SetOwnerBondStatus stores the bond status of the owner.
func (ms *MongoStorage) SetOwnerBondStatus(t payments.OwnerType, reference string, status payments.BondStatus) error {
	_, err := ms.updateOwner(t, bson.M{"reference": reference}, bson.M{"bondStatus": status})
	return err
}

// SetOwnerStatus stores the lifecycle status of the owner.
func (ms *MongoStorage) SetOwnerStatus(t payments.OwnerType, reference string, status BookingStatus) error {
	if !status.Valid() {
		return ErrInvalidData
	}
	_, err := ms.updateOwner(t, bson.M{"reference": reference}, bson.M{"status": status})
	return err
}

// ConfirmOwner moves a pending owner to confirmed. It reports whether the
// owner was pending.
func (ms *MongoStorage) ConfirmOwner(t payments.OwnerType, reference string) (bool, error) {
	return ms.updateOwner(t, bson.M{"reference": reference, "status": StatusPending}, bson.M{"status": StatusConfirmed})
}

// RotatePortalToken replaces the portal token of the owner, invalidating
// links sent before. It returns the new token.
func (ms *MongoStorage) RotatePortalToken(t payments.OwnerType, reference string) (string, error) {
	token := internal.NewPortalToken()
	coll, err := ms.ownerCollection(t)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := coll.UpdateOne(ctx, bson.M{"reference": reference},
		bson.M{"$set": bson.M{"portalToken": token, "updatedAt": time.Now()}})
	if err != nil {
		return "", fmt.Errorf("cannot rotate portal token: %w", storageErr(err))
	}
	if res.MatchedCount == 0 {
		return "", ErrNotFound
	}
	return token, nil
}
