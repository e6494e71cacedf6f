package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetPayment inserts or replaces the payment record.
func (ms *MongoStorage) SetPayment(p *Payment) error {
	if !p.OwnerType.Valid() || p.OwnerRef == "" || !p.Kind.Valid() {
		return ErrInvalidData
	}
	now := time.Now()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.payments.ReplaceOne(ctx, bson.M{"_id": p.ID}, p, opts); err != nil {
		return fmt.Errorf("cannot store payment: %w", storageErr(err))
	}
	return nil
}

// Payment returns the payment with the given ID.
func (ms *MongoStorage) Payment(id primitive.ObjectID) (*Payment, error) {
	return findOne[Payment](ms.payments, bson.M{"_id": id})
}

// PaymentByIntentID returns the payment tracking the Stripe PaymentIntent.
func (ms *MongoStorage) PaymentByIntentID(intentID string) (*Payment, error) {
	if intentID == "" {
		return nil, ErrNotFound
	}
	return findOne[Payment](ms.payments, bson.M{"stripePaymentIntentId": intentID})
}

// PaymentsByOwner returns every payment of the owner, oldest first.
func (ms *MongoStorage) PaymentsByOwner(t payments.OwnerType, reference string) ([]Payment, error) {
	return findAll[Payment](ms.payments, bson.M{"ownerType": t, "ownerRef": reference}, bson.D{{Key: "createdAt", Value: 1}})
}

// LatestPayment returns the most recent payment of the given kind. Payment
// requests are matched by their token instead, see LatestRequestPayment.
func (ms *MongoStorage) LatestPayment(t payments.OwnerType, reference string, kind payments.Kind) (*Payment, error) {
	return ms.latestPayment(bson.M{"ownerType": t, "ownerRef": reference, "kind": kind})
}

// LatestRequestPayment returns the most recent payment created for the
// payment request token.
func (ms *MongoStorage) LatestRequestPayment(token string) (*Payment, error) {
	return ms.latestPayment(bson.M{"kind": payments.KindRequest, "requestToken": token})
}

func (ms *MongoStorage) latestPayment(filter bson.M) (*Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	var p Payment
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if err := ms.payments.FindOne(ctx, filter, opts).Decode(&p); err != nil {
		return nil, storageErr(err)
	}
	return &p, nil
}

// HasCapturedPayments reports whether the owner received money through Stripe.
func (ms *MongoStorage) HasCapturedPayments(t payments.OwnerType, reference string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	n, err := ms.payments.CountDocuments(ctx, bson.M{
		"ownerType":           t,
		"ownerRef":            reference,
		"status":              bson.M{"$in": []payments.Status{payments.StatusSucceeded, payments.StatusPartiallyRefunded}},
		"amountReceivedCents": bson.M{"$gt": 0},
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OpenPayments returns the owner payments whose intent can still be canceled.
func (ms *MongoStorage) OpenPayments(t payments.OwnerType, reference string) ([]Payment, error) {
	return findAll[Payment](ms.payments, bson.M{
		"ownerType": t,
		"ownerRef":  reference,
		"status": bson.M{"$in": []payments.Status{
			payments.StatusRequiresPaymentMethod,
			payments.StatusRequiresConfirmation,
			payments.StatusRequiresAction,
			payments.StatusRequiresCapture,
		}},
	}, nil)
}
