package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultRequestTTL is how long a payment request link stays payable.
const DefaultRequestTTL = 7 * 24 * time.Hour

// CreatePaymentRequest stores a new pending payment request with a fresh
// token.
func (ms *MongoStorage) CreatePaymentRequest(r *PaymentRequest) error {
	if !r.OwnerType.Valid() || r.OwnerRef == "" || r.AmountCents <= 0 {
		return ErrInvalidData
	}
	now := time.Now()
	r.ID = primitive.NewObjectID()
	r.Token = internal.NewPortalToken()
	r.Status = RequestPending
	r.CreatedAt = now
	if r.ExpiresAt.IsZero() {
		r.ExpiresAt = now.Add(DefaultRequestTTL)
	}
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	if _, err := ms.paymentRequests.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("cannot insert payment request: %w", storageErr(err))
	}
	return nil
}

// PaymentRequest returns the payment request with the given token.
func (ms *MongoStorage) PaymentRequest(token string) (*PaymentRequest, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return findOne[PaymentRequest](ms.paymentRequests, bson.M{"token": token})
}

// PaymentRequests returns a page of payment requests, newest first. Empty
// arguments match every request.
func (ms *MongoStorage) PaymentRequests(t payments.OwnerType, reference string, status RequestStatus,
	page, pageSize int,
) (int, []PaymentRequest, error) {
	filter := bson.M{}
	if t != "" {
		filter["ownerType"] = t
	}
	if reference != "" {
		filter["ownerRef"] = reference
	}
	if status != "" {
		filter["status"] = status
	}
	return paginate[PaymentRequest](ms.paymentRequests, filter, bson.D{{Key: "createdAt", Value: -1}}, page, pageSize)
}

// SetPaymentRequestStatus moves a pending request to status. Requests that are
// no longer pending are left untouched and ErrNotFound is returned.
func (ms *MongoStorage) SetPaymentRequestStatus(token string, status RequestStatus, paymentID primitive.ObjectID) error {
	set := bson.M{"status": status}
	if !paymentID.IsZero() {
		set["paymentId"] = paymentID
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := ms.paymentRequests.UpdateOne(ctx, bson.M{"token": token, "status": RequestPending}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("cannot update payment request: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddPaymentRequestChannel records a channel the request link was sent by.
func (ms *MongoStorage) AddPaymentRequestChannel(token, channel string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	_, err := ms.paymentRequests.UpdateOne(ctx, bson.M{"token": token}, bson.M{"$addToSet": bson.M{"sentVia": channel}})
	return err
}

// ExpirePaymentRequests marks as expired every pending request past its
// expiry and returns how many were updated.
func (ms *MongoStorage) ExpirePaymentRequests(now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := ms.paymentRequests.UpdateMany(ctx,
		bson.M{"status": RequestPending, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": RequestExpired}})
	if err != nil {
		return 0, fmt.Errorf("cannot expire payment requests: %w", err)
	}
	return res.ModifiedCount, nil
}
