package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AddDeposit records an offline deposit for the owner.
func (ms *MongoStorage) AddDeposit(d *Deposit) error {
	if !d.OwnerType.Valid() || d.OwnerRef == "" || d.AmountCents <= 0 {
		return ErrInvalidData
	}
	switch d.Method {
	case MethodCash, MethodBankTransfer, MethodCardTerminal, MethodOther:
	case "":
		d.Method = MethodOther
	default:
		return ErrInvalidData
	}
	d.ID = primitive.NewObjectID()
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now()
	}
	if d.Currency == "" {
		d.Currency = DefaultCurrency
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	if _, err := ms.deposits.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("cannot insert deposit: %w", storageErr(err))
	}
	return nil
}

// DepositsByOwner returns the offline deposits of the owner, oldest first.
func (ms *MongoStorage) DepositsByOwner(t payments.OwnerType, reference string) ([]Deposit, error) {
	return findAll[Deposit](ms.deposits, bson.M{"ownerType": t, "ownerRef": reference}, bson.D{{Key: "receivedAt", Value: 1}})
}

// DepositAmounts returns the amounts of the offline deposits of the owner.
func (ms *MongoStorage) DepositAmounts(t payments.OwnerType, reference string) ([]int64, error) {
	list, err := ms.DepositsByOwner(t, reference)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(list))
	for _, d := range list {
		out = append(out, d.AmountCents)
	}
	return out, nil
}
