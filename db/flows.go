package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// SetFlow creates the flow or replaces the rules of the flow with the same
// slug. The deposit rule is validated before storing.
func (ms *MongoStorage) SetFlow(flow *Flow) error {
	flow.Slug = strings.ToLower(strings.TrimSpace(flow.Slug))
	if flow.Name == "" || !slugRegex.MatchString(flow.Slug) || flow.BondCents < 0 || flow.BalanceDueDays < 0 {
		return ErrInvalidData
	}
	if flow.DepositType == "" {
		flow.DepositType = payments.DepositFixed
	}
	if _, err := flow.DepositFor(0); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if flow.Currency == "" {
		flow.Currency = DefaultCurrency
	}
	now := time.Now()
	flow.UpdatedAt = now

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	update := bson.M{
		"$set": bson.M{
			"name":           flow.Name,
			"brand":          flow.Brand,
			"currency":       flow.Currency,
			"depositType":    flow.DepositType,
			"depositValue":   flow.DepositValue,
			"bondCents":      flow.BondCents,
			"balanceDueDays": flow.BalanceDueDays,
			"updatedAt":      now,
		},
		"$setOnInsert": bson.M{
			"_id":       primitive.NewObjectID(),
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	if err := ms.flows.FindOneAndUpdate(ctx, bson.M{"slug": flow.Slug}, update, opts).Decode(flow); err != nil {
		return fmt.Errorf("cannot upsert flow: %w", storageErr(err))
	}
	return nil
}

// Flow returns the flow with the given slug.
func (ms *MongoStorage) Flow(slug string) (*Flow, error) {
	return findOne[Flow](ms.flows, bson.M{"slug": strings.ToLower(slug)})
}

// FlowByID returns the flow with the given ID.
func (ms *MongoStorage) FlowByID(id primitive.ObjectID) (*Flow, error) {
	return findOne[Flow](ms.flows, bson.M{"_id": id})
}

// Flows returns a page of flows sorted by name.
func (ms *MongoStorage) Flows(page, pageSize int) (int, []Flow, error) {
	return paginate[Flow](ms.flows, bson.M{}, bson.D{{Key: "name", Value: 1}}, page, pageSize)
}

// DelFlow deletes the flow with the given slug. Flows with jobs cannot be
// deleted.
func (ms *MongoStorage) DelFlow(slug string) error {
	flow, err := ms.Flow(slug)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	n, err := ms.jobs.CountDocuments(ctx, bson.M{"flowId": flow.ID})
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrInUse
	}
	if _, err := ms.flows.DeleteOne(ctx, bson.M{"_id": flow.ID}); err != nil {
		return fmt.Errorf("cannot delete flow: %w", err)
	}
	return nil
}
