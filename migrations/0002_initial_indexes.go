package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(2, "initial_indexes", upInitialIndexes, downInitialIndexes)
}

// exists only indexes documents carrying the field, so records without an
// external id or a Stripe intent don't collide on the unique indexes.
func exists(field string) bson.M {
	return bson.M{field: bson.M{"$exists": true}}
}

var initialIndexes = map[string][]mongo.IndexModel{
	"users": {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
	"customers": {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(exists("email"))},
		{Keys: bson.D{{Key: "lastName", Value: 1}, {Key: "firstName", Value: 1}}},
	},
	"bookings": {
		{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "portalToken", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys:    bson.D{{Key: "source", Value: 1}, {Key: "externalId", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(exists("externalId")),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "pickupAt", Value: -1}}},
		{Keys: bson.D{{Key: "customerId", Value: 1}}},
	},
	"flows": {
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
	"jobs": {
		{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "portalToken", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys:    bson.D{{Key: "source", Value: 1}, {Key: "externalId", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(exists("externalId")),
		},
		{Keys: bson.D{{Key: "flowId", Value: 1}}},
	},
	"payments": {
		{
			Keys:    bson.D{{Key: "stripePaymentIntentId", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(exists("stripePaymentIntentId")),
		},
		{Keys: bson.D{{Key: "ownerType", Value: 1}, {Key: "ownerRef", Value: 1}, {Key: "kind", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "requestToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	},
	"deposits": {
		{Keys: bson.D{{Key: "ownerType", Value: 1}, {Key: "ownerRef", Value: 1}}},
	},
	"paymentRequests": {
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ownerType", Value: 1}, {Key: "ownerRef", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	},
	"importRuns": {
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "startedAt", Value: -1}}},
	},
	"documents": {
		{Keys: bson.D{{Key: "ownerType", Value: 1}, {Key: "ownerRef", Value: 1}}},
	},
	"migrations": {
		{Keys: bson.D{{Key: "version", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
}

func upInitialIndexes(ctx context.Context, database *mongo.Database) error {
	for name, indexes := range initialIndexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

func downInitialIndexes(ctx context.Context, database *mongo.Database) error {
	for name := range initialIndexes {
		if _, err := database.Collection(name).Indexes().DropAll(ctx); err != nil {
			return fmt.Errorf("failed to drop indexes for %s: %w", name, err)
		}
	}
	return nil
}
