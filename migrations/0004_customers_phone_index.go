package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func init() {
	AddMigration(4, "customers_phone_index", upCustomersPhoneIndex, downCustomersPhoneIndex)
}

// Feed imports match drivers without an email by their E.164 phone.
func upCustomersPhoneIndex(ctx context.Context, database *mongo.Database) error {
	return replaceIndex(ctx, database.Collection("customers"), nil,
		[]mongo.IndexModel{{Keys: bson.D{{Key: "phone", Value: 1}}}},
	)
}

func downCustomersPhoneIndex(ctx context.Context, database *mongo.Database) error {
	return replaceIndex(ctx, database.Collection("customers"), []string{"phone_1"}, nil)
}
