package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func init() {
	AddMigration(3, "payment_requests_expiry_index", upRequestsExpiryIndex, downRequestsExpiryIndex)
}

// The expiry sweep filters by status and expiresAt, so the status index is
// widened into a compound one.
func upRequestsExpiryIndex(ctx context.Context, database *mongo.Database) error {
	return replaceIndex(ctx, database.Collection("paymentRequests"),
		[]string{"status_1"},
		[]mongo.IndexModel{{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}}},
	)
}

func downRequestsExpiryIndex(ctx context.Context, database *mongo.Database) error {
	return replaceIndex(ctx, database.Collection("paymentRequests"),
		[]string{"status_1_expiresAt_1"},
		[]mongo.IndexModel{{Keys: bson.D{{Key: "status", Value: 1}}}},
	)
}
