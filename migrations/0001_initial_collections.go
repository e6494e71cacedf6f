package migrations

import (
	"context"
	"fmt"
	"slices"

	"github.com/rentalhq/backoffice/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(1, "initial_collections", upInitialCollections, downInitialCollections)
}

var collectionsToCreate = []string{
	"users",
	"customers",
	"bookings",
	"flows",
	"jobs",
	"payments",
	"deposits",
	"paymentRequests",
	"importRuns",
	"documents",
	"migrations",
}

var collectionsValidators = map[string]bson.M{
	"users":    usersCollectionValidator,
	"bookings": bookingsCollectionValidator,
	"payments": paymentsCollectionValidator,
}

var usersCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "email", "password"},
		"properties": bson.M{
			"email": bson.M{
				"bsonType":    "string",
				"description": "must be an email and is required",
				"pattern":     internal.EmailRegexTemplate,
			},
			"password": bson.M{
				"bsonType":    "string",
				"description": "must be a password hash and is required",
				"minLength":   8,
			},
		},
	},
}

var bookingsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "reference", "portalToken", "status", "totalCents"},
		"properties": bson.M{
			"reference": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
			},
			"status": bson.M{
				"enum":        []string{"pending", "confirmed", "cancelled", "completed"},
				"description": "must be a known booking status",
			},
			"totalCents": bson.M{
				"bsonType":    "long",
				"minimum":     0,
				"description": "must be a non negative amount of cents",
			},
			"paidCents": bson.M{
				"bsonType":    "long",
				"description": "must be an amount of cents",
			},
		},
	},
}

var paymentsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "ownerType", "ownerRef", "kind", "amountCents"},
		"properties": bson.M{
			"ownerType": bson.M{
				"enum":        []string{"booking", "job"},
				"description": "must be booking or job",
			},
			"kind": bson.M{
				"enum":        []string{"deposit", "balance", "bond", "request"},
				"description": "must be a known payment kind",
			},
			"amountCents": bson.M{
				"bsonType":    "long",
				"minimum":     0,
				"description": "must be a non negative amount of cents",
			},
		},
	},
}

func upInitialCollections(ctx context.Context, database *mongo.Database) error {
	currentCollections, err := listCollectionsInDB(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to get current collections: %w", err)
	}
	for _, name := range collectionsToCreate {
		validator, hasValidator := collectionsValidators[name]
		if slices.Contains(currentCollections, name) {
			if hasValidator {
				if err := database.RunCommand(ctx, bson.D{
					{Key: "collMod", Value: name},
					{Key: "validator", Value: validator},
				}).Err(); err != nil {
					return fmt.Errorf("failed to update %s validator: %w", name, err)
				}
			}
			continue
		}
		opts := options.CreateCollection()
		if hasValidator {
			opts = opts.SetValidator(validator).SetValidationLevel("strict").SetValidationAction("error")
		}
		if err := database.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// downInitialCollections keeps the data: dropping every collection is too
// destructive and the up func is idempotent anyway.
func downInitialCollections(context.Context, *mongo.Database) error {
	return nil
}
