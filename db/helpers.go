package db

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// initCollections binds the collection handles. Collections and indexes are
// created by the migrations.
func (ms *MongoStorage) initCollections(database string) {
	db := ms.DBClient.Database(database)
	ms.users = db.Collection("users")
	ms.customers = db.Collection("customers")
	ms.bookings = db.Collection("bookings")
	ms.flows = db.Collection("flows")
	ms.jobs = db.Collection("jobs")
	ms.payments = db.Collection("payments")
	ms.deposits = db.Collection("deposits")
	ms.paymentRequests = db.Collection("paymentRequests")
	ms.importRuns = db.Collection("importRuns")
	ms.documents = db.Collection("documents")
	ms.migrations = db.Collection("migrations")
}

// dynamicUpdateDocument creates a BSON update document from a struct, including only non-zero fields.
// It uses reflection to iterate over the struct fields and create the update document.
// The struct fields must have a bson tag to be included in the update document.
// The _id field is skipped.
func dynamicUpdateDocument(item any, alwaysUpdateTags []string) (bson.M, error) {
	val := reflect.ValueOf(item)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if !val.IsValid() || val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input must be a valid struct")
	}
	update := bson.M{}
	typ := val.Type()
	alwaysUpdateMap := make(map[string]bool, len(alwaysUpdateTags))
	for _, tag := range alwaysUpdateTags {
		alwaysUpdateMap[tag] = true
	}
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanInterface() {
			continue
		}
		tag, _, _ := strings.Cut(typ.Field(i).Tag.Get("bson"), ",")
		if tag == "" || tag == "-" || tag == "_id" {
			continue
		}
		if alwaysUpdateMap[tag] || !field.IsZero() {
			update[tag] = field.Interface()
		}
	}
	return bson.M{"$set": update}, nil
}

// paginate runs a paginated find over coll and decodes the page into out.
// Pages start at 1. It returns the total amount of pages.
func paginate[T any](coll *mongo.Collection, filter bson.M, sort bson.D, page, pageSize int) (int, []T, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	totalCount, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count %s: %w", coll.Name(), err)
	}
	totalPages := int((totalCount + int64(pageSize) - 1) / int64(pageSize))

	findOptions := options.Find().
		SetSort(sort).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cursor, err := coll.Find(ctx, filter, findOptions)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get %s: %w", coll.Name(), err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "error", err)
		}
	}()
	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return 0, nil, fmt.Errorf("failed to decode %s: %w", coll.Name(), err)
	}
	return totalPages, items, nil
}

// findAll decodes every document matching filter.
func findAll[T any](coll *mongo.Collection, filter bson.M, sort bson.D) ([]T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", coll.Name(), err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "error", err)
		}
	}()
	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", coll.Name(), err)
	}
	return items, nil
}

// findOne decodes the single document matching filter, returning ErrNotFound
// when there is none.
func findOne[T any](coll *mongo.Collection, filter bson.M) (*T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	item := new(T)
	if err := coll.FindOne(ctx, filter).Decode(item); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", coll.Name(), err)
	}
	return item, nil
}

// storageErr maps driver errors to the package sentinel errors.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case err == mongo.ErrNoDocuments:
		return ErrNotFound
	default:
		return err
	}
}
