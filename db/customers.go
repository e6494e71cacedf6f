package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetCustomer creates the customer or updates the non-zero fields of an
// existing one.
func (ms *MongoStorage) SetCustomer(customer *Customer) error {
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	now := time.Now()
	if customer.ID.IsZero() {
		if customer.FirstName == "" && customer.Email == "" {
			return ErrInvalidData
		}
		customer.ID = primitive.NewObjectID()
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now

	updateDoc, err := dynamicUpdateDocument(customer, nil)
	if err != nil {
		return fmt.Errorf("failed to create update document: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	opts := options.Update().SetUpsert(true)
	if _, err := ms.customers.UpdateOne(ctx, bson.M{"_id": customer.ID}, updateDoc, opts); err != nil {
		return fmt.Errorf("cannot upsert customer: %w", storageErr(err))
	}
	return nil
}

// Customer returns the customer with the given ID.
func (ms *MongoStorage) Customer(id primitive.ObjectID) (*Customer, error) {
	return findOne[Customer](ms.customers, bson.M{"_id": id})
}

// CustomerByEmail returns the customer with the given email.
func (ms *MongoStorage) CustomerByEmail(email string) (*Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrNotFound
	}
	return findOne[Customer](ms.customers, bson.M{"email": email})
}

// CustomersByIDs returns the customers with the given IDs keyed by ID.
func (ms *MongoStorage) CustomersByIDs(ids []primitive.ObjectID) (map[primitive.ObjectID]*Customer, error) {
	list, err := findAll[Customer](ms.customers, bson.M{"_id": bson.M{"$in": ids}}, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]*Customer, len(list))
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

// Customers returns a page of customers, optionally filtered by a search term
// matched against the name and email.
func (ms *MongoStorage) Customers(search string, page, pageSize int) (int, []Customer, error) {
	filter := bson.M{}
	if search = strings.TrimSpace(search); search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"firstName": rx},
			bson.M{"lastName": rx},
			bson.M{"email": rx},
		}
	}
	return paginate[Customer](ms.customers, filter, bson.D{{Key: "lastName", Value: 1}, {Key: "firstName", Value: 1}}, page, pageSize)
}

// CustomerByPhone returns the oldest customer with the given E.164 phone.
func (ms *MongoStorage) CustomerByPhone(phone string) (*Customer, error) {
	if phone = strings.TrimSpace(phone); phone == "" {
		return nil, ErrNotFound
	}
	list, err := findAll[Customer](ms.customers, bson.M{"phone": phone}, bson.D{{Key: "createdAt", Value: 1}})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// MatchOrCreateCustomer returns the customer with the email of c, or with
// its phone when c has no email, creating c when no customer matches. Feed
// imports use it so the same driver is not duplicated across bookings.
func (ms *MongoStorage) MatchOrCreateCustomer(c *Customer) (*Customer, error) {
	var (
		existing *Customer
		err      error
	)
	switch {
	case c.Email != "":
		existing, err = ms.CustomerByEmail(c.Email)
	case c.Phone != "":
		existing, err = ms.CustomerByPhone(c.Phone)
	default:
		err = ErrNotFound
	}
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	c.ID = primitive.NilObjectID
	if err := ms.SetCustomer(c); err != nil {
		return nil, err
	}
	return c, nil
}
