package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rentalhq/backoffice/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SetUser creates a new admin user. The email is lowercased and must be new.
func (ms *MongoStorage) SetUser(user *User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if !internal.ValidEmail(user.Email) || user.Password == "" {
		return ErrInvalidData
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	if _, err := ms.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("cannot insert user: %w", storageErr(err))
	}
	return nil
}

// User returns the user with the given ID.
func (ms *MongoStorage) User(id primitive.ObjectID) (*User, error) {
	return findOne[User](ms.users, bson.M{"_id": id})
}

// UserByEmail returns the user with the given email.
func (ms *MongoStorage) UserByEmail(email string) (*User, error) {
	return findOne[User](ms.users, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

// SetUserPassword replaces the password hash of the user.
func (ms *MongoStorage) SetUserPassword(id primitive.ObjectID, hash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := ms.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"password": hash}})
	if err != nil {
		return fmt.Errorf("cannot update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
