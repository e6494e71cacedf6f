package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SetDocument stores the metadata of an uploaded document. The ID must be set
// by the caller since it is part of the object key.
func (ms *MongoStorage) SetDocument(d *Document) error {
	if d.ID.IsZero() || !d.OwnerType.Valid() || d.OwnerRef == "" || d.Key == "" {
		return ErrInvalidData
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	if _, err := ms.documents.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("cannot insert document: %w", storageErr(err))
	}
	return nil
}

// Document returns the document with the given ID.
func (ms *MongoStorage) Document(id primitive.ObjectID) (*Document, error) {
	return findOne[Document](ms.documents, bson.M{"_id": id})
}

// DocumentsByOwner returns the documents uploaded for the owner.
func (ms *MongoStorage) DocumentsByOwner(t payments.OwnerType, reference string) ([]Document, error) {
	return findAll[Document](ms.documents, bson.M{"ownerType": t, "ownerRef": reference}, bson.D{{Key: "createdAt", Value: -1}})
}

// DelDocument deletes the document metadata.
func (ms *MongoStorage) DelDocument(id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := ms.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("cannot delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
