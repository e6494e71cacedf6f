package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// JobFilter narrows down job listings. Zero fields match everything.
type JobFilter struct {
	Status BookingStatus
	Source Source
	FlowID primitive.ObjectID
}

func (f JobFilter) bson() bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Source != "" {
		filter["source"] = f.Source
	}
	if !f.FlowID.IsZero() {
		filter["flowId"] = f.FlowID
	}
	return filter
}

// CreateJob inserts a new job under an existing flow, assigning its reference
// and portal token.
func (ms *MongoStorage) CreateJob(job *Job) error {
	if job.FlowID.IsZero() || job.CustomerID.IsZero() || job.TotalCents < 0 {
		return ErrInvalidData
	}
	flow, err := ms.FlowByID(job.FlowID)
	if err != nil {
		return fmt.Errorf("flow %s: %w", job.FlowID.Hex(), err)
	}
	now := time.Now()
	job.ID = primitive.NewObjectID()
	job.CreatedAt, job.UpdatedAt = now, now
	job.PaidCents = 0
	if job.Source == "" {
		job.Source = SourceManual
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.Currency == "" {
		job.Currency = orDefault(flow.Currency, DefaultCurrency)
	}
	if job.BondStatus == "" {
		job.BondStatus = payments.BondNone
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	for range maxReferenceAttempts {
		job.Reference = internal.NewReference(internal.JobReferencePrefix)
		job.PortalToken = internal.NewPortalToken()
		_, err := ms.jobs.InsertOne(ctx, job)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) || job.ExternalID != "" {
			return fmt.Errorf("cannot insert job: %w", storageErr(err))
		}
	}
	return fmt.Errorf("cannot insert job: %w", ErrAlreadyExists)
}

// Job returns the job with the given reference.
func (ms *MongoStorage) Job(reference string) (*Job, error) {
	return findOne[Job](ms.jobs, bson.M{"reference": strings.ToUpper(reference)})
}

// JobByPortalToken returns the job the portal token belongs to.
func (ms *MongoStorage) JobByPortalToken(token string) (*Job, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return findOne[Job](ms.jobs, bson.M{"portalToken": token})
}

// JobByExternalID returns the job imported from source with id.
func (ms *MongoStorage) JobByExternalID(source Source, id string) (*Job, error) {
	return findOne[Job](ms.jobs, bson.M{"source": source, "externalId": id})
}

// Jobs returns a page of jobs, newest first.
func (ms *MongoStorage) Jobs(f JobFilter, page, pageSize int) (int, []Job, error) {
	return paginate[Job](ms.jobs, f.bson(), bson.D{{Key: "startAt", Value: -1}}, page, pageSize)
}

// UpdateJob updates the editable fields of the job identified by reference.
func (ms *MongoStorage) UpdateJob(job *Job) error {
	if job.Reference == "" {
		return ErrInvalidData
	}
	if !job.FlowID.IsZero() {
		if _, err := ms.FlowByID(job.FlowID); err != nil {
			return fmt.Errorf("flow %s: %w", job.FlowID.Hex(), err)
		}
	}
	editable := Job{
		FlowID:     job.FlowID,
		CustomerID: job.CustomerID,
		Vehicle:    job.Vehicle,
		StartAt:    job.StartAt,
		EndAt:      job.EndAt,
		Status:     job.Status,
		Currency:   job.Currency,
		TotalCents: job.TotalCents,
		UpdatedAt:  time.Now(),
	}
	updateDoc, err := dynamicUpdateDocument(editable, nil)
	if err != nil {
		return fmt.Errorf("failed to create update document: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	res, err := ms.jobs.UpdateOne(ctx, bson.M{"reference": job.Reference}, updateDoc)
	if err != nil {
		return fmt.Errorf("cannot update job: %w", storageErr(err))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertJobFromFeed creates or refreshes the job imported from an external
// feed, keyed by (source, externalId). Local payment fields are kept.
func (ms *MongoStorage) UpsertJobFromFeed(job *Job) (UpsertResult, error) {
	if job.Source == "" || job.Source == SourceManual || job.ExternalID == "" {
		return UpsertResult{}, ErrInvalidData
	}
	existing, err := ms.JobByExternalID(job.Source, job.ExternalID)
	if errors.Is(err, ErrNotFound) {
		if err := ms.CreateJob(job); err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{Created: true}, nil
	}
	if err != nil {
		return UpsertResult{}, err
	}
	status := job.Status
	if status == StatusPending && existing.Status == StatusConfirmed {
		status = StatusConfirmed
	}
	set := bson.M{
		"flowId":     job.FlowID,
		"customerId": job.CustomerID,
		"vehicle":    job.Vehicle,
		"startAt":    job.StartAt,
		"endAt":      job.EndAt,
		"status":     status,
		"currency":   orDefault(job.Currency, existing.Currency),
		"totalCents": job.TotalCents,
		"updatedAt":  time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	if _, err := ms.jobs.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": set}); err != nil {
		return UpsertResult{}, fmt.Errorf("cannot update job: %w", storageErr(err))
	}
	job.ID, job.Reference, job.PortalToken = existing.ID, existing.Reference, existing.PortalToken
	job.PaidCents, job.BondStatus, job.Status = existing.PaidCents, existing.BondStatus, status
	return UpsertResult{}, nil
}
