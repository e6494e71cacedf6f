package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateImportRun stores a new import run for source and returns it.
func (ms *MongoStorage) CreateImportRun(source Source) (*ImportRun, error) {
	run := &ImportRun{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now(),
		Errors:    []string{},
	}
	return run, ms.SetImportRun(run)
}

// SetImportRun stores the current progress of the run.
func (ms *MongoStorage) SetImportRun(run *ImportRun) error {
	if run.ID == "" || run.Source == "" {
		return ErrInvalidData
	}
	if run.Errors == nil {
		run.Errors = []string{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.importRuns.ReplaceOne(ctx, bson.M{"_id": run.ID}, run, opts); err != nil {
		return fmt.Errorf("cannot store import run: %w", err)
	}
	return nil
}

// ImportRun returns the import run with the given ID.
func (ms *MongoStorage) ImportRun(id string) (*ImportRun, error) {
	return findOne[ImportRun](ms.importRuns, bson.M{"_id": id})
}

// ImportRuns returns a page of runs, newest first, optionally by source.
func (ms *MongoStorage) ImportRuns(source Source, page, pageSize int) (int, []ImportRun, error) {
	filter := bson.M{}
	if source != "" {
		filter["source"] = source
	}
	return paginate[ImportRun](ms.importRuns, filter, bson.D{{Key: "startedAt", Value: -1}}, page, pageSize)
}
