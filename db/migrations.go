package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/migrations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

const migrationsTimeout = 10 * time.Minute

// MigrationRecord is the row stored for every applied migration.
type MigrationRecord struct {
	Version   int       `bson:"version"`
	Name      string    `bson:"name"`
	AppliedAt time.Time `bson:"applied_at"`
}

// RunMigrationsUp applies, in version order, every registered migration
// newer than the last recorded one.
func (ms *MongoStorage) RunMigrationsUp() error {
	ctx, cancel := context.WithTimeout(context.Background(), migrationsTimeout)
	defer cancel()
	last, err := lastAppliedMigration(ctx, ms.migrations)
	if err != nil {
		return fmt.Errorf("cannot read applied migrations: %w", err)
	}
	var pending []migrations.Migration
	for _, m := range migrations.SortedByVersionAsc() {
		if m.Version > last {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		log.Debugw("database schema is up to date", "version", last)
		return nil
	}
	log.Infow("applying database migrations", "from", last, "pending", len(pending))
	database := ms.DBClient.Database(ms.database)
	for _, m := range pending {
		if err := m.Up(ctx, database); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		rec := MigrationRecord{Version: m.Version, Name: m.Name, AppliedAt: time.Now()}
		if _, err := ms.migrations.InsertOne(ctx, rec); err != nil {
			return fmt.Errorf("cannot record migration %d: %w", m.Version, err)
		}
		log.Infow("migration applied", "version", m.Version, "name", m.Name)
	}
	return nil
}

// RunMigrationsDown reverts the last steps applied migrations, newest
// first. A non positive steps reverts all of them.
func (ms *MongoStorage) RunMigrationsDown(steps int) error {
	ctx, cancel := context.WithTimeout(context.Background(), migrationsTimeout)
	defer cancel()
	applied, err := appliedMigrations(ctx, ms.migrations)
	if err != nil {
		return fmt.Errorf("cannot read applied migrations: %w", err)
	}
	if steps > 0 && steps < len(applied) {
		applied = applied[:steps]
	}
	database := ms.DBClient.Database(ms.database)
	for _, rec := range applied {
		m, ok := migrations.Lookup(rec.Version)
		if !ok {
			return fmt.Errorf("migration %d is not registered", rec.Version)
		}
		if err := m.Down(ctx, database); err != nil {
			return fmt.Errorf("revert of migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if _, err := ms.migrations.DeleteOne(ctx, bson.M{"version": rec.Version}); err != nil {
			return fmt.Errorf("cannot delete migration record %d: %w", rec.Version, err)
		}
		log.Infow("migration reverted", "version", m.Version, "name", m.Name)
	}
	return nil
}

// AppliedMigrations lists the applied migrations, newest first.
func (ms *MongoStorage) AppliedMigrations() ([]MigrationRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return appliedMigrations(ctx, ms.migrations)
}

func lastAppliedMigration(ctx context.Context, collection *mongo.Collection) (int, error) {
	applied, err := appliedMigrations(ctx, collection)
	if err != nil || len(applied) == 0 {
		return 0, err
	}
	return applied[0].Version, nil
}

func appliedMigrations(ctx context.Context, collection *mongo.Collection) ([]MigrationRecord, error) {
	cursor, err := collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "version", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var applied []MigrationRecord
	if err := cursor.All(ctx, &applied); err != nil {
		return nil, fmt.Errorf("cannot decode migration records: %w", err)
	}
	return applied, nil
}
