// Package db stores the back office data in MongoDB: admin users, customers,
// bookings, flows, jobs, payments and the records hanging from them.
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

const defaultTimeout = 10 * time.Second

// MongoStorage uses an external MongoDB service to store the back office data.
type MongoStorage struct {
	DBClient *mongo.Client
	database string
	keysLock sync.RWMutex

	users           *mongo.Collection
	customers       *mongo.Collection
	bookings        *mongo.Collection
	flows           *mongo.Collection
	jobs            *mongo.Collection
	payments        *mongo.Collection
	deposits        *mongo.Collection
	paymentRequests *mongo.Collection
	importRuns      *mongo.Collection
	documents       *mongo.Collection
	migrations      *mongo.Collection
}

type Options struct {
	MongoURL string
	Database string
}

// New connects to MongoDB, applies the pending migrations and returns the
// storage ready to use.
func New(url, database string) (*MongoStorage, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "database", database)
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(200)
	timeout := time.Second * 10
	opts.ConnectTimeout = &timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx2, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ms := &MongoStorage{
		DBClient: client,
		database: database,
	}
	ms.initCollections(database)
	if err := ms.RunMigrationsUp(); err != nil {
		return nil, fmt.Errorf("cannot run migrations: %w", err)
	}
	return ms, nil
}

// Close disconnects the client.
func (ms *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.DBClient.Disconnect(ctx); err != nil {
		log.Warn(err)
	}
}

// Reset drops the database and applies every migration again. Only used in
// tests and by the reset command of the CLI.
func (ms *MongoStorage) Reset() error {
	log.Infof("resetting database %s", ms.database)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ms.DBClient.Database(ms.database).Drop(ctx); err != nil {
		return err
	}
	ms.initCollections(ms.database)
	return ms.RunMigrationsUp()
}
