// Package importer pulls bookings from the VEVS and Dream Drives feeds and
// upserts them, recording every run.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

// maxRunErrors bounds the error entries kept on an import run.
const maxRunErrors = 200

// ErrFeedNotConfigured is returned when running a feed without a client.
var ErrFeedNotConfigured = errors.New("feed not configured")

// Storage is what the importer needs from the database. *db.MongoStorage
// implements it.
type Storage interface {
	MatchOrCreateCustomer(c *db.Customer) (*db.Customer, error)
	BookingByExternalID(source db.Source, id string) (*db.Booking, error)
	JobByExternalID(source db.Source, id string) (*db.Job, error)
	UpsertBookingFromFeed(b *db.Booking) (db.UpsertResult, error)
	UpsertJobFromFeed(j *db.Job) (db.UpsertResult, error)
	Flow(slug string) (*db.Flow, error)
	CreateImportRun(source db.Source) (*db.ImportRun, error)
	SetImportRun(run *db.ImportRun) error
}

var _ Storage = (*db.MongoStorage)(nil)

// Importer runs feed imports.
type Importer struct {
	store       Storage
	vevs        *VEVSClient
	dreamDrives *DreamDrivesClient
	mapper      *Mapper
}

// New creates an importer. Either client may be nil when the feed is not
// configured.
func New(store Storage, vevs *VEVSClient, dreamDrives *DreamDrivesClient, mapper *Mapper) *Importer {
	if mapper == nil {
		mapper = &Mapper{}
	}
	if mapper.Location == nil && vevs != nil {
		mapper.Location = vevs.Location()
	}
	return &Importer{store: store, vevs: vevs, dreamDrives: dreamDrives, mapper: mapper}
}

// UpsertVEVS maps and stores one VEVS reservation.
func (im *Importer) UpsertVEVS(r VEVSReservation) (*db.Booking, db.UpsertResult, error) {
	b, fc, err := im.mapper.BookingFromVEVS(r)
	if err != nil {
		return nil, db.UpsertResult{}, err
	}
	b.CustomerID, err = im.customerFor(fc, func() (primitive.ObjectID, error) {
		existing, err := im.store.BookingByExternalID(b.Source, b.ExternalID)
		if err != nil {
			return primitive.NilObjectID, err
		}
		return existing.CustomerID, nil
	})
	if err != nil {
		return nil, db.UpsertResult{}, fmt.Errorf("customer: %w", err)
	}
	res, err := im.store.UpsertBookingFromFeed(b)
	if err != nil {
		return nil, db.UpsertResult{}, err
	}
	return b, res, nil
}

// UpsertDreamDrives maps and stores one Dream Drives booking.
func (im *Importer) UpsertDreamDrives(r DreamDrivesBooking) (*db.Job, db.UpsertResult, error) {
	flow, err := im.store.Flow(r.Flow)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, db.UpsertResult{}, fmt.Errorf("unknown flow %q", r.Flow)
		}
		return nil, db.UpsertResult{}, err
	}
	j, fc, err := im.mapper.JobFromDreamDrives(r, flow)
	if err != nil {
		return nil, db.UpsertResult{}, err
	}
	j.CustomerID, err = im.customerFor(fc, func() (primitive.ObjectID, error) {
		existing, err := im.store.JobByExternalID(j.Source, j.ExternalID)
		if err != nil {
			return primitive.NilObjectID, err
		}
		return existing.CustomerID, nil
	})
	if err != nil {
		return nil, db.UpsertResult{}, fmt.Errorf("customer: %w", err)
	}
	res, err := im.store.UpsertJobFromFeed(j)
	if err != nil {
		return nil, db.UpsertResult{}, err
	}
	return j, res, nil
}

// customerFor resolves the owner of an imported record. A feed customer
// without email keeps the owner already stored for the record, so
// re-imports do not create a new customer every time.
func (im *Importer) customerFor(fc *db.Customer, owner func() (primitive.ObjectID, error)) (primitive.ObjectID, error) {
	if fc.Email == "" {
		id, err := owner()
		switch {
		case err == nil && !id.IsZero():
			return id, nil
		case err != nil && !errors.Is(err, db.ErrNotFound):
			return primitive.NilObjectID, err
		}
	}
	customer, err := im.store.MatchOrCreateCustomer(fc)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return customer.ID, nil
}

// RunVEVS imports every VEVS reservation picked up within [from, to].
func (im *Importer) RunVEVS(ctx context.Context, from, to time.Time) (*db.ImportRun, error) {
	run, err := im.NewRun(db.SourceVEVS)
	if err != nil {
		return nil, err
	}
	return im.ImportVEVS(ctx, run, from, to)
}

// RunDreamDrives imports every Dream Drives booking updated since the given
// time, following the cursors.
func (im *Importer) RunDreamDrives(ctx context.Context, since time.Time) (*db.ImportRun, error) {
	run, err := im.NewRun(db.SourceDreamDrives)
	if err != nil {
		return nil, err
	}
	return im.ImportDreamDrives(ctx, run, since)
}

// NewRun stores an empty run for source, failing with ErrFeedNotConfigured
// when the feed has no client. The API creates the run up front and
// imports it in the background.
func (im *Importer) NewRun(source db.Source) (*db.ImportRun, error) {
	switch {
	case source == db.SourceVEVS && im.vevs == nil,
		source == db.SourceDreamDrives && im.dreamDrives == nil:
		return nil, fmt.Errorf("%s: %w", source, ErrFeedNotConfigured)
	case source != db.SourceVEVS && source != db.SourceDreamDrives:
		return nil, fmt.Errorf("unknown feed %q", source)
	}
	return im.store.CreateImportRun(source)
}

// ImportVEVS fills run with the reservations picked up within [from, to].
// Progress is stored after every page.
func (im *Importer) ImportVEVS(ctx context.Context, run *db.ImportRun, from, to time.Time) (*db.ImportRun, error) {
	if im.vevs == nil {
		return run, fmt.Errorf("vevs: %w", ErrFeedNotConfigured)
	}
	log.Infow("vevs import started", "run", run.ID, "from", from, "to", to)
	var fetchErr error
	for page := 1; page <= vevsMaxPages; page++ {
		reservations, err := im.vevs.Reservations(ctx, from, to, page)
		if err != nil {
			fetchErr = fmt.Errorf("page %d: %w", page, err)
			break
		}
		for _, r := range reservations {
			_, res, err := im.UpsertVEVS(r)
			im.record(run, string(r.ID), res, err)
		}
		if len(reservations) < im.vevs.pageSize {
			break
		}
		im.progress(run)
	}
	return im.finish(run, fetchErr)
}

// ImportDreamDrives fills run with the Dream Drives bookings updated since
// the given time.
func (im *Importer) ImportDreamDrives(ctx context.Context, run *db.ImportRun, since time.Time) (*db.ImportRun, error) {
	if im.dreamDrives == nil {
		return run, fmt.Errorf("dreamdrives: %w", ErrFeedNotConfigured)
	}
	log.Infow("dreamdrives import started", "run", run.ID, "since", since)
	var fetchErr error
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := im.dreamDrives.Bookings(ctx, since, cursor)
		if err != nil {
			fetchErr = fmt.Errorf("cursor %q: %w", cursor, err)
			break
		}
		for _, r := range page.Data {
			_, res, err := im.UpsertDreamDrives(r)
			im.record(run, string(r.BookingID), res, err)
		}
		if page.NextCursor == "" || seen[page.NextCursor] {
			break
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
		im.progress(run)
	}
	return im.finish(run, fetchErr)
}

func (im *Importer) progress(run *db.ImportRun) {
	if err := im.store.SetImportRun(run); err != nil {
		log.Warnw("could not store import progress", "run", run.ID, "error", err)
	}
}

func (im *Importer) record(run *db.ImportRun, id string, res db.UpsertResult, err error) {
	run.Total++
	source := string(run.Source)
	switch {
	case err != nil:
		run.Skipped++
		if len(run.Errors) < maxRunErrors {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", id, err))
		}
		metrics.IncImport(source, "skipped")
		log.Debugw("feed record skipped", "source", source, "id", id, "error", err)
	case res.Created:
		run.Created++
		metrics.IncImport(source, "created")
	default:
		run.Updated++
		metrics.IncImport(source, "updated")
	}
}

func (im *Importer) finish(run *db.ImportRun, fetchErr error) (*db.ImportRun, error) {
	if fetchErr != nil {
		run.Errors = append(run.Errors, fetchErr.Error())
	}
	run.CompletedAt = time.Now()
	if err := im.store.SetImportRun(run); err != nil {
		return run, err
	}
	log.Infow("import finished", "run", run.ID, "source", run.Source, "total", run.Total,
		"created", run.Created, "updated", run.Updated, "skipped", run.Skipped)
	if fetchErr != nil {
		return run, fetchErr
	}
	return run, nil
}
