package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/metrics"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultQueueCapacity is how many pending upserts the queue holds.
	DefaultQueueCapacity = 1024
	// DefaultQueueTick is how often the worker takes the next upsert.
	DefaultQueueTick = 100 * time.Millisecond
)

// ErrQueueFull is returned by Push when no more upserts can be held.
var ErrQueueFull = errors.New("import queue is full")

// VEVSUpserter stores VEVS reservations. *Importer implements it.
type VEVSUpserter interface {
	UpsertVEVS(r VEVSReservation) (*db.Booking, db.UpsertResult, error)
}

// UpsertJob is a VEVS reservation pushed by the VEVS webhook.
type UpsertJob struct {
	Reservation VEVSReservation
	Attempts    int
	NextAttempt time.Time
	EnqueuedAt  time.Time
	Err         error
}

// Queue is a bounded FIFO of reservation upserts processed by a single
// worker loop. Failed upserts are re-enqueued with exponential backoff until
// the retry policy gives up. Finished jobs, successful or not, are reported
// on Done when someone listens.
type Queue struct {
	Done     chan *UpsertJob
	items    *goconcurrentqueue.FixedFIFO
	upserter VEVSUpserter
	retry    RetryPolicy
	tick     time.Duration
	now      func() time.Time
}

// NewQueue creates a queue feeding upserter.
func NewQueue(upserter VEVSUpserter, capacity int, tick time.Duration, retry RetryPolicy) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if tick <= 0 {
		tick = DefaultQueueTick
	}
	return &Queue{
		Done:     make(chan *UpsertJob, 16),
		items:    goconcurrentqueue.NewFixedFIFO(capacity),
		upserter: upserter,
		retry:    retry,
		tick:     tick,
		now:      time.Now,
	}
}

// Push enqueues a reservation.
func (q *Queue) Push(r VEVSReservation) error {
	job := &UpsertJob{Reservation: r, EnqueuedAt: q.now()}
	if err := q.items.Enqueue(job); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueFull, err)
	}
	log.Debugw("vevs upsert enqueued", "id", r.ID, "pending", q.items.GetLen())
	return nil
}

// Len is the number of pending upserts.
func (q *Queue) Len() int {
	return q.items.GetLen()
}

// Start runs the worker loop until ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.processNext()
		}
	}
}

func (q *Queue) processNext() {
	item, err := q.items.Dequeue()
	if err != nil {
		return
	}
	job, ok := item.(*UpsertJob)
	if !ok {
		log.Warnw("invalid item in import queue")
		return
	}
	if q.now().Before(job.NextAttempt) {
		q.requeue(job)
		return
	}
	job.Attempts++
	b, res, err := q.upserter.UpsertVEVS(job.Reservation)
	if err != nil {
		job.Err = err
		if job.Attempts > q.retry.MaxRetries {
			log.Errorw(err, fmt.Sprintf("vevs upsert of %s dropped after %d attempts", job.Reservation.ID, job.Attempts))
			metrics.IncImport(string(db.SourceVEVS), "dropped")
			q.report(job)
			return
		}
		job.NextAttempt = q.now().Add(q.retry.NextDelay(job.Attempts))
		log.Warnw("vevs upsert failed, retrying", "id", job.Reservation.ID,
			"attempt", job.Attempts, "next", job.NextAttempt, "error", err)
		q.requeue(job)
		return
	}
	job.Err = nil
	result := "updated"
	if res.Created {
		result = "created"
	}
	metrics.IncImport(string(db.SourceVEVS), result)
	log.Infow("vevs reservation upserted", "id", job.Reservation.ID, "reference", b.Reference, "result", result)
	q.report(job)
}

func (q *Queue) requeue(job *UpsertJob) {
	if err := q.items.Enqueue(job); err != nil {
		log.Errorw(err, fmt.Sprintf("cannot re-enqueue vevs upsert of %s", job.Reservation.ID))
		metrics.IncImport(string(db.SourceVEVS), "dropped")
		q.report(job)
	}
}

func (q *Queue) report(job *UpsertJob) {
	select {
	case q.Done <- job:
	default:
	}
}
