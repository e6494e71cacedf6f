package stripe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEventTTL is how long processed webhook event ids are remembered.
// Stripe stops retrying a delivery after three days.
const DefaultEventTTL = 72 * time.Hour

// EventStore remembers which webhook events were already processed.
type EventStore interface {
	EventExists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// MemoryEventStore is an in-memory EventStore. Its contents are lost on
// restart, which is acceptable because reconciliation is idempotent.
type MemoryEventStore struct {
	events map[string]time.Time
	mutex  sync.RWMutex
	ttl    time.Duration
	stop   chan struct{}
	once   sync.Once
}

// NewMemoryEventStore creates a new in-memory event store
func NewMemoryEventStore(ttl time.Duration) *MemoryEventStore {
	if ttl == 0 {
		ttl = DefaultEventTTL
	}
	store := &MemoryEventStore{
		events: make(map[string]time.Time),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}
	go store.cleanupLoop()
	return store
}

// EventExists checks if an event has already been processed
func (m *MemoryEventStore) EventExists(_ context.Context, eventID string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	ts, exists := m.events[eventID]
	return exists && time.Since(ts) <= m.ttl, nil
}

// MarkProcessed marks an event as processed
func (m *MemoryEventStore) MarkProcessed(_ context.Context, eventID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events[eventID] = time.Now()
	return nil
}

// Close stops the cleanup goroutine.
func (m *MemoryEventStore) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *MemoryEventStore) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryEventStore) cleanup() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := time.Now()
	for eventID, timestamp := range m.events {
		if now.Sub(timestamp) > m.ttl {
			delete(m.events, eventID)
		}
	}
}

// RedisEventStore keeps processed event ids in Redis so several service
// replicas share them.
type RedisEventStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisEventStore connects to the Redis server at url (redis://...).
func NewRedisEventStore(ctx context.Context, url string, ttl time.Duration) (*RedisEventStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cannot reach redis: %w", err)
	}
	if ttl == 0 {
		ttl = DefaultEventTTL
	}
	return &RedisEventStore{client: client, prefix: "rental:stripe:event:", ttl: ttl}, nil
}

// EventExists checks if an event has already been processed
func (r *RedisEventStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("cannot check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// MarkProcessed marks an event as processed. Marking twice is not an error.
func (r *RedisEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	if err := r.client.SetNX(ctx, r.prefix+eventID, time.Now().Unix(), r.ttl).Err(); err != nil {
		return fmt.Errorf("cannot mark event %s: %w", eventID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisEventStore) Close() error {
	return r.client.Close()
}
