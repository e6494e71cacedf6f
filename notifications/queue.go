package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"github.com/google/uuid"
	"github.com/rentalhq/backoffice/metrics"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultThrottle is the minimum time between two deliveries.
	DefaultThrottle = 500 * time.Millisecond
	// DefaultTTL is how long a message is retried before it is dropped.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxRetries is how many times a failed delivery is retried.
	DefaultMaxRetries = 10
)

// Message is a notification waiting for delivery.
type Message struct {
	ID           uuid.UUID
	Channel      Channel
	Reference    string
	Notification *Notification
	Retries      int
	CreatedAt    time.Time
	Err          error
}

// Valid reports whether the message can be delivered over its channel.
func (m *Message) Valid() bool {
	if m == nil || m.Notification == nil {
		return false
	}
	switch m.Channel {
	case ChannelEmail:
		return m.Notification.ToAddress != ""
	case ChannelSMS:
		return m.Notification.ToNumber != "" && m.Notification.PlainBody != ""
	}
	return false
}

// Queue is a FIFO of notifications delivered one per throttle tick. Failed
// deliveries are re-enqueued until the TTL expires or the retries run out.
// Every finished message, delivered or dropped, is reported on Sent.
type Queue struct {
	Sent       chan *Message
	items      *goconcurrentqueue.FIFO
	ttl        time.Duration
	throttle   time.Duration
	maxRetries int
	services   map[Channel]NotificationService
}

// NewQueue creates a queue delivering through the given services. A nil
// service disables its channel.
func NewQueue(ttl, throttle time.Duration, mailSrv, smsSrv NotificationService) *Queue {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if throttle == 0 {
		throttle = DefaultThrottle
	}
	services := map[Channel]NotificationService{}
	if mailSrv != nil {
		services[ChannelEmail] = mailSrv
	}
	if smsSrv != nil {
		services[ChannelSMS] = smsSrv
	}
	return &Queue{
		Sent:       make(chan *Message, 16),
		items:      goconcurrentqueue.NewFIFO(),
		ttl:        ttl,
		throttle:   throttle,
		maxRetries: DefaultMaxRetries,
		services:   services,
	}
}

// Enabled reports whether the queue can deliver over ch.
func (q *Queue) Enabled(ch Channel) bool {
	_, ok := q.services[ch]
	return ok
}

// Push enqueues a notification for the given channel. The reference is only
// used for logging.
func (q *Queue) Push(ch Channel, reference string, n *Notification) (*Message, error) {
	msg := &Message{
		ID:           uuid.New(),
		Channel:      ch,
		Reference:    reference,
		Notification: n,
		CreatedAt:    time.Now(),
	}
	if !msg.Valid() {
		return nil, fmt.Errorf("invalid %s notification", ch)
	}
	if !q.Enabled(ch) {
		return nil, fmt.Errorf("%s notifications are not configured", ch)
	}
	if err := q.items.Enqueue(msg); err != nil {
		return nil, err
	}
	log.Debugw("notification enqueued", "id", msg.ID.String(), "channel", ch, "reference", reference)
	return msg, nil
}

// Len is the number of messages waiting.
func (q *Queue) Len() int {
	return q.items.GetLen()
}

// Start delivers messages until ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.throttle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.processNext(ctx)
		}
	}
}

func (q *Queue) processNext(ctx context.Context) {
	item, err := q.items.Dequeue()
	if err != nil {
		return
	}
	msg, ok := item.(*Message)
	if !ok {
		log.Warnw("invalid item in notification queue")
		return
	}
	srv := q.services[msg.Channel]
	if srv == nil {
		msg.Err = fmt.Errorf("%s notifications are not configured", msg.Channel)
		q.finish(msg, "dropped")
		return
	}
	if err := srv.SendNotification(ctx, msg.Notification); err != nil {
		msg.Err = err
		log.Warnw("failed to send notification", "id", msg.ID.String(), "channel", msg.Channel,
			"reference", msg.Reference, "retries", msg.Retries, "error", err)
		metrics.IncNotification(string(msg.Channel), "failed")
		if err := q.reenqueue(msg); err != nil {
			log.Warnw("notification dropped", "id", msg.ID.String(), "channel", msg.Channel,
				"reference", msg.Reference, "error", err)
			q.finish(msg, "dropped")
		}
		return
	}
	msg.Err = nil
	log.Debugw("notification sent", "id", msg.ID.String(), "channel", msg.Channel, "reference", msg.Reference)
	q.finish(msg, "sent")
}

func (q *Queue) reenqueue(msg *Message) error {
	if msg.Retries >= q.maxRetries || time.Since(msg.CreatedAt) > q.ttl {
		return fmt.Errorf("TTL or max retries reached")
	}
	msg.Retries++
	if err := q.items.Enqueue(msg); err != nil {
		return fmt.Errorf("cannot enqueue the notification: %w", err)
	}
	return nil
}

func (q *Queue) finish(msg *Message, result string) {
	metrics.IncNotification(string(msg.Channel), result)
	select {
	case q.Sent <- msg:
	default:
	}
}
