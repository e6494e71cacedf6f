// Package notifications defines the notification message and the services
// delivering it, and queues deliveries with throttling and retries.
package notifications

import "context"

// Channel is the medium a notification is delivered through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is a message to a customer. Email services use the addresses,
// the subject and both bodies; SMS services use ToNumber and PlainBody.
type Notification struct {
	ToName         string
	ToAddress      string
	ToNumber       string
	ReplyTo        string
	CCAddress      string
	Subject        string
	Body           string
	PlainBody      string
	EnableTracking bool
}

// NotificationService delivers notifications over one channel.
type NotificationService interface {
	New(conf any) error
	SendNotification(context.Context, *Notification) error
}
