// Package twilio delivers SMS notifications through the Twilio REST API.
package twilio

import (
	"context"
	"fmt"

	"github.com/rentalhq/backoffice/notifications"
	t "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// maxBodyLength is the longest body Twilio accepts for a message.
const maxBodyLength = 1600

// Config holds the Twilio account credentials and the sender number or
// messaging service SID.
type Config struct {
	AccountSid string
	AuthToken  string
	FromNumber string
}

// messageCreator is the part of the Twilio API client the service uses.
type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// SMS implements notifications.NotificationService over Twilio.
type SMS struct {
	config *Config
	client messageCreator
}

var _ notifications.NotificationService = (*SMS)(nil)

// New initializes the Twilio REST client with the account credentials.
func (s *SMS) New(rawConfig any) error {
	config, ok := rawConfig.(*Config)
	if !ok {
		return fmt.Errorf("invalid Twilio configuration")
	}
	if config.AccountSid == "" || config.AuthToken == "" || config.FromNumber == "" {
		return fmt.Errorf("missing Twilio credentials or sender")
	}
	s.config = config
	s.client = t.NewRestClientWithParams(t.ClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	}).Api
	return nil
}

// SendNotification sends the plain body to ToNumber.
func (s *SMS) SendNotification(ctx context.Context, notification *notifications.Notification) error {
	body := notification.PlainBody
	if body == "" {
		return fmt.Errorf("empty sms body")
	}
	if len(body) > maxBodyLength {
		body = body[:maxBodyLength]
	}
	params := &api.CreateMessageParams{}
	params.SetTo(notification.ToNumber)
	params.SetFrom(s.config.FromNumber)
	params.SetBody(body)
	errCh := make(chan error, 1)
	go func() {
		_, err := s.client.CreateMessage(params)
		errCh <- err
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
