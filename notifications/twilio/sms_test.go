package twilio

import (
	"context"
	"fmt"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/notifications"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	sent []*api.CreateMessageParams
	err  error
}

func (f *fakeCreator) CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &api.ApiV2010Message{}, nil
}

func TestNew(t *testing.T) {
	c := qt.New(t)
	c.Assert(new(SMS).New(&struct{}{}), qt.ErrorMatches, "invalid Twilio configuration")
	c.Assert(new(SMS).New(&Config{AccountSid: "AC1"}), qt.ErrorMatches, "missing Twilio credentials or sender")
	s := new(SMS)
	c.Assert(s.New(&Config{AccountSid: "AC1", AuthToken: "tok", FromNumber: "+61400000000"}), qt.IsNil)
	c.Assert(s.client, qt.Not(qt.IsNil))
}

func TestSendNotification(t *testing.T) {
	c := qt.New(t)
	fake := &fakeCreator{}
	s := &SMS{config: &Config{FromNumber: "+61400000000"}, client: fake}

	err := s.SendNotification(context.Background(), &notifications.Notification{
		ToNumber:  "+61412345678",
		PlainBody: strings.Repeat("a", 2000),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(fake.sent, qt.HasLen, 1)
	c.Assert(*fake.sent[0].To, qt.Equals, "+61412345678")
	c.Assert(*fake.sent[0].From, qt.Equals, "+61400000000")
	c.Assert(*fake.sent[0].Body, qt.HasLen, maxBodyLength)

	c.Assert(s.SendNotification(context.Background(), &notifications.Notification{ToNumber: "+61412345678"}),
		qt.ErrorMatches, "empty sms body")

	fake.err = fmt.Errorf("21211 invalid to number")
	c.Assert(s.SendNotification(context.Background(), &notifications.Notification{ToNumber: "x", PlainBody: "hi"}),
		qt.ErrorMatches, "21211 invalid to number")
}
