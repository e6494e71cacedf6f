package stripe

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/test"
	stripeapi "github.com/stripe/stripe-go/v81"
)

const testWebhookSecret = "whsec_test_secret"

var testDB *db.MongoStorage

func TestMain(m *testing.M) {
	ctx := context.Background()
	dbContainer, err := test.StartMongoContainer(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to start MongoDB container: %v", err))
	}
	mongoURI, err := dbContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		panic(fmt.Sprintf("failed to get MongoDB endpoint: %v", err))
	}
	testDB, err = db.New(mongoURI, test.RandomDatabaseName())
	if err != nil {
		panic(fmt.Sprintf("failed to create new MongoDB connection: %v", err))
	}

	code := m.Run()

	testDB.Close()
	if err := dbContainer.Terminate(ctx); err != nil {
		panic(fmt.Sprintf("failed to stop MongoDB container: %v", err))
	}
	os.Exit(code)
}

// fakeGateway keeps PaymentIntents in memory and honours idempotency keys
// on creation the way Stripe does.
type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	intents   map[string]*stripeapi.PaymentIntent
	keys      map[string]string
	calls     map[string]int
	refunds   []int64
	customers map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:   map[string]*stripeapi.PaymentIntent{},
		keys:      map[string]string{},
		calls:     map[string]int{},
		customers: map[string]string{},
	}
}

func clonePI(pi *stripeapi.PaymentIntent) *stripeapi.PaymentIntent {
	cp := *pi
	cp.Metadata = maps.Clone(pi.Metadata)
	return &cp
}

func (f *fakeGateway) CreateIntent(_ context.Context, p IntentParams) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	if id, ok := f.keys[p.IdempotencyKey]; ok {
		return clonePI(f.intents[id]), nil
	}
	f.seq++
	id := fmt.Sprintf("pi_test_%d", f.seq)
	method := stripeapi.PaymentIntentCaptureMethodAutomatic
	if p.CaptureMethod == payments.CaptureManual {
		method = stripeapi.PaymentIntentCaptureMethodManual
	}
	pi := &stripeapi.PaymentIntent{
		ID:            id,
		Amount:        p.AmountCents,
		Currency:      stripeapi.Currency(p.Currency),
		Customer:      &stripeapi.Customer{ID: p.CustomerID},
		CaptureMethod: method,
		ClientSecret:  id + "_secret_test",
		Status:        stripeapi.PaymentIntentStatusRequiresPaymentMethod,
		Metadata:      maps.Clone(p.Metadata),
	}
	f.intents[id] = pi
	f.keys[p.IdempotencyKey] = id
	return clonePI(pi), nil
}

func (f *fakeGateway) GetIntent(_ context.Context, id string) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	pi, ok := f.intents[id]
	if !ok {
		return nil, NewStripeError(CodeAPICallFailed, "no such payment intent", nil)
	}
	return clonePI(pi), nil
}

func (f *fakeGateway) UpdateIntentAmount(_ context.Context, id string, amount int64, _ string) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	pi := f.intents[id]
	pi.Amount = amount
	return clonePI(pi), nil
}

func (f *fakeGateway) CaptureIntent(_ context.Context, id string, amount int64, _ string) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["capture"]++
	pi := f.intents[id]
	if pi.Status != stripeapi.PaymentIntentStatusRequiresCapture {
		return nil, NewStripeError(CodeAPICallFailed, "intent is not capturable", nil)
	}
	pi.AmountReceived = amount
	pi.AmountCapturable = 0
	pi.Status = stripeapi.PaymentIntentStatusSucceeded
	return clonePI(pi), nil
}

func (f *fakeGateway) CancelIntent(_ context.Context, id string, _ string) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["cancel"]++
	pi := f.intents[id]
	pi.AmountCapturable = 0
	pi.Status = stripeapi.PaymentIntentStatusCanceled
	return clonePI(pi), nil
}

func (f *fakeGateway) Refund(_ context.Context, id string, amount int64, _ string) (*stripeapi.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["refund"]++
	f.refunds = append(f.refunds, amount)
	return &stripeapi.Refund{ID: fmt.Sprintf("re_test_%d", len(f.refunds)), Amount: amount,
		PaymentIntent: &stripeapi.PaymentIntent{ID: id}}, nil
}

func (f *fakeGateway) EnsureCustomer(_ context.Context, info CustomerInfo) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["customer"]++
	if id, ok := f.customers[info.Email]; ok {
		return id, nil
	}
	id := fmt.Sprintf("cus_test_%d", len(f.customers)+1)
	f.customers[info.Email] = id
	return id, nil
}

// set changes an intent as the payer or Stripe would.
func (f *fakeGateway) set(id string, fn func(pi *stripeapi.PaymentIntent)) *stripeapi.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.intents[id])
	return clonePI(f.intents[id])
}

func (f *fakeGateway) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func succeed(pi *stripeapi.PaymentIntent) {
	pi.Status = stripeapi.PaymentIntentStatusSucceeded
	pi.AmountReceived = pi.Amount
}

func authorize(pi *stripeapi.PaymentIntent) {
	pi.Status = stripeapi.PaymentIntentStatusRequiresCapture
	pi.AmountCapturable = pi.Amount
}

func newTestService(c *qt.C) (*Service, *fakeGateway) {
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })
	gw := newFakeGateway()
	store := NewMemoryEventStore(time.Hour)
	c.Cleanup(store.Close)
	config := &Config{APIKey: "sk_test", WebhookSecret: testWebhookSecret}
	c.Assert(config.Validate(), qt.IsNil)
	svc, err := NewService(config, gw, testDB, store)
	c.Assert(err, qt.IsNil)
	return svc, gw
}

func newTestBooking(c *qt.C) *db.Booking {
	customer := &db.Customer{FirstName: "Sam", LastName: "Driver", Email: fmt.Sprintf("sam+%d@example.com", time.Now().UnixNano())}
	c.Assert(testDB.SetCustomer(customer), qt.IsNil)
	b := &db.Booking{
		CustomerID:   customer.ID,
		Vehicle:      "Toyota RAV4",
		PickupAt:     time.Now().Add(72 * time.Hour),
		ReturnAt:     time.Now().Add(120 * time.Hour),
		TotalCents:   100000,
		DepositCents: 30000,
		BondCents:    50000,
	}
	c.Assert(testDB.CreateBooking(b), qt.IsNil)
	return b
}

func reloadBooking(c *qt.C, ref string) *db.Booking {
	b, err := testDB.Booking(ref)
	c.Assert(err, qt.IsNil)
	return b
}
