package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/importer"
	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/notifications"
	"github.com/rentalhq/backoffice/notifications/mailtemplates"
	"github.com/rentalhq/backoffice/objectstorage"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/stripe"
	"github.com/rentalhq/backoffice/test"
	stripeapi "github.com/stripe/stripe-go/v81"
)

const (
	testSecret        = "super-secret"
	testWebhookSecret = "whsec_api_test"
	testVEVSToken     = "vevs-shared-secret"
	testPortalURL     = "https://portal.example.com"
	testAdminEmail    = "admin@example.com"
	testAdminPass     = "password123"
)

var testDB *db.MongoStorage

// mustMarshal helper function marshalls the input interface into a byte slice.
// It panics if the marshalling fails.
func mustMarshal(i any) []byte {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return b
}

// TestMain starts the MongoDB container and creates a connection with a
// random database name before running the tests.
func TestMain(m *testing.M) {
	ctx := context.Background()
	dbContainer, err := test.StartMongoContainer(ctx)
	if err != nil {
		panic(err)
	}
	mongoURI, err := dbContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		panic(err)
	}
	if testDB, err = db.New(mongoURI, test.RandomDatabaseName()); err != nil {
		panic(err)
	}
	if err := mailtemplates.Load(); err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	_ = dbContainer.Terminate(ctx)
	os.Exit(code)
}

// fakeGateway keeps PaymentIntents in memory and honours idempotency keys.
type fakeGateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*stripeapi.PaymentIntent
	keys    map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents: map[string]*stripeapi.PaymentIntent{},
		keys:    map[string]string{},
	}
}

func clonePI(pi *stripeapi.PaymentIntent) *stripeapi.PaymentIntent {
	cp := *pi
	cp.Metadata = maps.Clone(pi.Metadata)
	return &cp
}

func (f *fakeGateway) CreateIntent(_ context.Context, p stripe.IntentParams) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.keys[p.IdempotencyKey]; ok {
		return clonePI(f.intents[id]), nil
	}
	f.seq++
	id := fmt.Sprintf("pi_api_%d", f.seq)
	method := stripeapi.PaymentIntentCaptureMethodAutomatic
	if p.CaptureMethod == payments.CaptureManual {
		method = stripeapi.PaymentIntentCaptureMethodManual
	}
	pi := &stripeapi.PaymentIntent{
		ID:            id,
		Amount:        p.AmountCents,
		Currency:      stripeapi.Currency(p.Currency),
		CaptureMethod: method,
		ClientSecret:  id + "_secret",
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
	pi, ok := f.intents[id]
	if !ok {
		return nil, stripe.NewStripeError(stripe.CodeAPICallFailed, "no such payment intent", nil)
	}
	return clonePI(pi), nil
}

func (f *fakeGateway) UpdateIntentAmount(_ context.Context, id string, amount int64, _ string) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Amount = amount
	return clonePI(f.intents[id]), nil
}

func (f *fakeGateway) CaptureIntent(_ context.Context, id string, amount int64, _ string) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi := f.intents[id]
	if pi.Status != stripeapi.PaymentIntentStatusRequiresCapture {
		return nil, stripe.NewStripeError(stripe.CodeAPICallFailed, "intent is not capturable", nil)
	}
	pi.AmountReceived = amount
	pi.AmountCapturable = 0
	pi.Status = stripeapi.PaymentIntentStatusSucceeded
	return clonePI(pi), nil
}

func (f *fakeGateway) CancelIntent(_ context.Context, id string, _ string) (*stripeapi.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi := f.intents[id]
	pi.AmountCapturable = 0
	pi.Status = stripeapi.PaymentIntentStatusCanceled
	return clonePI(pi), nil
}

func (*fakeGateway) Refund(_ context.Context, id string, amount int64, _ string) (*stripeapi.Refund, error) {
	return &stripeapi.Refund{ID: "re_" + id, Amount: amount, PaymentIntent: &stripeapi.PaymentIntent{ID: id}}, nil
}

func (*fakeGateway) EnsureCustomer(_ context.Context, info stripe.CustomerInfo) (string, error) {
	return "cus_" + info.Email, nil
}

// set changes an intent as the payer would.
func (f *fakeGateway) set(id string, fn func(pi *stripeapi.PaymentIntent)) *stripeapi.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.intents[id])
	return clonePI(f.intents[id])
}

// fakeNotifier records the delivered notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []*notifications.Notification
}

func (*fakeNotifier) New(any) error { return nil }

func (f *fakeNotifier) SendNotification(_ context.Context, n *notifications.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

// testAPI is an API served by an httptest server with all its services
// backed by fakes.
type testAPI struct {
	api     *API
	srv     *httptest.Server
	gateway *fakeGateway
	notify  *notifications.Queue
	queue   *importer.Queue
	token   string
}

// newTestAPI serves a fresh API on the test database, which is reset when
// the test finishes. The admin is logged in and its token kept.
func newTestAPI(c *qt.C) *testAPI {
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })

	gw := newFakeGateway()
	events := stripe.NewMemoryEventStore(time.Hour)
	c.Cleanup(events.Close)
	config := &stripe.Config{APIKey: "sk_test", WebhookSecret: testWebhookSecret}
	c.Assert(config.Validate(), qt.IsNil)
	svc, err := stripe.NewService(config, gw, testDB, events)
	c.Assert(err, qt.IsNil)

	storage, err := objectstorage.New(objectstorage.NewMemory(), testDB, objectstorage.Config{})
	c.Assert(err, qt.IsNil)

	imp := importer.New(testDB, nil, nil, nil)
	queue := importer.NewQueue(imp, 4, time.Hour, importer.DefaultRetryPolicy)
	notify := notifications.NewQueue(time.Minute, time.Hour, &fakeNotifier{}, &fakeNotifier{})

	a := New(&Config{
		Secret:           testSecret,
		DB:               testDB,
		Payments:         svc,
		Importer:         imp,
		ImportQueue:      queue,
		Notifications:    notify,
		ObjectStorage:    storage,
		VEVSWebhookToken: testVEVSToken,
		PortalURL:        testPortalURL,
		Brand:            "Test Rentals",
	})
	svc.OnSettled(a.ReceiptHook())
	srv := httptest.NewServer(a.Router())
	c.Cleanup(srv.Close)

	ta := &testAPI{api: a, srv: srv, gateway: gw, notify: notify, queue: queue}
	ta.token = ta.login(c)
	return ta
}

// login creates the test admin and returns its JWT.
func (ta *testAPI) login(c *qt.C) string {
	hash, err := internal.HashPassword(testAdminPass)
	c.Assert(err, qt.IsNil)
	c.Assert(testDB.SetUser(&db.User{Email: testAdminEmail, Password: hash, Name: "Admin"}), qt.IsNil)
	body, status := ta.request(c, http.MethodPost, "", authLoginEndpoint,
		&apicommon.LoginRequest{Email: testAdminEmail, Password: testAdminPass})
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("login: %s", body))
	var res apicommon.LoginResponse
	c.Assert(json.Unmarshal(body, &res), qt.IsNil)
	c.Assert(res.Token, qt.Not(qt.Equals), "")
	return res.Token
}

// request sends the JSON encoded body, or raw bytes, to the test server
// and returns the response body and status.
func (ta *testAPI) request(c *qt.C, method, jwt, path string, body any) ([]byte, int) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		reader = bytes.NewReader(mustMarshal(b))
	}
	req, err := http.NewRequest(method, ta.srv.URL+path, reader)
	c.Assert(err, qt.IsNil)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if jwt != "" {
		req.Header.Set("Authorization", "Bearer "+jwt)
	}
	return ta.do(c, req)
}

func (*testAPI) do(c *qt.C, req *http.Request) ([]byte, int) {
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, qt.IsNil)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	c.Assert(err, qt.IsNil)
	return data, resp.StatusCode
}

// admin sends an authenticated request and decodes a successful response
// into out, when not nil.
func (ta *testAPI) admin(c *qt.C, method, path string, body, out any) int {
	data, status := ta.request(c, method, ta.token, path, body)
	if out != nil && status < http.StatusBadRequest {
		c.Assert(json.Unmarshal(data, out), qt.IsNil, qt.Commentf("body: %s", data))
	}
	return status
}

// errorCode decodes the code of an API error response.
func errorCode(c *qt.C, body []byte) int {
	var res struct {
		Code int `json:"code"`
	}
	c.Assert(json.Unmarshal(body, &res), qt.IsNil, qt.Commentf("body: %s", body))
	return res.Code
}

// createTestBooking creates a booking through the API for a new customer.
func (ta *testAPI) createTestBooking(c *qt.C, email string) *apicommon.BookingInfo {
	req := &apicommon.BookingRequest{
		Customer: &apicommon.CustomerRequest{
			FirstName: "Alex",
			LastName:  "Renter",
			Email:     email,
			Phone:     "0412 345 678",
		},
		Vehicle:      "Toyota RAV4",
		PickupAt:     time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second),
		ReturnAt:     time.Now().Add(120 * time.Hour).UTC().Truncate(time.Second),
		TotalCents:   100000,
		DepositCents: 30000,
		BondCents:    50000,
	}
	var info apicommon.BookingInfo
	c.Assert(ta.admin(c, http.MethodPost, bookingsEndpoint, req, &info), qt.Equals, http.StatusCreated)
	c.Assert(info.Booking, qt.Not(qt.IsNil))
	return &info
}

// portalToken extracts the token of a portal link.
func portalToken(link string) string {
	return strings.TrimPrefix(link, testPortalURL+"/portal/")
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	body, status := ta.request(c, http.MethodGet, "", pingEndpoint, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(string(body), qt.Equals, ".")
}
