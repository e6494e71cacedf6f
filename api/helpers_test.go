package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/importer"
	"github.com/rentalhq/backoffice/objectstorage"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/stripe"
	stripeapi "github.com/stripe/stripe-go/v81"
)

func TestToAPIError(t *testing.T) {
	c := qt.New(t)
	notFound := errors.ErrBookingNotFound
	tests := []struct {
		err  error
		code int
	}{
		{errors.ErrNothingDue, errors.ErrNothingDue.Code},
		{fmt.Errorf("owner: %w", db.ErrNotFound), notFound.Code},
		{fmt.Errorf("wrapped: %w", db.ErrInUse), errors.ErrHasCaptured.Code},
		{db.ErrAlreadyExists, errors.ErrDuplicateConflict.Code},
		{db.ErrInvalidData, errors.ErrInvalidData.Code},
		{payments.ErrNothingDue, errors.ErrNothingDue.Code},
		{fmt.Errorf("%w: too much", payments.ErrInvalidAmount), errors.ErrInvalidAmount.Code},
		{payments.ErrInvalidState, errors.ErrInvalidPaymentOp.Code},
		{payments.ErrAlreadyCharged, errors.ErrInvalidPaymentOp.Code},
		{stripe.ErrOwnerNotFound, errors.ErrOwnerNotFound.Code},
		{stripe.ErrRequestNotFound, errors.ErrPaymentRequestNotFound.Code},
		{stripe.NewStripeError(stripe.CodeRequestClosed, "paid", nil), errors.ErrRequestClosed.Code},
		{stripe.NewStripeError(stripe.CodeAPICallFailed, "card declined", nil), errors.ErrStripeError.Code},
		{stripe.NewStripeError(stripe.CodeStorageFailed, "db down", nil), errors.ErrInternalStorageError.Code},
		{stripe.NewStripeError(stripe.CodeAPICallFailed, "wrapped", payments.ErrNothingDue), errors.ErrNothingDue.Code},
		{objectstorage.ErrFileTypeNotSupported, errors.ErrFileNotSupported.Code},
		{objectstorage.ErrTooLarge, errors.ErrFileTooLarge.Code},
		{objectstorage.ErrObjectNotFound, errors.ErrDocumentNotFound.Code},
		{fmt.Errorf("push: %w", importer.ErrQueueFull), errors.ErrQueueFull.Code},
		{fmt.Errorf("vevs: %w", importer.ErrFeedNotConfigured), errors.ErrServiceNotConfigured.Code},
		{fmt.Errorf("boom"), errors.ErrGenericInternalServerError.Code},
	}
	for _, tt := range tests {
		c.Assert(toAPIError(tt.err, notFound).Code, qt.Equals, tt.code, qt.Commentf("%v", tt.err))
	}
}

func TestWebhookStatus(t *testing.T) {
	c := qt.New(t)
	c.Assert(webhookStatus(nil), qt.Equals, http.StatusOK)
	c.Assert(webhookStatus(stripe.ErrWebhookValidation), qt.Equals, http.StatusBadRequest)
	c.Assert(webhookStatus(stripe.NewStripeError(stripe.CodeInvalidEvent, "bad", nil)), qt.Equals, http.StatusBadRequest)
	c.Assert(webhookStatus(stripe.ErrOwnerNotFound), qt.Equals, http.StatusOK)
	c.Assert(webhookStatus(stripe.ErrRequestNotFound), qt.Equals, http.StatusOK)
	c.Assert(webhookStatus(stripe.NewStripeError(stripe.CodeStorageFailed, "db", nil)), qt.Equals,
		http.StatusInternalServerError)
	c.Assert(webhookStatus(fmt.Errorf("boom")), qt.Equals, http.StatusInternalServerError)

	// closed requests and rejected API calls never succeed on a retry
	c.Assert(webhookStatus(stripe.NewStripeError(stripe.CodeRequestClosed, "paid", nil)), qt.Equals, http.StatusOK)
	declined := &stripeapi.Error{HTTPStatusCode: http.StatusPaymentRequired, Code: stripeapi.ErrorCodeCardDeclined}
	c.Assert(webhookStatus(stripe.NewStripeError(stripe.CodeAPICallFailed, "refund", declined)), qt.Equals,
		http.StatusOK)
	unavailable := &stripeapi.Error{HTTPStatusCode: http.StatusServiceUnavailable}
	c.Assert(webhookStatus(fmt.Errorf("sync: %w",
		stripe.NewStripeError(stripe.CodeAPICallFailed, "refund", unavailable))), qt.Equals,
		http.StatusInternalServerError)
}

func TestDecodeVEVSPayload(t *testing.T) {
	c := qt.New(t)
	list, err := decodeVEVSPayload([]byte(`{"id":7,"ref_id":"R7","car":{"name":"Yaris"}}`))
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 1)
	c.Assert(string(list[0].ID), qt.Equals, "7")
	c.Assert(list[0].Car.Name, qt.Equals, "Yaris")

	list, err = decodeVEVSPayload([]byte(`{"data":[{"id":"a"},{"id":"b"}]}`))
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 2)

	_, err = decodeVEVSPayload([]byte(`[1,2]`))
	c.Assert(err, qt.Not(qt.IsNil))
}

// TestWithoutOptionalServices checks the routes of the services that are
// not configured answer 503 while the rest keeps working.
func TestWithoutOptionalServices(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })
	a := New(&Config{Secret: testSecret, DB: testDB, PortalURL: testPortalURL})
	srv := httptest.NewServer(a.Router())
	c.Cleanup(srv.Close)
	ta := &testAPI{api: a, srv: srv}
	ta.token = ta.login(c)

	booking := ta.createTestBooking(c, "bare@example.com")
	c.Assert(booking.Summary, qt.IsNil)
	token := portalToken(booking.PortalURL)

	for _, path := range []string{
		"/portal/" + token + "/bond",
		"/pay/unknown/intent",
		stripeWebhookEndpoint,
		vevsWebhookEndpoint,
		"/admin/payments/000000000000000000000000/sync",
	} {
		_, status := ta.request(c, http.MethodPost, ta.token, path, nil)
		c.Assert(status, qt.Equals, http.StatusServiceUnavailable, qt.Commentf("%s", path))
	}
	_, status := ta.request(c, http.MethodGet, "", "/portal/"+token+"/receipt", nil)
	c.Assert(status, qt.Equals, http.StatusServiceUnavailable)

	// offline deposits are still recorded
	var deposit db.Deposit
	c.Assert(ta.admin(c, http.MethodPost, "/admin/bookings/"+booking.Reference+"/deposits",
		&apicommon.DepositRequest{Amount: "50"}, &deposit), qt.Equals, http.StatusCreated)
	c.Assert(ta.admin(c, http.MethodPost, "/admin/bookings/"+booking.Reference+"/deposits",
		&apicommon.DepositRequest{Amount: "250"}, nil), qt.Equals, http.StatusCreated)
	b, err := testDB.Booking(booking.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(b.PaidCents, qt.Equals, int64(30000))
	c.Assert(b.Status, qt.Equals, db.StatusConfirmed)

	// and bookings are cancelled in the database
	c.Assert(ta.admin(c, http.MethodDelete, "/admin/bookings/"+booking.Reference, nil, nil), qt.Equals, http.StatusOK)
	b, err = testDB.Booking(booking.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(b.Status, qt.Equals, db.StatusCancelled)
}
