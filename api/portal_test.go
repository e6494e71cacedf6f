package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/payments"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// deliverIntent posts a signed payment_intent event for pi to the Stripe
// webhook route and returns the answered status.
func (ta *testAPI) deliverIntent(c *qt.C, eventID string, eventType stripeapi.EventType,
	pi *stripeapi.PaymentIntent,
) int {
	object := mustMarshal(map[string]any{
		"id":                pi.ID,
		"object":            "payment_intent",
		"amount":            pi.Amount,
		"amount_capturable": pi.AmountCapturable,
		"amount_received":   pi.AmountReceived,
		"currency":          pi.Currency,
		"status":            pi.Status,
		"capture_method":    pi.CaptureMethod,
		"metadata":          pi.Metadata,
	})
	payload := mustMarshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": stripeapi.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]json.RawMessage{"object": object},
	})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	req, err := http.NewRequest(http.MethodPost, ta.srv.URL+stripeWebhookEndpoint, bytes.NewReader(signed.Payload))
	c.Assert(err, qt.IsNil)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	_, status := ta.do(c, req)
	return status
}

func (ta *testAPI) portal(c *qt.C, token string) *apicommon.PortalInfo {
	body, status := ta.request(c, http.MethodGet, "", "/portal/"+token, nil)
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
	var info apicommon.PortalInfo
	c.Assert(json.Unmarshal(body, &info), qt.IsNil)
	return &info
}

func TestPortalDepositPayment(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	booking := ta.createTestBooking(c, "portal@example.com")
	token := portalToken(booking.PortalURL)

	info := ta.portal(c, token)
	c.Assert(info.Reference, qt.Equals, booking.Reference)
	c.Assert(info.Brand, qt.Equals, "Test Rentals")
	c.Assert(info.CustomerName, qt.Equals, "Alex Renter")
	c.Assert(info.Status, qt.Equals, db.StatusPending)
	c.Assert(info.Summary.DepositOutstandingCents, qt.Equals, int64(30000))
	c.Assert(info.Payments, qt.HasLen, 0)
	c.Assert(bytes.Contains(mustMarshal(info), []byte(token)), qt.IsFalse)

	c.Run("unknown token", func(c *qt.C) {
		body, status := ta.request(c, http.MethodGet, "", "/portal/nope", nil)
		c.Assert(status, qt.Equals, http.StatusNotFound)
		c.Assert(errorCode(c, body), qt.Equals, errors.ErrInvalidPortalToken.Code)
	})

	var intent apicommon.IntentResponse
	body, status := ta.request(c, http.MethodPost, "", "/portal/"+token+"/payments",
		&apicommon.PortalPaymentRequest{Kind: payments.KindDeposit})
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
	c.Assert(json.Unmarshal(body, &intent), qt.IsNil)
	c.Assert(intent.AmountCents, qt.Equals, int64(30000))
	c.Assert(intent.ClientSecret, qt.Not(qt.Equals), "")

	c.Run("repeated calls reuse the intent", func(c *qt.C) {
		var again apicommon.IntentResponse
		body, status := ta.request(c, http.MethodPost, "", "/portal/"+token+"/payments",
			&apicommon.PortalPaymentRequest{Kind: payments.KindDeposit})
		c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
		c.Assert(json.Unmarshal(body, &again), qt.IsNil)
		c.Assert(again.PaymentIntentID, qt.Equals, intent.PaymentIntentID)
	})

	c.Run("bond is not a portal payment kind", func(c *qt.C) {
		_, status := ta.request(c, http.MethodPost, "", "/portal/"+token+"/payments",
			&apicommon.PortalPaymentRequest{Kind: payments.KindBond})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
	})

	pi := ta.gateway.set(intent.PaymentIntentID, func(pi *stripeapi.PaymentIntent) {
		pi.Status = stripeapi.PaymentIntentStatusSucceeded
		pi.AmountReceived = pi.Amount
	})
	c.Assert(ta.deliverIntent(c, "evt_deposit", stripeapi.EventTypePaymentIntentSucceeded, pi), qt.Equals, http.StatusOK)
	// duplicate deliveries are acknowledged and ignored
	c.Assert(ta.deliverIntent(c, "evt_deposit", stripeapi.EventTypePaymentIntentSucceeded, pi), qt.Equals, http.StatusOK)

	info = ta.portal(c, token)
	c.Assert(info.Status, qt.Equals, db.StatusConfirmed)
	c.Assert(info.Summary.PaidCents, qt.Equals, int64(30000))
	c.Assert(info.Payments, qt.HasLen, 1)
	c.Assert(info.Payments[0].Status, qt.Equals, payments.StatusSucceeded)
	// the receipt email is queued once
	c.Assert(ta.notify.Len(), qt.Equals, 1)

	c.Run("deposit paid", func(c *qt.C) {
		body, status := ta.request(c, http.MethodPost, "", "/portal/"+token+"/payments",
			&apicommon.PortalPaymentRequest{Kind: payments.KindDeposit})
		c.Assert(status, qt.Equals, http.StatusBadRequest, qt.Commentf("body: %s", body))
		c.Assert(errorCode(c, body), qt.Equals, errors.ErrNothingDue.Code)
	})

	c.Run("receipt", func(c *qt.C) {
		req, err := http.NewRequest(http.MethodGet, ta.srv.URL+"/portal/"+token+"/receipt", nil)
		c.Assert(err, qt.IsNil)
		data, status := ta.do(c, req)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(bytes.HasPrefix(data, []byte("%PDF")), qt.IsTrue)
	})
}

func TestPortalBondHold(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	booking := ta.createTestBooking(c, "bond@example.com")
	token := portalToken(booking.PortalURL)

	var intent apicommon.IntentResponse
	body, status := ta.request(c, http.MethodPost, "", "/portal/"+token+"/bond", nil)
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
	c.Assert(json.Unmarshal(body, &intent), qt.IsNil)
	c.Assert(intent.AmountCents, qt.Equals, int64(50000))
	c.Assert(intent.Kind, qt.Equals, payments.KindBond)

	pi := ta.gateway.set(intent.PaymentIntentID, func(pi *stripeapi.PaymentIntent) {
		pi.Status = stripeapi.PaymentIntentStatusRequiresCapture
		pi.AmountCapturable = pi.Amount
	})
	c.Assert(ta.deliverIntent(c, "evt_bond", stripeapi.EventTypePaymentIntentAmountCapturableUpdated, pi),
		qt.Equals, http.StatusOK)

	info := ta.portal(c, token)
	c.Assert(info.BondStatus, qt.Equals, payments.BondAuthorized)
	c.Assert(info.Summary.HeldCents, qt.Equals, int64(50000))
	// a held bond is never counted as paid
	c.Assert(info.Summary.PaidCents, qt.Equals, int64(0))
	c.Assert(info.Status, qt.Equals, db.StatusPending)

	capture := "/admin/payments/" + intent.PaymentID.Hex() + "/capture"
	c.Run("capture above the hold", func(c *qt.C) {
		body, status := ta.request(c, http.MethodPost, ta.token, capture, &apicommon.AmountRequest{AmountCents: 60000})
		c.Assert(status, qt.Equals, http.StatusBadRequest, qt.Commentf("body: %s", body))
	})

	c.Run("partial capture", func(c *qt.C) {
		var p db.Payment
		c.Assert(ta.admin(c, http.MethodPost, capture, &apicommon.AmountRequest{AmountCents: 20000}, &p),
			qt.Equals, http.StatusOK)
		c.Assert(p.AmountReceivedCents, qt.Equals, int64(20000))
		c.Assert(ta.portal(c, token).BondStatus, qt.Equals, payments.BondCaptured)
	})

	c.Run("cancel refused after capture", func(c *qt.C) {
		body, status := ta.request(c, http.MethodDelete, ta.token, "/admin/bookings/"+booking.Reference, nil)
		c.Assert(status, qt.Equals, http.StatusConflict, qt.Commentf("body: %s", body))
		c.Assert(errorCode(c, body), qt.Equals, errors.ErrHasCaptured.Code)
	})
}

func TestPortalDocuments(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)
	booking := ta.createTestBooking(c, "docs@example.com")
	token := portalToken(booking.PortalURL)

	upload := func(c *qt.C, name string, content []byte) ([]byte, int) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", name)
		c.Assert(err, qt.IsNil)
		_, err = part.Write(content)
		c.Assert(err, qt.IsNil)
		c.Assert(mw.Close(), qt.IsNil)
		req, err := http.NewRequest(http.MethodPost, ta.srv.URL+"/portal/"+token+"/documents", &buf)
		c.Assert(err, qt.IsNil)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return ta.do(c, req)
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	body, status := upload(c, "licence.png", png)
	c.Assert(status, qt.Equals, http.StatusCreated, qt.Commentf("body: %s", body))
	var docs []db.Document
	c.Assert(json.Unmarshal(body, &docs), qt.IsNil)
	c.Assert(docs, qt.HasLen, 1)
	c.Assert(docs[0].ContentType, qt.Equals, "image/png")

	body, status = upload(c, "notes.txt", []byte("plain text is refused"))
	c.Assert(status, qt.Equals, http.StatusBadRequest, qt.Commentf("body: %s", body))
	c.Assert(errorCode(c, body), qt.Equals, errors.ErrFileNotSupported.Code)

	c.Assert(ta.portal(c, token).Documents, qt.HasLen, 1)

	path := "/admin/documents/" + docs[0].ID.Hex()
	data, status := ta.request(c, http.MethodGet, ta.token, path, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(data, qt.DeepEquals, png)

	c.Assert(ta.admin(c, http.MethodDelete, path, nil, nil), qt.Equals, http.StatusOK)
	_, status = ta.request(c, http.MethodGet, ta.token, path, nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(ta.portal(c, token).Documents, qt.HasLen, 0)
}
