package api

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rentalhq/backoffice/stripe"
	"go.vocdoni.io/dvote/log"
)

// maxWebhookBodyBytes bounds the size of a Stripe webhook payload.
const maxWebhookBodyBytes = int64(65536)

// webhookStatus maps the result of processing a webhook to the status
// answered to Stripe. Only transient failures get a 5xx so Stripe retries
// them; events that can never succeed are acknowledged.
func webhookStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var stripeErr *stripe.StripeError
	if !stderrors.As(err, &stripeErr) {
		return http.StatusInternalServerError
	}
	switch {
	case stripeErr.Code == stripe.CodeWebhookValidation, stripeErr.Code == stripe.CodeInvalidEvent:
		return http.StatusBadRequest
	case stripe.IsRetryableError(err):
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// stripeWebhookHandler godoc
//
//	@Summary		Handle Stripe webhook events
//	@Description	Process the PaymentIntent and charge events sent by Stripe. Events are applied once
//	@Description	by event id and never move a payment back to an earlier state.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			Stripe-Signature	header		string	true	"Stripe webhook signature"
//	@Param			body				body		string	true	"Stripe webhook payload"
//	@Success		200					{string}	string	"OK"
//	@Failure		400					{string}	string	"Bad Request"
//	@Failure		500					{string}	string	"Internal Server Error"
//	@Router			/webhooks/stripe [post]
func (a *API) stripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		log.Errorf("stripe webhook: Stripe service not available")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Errorf("stripe webhook: error reading request body: %s", err.Error())
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	if signatureHeader == "" {
		log.Errorf("stripe webhook: missing Stripe-Signature header")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err = a.payments.HandleWebhook(r.Context(), payload, signatureHeader)
	status := webhookStatus(err)
	if err != nil {
		if status == http.StatusOK {
			log.Warnw("stripe webhook: event ignored", "error", err)
		} else {
			log.Errorf("stripe webhook: failed to process event: %v", err)
		}
	}
	w.WriteHeader(status)
}
