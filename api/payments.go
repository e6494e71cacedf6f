package api

import (
	"context"
	"net/http"

	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

type paymentOp func(ctx context.Context, id primitive.ObjectID, amountCents int64) (*db.Payment, error)

// runPaymentOp parses the payment id and the optional amount of the request
// and runs op on the Stripe service.
func (a *API) runPaymentOp(w http.ResponseWriter, r *http.Request, name string, withAmount bool, op paymentOp) {
	if a.payments == nil {
		errors.ErrServiceNotConfigured.With("payments are not configured").Write(w)
		return
	}
	id, err := apicommon.ObjectIDFromRequest(r, "id")
	if err != nil {
		errors.ErrMalformedURLParam.Withf("invalid payment id").Write(w)
		return
	}
	var amount int64
	if withAmount && r.ContentLength != 0 {
		req, ok := decodeModel[apicommon.AmountRequest](a.validator, w, r)
		if !ok {
			return
		}
		amount = req.AmountCents
	}
	p, err := op(r.Context(), id, amount)
	if err != nil {
		writeError(w, err, errors.ErrPaymentNotFound)
		return
	}
	admin, _ := apicommon.AdminFromContext(r.Context())
	var by string
	if admin != nil {
		by = admin.Email
	}
	log.Infow("payment operation", "op", name, "payment", id.Hex(), "amount", amount,
		"status", p.Status, "admin", by)
	apicommon.HTTPWriteJSON(w, p)
}

// capturePaymentHandler godoc
//
//	@Summary		Capture a bond hold
//	@Description	Capture an authorized bond, all of it when amountCents is zero
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string					true	"Payment ID"
//	@Param			request	body		apicommon.AmountRequest	false	"Amount to capture"
//	@Success		200		{object}	db.Payment
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Router			/admin/payments/{id}/capture [post]
func (a *API) capturePaymentHandler(w http.ResponseWriter, r *http.Request) {
	a.runPaymentOp(w, r, "capture", true, func(ctx context.Context, id primitive.ObjectID, amount int64) (*db.Payment, error) {
		return a.payments.CaptureHold(ctx, id, amount)
	})
}

// releasePaymentHandler godoc
//
//	@Summary	Release a bond hold
//	@Tags		payments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Payment ID"
//	@Success	200	{object}	db.Payment
//	@Failure	400	{object}	errors.Error
//	@Failure	404	{object}	errors.Error
//	@Router		/admin/payments/{id}/release [post]
func (a *API) releasePaymentHandler(w http.ResponseWriter, r *http.Request) {
	a.runPaymentOp(w, r, "release", false, func(ctx context.Context, id primitive.ObjectID, _ int64) (*db.Payment, error) {
		return a.payments.ReleaseHold(ctx, id)
	})
}

// refundPaymentHandler godoc
//
//	@Summary		Refund a payment
//	@Description	Refund a collected payment, all of the refundable amount when amountCents is zero
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string					true	"Payment ID"
//	@Param			request	body		apicommon.AmountRequest	false	"Amount to refund"
//	@Success		200		{object}	db.Payment
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/admin/payments/{id}/refund [post]
func (a *API) refundPaymentHandler(w http.ResponseWriter, r *http.Request) {
	a.runPaymentOp(w, r, "refund", true, func(ctx context.Context, id primitive.ObjectID, amount int64) (*db.Payment, error) {
		return a.payments.Refund(ctx, id, amount)
	})
}

// syncPaymentHandler godoc
//
//	@Summary		Refresh a payment
//	@Description	Reconcile a payment with the current state of its PaymentIntent on Stripe
//	@Tags			payments
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Payment ID"
//	@Success		200	{object}	db.Payment
//	@Failure		404	{object}	errors.Error
//	@Router			/admin/payments/{id}/sync [post]
func (a *API) syncPaymentHandler(w http.ResponseWriter, r *http.Request) {
	a.runPaymentOp(w, r, "sync", false, func(ctx context.Context, id primitive.ObjectID, _ int64) (*db.Payment, error) {
		return a.payments.SyncPayment(ctx, id)
	})
}
