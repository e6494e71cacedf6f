package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

func (a *API) paymentRequestInfo(pr *db.PaymentRequest) apicommon.PaymentRequestInfo {
	return apicommon.PaymentRequestInfo{
		PaymentRequest: pr,
		Status:         pr.EffectiveStatus(a.now()),
		URL:            a.payLink(pr.Token),
	}
}

// listPaymentRequestsHandler godoc
//
//	@Summary	List payment requests
//	@Tags		payments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		ownerType	query		string	false	"booking or job"
//	@Param		reference	query		string	false	"Booking or job reference"
//	@Param		status		query		string	false	"Request status"
//	@Param		page		query		integer	false	"Page number (default: 1)"
//	@Param		pageSize	query		integer	false	"Number of items per page (default: 20)"
//	@Success	200			{object}	apicommon.PaymentRequestsResponse
//	@Failure	400			{object}	errors.Error
//	@Router		/admin/payment-requests [get]
func (a *API) listPaymentRequestsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerType := payments.OwnerType(q.Get("ownerType"))
	if ownerType != "" && !ownerType.Valid() {
		errors.ErrMalformedURLParam.Withf("invalid ownerType %q", ownerType).Write(w)
		return
	}
	page, pageSize := apicommon.PaginationFromRequest(r)
	totalPages, list, err := a.db.PaymentRequests(ownerType, strings.ToUpper(q.Get("reference")),
		db.RequestStatus(q.Get("status")), page, pageSize)
	if err != nil {
		writeError(w, err, errors.ErrPaymentRequestNotFound)
		return
	}
	res := &apicommon.PaymentRequestsResponse{
		TotalPages:  totalPages,
		CurrentPage: page,
		Requests:    make([]apicommon.PaymentRequestInfo, 0, len(list)),
	}
	for i := range list {
		res.Requests = append(res.Requests, a.paymentRequestInfo(&list[i]))
	}
	apicommon.HTTPWriteJSON(w, res)
}

// createPaymentRequestHandler godoc
//
//	@Summary		Create a payment request
//	@Description	Create an ad-hoc payment link on a booking or job, optionally sending it to the
//	@Description	customer by email and SMS
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.PaymentRequestRequest	true	"Payment request"
//	@Success		201		{object}	apicommon.PaymentRequestInfo
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/admin/payment-requests [post]
func (a *API) createPaymentRequestHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeModel[apicommon.PaymentRequestRequest](a.validator, w, r)
	if !ok {
		return
	}
	amount, err := payments.ParseAmount(req.Amount)
	if err != nil || amount <= 0 {
		errors.ErrInvalidAmount.Withf("invalid amount %q", req.Amount).Write(w)
		return
	}
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(a.now()) {
		errors.ErrInvalidData.Withf("expiresAt must be in the future").Write(w)
		return
	}
	owner, err := a.db.Owner(req.OwnerType, strings.ToUpper(req.Reference))
	if err != nil {
		writeError(w, err, notFoundOf(req.OwnerType))
		return
	}
	if owner.Status == db.StatusCancelled {
		errors.ErrInvalidPaymentOp.Withf("%s is cancelled", owner.Reference).Write(w)
		return
	}
	pr := &db.PaymentRequest{
		OwnerType:   owner.Type,
		OwnerRef:    owner.Reference,
		AmountCents: amount,
		Currency:    owner.Currency,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := a.db.CreatePaymentRequest(pr); err != nil {
		writeError(w, err, errors.ErrPaymentRequestNotFound)
		return
	}
	log.Infow("payment request created", "reference", owner.Reference, "amount", amount)
	if req.SendEmail || req.SendSMS {
		customer, err := a.db.Customer(owner.CustomerID)
		if err != nil {
			log.Warnw("payment request without customer", "reference", owner.Reference, "error", err)
		} else {
			a.sendPaymentRequest(pr, owner, customer, req.SendEmail, req.SendSMS)
		}
	}
	apicommon.HTTPWriteJSONStatus(w, http.StatusCreated, a.paymentRequestInfo(pr))
}

// cancelPaymentRequestHandler godoc
//
//	@Summary		Cancel a payment request
//	@Description	Cancel a pending payment request. Paid or expired requests cannot be cancelled.
//	@Tags			payments
//	@Security		BearerAuth
//	@Param			token	path		string	true	"Payment request token"
//	@Success		200		{string}	string	"OK"
//	@Failure		404		{object}	errors.Error
//	@Failure		410		{object}	errors.Error
//	@Router			/admin/payment-requests/{token} [delete]
func (a *API) cancelPaymentRequestHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	pr, err := a.db.PaymentRequest(token)
	if err != nil {
		writeError(w, err, errors.ErrPaymentRequestNotFound)
		return
	}
	if status := pr.EffectiveStatus(a.now()); status != db.RequestPending {
		errors.ErrRequestClosed.Withf("payment request is %s", status).Write(w)
		return
	}
	if err := a.db.SetPaymentRequestStatus(token, db.RequestCancelled, primitive.NilObjectID); err != nil {
		if err == db.ErrNotFound {
			errors.ErrRequestClosed.Write(w)
			return
		}
		writeError(w, err, errors.ErrPaymentRequestNotFound)
		return
	}
	log.Infow("payment request cancelled", "reference", pr.OwnerRef)
	apicommon.HTTPWriteOK(w)
}

// payInfoHandler godoc
//
//	@Summary		Get a payment request
//	@Description	Public view of a payment request link
//	@Tags			portal
//	@Produce		json
//	@Param			token	path		string	true	"Payment request token"
//	@Success		200		{object}	apicommon.PublicPaymentRequest
//	@Failure		404		{object}	errors.Error
//	@Router			/pay/{token} [get]
func (a *API) payInfoHandler(w http.ResponseWriter, r *http.Request) {
	pr, err := a.db.PaymentRequest(chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err, errors.ErrPaymentRequestNotFound)
		return
	}
	res := &apicommon.PublicPaymentRequest{
		Brand:       a.brand,
		Reference:   pr.OwnerRef,
		AmountCents: pr.AmountCents,
		Currency:    pr.Currency,
		Description: pr.Description,
		Status:      pr.EffectiveStatus(a.now()),
		ExpiresAt:   pr.ExpiresAt,
	}
	if owner, err := a.db.Owner(pr.OwnerType, pr.OwnerRef); err == nil {
		res.Brand = a.brandOf(owner)
	}
	apicommon.HTTPWriteJSON(w, res)
}

// payIntentHandler godoc
//
//	@Summary		Pay a payment request
//	@Description	Get the PaymentIntent that pays the request. Repeated calls reuse the intent.
//	@Tags			portal
//	@Produce		json
//	@Param			token	path		string	true	"Payment request token"
//	@Success		200		{object}	apicommon.IntentResponse
//	@Failure		404		{object}	errors.Error
//	@Failure		410		{object}	errors.Error
//	@Router			/pay/{token}/intent [post]
func (a *API) payIntentHandler(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		errors.ErrServiceNotConfigured.With("payments are not configured").Write(w)
		return
	}
	res, err := a.payments.RequestIntent(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err, errors.ErrPaymentRequestNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}
