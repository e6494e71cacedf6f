package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/payments"
	"go.vocdoni.io/dvote/log"
)

// ownerFromRequest loads the booking or job named by the reference URL
// parameter.
func (a *API) ownerFromRequest(w http.ResponseWriter, r *http.Request, t payments.OwnerType) (*db.Owner, bool) {
	reference := strings.ToUpper(chi.URLParam(r, "reference"))
	if reference == "" {
		errors.ErrMalformedURLParam.Withf("missing reference").Write(w)
		return nil, false
	}
	owner, err := a.db.Owner(t, reference)
	if err != nil {
		writeError(w, err, notFoundOf(t))
		return nil, false
	}
	return owner, true
}

func notFoundOf(t payments.OwnerType) errors.Error {
	if t == payments.OwnerJob {
		return errors.ErrJobNotFound
	}
	return errors.ErrBookingNotFound
}

// ownerPayments writes the payments, offline deposits and summary of the
// owner named in the request.
func (a *API) ownerPayments(w http.ResponseWriter, r *http.Request, t payments.OwnerType) {
	owner, ok := a.ownerFromRequest(w, r, t)
	if !ok {
		return
	}
	list, err := a.db.PaymentsByOwner(t, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrPaymentNotFound)
		return
	}
	deposits, err := a.db.DepositsByOwner(t, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrPaymentNotFound)
		return
	}
	summary, err := a.summaryOf(owner)
	if err != nil {
		writeError(w, err, notFoundOf(t))
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.PaymentsResponse{
		Payments: list,
		Deposits: deposits,
		Summary:  summary,
	})
}

// addOwnerDeposit records an offline deposit on the owner named in the
// request and refreshes its paid amount.
func (a *API) addOwnerDeposit(w http.ResponseWriter, r *http.Request, t payments.OwnerType) {
	admin, ok := apicommon.AdminFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	owner, ok := a.ownerFromRequest(w, r, t)
	if !ok {
		return
	}
	req, ok := decodeModel[apicommon.DepositRequest](a.validator, w, r)
	if !ok {
		return
	}
	if owner.Status == db.StatusCancelled {
		errors.ErrInvalidPaymentOp.Withf("%s is cancelled", owner.Reference).Write(w)
		return
	}
	amount, err := payments.ParseAmount(req.Amount)
	if err != nil || amount <= 0 {
		errors.ErrInvalidAmount.Withf("invalid amount %q", req.Amount).Write(w)
		return
	}
	method := req.Method
	if method == "" {
		method = db.MethodCash
	}
	deposit := &db.Deposit{
		OwnerType:   t,
		OwnerRef:    owner.Reference,
		AmountCents: amount,
		Currency:    owner.Currency,
		Method:      method,
		Note:        req.Note,
		ReceivedAt:  req.ReceivedAt,
		CreatedBy:   admin.ID,
	}
	if err := a.db.AddDeposit(deposit); err != nil {
		writeError(w, err, notFoundOf(t))
		return
	}
	log.Infow("offline deposit recorded", "reference", owner.Reference, "amount", amount,
		"method", method, "admin", admin.Email)
	if a.payments != nil {
		_, err = a.payments.Reconcile(r.Context(), t, owner.Reference)
	} else {
		err = a.reconcileOffline(owner)
	}
	if err != nil {
		writeError(w, err, notFoundOf(t))
		return
	}
	apicommon.HTTPWriteJSONStatus(w, http.StatusCreated, deposit)
}

// reconcileOffline recomputes the paid amount of owner from the stored
// payments and deposits when Stripe is not configured, confirming a pending
// owner once the deposit is covered.
func (a *API) reconcileOffline(owner *db.Owner) error {
	acct, err := owner.Account()
	if err != nil {
		return err
	}
	list, err := a.db.PaymentsByOwner(owner.Type, owner.Reference)
	if err != nil {
		return err
	}
	records := make([]payments.Record, 0, len(list))
	for i := range list {
		records = append(records, list[i].Record())
	}
	deposits, err := a.db.DepositAmounts(owner.Type, owner.Reference)
	if err != nil {
		return err
	}
	summary := payments.Summarize(acct, records, deposits)
	if err := a.db.SetOwnerPaid(owner.Type, owner.Reference, summary.PaidCents); err != nil {
		return err
	}
	if owner.Status == db.StatusPending && summary.DepositSatisfied {
		if _, err := a.db.ConfirmOwner(owner.Type, owner.Reference); err != nil {
			return err
		}
	}
	return nil
}
