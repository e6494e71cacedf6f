package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/reports"
	"go.vocdoni.io/dvote/log"
)

// maxMultipartMemory is the part of a multipart form kept in memory.
const maxMultipartMemory = 32 << 20

// portalOwner loads the booking or job of the portal token in the request.
// Unknown tokens are answered with a not found error.
func (a *API) portalOwner(w http.ResponseWriter, r *http.Request) (*db.Owner, bool) {
	owner, err := a.db.OwnerByPortalToken(chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return nil, false
	}
	return owner, true
}

// portalHandler godoc
//
//	@Summary		Get the portal view
//	@Description	Customer view of a booking or job: what is due, what was paid and the uploaded
//	@Description	documents
//	@Tags			portal
//	@Produce		json
//	@Param			token	path		string	true	"Portal token"
//	@Success		200		{object}	apicommon.PortalInfo
//	@Failure		404		{object}	errors.Error
//	@Router			/portal/{token} [get]
func (a *API) portalHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.portalOwner(w, r)
	if !ok {
		return
	}
	info := &apicommon.PortalInfo{
		Type:       owner.Type,
		Reference:  owner.Reference,
		Brand:      a.brandOf(owner),
		Status:     owner.Status,
		BondStatus: owner.BondStatus,
		Payments:   []apicommon.PortalPayment{},
		Documents:  []db.Document{},
	}
	switch {
	case owner.Booking != nil:
		info.Vehicle = owner.Booking.Vehicle
		info.StartAt, info.EndAt = owner.Booking.PickupAt, owner.Booking.ReturnAt
	case owner.Job != nil:
		info.Vehicle = owner.Job.Vehicle
		info.StartAt, info.EndAt = owner.Job.StartAt, owner.Job.EndAt
	}
	if customer, err := a.db.Customer(owner.CustomerID); err == nil {
		info.CustomerName = customer.FullName()
	}
	summary, err := a.summaryOf(owner)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	info.Summary = summary
	list, err := a.db.PaymentsByOwner(owner.Type, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	for i := range list {
		info.Payments = append(info.Payments, apicommon.PortalPaymentFromDb(&list[i]))
	}
	docs, err := a.db.DocumentsByOwner(owner.Type, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	info.Documents = append(info.Documents, docs...)
	apicommon.HTTPWriteJSON(w, info)
}

// portalPaymentHandler godoc
//
//	@Summary		Pay the deposit or balance
//	@Description	Get the PaymentIntent collecting what is outstanding of the deposit or the balance.
//	@Description	Repeated calls reuse the open intent.
//	@Tags			portal
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string							true	"Portal token"
//	@Param			request	body		apicommon.PortalPaymentRequest	true	"Payment kind"
//	@Success		200		{object}	apicommon.IntentResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/portal/{token}/payments [post]
func (a *API) portalPaymentHandler(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		errors.ErrServiceNotConfigured.With("payments are not configured").Write(w)
		return
	}
	owner, ok := a.portalOwner(w, r)
	if !ok {
		return
	}
	req, ok := decodeModel[apicommon.PortalPaymentRequest](a.validator, w, r)
	if !ok {
		return
	}
	res, err := a.payments.ChargeIntent(r.Context(), owner.Type, owner.Reference, req.Kind)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}

// portalBondHandler godoc
//
//	@Summary		Authorize the bond
//	@Description	Get the manual capture PaymentIntent holding the bond on the customer card
//	@Tags			portal
//	@Produce		json
//	@Param			token	path		string	true	"Portal token"
//	@Success		200		{object}	apicommon.IntentResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/portal/{token}/bond [post]
func (a *API) portalBondHandler(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		errors.ErrServiceNotConfigured.With("payments are not configured").Write(w)
		return
	}
	owner, ok := a.portalOwner(w, r)
	if !ok {
		return
	}
	res, err := a.payments.HoldIntent(r.Context(), owner.Type, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}

// portalReceiptHandler godoc
//
//	@Summary	Download the receipt
//	@Tags		portal
//	@Produce	application/pdf
//	@Param		token	path		string	true	"Portal token"
//	@Success	200		{file}		binary
//	@Failure	404		{object}	errors.Error
//	@Router		/portal/{token}/receipt [get]
func (a *API) portalReceiptHandler(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		errors.ErrServiceNotConfigured.With("payments are not configured").Write(w)
		return
	}
	owner, ok := a.portalOwner(w, r)
	if !ok {
		return
	}
	summary, err := a.payments.Summary(owner)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	list, err := a.db.PaymentsByOwner(owner.Type, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	deposits, err := a.db.DepositsByOwner(owner.Type, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrInvalidPortalToken)
		return
	}
	customer, err := a.db.Customer(owner.CustomerID)
	if err != nil && err != db.ErrNotFound {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	data, err := reports.ReceiptPDF(reports.Receipt{
		Brand:    a.brandOf(owner),
		Owner:    owner,
		Customer: customer,
		Summary:  summary,
		Payments: list,
		Deposits: deposits,
		IssuedAt: a.now(),
		Location: a.location,
	})
	if err != nil {
		errors.ErrReportFailed.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteFile(w, "application/pdf", fmt.Sprintf("receipt-%s.pdf", owner.Reference), data)
}

// portalUploadHandler godoc
//
//	@Summary		Upload documents
//	@Description	Upload JPEG, PNG or PDF documents, e.g. the driver licence, sent as the "file" parts
//	@Description	of a multipart form
//	@Tags			portal
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			token	path		string	true	"Portal token"
//	@Param			file	formData	file	true	"Document"
//	@Success		201		{array}		db.Document
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Failure		413		{object}	errors.Error
//	@Router			/portal/{token}/documents [post]
func (a *API) portalUploadHandler(w http.ResponseWriter, r *http.Request) {
	if a.objectStorage == nil {
		errors.ErrServiceNotConfigured.With("document storage is not configured").Write(w)
		return
	}
	owner, ok := a.portalOwner(w, r)
	if !ok {
		return
	}
	if owner.Status == db.StatusCancelled {
		errors.ErrInvalidData.Withf("%s is cancelled", owner.Reference).Write(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		errors.ErrMalformedBody.With("could not parse form").Write(w)
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		errors.ErrInvalidData.With("no file part").Write(w)
		return
	}
	docs := make([]db.Document, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			errors.ErrMalformedBody.Withf("cannot open file %s", fileHeader.Filename).Write(w)
			return
		}
		doc, err := a.objectStorage.Upload(r.Context(), owner.Type, owner.Reference, fileHeader.Filename, file)
		if cerr := file.Close(); cerr != nil {
			log.Warnw("cannot close uploaded file", "error", cerr)
		}
		if err != nil {
			writeError(w, err, errors.ErrDocumentNotFound)
			return
		}
		docs = append(docs, *doc)
	}
	apicommon.HTTPWriteJSONStatus(w, http.StatusCreated, docs)
}
