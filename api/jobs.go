package api

import (
	"fmt"
	"net/http"

	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/payments"
	"go.vocdoni.io/dvote/log"
)

// jobInfo adds the flow, customer, portal link, balance due date and payment
// summary to the job of owner.
func (a *API) jobInfo(owner *db.Owner) (*apicommon.JobInfo, error) {
	j := owner.Job
	info := &apicommon.JobInfo{
		Job:          j,
		Flow:         owner.Flow,
		PortalURL:    a.portalLink(j.PortalToken),
		BalanceDueAt: j.BalanceDueAt(owner.Flow),
	}
	customer, err := a.db.Customer(j.CustomerID)
	switch err {
	case nil:
		info.Customer = customer
	case db.ErrNotFound:
		log.Warnw("job without customer", "reference", j.Reference, "customer", j.CustomerID.Hex())
	default:
		return nil, err
	}
	summary, err := a.summaryOf(owner)
	if err != nil {
		return nil, err
	}
	info.Summary = summary
	return info, nil
}

// listJobsHandler godoc
//
//	@Summary	List jobs
//	@Tags		jobs
//	@Produce	json
//	@Security	BearerAuth
//	@Param		status		query		string	false	"Job status"
//	@Param		source		query		string	false	"Job source (manual, dreamdrives)"
//	@Param		flow		query		string	false	"Flow slug"
//	@Param		page		query		integer	false	"Page number (default: 1)"
//	@Param		pageSize	query		integer	false	"Number of items per page (default: 20)"
//	@Success	200			{object}	apicommon.JobsResponse
//	@Failure	400			{object}	errors.Error
//	@Failure	404			{object}	errors.Error
//	@Router		/admin/jobs [get]
func (a *API) listJobsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.JobFilter{
		Status: db.BookingStatus(q.Get("status")),
		Source: db.Source(q.Get("source")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		errors.ErrMalformedURLParam.Withf("invalid status %q", filter.Status).Write(w)
		return
	}
	if slug := q.Get("flow"); slug != "" {
		flow, err := a.db.Flow(slug)
		if err != nil {
			writeError(w, err, errors.ErrFlowNotFound)
			return
		}
		filter.FlowID = flow.ID
	}
	page, pageSize := apicommon.PaginationFromRequest(r)
	totalPages, jobs, err := a.db.Jobs(filter, page, pageSize)
	if err != nil {
		writeError(w, err, errors.ErrJobNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.JobsResponse{
		TotalPages:  totalPages,
		CurrentPage: page,
		Jobs:        jobs,
	})
}

// createJobHandler godoc
//
//	@Summary		Create a job
//	@Description	Create a job under a flow. The deposit and bond follow the rules of the flow.
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.JobRequest	true	"Job"
//	@Success		201		{object}	apicommon.JobInfo
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/admin/jobs [post]
func (a *API) createJobHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeModel[apicommon.JobRequest](a.validator, w, r)
	if !ok {
		return
	}
	flow, err := a.db.Flow(req.Flow)
	if err != nil {
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	customer, err := a.resolveCustomer(req.CustomerID, req.Customer)
	if err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	job := &db.Job{
		FlowID:     flow.ID,
		Source:     db.SourceManual,
		CustomerID: customer.ID,
		Vehicle:    req.Vehicle,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Currency:   req.Currency,
		TotalCents: req.TotalCents,
	}
	if err := a.db.CreateJob(job); err != nil {
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	log.Infow("job created", "reference", job.Reference, "flow", flow.Slug)
	info, err := a.jobInfo(&db.Owner{Type: payments.OwnerJob, Job: job, Flow: flow, Reference: job.Reference})
	if err != nil {
		writeError(w, err, errors.ErrJobNotFound)
		return
	}
	apicommon.HTTPWriteJSONStatus(w, http.StatusCreated, info)
}

// jobHandler godoc
//
//	@Summary	Get a job
//	@Tags		jobs
//	@Produce	json
//	@Security	BearerAuth
//	@Param		reference	path		string	true	"Job reference"
//	@Success	200			{object}	apicommon.JobInfo
//	@Failure	404			{object}	errors.Error
//	@Router		/admin/jobs/{reference} [get]
func (a *API) jobHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.ownerFromRequest(w, r, payments.OwnerJob)
	if !ok {
		return
	}
	info, err := a.jobInfo(owner)
	if err != nil {
		writeError(w, err, errors.ErrJobNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, info)
}

// updateJobHandler godoc
//
//	@Summary		Update a job
//	@Description	Change the non-zero fields of a job
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			reference	path		string						true	"Job reference"
//	@Param			request		body		apicommon.UpdateJobRequest	true	"Fields to change"
//	@Success		200			{object}	apicommon.JobInfo
//	@Failure		400			{object}	errors.Error
//	@Failure		404			{object}	errors.Error
//	@Router			/admin/jobs/{reference} [put]
func (a *API) updateJobHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.ownerFromRequest(w, r, payments.OwnerJob)
	if !ok {
		return
	}
	req, ok := decodeModel[apicommon.UpdateJobRequest](a.validator, w, r)
	if !ok {
		return
	}
	current := owner.Job
	if current.Status == db.StatusCancelled {
		errors.ErrInvalidData.Withf("job %s is cancelled", current.Reference).Write(w)
		return
	}
	update := &db.Job{
		Reference:  current.Reference,
		Vehicle:    req.Vehicle,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Status:     req.Status,
		Currency:   req.Currency,
		TotalCents: req.TotalCents,
	}
	if req.Flow != "" {
		flow, err := a.db.Flow(req.Flow)
		if err != nil {
			writeError(w, err, errors.ErrFlowNotFound)
			return
		}
		update.FlowID = flow.ID
	}
	if req.CustomerID != "" {
		customer, err := a.resolveCustomer(req.CustomerID, nil)
		if err != nil {
			writeError(w, err, errors.ErrCustomerNotFound)
			return
		}
		update.CustomerID = customer.ID
	}
	start, end := current.StartAt, current.EndAt
	if !update.StartAt.IsZero() {
		start = update.StartAt
	}
	if !update.EndAt.IsZero() {
		end = update.EndAt
	}
	if !end.After(start) {
		errors.ErrInvalidData.Withf("end must be after start").Write(w)
		return
	}
	if err := a.db.UpdateJob(update); err != nil {
		writeError(w, err, errors.ErrJobNotFound)
		return
	}
	updated, err := a.db.Owner(payments.OwnerJob, current.Reference)
	if err != nil {
		writeError(w, err, errors.ErrJobNotFound)
		return
	}
	info, err := a.jobInfo(updated)
	if err != nil {
		writeError(w, fmt.Errorf("job %s: %w", current.Reference, err), errors.ErrJobNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, info)
}

// jobPaymentsHandler godoc
//
//	@Summary	List the payments of a job
//	@Tags		payments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		reference	path		string	true	"Job reference"
//	@Success	200			{object}	apicommon.PaymentsResponse
//	@Failure	404			{object}	errors.Error
//	@Router		/admin/jobs/{reference}/payments [get]
func (a *API) jobPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	a.ownerPayments(w, r, payments.OwnerJob)
}

// addJobDepositHandler godoc
//
//	@Summary	Record an offline deposit on a job
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		reference	path		string					true	"Job reference"
//	@Param		request		body		apicommon.DepositRequest	true	"Deposit"
//	@Success	201			{object}	db.Deposit
//	@Failure	400			{object}	errors.Error
//	@Failure	404			{object}	errors.Error
//	@Router		/admin/jobs/{reference}/deposits [post]
func (a *API) addJobDepositHandler(w http.ResponseWriter, r *http.Request) {
	a.addOwnerDeposit(w, r, payments.OwnerJob)
}
