package api

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"go.vocdoni.io/dvote/log"
)

func flowFromRequest(req *apicommon.FlowRequest) *db.Flow {
	return &db.Flow{
		Name:           req.Name,
		Slug:           req.Slug,
		Brand:          req.Brand,
		Currency:       strings.ToLower(req.Currency),
		DepositType:    req.DepositType,
		DepositValue:   req.DepositValue,
		BondCents:      req.BondCents,
		BalanceDueDays: req.BalanceDueDays,
	}
}

// listFlowsHandler godoc
//
//	@Summary	List flows
//	@Tags		jobs
//	@Produce	json
//	@Security	BearerAuth
//	@Param		page		query		integer	false	"Page number (default: 1)"
//	@Param		pageSize	query		integer	false	"Number of items per page (default: 20)"
//	@Success	200			{object}	apicommon.FlowsResponse
//	@Failure	401			{object}	errors.Error
//	@Router		/admin/flows [get]
func (a *API) listFlowsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := apicommon.PaginationFromRequest(r)
	totalPages, flows, err := a.db.Flows(page, pageSize)
	if err != nil {
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.FlowsResponse{
		TotalPages:  totalPages,
		CurrentPage: page,
		Flows:       flows,
	})
}

// createFlowHandler godoc
//
//	@Summary		Create a flow
//	@Description	Create the payment rules shared by the jobs of a flow. The slug must be unused.
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.FlowRequest	true	"Flow"
//	@Success		201		{object}	db.Flow
//	@Failure		400		{object}	errors.Error
//	@Failure		409		{object}	errors.Error
//	@Router			/admin/flows [post]
func (a *API) createFlowHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeModel[apicommon.FlowRequest](a.validator, w, r)
	if !ok {
		return
	}
	if _, err := a.db.Flow(req.Slug); err == nil {
		errors.ErrDuplicateConflict.Withf("flow %s already exists", req.Slug).Write(w)
		return
	}
	flow := flowFromRequest(req)
	if err := a.db.SetFlow(flow); err != nil {
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	log.Infow("flow created", "slug", flow.Slug)
	apicommon.HTTPWriteJSONStatus(w, http.StatusCreated, flow)
}

// flowHandler godoc
//
//	@Summary	Get a flow
//	@Tags		jobs
//	@Produce	json
//	@Security	BearerAuth
//	@Param		slug	path		string	true	"Flow slug"
//	@Success	200		{object}	db.Flow
//	@Failure	404		{object}	errors.Error
//	@Router		/admin/flows/{slug} [get]
func (a *API) flowHandler(w http.ResponseWriter, r *http.Request) {
	flow, err := a.db.Flow(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, flow)
}

// updateFlowHandler godoc
//
//	@Summary		Update a flow
//	@Description	Replace the rules of a flow. The slug in the body must match the path.
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			slug	path		string					true	"Flow slug"
//	@Param			request	body		apicommon.FlowRequest	true	"Flow"
//	@Success		200		{object}	db.Flow
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/admin/flows/{slug} [put]
func (a *API) updateFlowHandler(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(chi.URLParam(r, "slug"))
	req, ok := decodeModel[apicommon.FlowRequest](a.validator, w, r)
	if !ok {
		return
	}
	if req.Slug != slug {
		errors.ErrInvalidData.Withf("slug %q does not match %q", req.Slug, slug).Write(w)
		return
	}
	if _, err := a.db.Flow(slug); err != nil {
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	flow := flowFromRequest(req)
	if err := a.db.SetFlow(flow); err != nil {
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, flow)
}

// deleteFlowHandler godoc
//
//	@Summary		Delete a flow
//	@Description	Delete a flow without jobs
//	@Tags			jobs
//	@Security		BearerAuth
//	@Param			slug	path		string	true	"Flow slug"
//	@Success		200		{string}	string	"OK"
//	@Failure		404		{object}	errors.Error
//	@Failure		409		{object}	errors.Error
//	@Router			/admin/flows/{slug} [delete]
func (a *API) deleteFlowHandler(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := a.db.DelFlow(slug); err != nil {
		if stderrors.Is(err, db.ErrInUse) {
			errors.ErrFlowInUse.Write(w)
			return
		}
		writeError(w, err, errors.ErrFlowNotFound)
		return
	}
	log.Infow("flow deleted", "slug", slug)
	apicommon.HTTPWriteOK(w)
}
