package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/importer"
	"go.vocdoni.io/dvote/log"
)

const (
	// vevsTokenHeader carries the shared secret of the VEVS webhook
	vevsTokenHeader = "X-Vevs-Token"
	// maxVEVSWebhookBody bounds the size of a VEVS webhook payload
	maxVEVSWebhookBody = 1 << 20
	// backgroundImportTimeout bounds an import started from the API
	backgroundImportTimeout = 30 * time.Minute
)

// listImportRunsHandler godoc
//
//	@Summary	List import runs
//	@Tags		imports
//	@Produce	json
//	@Security	BearerAuth
//	@Param		source		query		string	false	"vevs or dreamdrives"
//	@Param		page		query		integer	false	"Page number (default: 1)"
//	@Param		pageSize	query		integer	false	"Number of items per page (default: 20)"
//	@Success	200			{object}	apicommon.ImportRunsResponse
//	@Failure	401			{object}	errors.Error
//	@Router		/admin/imports [get]
func (a *API) listImportRunsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := apicommon.PaginationFromRequest(r)
	totalPages, runs, err := a.db.ImportRuns(db.Source(r.URL.Query().Get("source")), page, pageSize)
	if err != nil {
		writeError(w, err, errors.ErrImportRunNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.ImportRunsResponse{
		TotalPages:  totalPages,
		CurrentPage: page,
		Runs:        runs,
	})
}

// importVEVSHandler godoc
//
//	@Summary		Import VEVS reservations
//	@Description	Start importing the VEVS reservations picking up in the range as bookings. The run
//	@Description	is returned right away and completes in the background, poll /admin/imports/{id}.
//	@Tags			imports
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.VEVSImportRequest	true	"Pickup range"
//	@Success		202		{object}	db.ImportRun
//	@Failure		400		{object}	errors.Error
//	@Failure		409		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Failure		503		{object}	errors.Error
//	@Router			/admin/imports/vevs [post]
func (a *API) importVEVSHandler(w http.ResponseWriter, r *http.Request) {
	if a.importer == nil {
		errors.ErrServiceNotConfigured.With("imports are not configured").Write(w)
		return
	}
	req, ok := decodeModel[apicommon.VEVSImportRequest](a.validator, w, r)
	if !ok {
		return
	}
	a.startImport(w, db.SourceVEVS, func(ctx context.Context, run *db.ImportRun) (*db.ImportRun, error) {
		return a.importer.ImportVEVS(ctx, run, req.From, req.To)
	})
}

// importDreamDrivesHandler godoc
//
//	@Summary		Import Dream Drives bookings
//	@Description	Start importing the Dream Drives bookings changed since the date as jobs. The run
//	@Description	is returned right away and completes in the background, poll /admin/imports/{id}.
//	@Tags			imports
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.DreamDrivesImportRequest	true	"Changed since"
//	@Success		202		{object}	db.ImportRun
//	@Failure		400		{object}	errors.Error
//	@Failure		409		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Failure		503		{object}	errors.Error
//	@Router			/admin/imports/dreamdrives [post]
func (a *API) importDreamDrivesHandler(w http.ResponseWriter, r *http.Request) {
	if a.importer == nil {
		errors.ErrServiceNotConfigured.With("imports are not configured").Write(w)
		return
	}
	req, ok := decodeModel[apicommon.DreamDrivesImportRequest](a.validator, w, r)
	if !ok {
		return
	}
	a.startImport(w, db.SourceDreamDrives, func(ctx context.Context, run *db.ImportRun) (*db.ImportRun, error) {
		return a.importer.ImportDreamDrives(ctx, run, req.Since)
	})
}

// startImport creates the run of source, answers it with 202 and runs
// fill in the background. Only one import per source runs at a time.
func (a *API) startImport(w http.ResponseWriter, source db.Source,
	fill func(context.Context, *db.ImportRun) (*db.ImportRun, error),
) {
	if _, busy := a.runningImports.LoadOrStore(source, true); busy {
		errors.ErrDuplicateConflict.Withf("a %s import is already running", source).Write(w)
		return
	}
	run, err := a.importer.NewRun(source)
	if err != nil {
		a.runningImports.Delete(source)
		writeError(w, err, errors.ErrImportRunNotFound)
		return
	}
	started := *run
	go func() {
		defer a.runningImports.Delete(source)
		ctx, cancel := context.WithTimeout(context.Background(), backgroundImportTimeout)
		defer cancel()
		if _, err := fill(ctx, run); err != nil {
			log.Warnw("import failed", "run", run.ID, "source", source, "error", err)
		}
	}()
	apicommon.HTTPWriteJSONStatus(w, http.StatusAccepted, &started)
}

// importRunHandler godoc
//
//	@Summary	Get an import run
//	@Tags		imports
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Import run ID"
//	@Success	200	{object}	db.ImportRun
//	@Failure	404	{object}	errors.Error
//	@Router		/admin/imports/{id} [get]
func (a *API) importRunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := a.db.ImportRun(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, errors.ErrImportRunNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, run)
}

// decodeVEVSPayload accepts a single reservation or a page of them under
// "data".
func decodeVEVSPayload(body []byte) ([]importer.VEVSReservation, error) {
	var page struct {
		Data []importer.VEVSReservation `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err == nil && page.Data != nil {
		return page.Data, nil
	}
	var single importer.VEVSReservation
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []importer.VEVSReservation{single}, nil
}

// vevsWebhookHandler godoc
//
//	@Summary		Receive VEVS reservations
//	@Description	Queue the reservations pushed by VEVS for upsert. The request must carry the shared
//	@Description	secret in the X-Vevs-Token header.
//	@Tags			imports
//	@Accept			json
//	@Produce		json
//	@Param			X-Vevs-Token	header		string	true	"Shared secret"
//	@Success		202				{object}	apicommon.QueuedResponse
//	@Failure		400				{object}	errors.Error
//	@Failure		401				{object}	errors.Error
//	@Failure		503				{object}	errors.Error
//	@Router			/webhooks/vevs [post]
func (a *API) vevsWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if a.importQueue == nil || a.vevsToken == "" {
		errors.ErrServiceNotConfigured.With("vevs webhook is not configured").Write(w)
		return
	}
	token := r.Header.Get(vevsTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.vevsToken)) != 1 {
		errors.ErrUnauthorized.Withf("invalid %s", vevsTokenHeader).Write(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVEVSWebhookBody))
	if err != nil {
		errors.ErrMalformedBody.With("could not read body").Write(w)
		return
	}
	reservations, err := decodeVEVSPayload(body)
	if err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	res := &apicommon.QueuedResponse{}
	for _, rsv := range reservations {
		if rsv.ID == "" {
			log.Warnw("vevs webhook reservation without id", "ref", rsv.RefID)
			continue
		}
		if err := a.importQueue.Push(rsv); err != nil {
			res.Pending = a.importQueue.Len()
			log.Warnw("vevs webhook rejected", "queued", res.Queued, "error", err)
			toAPIError(err, errors.ErrImportRunNotFound).WithData(res).Write(w)
			return
		}
		res.Queued++
	}
	if res.Queued == 0 {
		errors.ErrInvalidData.With("no reservation with an id").Write(w)
		return
	}
	res.Pending = a.importQueue.Len()
	log.Infow("vevs webhook queued", "queued", res.Queued, "pending", res.Pending)
	apicommon.HTTPWriteJSONStatus(w, http.StatusAccepted, res)
}
