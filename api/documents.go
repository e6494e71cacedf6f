package api

import (
	"net/http"
	"path"

	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/errors"
	"go.vocdoni.io/dvote/log"
)

// downloadDocumentHandler godoc
//
//	@Summary	Download a document
//	@Tags		bookings
//	@Produce	octet-stream
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Document ID"
//	@Success	200	{file}		binary
//	@Failure	404	{object}	errors.Error
//	@Router		/admin/documents/{id} [get]
func (a *API) downloadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if a.objectStorage == nil {
		errors.ErrServiceNotConfigured.With("document storage is not configured").Write(w)
		return
	}
	id, err := apicommon.ObjectIDFromRequest(r, "id")
	if err != nil {
		errors.ErrMalformedURLParam.Withf("invalid document id").Write(w)
		return
	}
	doc, data, err := a.objectStorage.Download(r.Context(), id)
	if err != nil {
		writeError(w, err, errors.ErrDocumentNotFound)
		return
	}
	name := doc.Name
	if name == "" {
		name = path.Base(doc.Key)
	}
	apicommon.HTTPWriteFile(w, doc.ContentType, name, data)
}

// deleteDocumentHandler godoc
//
//	@Summary	Delete a document
//	@Tags		bookings
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Document ID"
//	@Success	200	{string}	string	"OK"
//	@Failure	404	{object}	errors.Error
//	@Router		/admin/documents/{id} [delete]
func (a *API) deleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if a.objectStorage == nil {
		errors.ErrServiceNotConfigured.With("document storage is not configured").Write(w)
		return
	}
	id, err := apicommon.ObjectIDFromRequest(r, "id")
	if err != nil {
		errors.ErrMalformedURLParam.Withf("invalid document id").Write(w)
		return
	}
	if err := a.objectStorage.Delete(r.Context(), id); err != nil {
		writeError(w, err, errors.ErrDocumentNotFound)
		return
	}
	log.Infow("document deleted", "id", id.Hex())
	apicommon.HTTPWriteOK(w)
}
