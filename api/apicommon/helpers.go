package apicommon

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rentalhq/backoffice/db"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

// AdminFromContext retrieves the admin user from the context provided,
// expected to be the context of a request handled by the authenticator
// middleware.
func AdminFromContext(ctx context.Context) (*db.User, bool) {
	rawUser, ok := ctx.Value(AdminMetadataKey).(db.User)
	if ok {
		return &rawUser, ok
	}
	return nil, false
}

// ObjectIDFromRequest parses the URL parameter named key as an ObjectID.
func ObjectIDFromRequest(r *http.Request, key string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, key))
}

// PaginationFromRequest reads the page and pageSize query parameters. Missing
// or invalid values fall back to the first page and DefaultPageSize.
func PaginationFromRequest(r *http.Request) (page, pageSize int) {
	page, pageSize = 1, DefaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && v > 0 {
		pageSize = min(v, MaxPageSize)
	}
	return page, pageSize
}

// HTTPWriteJSON helper function allows to write a JSON response.
func HTTPWriteJSON(w http.ResponseWriter, data any) {
	HTTPWriteJSONStatus(w, http.StatusOK, data)
}

// HTTPWriteJSONStatus writes data as JSON with the given status code.
func HTTPWriteJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnw("failed to encode response", "error", err)
	}
}

// HTTPWriteOK helper function allows to write an OK response.
func HTTPWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// HTTPWriteFile writes a binary attachment with its content type.
func HTTPWriteFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}
