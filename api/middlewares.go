package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// adminClaim is the JWT claim holding the admin user ID.
const adminClaim = "adminId"

// authenticator is a middleware that authenticates the admin. It decodes the
// admin identifier from the JWT token, gets the user from the database and
// adds it to the request context before passing it to the next handler.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			errors.ErrUnauthorized.Write(w)
			return
		}
		if token == nil || jwt.Validate(token, jwt.WithRequiredClaim(adminClaim)) != nil {
			errors.ErrUnauthorized.Withf("%s claim not found in JWT token", adminClaim).Write(w)
			return
		}
		rawID, _ := claims[adminClaim].(string)
		id, err := primitive.ObjectIDFromHex(rawID)
		if err != nil {
			errors.ErrUnauthorized.Withf("invalid %s claim", adminClaim).Write(w)
			return
		}
		user, err := a.db.User(id)
		if err != nil {
			if err == db.ErrNotFound {
				errors.ErrUnauthorized.Withf("user not found").Write(w)
				return
			}
			errors.ErrGenericInternalServerError.Withf("could not retrieve user from database: %v", err).Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), apicommon.AdminMetadataKey, *user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// metricsMiddleware counts the served requests by route pattern and status
// class. Unmatched paths are counted under a single label.
func (a *API) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.IncHTTP(route, fmt.Sprintf("%dxx", status/100))
	})
}
