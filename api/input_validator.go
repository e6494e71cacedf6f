package api

import (
	"encoding/json"
	"net/http"

	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/validator"
)

// validateInputModel is a middleware that validates the JSON body of the
// request against model. The validated instance is read by the handler with
// decodeModel.
func (a *API) validateInputModel(model any) func(http.Handler) http.Handler {
	addModel := a.validator.AddModelMiddleware(model)
	return func(next http.Handler) http.Handler {
		return addModel(a.validator.InputValidator(next))
	}
}

// decodeModel returns the model validated by validateInputModel. Requests
// that skipped the middleware, e.g. sent without a JSON content type, are
// decoded and validated here. On failure the error is written and false
// returned.
func decodeModel[T any](v *validator.Validator, w http.ResponseWriter, r *http.Request) (*T, bool) {
	if model, ok := validator.GetValidatedModel(r.Context()); ok {
		if t, ok := model.(*T); ok {
			return t, true
		}
	}
	t := new(T)
	if err := json.NewDecoder(r.Body).Decode(t); err != nil {
		errors.ErrMalformedBody.Write(w)
		return nil, false
	}
	if err := v.Validate(t); err != nil {
		errors.ErrInvalidData.WithErr(err).Write(w)
		return nil, false
	}
	return t, true
}
