package validator

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rentalhq/backoffice/errors"
	"go.vocdoni.io/dvote/log"
)

// context keys of the expected model and of the decoded instance
type (
	ModelKey          struct{}
	ValidatedModelKey struct{}
)

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned as the error data of ErrInvalidData.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, ", ")
}

// AddModelMiddleware stores the model the next InputValidator decodes into.
func (v *Validator) AddModelMiddleware(model any) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ModelKey{}, model)))
		})
	}
}

// hasJSONBody reports whether r is a request the validator should decode.
func hasJSONBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodDelete:
		return false
	}
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// InputValidator decodes the JSON body into a new instance of the model in
// the context and validates it. The instance is stored in the context and the
// body is left readable for the handler. Requests without a model, without a
// JSON body or with an empty body pass through untouched.
func (v *Validator) InputValidator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		model := r.Context().Value(ModelKey{})
		if model == nil || !hasJSONBody(r) {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			errors.ErrMalformedBody.Write(w)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if len(bytes.TrimSpace(body)) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		instance := reflect.New(reflect.TypeOf(model)).Interface()
		if err := json.Unmarshal(body, instance); err != nil {
			errors.ErrMalformedBody.Write(w)
			return
		}
		if err := v.validator.Struct(instance); err != nil {
			ve, ok := fieldErrors(err)
			if !ok {
				errors.ErrInvalidData.WithErr(err).Write(w)
				return
			}
			log.Debugw("request rejected by validation", "path", r.URL.Path, "errors", ve.Error())
			errors.ErrInvalidData.WithErr(ve).Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ValidatedModelKey{}, instance)))
	})
}

// fieldErrors converts the validator errors into ValidationErrors.
func fieldErrors(err error) (ValidationErrors, bool) {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return nil, false
	}
	ve := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		ve = append(ve, ValidationError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return ve, true
}

// GetValidatedModel returns the instance decoded by InputValidator, a
// pointer to the model type.
func GetValidatedModel(ctx context.Context) (any, bool) {
	model := ctx.Value(ValidatedModelKey{})
	return model, model != nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "url":
		return "Invalid URL format"
	case "phone":
		return "Invalid phone number"
	case "currency":
		return "Must be a 3 letter currency code"
	case "amount":
		return "Must be a positive amount such as 120.50"
	case "slug":
		return "Only lowercase letters, digits and dashes"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "gtfield", "gtefield":
		return "Must be after " + fe.Param()
	default:
		return "Invalid value: " + fe.Tag()
	}
}
