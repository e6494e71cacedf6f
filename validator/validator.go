// Package validator validates the request models of the API with
// go-playground/validator, adding the rules the back office needs.
package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/payments"
)

var (
	// currencyRegex matches an ISO 4217 code in either case.
	currencyRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)

	// slugRegex matches the flow slugs, lowercase words joined by dashes.
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Validator is a wrapper around the go-playground/validator package.
type Validator struct {
	validator *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	v := validator.New()

	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("currency", validateCurrency)
	_ = v.RegisterValidation("amount", validateAmount)
	_ = v.RegisterValidation("slug", validateSlug)

	return &Validator{
		validator: v,
	}
}

// Validate validates a struct using the validator package.
func (v *Validator) Validate(s any) error {
	return v.validator.Struct(s)
}

// validatePhone accepts any number the phone library can parse for the
// default country. Empty values pass, use required when needed.
func validatePhone(fl validator.FieldLevel) bool {
	phone := strings.TrimSpace(fl.Field().String())
	if phone == "" {
		return true
	}
	_, err := internal.SanitizeAndVerifyPhoneNumber(phone, internal.DefaultPhoneCountry)
	return err == nil
}

func validateCurrency(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	return currencyRegex.MatchString(fl.Field().String())
}

// validateAmount accepts a positive decimal amount in major units, e.g. "120.50".
func validateAmount(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	cents, err := payments.ParseAmount(fl.Field().String())
	return err == nil && cents > 0
}

func validateSlug(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	return slugRegex.MatchString(fl.Field().String())
}
