package stripe

import (
	"errors"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v81"
)

// StripeError represents a Stripe-specific error
type StripeError struct {
	Code    string
	Message string
	Type    string
	Err     error
}

func (e *StripeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stripe error [%s]: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("stripe error [%s]: %s", e.Code, e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.Err
}

// Is matches errors by code so wrapped sentinel values compare equal.
func (e *StripeError) Is(target error) bool {
	t, ok := target.(*StripeError)
	return ok && t.Code == e.Code
}

const (
	CodeInvalidEvent      = "invalid_event"
	CodeWebhookValidation = "webhook_validation"
	CodeOwnerNotFound     = "owner_not_found"
	CodeRequestNotFound   = "request_not_found"
	CodeRequestClosed     = "request_closed"
	CodeAPICallFailed     = "api_call_failed"
	CodeStorageFailed     = "storage_failed"
)

// Common Stripe errors
var (
	ErrInvalidEvent      = &StripeError{Code: CodeInvalidEvent, Message: "invalid webhook event"}
	ErrWebhookValidation = &StripeError{Code: CodeWebhookValidation, Message: "webhook signature validation failed"}
	ErrOwnerNotFound     = &StripeError{Code: CodeOwnerNotFound, Message: "booking or job not found"}
	ErrRequestNotFound   = &StripeError{Code: CodeRequestNotFound, Message: "payment request not found"}
	ErrRequestClosed     = &StripeError{Code: CodeRequestClosed, Message: "payment request is no longer payable"}
)

// NewStripeError creates a new StripeError with the given code, message, and underlying error
func NewStripeError(code, message string, err error) *StripeError {
	se := &StripeError{
		Code:    code,
		Message: message,
		Err:     err,
	}
	var apiErr *stripeapi.Error
	if errors.As(err, &apiErr) {
		se.Type = string(apiErr.Type)
	}
	return se
}

// IsRetryableError reports whether err is transient: a storage failure or a
// Stripe call that failed on the network, was rate limited or hit a 5xx.
func IsRetryableError(err error) bool {
	var stripeErr *StripeError
	if !errors.As(err, &stripeErr) {
		return false
	}
	switch stripeErr.Code {
	case CodeAPICallFailed, CodeStorageFailed:
		var apiErr *stripeapi.Error
		if errors.As(stripeErr.Err, &apiErr) {
			return apiErr.HTTPStatusCode == 0 || apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
		}
		return true
	default:
		return false
	}
}
