//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the caller's fault and return a
// 4xx status. Error codes in the 50001-59999 range are the server's fault and
// return a 5xx status. There is no correlation between Code and HTTP status.
//
// NEVER change an existing code, only append after the last 4XXX or 5XXX.
// Gaps are codes used in the past and must not be reused.
var (
	// Authentication errors (401)
	ErrUnauthorized       = Error{Code: 40001, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("authentication required"), LogLevel: "info"}
	ErrInvalidCredentials = Error{Code: 40002, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid email or password"), LogLevel: "info"}
	ErrInvalidPortalToken = Error{Code: 40003, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("portal link is not valid"), LogLevel: "info"}

	// Validation errors (400)
	ErrMalformedBody     = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid JSON request body")}
	ErrInvalidData       = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid data provided")}
	ErrInvalidAmount     = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid amount")}
	ErrNothingDue        = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("nothing left to pay"), LogLevel: "info"}
	ErrInvalidPaymentOp  = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("operation not allowed for the payment status")}
	ErrMalformedURLParam = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid URL parameter")}
	ErrFileNotSupported  = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("file type not supported")}
	ErrFileTooLarge      = Error{Code: 40012, HTTPstatus: http.StatusRequestEntityTooLarge, Err: fmt.Errorf("file too large")}
	ErrRequestClosed     = Error{Code: 40013, HTTPstatus: http.StatusGone, Err: fmt.Errorf("payment request is no longer payable"), LogLevel: "info"}

	// Not found errors (404)
	ErrBookingNotFound        = Error{Code: 40014, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("booking not found")}
	ErrCustomerNotFound       = Error{Code: 40015, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("customer not found")}
	ErrFlowNotFound           = Error{Code: 40016, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("flow not found")}
	ErrJobNotFound            = Error{Code: 40017, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("job not found")}
	ErrPaymentNotFound        = Error{Code: 40018, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("payment not found")}
	ErrPaymentRequestNotFound = Error{Code: 40019, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("payment request not found")}
	ErrImportRunNotFound      = Error{Code: 40020, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("import run not found")}
	ErrDocumentNotFound       = Error{Code: 40021, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("document not found")}
	ErrOwnerNotFound          = Error{Code: 40022, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("booking or job not found")}

	// Conflict errors (409)
	ErrDuplicateConflict = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("resource already exists")}
	ErrHasCaptured       = Error{Code: 40902, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("booking has captured payments")}
	ErrFlowInUse         = Error{Code: 40903, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("flow has jobs")}

	// Server errors (500)
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: operation failed"), LogLevel: "error"}
	ErrStripeError                = Error{Code: 50005, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: payment processing failed"), LogLevel: "error"}
	ErrInternalStorageError       = Error{Code: 50006, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: storage operation failed"), LogLevel: "error"}
	ErrStripeWebhookError         = Error{Code: 50008, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: stripe webhook failed"), LogLevel: "error"}
	ErrQueueFull                  = Error{Code: 50010, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("server busy: import queue is full"), LogLevel: "warn"}
	ErrReportFailed               = Error{Code: 50011, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: report generation failed"), LogLevel: "error"}
	ErrServiceNotConfigured       = Error{Code: 50012, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("server error: service not configured"), LogLevel: "warn"}
)
