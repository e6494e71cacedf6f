package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/importer"
	"github.com/rentalhq/backoffice/objectstorage"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/stripe"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// buildLoginResponse creates a JWT token for the given admin identifier.
// The token is signed with the API secret (HS256).
// The token is valid for the period specified on jwtExpiration constant.
func (a *API) buildLoginResponse(id primitive.ObjectID) (*apicommon.LoginResponse, error) {
	j := jwt.New()
	if err := j.Set(adminClaim, id.Hex()); err != nil {
		return nil, err
	}
	exp := a.now().Add(jwtExpiration)
	if err := j.Set(jwt.ExpirationKey, exp); err != nil {
		return nil, err
	}
	jmap, err := j.AsMap(context.Background())
	if err != nil {
		return nil, err
	}
	_, token, err := a.auth.Encode(jmap)
	if err != nil {
		return nil, err
	}
	return &apicommon.LoginResponse{Token: token, Expirity: exp}, nil
}

// portalLink is the customer link of a portal token.
func (a *API) portalLink(token string) string {
	return fmt.Sprintf("%s/portal/%s", a.portalURL, url.PathEscape(token))
}

// payLink is the customer link of a payment request.
func (a *API) payLink(token string) string {
	return fmt.Sprintf("%s/pay/%s", a.portalURL, url.PathEscape(token))
}

// brandOf returns the brand shown to the customer of owner.
func (a *API) brandOf(owner *db.Owner) string {
	if owner != nil && owner.Flow != nil && owner.Flow.Brand != "" {
		return owner.Flow.Brand
	}
	return a.brand
}

// summaryOf folds the payments of owner, returning nil when it cannot be
// computed.
func (a *API) summaryOf(owner *db.Owner) (*apicommon.SummaryInfo, error) {
	if a.payments == nil {
		return nil, nil
	}
	s, err := a.payments.Summary(owner)
	if err != nil {
		return nil, err
	}
	return apicommon.SummaryFromPayments(s), nil
}

// parseTimeParam parses an optional RFC 3339 query parameter.
func parseTimeParam(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

// writeError translates the errors of the domain packages into API errors.
// notFound is written for db.ErrNotFound.
func writeError(w http.ResponseWriter, err error, notFound errors.Error) {
	toAPIError(err, notFound).Write(w)
}

func toAPIError(err error, notFound errors.Error) errors.Error {
	var apiErr errors.Error
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	var stripeErr *stripe.StripeError
	if stderrors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.CodeOwnerNotFound:
			return errors.ErrOwnerNotFound
		case stripe.CodeRequestNotFound:
			return errors.ErrPaymentRequestNotFound
		case stripe.CodeRequestClosed:
			return errors.ErrRequestClosed
		case stripe.CodeWebhookValidation, stripe.CodeInvalidEvent:
			return errors.ErrInvalidData.WithErr(err)
		}
	}
	switch {
	case stderrors.Is(err, payments.ErrNothingDue):
		return errors.ErrNothingDue
	case stderrors.Is(err, payments.ErrInvalidAmount):
		return errors.ErrInvalidAmount.WithErr(err)
	case stderrors.Is(err, payments.ErrInvalidState), stderrors.Is(err, payments.ErrAlreadyCharged):
		return errors.ErrInvalidPaymentOp.WithErr(err)
	case stderrors.Is(err, payments.ErrInvalidKind):
		return errors.ErrInvalidData.WithErr(err)
	case stderrors.Is(err, db.ErrInUse):
		return errors.ErrHasCaptured.WithErr(err)
	case stderrors.Is(err, db.ErrNotFound):
		return notFound
	case stderrors.Is(err, db.ErrInvalidData):
		return errors.ErrInvalidData.WithErr(err)
	case stderrors.Is(err, db.ErrAlreadyExists):
		return errors.ErrDuplicateConflict.WithErr(err)
	case stderrors.Is(err, objectstorage.ErrObjectNotFound):
		return errors.ErrDocumentNotFound
	case stderrors.Is(err, objectstorage.ErrFileTypeNotSupported):
		return errors.ErrFileNotSupported
	case stderrors.Is(err, objectstorage.ErrTooLarge):
		return errors.ErrFileTooLarge
	case stderrors.Is(err, objectstorage.ErrEmpty):
		return errors.ErrInvalidData.With("empty file")
	case stderrors.Is(err, importer.ErrQueueFull):
		return errors.ErrQueueFull
	case stderrors.Is(err, importer.ErrFeedNotConfigured):
		return errors.ErrServiceNotConfigured.WithErr(err)
	}
	if stripeErr != nil {
		switch stripeErr.Code {
		case stripe.CodeAPICallFailed:
			return errors.ErrStripeError.WithErr(err)
		case stripe.CodeStorageFailed:
			return errors.ErrInternalStorageError.WithErr(err)
		}
	}
	return errors.ErrGenericInternalServerError.WithErr(err)
}
