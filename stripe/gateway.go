package stripe

import (
	"context"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	stripeapi "github.com/stripe/stripe-go/v81"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IntentParams describes a PaymentIntent to create.
type IntentParams struct {
	AmountCents    int64
	Currency       string
	CustomerID     string
	CaptureMethod  payments.CaptureMethod
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// CustomerInfo is what Stripe is told about a customer.
type CustomerInfo struct {
	Email string
	Name  string
	Phone string
}

// Gateway is the subset of the Stripe API the service calls. Client
// implements it against Stripe.
type Gateway interface {
	CreateIntent(ctx context.Context, params IntentParams) (*stripeapi.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*stripeapi.PaymentIntent, error)
	UpdateIntentAmount(ctx context.Context, id string, amountCents int64, idempotencyKey string) (*stripeapi.PaymentIntent, error)
	CaptureIntent(ctx context.Context, id string, amountCents int64, idempotencyKey string) (*stripeapi.PaymentIntent, error)
	CancelIntent(ctx context.Context, id string, idempotencyKey string) (*stripeapi.PaymentIntent, error)
	Refund(ctx context.Context, intentID string, amountCents int64, idempotencyKey string) (*stripeapi.Refund, error)
	EnsureCustomer(ctx context.Context, info CustomerInfo) (string, error)
}

// Repository is the storage used by the service. *db.MongoStorage
// implements it.
type Repository interface {
	Owner(t payments.OwnerType, reference string) (*db.Owner, error)
	SetOwnerPaid(t payments.OwnerType, reference string, paidCents int64) error
	SetOwnerBondStatus(t payments.OwnerType, reference string, status payments.BondStatus) error
	SetOwnerStatus(t payments.OwnerType, reference string, status db.BookingStatus) error
	ConfirmOwner(t payments.OwnerType, reference string) (bool, error)

	Customer(id primitive.ObjectID) (*db.Customer, error)
	SetCustomer(customer *db.Customer) error

	SetPayment(p *db.Payment) error
	Payment(id primitive.ObjectID) (*db.Payment, error)
	PaymentByIntentID(intentID string) (*db.Payment, error)
	PaymentsByOwner(t payments.OwnerType, reference string) ([]db.Payment, error)
	LatestPayment(t payments.OwnerType, reference string, kind payments.Kind) (*db.Payment, error)
	LatestRequestPayment(token string) (*db.Payment, error)
	HasCapturedPayments(t payments.OwnerType, reference string) (bool, error)
	OpenPayments(t payments.OwnerType, reference string) ([]db.Payment, error)
	DepositAmounts(t payments.OwnerType, reference string) ([]int64, error)

	PaymentRequest(token string) (*db.PaymentRequest, error)
	SetPaymentRequestStatus(token string, status db.RequestStatus, paymentID primitive.ObjectID) error
}

var _ Repository = (*db.MongoStorage)(nil)
