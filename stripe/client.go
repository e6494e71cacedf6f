package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentalhq/backoffice/internal"
	stripeapi "github.com/stripe/stripe-go/v81"
	stripeclient "github.com/stripe/stripe-go/v81/client"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

// Client wraps the Stripe API client. Every mutating call carries an
// idempotency key so retried requests never charge twice.
type Client struct {
	config *Config
	api    *stripeclient.API
}

// NewClient creates a new Stripe client with the given configuration
func NewClient(config *Config) *Client {
	api := &stripeclient.API{}
	api.Init(config.APIKey, nil)
	return &Client{config: config, api: api}
}

// ValidateWebhookEvent validates and parses a webhook event
func ValidateWebhookEvent(payload []byte, signatureHeader, secret string) (*stripeapi.Event, error) {
	event, err := stripewebhook.ConstructEventWithOptions(payload, signatureHeader, secret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, NewStripeError(CodeWebhookValidation, "webhook signature validation failed", err)
	}
	return &event, nil
}

// CreateIntent creates a PaymentIntent with automatic payment methods.
func (c *Client) CreateIntent(ctx context.Context, p IntentParams) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(p.AmountCents),
		Currency: stripeapi.String(p.Currency),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)
	if p.CaptureMethod != "" {
		params.CaptureMethod = stripeapi.String(string(p.CaptureMethod))
	}
	if p.CustomerID != "" {
		params.Customer = stripeapi.String(p.CustomerID)
	}
	if p.Description != "" {
		params.Description = stripeapi.String(p.Description)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripeapi.String(p.ReceiptEmail)
	}
	if c.config.StatementDescriptor != "" {
		params.StatementDescriptorSuffix = stripeapi.String(c.config.StatementDescriptor)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, NewStripeError(CodeAPICallFailed, "failed to create payment intent", err)
	}
	return pi, nil
}

// GetIntent retrieves a PaymentIntent by id.
func (c *Client) GetIntent(ctx context.Context, id string) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, NewStripeError(CodeAPICallFailed, "failed to get payment intent", err)
	}
	return pi, nil
}

// UpdateIntentAmount changes the amount of an unconfirmed PaymentIntent.
func (c *Client) UpdateIntentAmount(ctx context.Context, id string, amountCents int64,
	idempotencyKey string,
) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{Amount: stripeapi.Int64(amountCents)}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	pi, err := c.api.PaymentIntents.Update(id, params)
	if err != nil {
		return nil, NewStripeError(CodeAPICallFailed, "failed to update payment intent", err)
	}
	return pi, nil
}

// CaptureIntent captures amountCents of an authorized PaymentIntent.
func (c *Client) CaptureIntent(ctx context.Context, id string, amountCents int64,
	idempotencyKey string,
) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentCaptureParams{}
	if amountCents > 0 {
		params.AmountToCapture = stripeapi.Int64(amountCents)
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	pi, err := c.api.PaymentIntents.Capture(id, params)
	if err != nil {
		return nil, NewStripeError(CodeAPICallFailed, "failed to capture payment intent", err)
	}
	return pi, nil
}

// CancelIntent cancels a PaymentIntent, releasing any authorization.
func (c *Client) CancelIntent(ctx context.Context, id string, idempotencyKey string) (*stripeapi.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	pi, err := c.api.PaymentIntents.Cancel(id, params)
	if err != nil {
		return nil, NewStripeError(CodeAPICallFailed, "failed to cancel payment intent", err)
	}
	return pi, nil
}

// Refund refunds amountCents of a collected PaymentIntent.
func (c *Client) Refund(ctx context.Context, intentID string, amountCents int64,
	idempotencyKey string,
) (*stripeapi.Refund, error) {
	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(intentID),
		Amount:        stripeapi.Int64(amountCents),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, NewStripeError(CodeAPICallFailed, "failed to refund payment intent", err)
	}
	return r, nil
}

// EnsureCustomer returns the id of the Stripe customer with the given email,
// creating it when none exists.
func (c *Client) EnsureCustomer(ctx context.Context, info CustomerInfo) (string, error) {
	if info.Email != "" {
		search := &stripeapi.CustomerSearchParams{}
		search.Context = ctx
		search.Query = fmt.Sprintf("email:'%s'", strings.ReplaceAll(info.Email, "'", `\'`))
		search.Limit = stripeapi.Int64(1)
		iter := c.api.Customers.Search(search)
		if iter.Next() {
			return iter.Customer().ID, nil
		}
		if err := iter.Err(); err != nil {
			return "", NewStripeError(CodeAPICallFailed, "failed to search customer", err)
		}
	}
	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	params.SetIdempotencyKey(internal.IdempotencyKey("customer", info.Email, info.Phone))
	if info.Email != "" {
		params.Email = stripeapi.String(info.Email)
	}
	if info.Name != "" {
		params.Name = stripeapi.String(info.Name)
	}
	if info.Phone != "" {
		params.Phone = stripeapi.String(info.Phone)
	}
	customer, err := c.api.Customers.New(params)
	if err != nil {
		return "", NewStripeError(CodeAPICallFailed, "failed to create customer", err)
	}
	return customer.ID, nil
}
