// Package stripe collects booking and job payments through Stripe
// PaymentIntents and reconciles their state from webhook events.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/metrics"
	"github.com/rentalhq/backoffice/payments"
	stripeapi "github.com/stripe/stripe-go/v81"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

// Metadata keys set on every PaymentIntent.
const (
	MetaReference    = "reference"
	MetaOwnerType    = "owner_type"
	MetaKind         = "kind"
	MetaPaymentID    = "payment_id"
	MetaRequestToken = "request_token"
)

// SettledFunc is called once a payment reaches succeeded.
type SettledFunc func(ctx context.Context, owner *db.Owner, payment *db.Payment)

// Service provides the main business logic for Stripe operations
type Service struct {
	gateway     Gateway
	repo        Repository
	events      EventStore
	lockManager *LockManager
	config      *Config
	onSettled   SettledFunc
	now         func() time.Time
}

// NewService creates a new Stripe service
func NewService(config *Config, gateway Gateway, repo Repository, events EventStore) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if events == nil {
		events = NewMemoryEventStore(0)
	}
	return &Service{
		gateway:     gateway,
		repo:        repo,
		events:      events,
		lockManager: NewLockManager(),
		config:      config,
		now:         time.Now,
	}, nil
}

// OnSettled registers fn to be called when a payment succeeds.
func (s *Service) OnSettled(fn SettledFunc) {
	s.onSettled = fn
}

// IntentResult is what the payer needs to confirm a PaymentIntent.
type IntentResult struct {
	PaymentID       primitive.ObjectID `json:"paymentId"`
	PaymentIntentID string             `json:"paymentIntentId"`
	ClientSecret    string             `json:"clientSecret"`
	AmountCents     int64              `json:"amountCents"`
	Currency        string             `json:"currency"`
	Kind            payments.Kind      `json:"kind"`
	Action          payments.Action    `json:"action"`
	Status          payments.Status    `json:"status"`
}

// Summary folds the payment history of an owner.
func (s *Service) Summary(owner *db.Owner) (payments.Summary, error) {
	acct, err := owner.Account()
	if err != nil {
		return payments.Summary{}, fmt.Errorf("cannot build account of %s: %w", owner.Reference, err)
	}
	list, err := s.repo.PaymentsByOwner(owner.Type, owner.Reference)
	if err != nil {
		return payments.Summary{}, storageError(err)
	}
	records := make([]payments.Record, 0, len(list))
	for i := range list {
		records = append(records, list[i].Record())
	}
	deposits, err := s.repo.DepositAmounts(owner.Type, owner.Reference)
	if err != nil {
		return payments.Summary{}, storageError(err)
	}
	return payments.Summarize(acct, records, deposits), nil
}

// ChargeIntent prepares the PaymentIntent that collects the outstanding
// deposit or balance of a booking or job.
func (s *Service) ChargeIntent(ctx context.Context, t payments.OwnerType, reference string,
	kind payments.Kind,
) (*IntentResult, error) {
	if kind != payments.KindDeposit && kind != payments.KindBalance {
		return nil, fmt.Errorf("%w: %q", payments.ErrInvalidKind, kind)
	}
	unlock := s.lockManager.LockOwner(t, reference)
	defer unlock()
	owner, err := s.payableOwner(t, reference)
	if err != nil {
		return nil, err
	}
	return s.prepare(ctx, owner, "", func(summary payments.Summary) (*db.Payment, payments.Plan, error) {
		existing, err := s.latest(owner, kind)
		if err != nil {
			return nil, payments.Plan{}, err
		}
		plan, err := payments.PlanCharge(kind, summary, recordOf(existing))
		return existing, plan, err
	})
}

// HoldIntent prepares the manual-capture PaymentIntent that authorizes the
// bond of a booking or job.
func (s *Service) HoldIntent(ctx context.Context, t payments.OwnerType, reference string) (*IntentResult, error) {
	unlock := s.lockManager.LockOwner(t, reference)
	defer unlock()
	owner, err := s.payableOwner(t, reference)
	if err != nil {
		return nil, err
	}
	res, err := s.prepare(ctx, owner, "", func(summary payments.Summary) (*db.Payment, payments.Plan, error) {
		existing, err := s.latest(owner, payments.KindBond)
		if err != nil {
			return nil, payments.Plan{}, err
		}
		plan, err := payments.PlanHold(summary, recordOf(existing))
		return existing, plan, err
	})
	if err != nil {
		return nil, err
	}
	bond := payments.BondStatusFor(payments.Record{Kind: payments.KindBond, Status: res.Status})
	if bond == payments.BondNone {
		bond = payments.BondPending
	}
	if err := s.repo.SetOwnerBondStatus(owner.Type, owner.Reference, bond); err != nil {
		return nil, storageError(err)
	}
	return res, nil
}

// RequestIntent prepares the PaymentIntent that pays a payment request.
func (s *Service) RequestIntent(ctx context.Context, token string) (*IntentResult, error) {
	req, err := s.repo.PaymentRequest(token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, storageError(err)
	}
	if status := req.EffectiveStatus(s.now()); status != db.RequestPending {
		return nil, NewStripeError(CodeRequestClosed, "payment request is "+string(status), nil)
	}
	unlock := s.lockManager.LockOwner(req.OwnerType, req.OwnerRef)
	defer unlock()
	owner, err := s.payableOwner(req.OwnerType, req.OwnerRef)
	if err != nil {
		return nil, err
	}
	return s.prepare(ctx, owner, token, func(payments.Summary) (*db.Payment, payments.Plan, error) {
		existing, err := s.repo.LatestRequestPayment(token)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, payments.Plan{}, storageError(err)
		}
		plan, err := payments.PlanRequest(req.AmountCents, recordOf(existing))
		return existing, plan, err
	})
}

// planFunc returns the latest intent of the kind being prepared and the plan
// for it.
type planFunc func(summary payments.Summary) (*db.Payment, payments.Plan, error)

// prepare runs plan and applies it on Stripe. When the stored state of the
// intent to reuse is stale, the intent is reconciled and planned again.
// The caller holds the owner lock.
func (s *Service) prepare(ctx context.Context, owner *db.Owner, token string, plan planFunc) (*IntentResult, error) {
	for attempt := 0; ; attempt++ {
		summary, err := s.Summary(owner)
		if err != nil {
			return nil, err
		}
		existing, p, err := plan(summary)
		if err != nil {
			return nil, err
		}
		if p.Action == payments.ActionCreate {
			return s.createIntent(ctx, owner, p, existing, token)
		}
		pi, err := s.gateway.GetIntent(ctx, existing.StripePaymentIntentID)
		if err != nil {
			return nil, err
		}
		if attempt == 0 && payments.Status(pi.Status) != existing.Status {
			log.Debugw("stale payment intent state, reconciling",
				"payment", existing.ID.Hex(), "stored", existing.Status, "stripe", pi.Status)
			if err := s.reconcile(ctx, existing, pi); err != nil {
				return nil, err
			}
			continue
		}
		if p.Action == payments.ActionUpdate {
			key := internal.IdempotencyKey(existing.ID.Hex(), "update", strconv.FormatInt(p.AmountCents, 10))
			if pi, err = s.gateway.UpdateIntentAmount(ctx, pi.ID, p.AmountCents, key); err != nil {
				return nil, err
			}
			applyIntent(existing, pi)
			if err := s.repo.SetPayment(existing); err != nil {
				return nil, storageError(err)
			}
		}
		metrics.IncIntent(string(p.Kind), string(p.Action))
		log.Infow("payment intent prepared", "owner", owner.Reference, "kind", p.Kind,
			"action", p.Action, "amount", p.AmountCents, "intent", pi.ID)
		return intentResult(existing, pi, p.Action), nil
	}
}

func (s *Service) createIntent(ctx context.Context, owner *db.Owner, p payments.Plan, previous *db.Payment,
	token string,
) (*IntentResult, error) {
	currency := owner.Currency
	if currency == "" {
		currency = s.config.Currency
	}
	payment := &db.Payment{
		ID:            primitive.NewObjectID(),
		OwnerType:     owner.Type,
		OwnerRef:      owner.Reference,
		Kind:          p.Kind,
		CaptureMethod: p.CaptureMethod,
		AmountCents:   p.AmountCents,
		Currency:      currency,
		RequestToken:  token,
	}
	previousID := "first"
	if previous != nil {
		previousID = previous.ID.Hex()
	}
	customerID, email := s.stripeCustomer(ctx, owner)
	pi, err := s.gateway.CreateIntent(ctx, IntentParams{
		AmountCents:   p.AmountCents,
		Currency:      currency,
		CustomerID:    customerID,
		CaptureMethod: p.CaptureMethod,
		Description:   fmt.Sprintf("%s %s %s", owner.Reference, owner.Type, p.Kind),
		ReceiptEmail:  email,
		Metadata: map[string]string{
			MetaReference:    owner.Reference,
			MetaOwnerType:    string(owner.Type),
			MetaKind:         string(p.Kind),
			MetaPaymentID:    payment.ID.Hex(),
			MetaRequestToken: token,
		},
		IdempotencyKey: internal.IdempotencyKey(string(owner.Type), owner.Reference, string(p.Kind),
			strconv.FormatInt(p.AmountCents, 10), previousID, token),
	})
	if err != nil {
		return nil, err
	}
	if id, ok := pi.Metadata[MetaPaymentID]; ok && id != payment.ID.Hex() {
		// replayed create: Stripe returned the intent of an earlier attempt
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			payment.ID = oid
		}
	}
	payment.StripePaymentIntentID = pi.ID
	applyIntent(payment, pi)
	if err := s.repo.SetPayment(payment); err != nil {
		return nil, storageError(err)
	}
	metrics.IncIntent(string(p.Kind), string(payments.ActionCreate))
	log.Infow("payment intent created", "owner", owner.Reference, "kind", p.Kind,
		"amount", p.AmountCents, "intent", pi.ID)
	return intentResult(payment, pi, payments.ActionCreate), nil
}

// stripeCustomer returns the Stripe customer id and email of the owner's
// customer, registering the customer on Stripe the first time. Failures are
// logged and the intent is created without a customer.
func (s *Service) stripeCustomer(ctx context.Context, owner *db.Owner) (string, string) {
	if owner.CustomerID.IsZero() {
		return "", ""
	}
	customer, err := s.repo.Customer(owner.CustomerID)
	if err != nil {
		log.Warnw("cannot load customer", "customer", owner.CustomerID.Hex(), "error", err)
		return "", ""
	}
	if customer.StripeCustomerID != "" {
		return customer.StripeCustomerID, customer.Email
	}
	id, err := s.gateway.EnsureCustomer(ctx, CustomerInfo{
		Email: customer.Email,
		Name:  customer.FullName(),
		Phone: customer.Phone,
	})
	if err != nil {
		log.Warnw("cannot register stripe customer", "customer", customer.ID.Hex(), "error", err)
		return "", customer.Email
	}
	if err := s.repo.SetCustomer(&db.Customer{ID: customer.ID, StripeCustomerID: id}); err != nil {
		log.Warnw("cannot store stripe customer", "customer", customer.ID.Hex(), "error", err)
	}
	return id, customer.Email
}

// CaptureHold captures amountCents of an authorized bond. Zero captures the
// full authorization.
func (s *Service) CaptureHold(ctx context.Context, paymentID primitive.ObjectID, amountCents int64) (*db.Payment, error) {
	return s.withPayment(paymentID, func(p *db.Payment) error {
		amount, err := payments.ValidateCapture(p.Record(), amountCents)
		if err != nil {
			return err
		}
		key := internal.IdempotencyKey(p.ID.Hex(), "capture", strconv.FormatInt(amount, 10))
		pi, err := s.gateway.CaptureIntent(ctx, p.StripePaymentIntentID, amount, key)
		if err != nil {
			return err
		}
		log.Infow("hold captured", "payment", p.ID.Hex(), "owner", p.OwnerRef, "amount", amount)
		return s.reconcile(ctx, p, pi)
	})
}

// ReleaseHold cancels an authorized bond, or any intent still awaiting the
// payer.
func (s *Service) ReleaseHold(ctx context.Context, paymentID primitive.ObjectID) (*db.Payment, error) {
	return s.withPayment(paymentID, func(p *db.Payment) error {
		if err := payments.ValidateRelease(p.Record()); err != nil {
			return err
		}
		pi, err := s.gateway.CancelIntent(ctx, p.StripePaymentIntentID, internal.IdempotencyKey(p.ID.Hex(), "cancel"))
		if err != nil {
			return err
		}
		log.Infow("payment intent released", "payment", p.ID.Hex(), "owner", p.OwnerRef)
		return s.reconcile(ctx, p, pi)
	})
}

// Refund refunds amountCents of a collected payment. Zero refunds the
// remainder.
func (s *Service) Refund(ctx context.Context, paymentID primitive.ObjectID, amountCents int64) (*db.Payment, error) {
	return s.withPayment(paymentID, func(p *db.Payment) error {
		amount, err := payments.ValidateRefund(p.Record(), amountCents)
		if err != nil {
			return err
		}
		key := internal.IdempotencyKey(p.ID.Hex(), "refund", strconv.FormatInt(amount, 10),
			strconv.FormatInt(p.AmountRefundedCents, 10))
		if _, err := s.gateway.Refund(ctx, p.StripePaymentIntentID, amount, key); err != nil {
			return err
		}
		log.Infow("payment refunded", "payment", p.ID.Hex(), "owner", p.OwnerRef, "amount", amount)
		return s.applyRefunded(ctx, p, p.AmountRefundedCents+amount, 0)
	})
}

// SyncPayment fetches the intent of a payment from Stripe and reconciles it.
func (s *Service) SyncPayment(ctx context.Context, paymentID primitive.ObjectID) (*db.Payment, error) {
	return s.withPayment(paymentID, func(p *db.Payment) error {
		pi, err := s.gateway.GetIntent(ctx, p.StripePaymentIntentID)
		if err != nil {
			return err
		}
		return s.reconcile(ctx, p, pi)
	})
}

// CloseOwner cancels a booking or job. Owners with collected payments are
// refused with db.ErrInUse; open intents are canceled on Stripe first.
func (s *Service) CloseOwner(ctx context.Context, t payments.OwnerType, reference string) error {
	unlock := s.lockManager.LockOwner(t, reference)
	defer unlock()
	if _, err := s.repo.Owner(t, reference); err != nil {
		return ownerError(err)
	}
	captured, err := s.repo.HasCapturedPayments(t, reference)
	if err != nil {
		return storageError(err)
	}
	if captured {
		return fmt.Errorf("%s has captured payments: %w", reference, db.ErrInUse)
	}
	open, err := s.repo.OpenPayments(t, reference)
	if err != nil {
		return storageError(err)
	}
	for i := range open {
		p := &open[i]
		if p.Status == payments.StatusProcessing {
			return fmt.Errorf("%w: payment %s is processing", payments.ErrInvalidState, p.ID.Hex())
		}
		pi, err := s.gateway.CancelIntent(ctx, p.StripePaymentIntentID, internal.IdempotencyKey(p.ID.Hex(), "cancel"))
		if err != nil {
			return err
		}
		if err := s.reconcile(ctx, p, pi); err != nil {
			return err
		}
	}
	if err := s.repo.SetOwnerStatus(t, reference, db.StatusCancelled); err != nil {
		return storageError(err)
	}
	log.Infow("owner cancelled", "type", t, "reference", reference, "canceledIntents", len(open))
	return nil
}

// Reconcile refreshes the paid amount of an owner after an offline deposit
// was recorded, confirming a pending owner once its deposit is covered.
func (s *Service) Reconcile(_ context.Context, t payments.OwnerType, reference string) (payments.Summary, error) {
	unlock := s.lockManager.LockOwner(t, reference)
	defer unlock()
	owner, err := s.repo.Owner(t, reference)
	if err != nil {
		return payments.Summary{}, ownerError(err)
	}
	summary, err := s.Summary(owner)
	if err != nil {
		return payments.Summary{}, err
	}
	if summary.PaidCents != owner.PaidCents {
		if err := s.repo.SetOwnerPaid(t, reference, summary.PaidCents); err != nil {
			return payments.Summary{}, storageError(err)
		}
	}
	if owner.Status == db.StatusPending && summary.DepositSatisfied {
		confirmed, err := s.repo.ConfirmOwner(t, reference)
		if err != nil {
			return payments.Summary{}, storageError(err)
		}
		if confirmed {
			log.Infow("owner confirmed by deposit", "reference", reference)
		}
	}
	return summary, nil
}

// withPayment loads a payment and runs fn holding the lock of its owner.
func (s *Service) withPayment(id primitive.ObjectID, fn func(p *db.Payment) error) (*db.Payment, error) {
	p, err := s.repo.Payment(id)
	if err != nil {
		return nil, err
	}
	unlock := s.lockManager.LockOwner(p.OwnerType, p.OwnerRef)
	defer unlock()
	// reload under the lock
	if p, err = s.repo.Payment(id); err != nil {
		return nil, err
	}
	if p.StripePaymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment has no intent", payments.ErrInvalidState)
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) payableOwner(t payments.OwnerType, reference string) (*db.Owner, error) {
	owner, err := s.repo.Owner(t, reference)
	if err != nil {
		return nil, ownerError(err)
	}
	if owner.Status == db.StatusCancelled {
		return nil, fmt.Errorf("%w: %s is cancelled", payments.ErrInvalidState, reference)
	}
	return owner, nil
}

func (s *Service) latest(owner *db.Owner, kind payments.Kind) (*db.Payment, error) {
	p, err := s.repo.LatestPayment(owner.Type, owner.Reference, kind)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err)
	}
	return p, nil
}

func recordOf(p *db.Payment) *payments.Record {
	if p == nil {
		return nil
	}
	r := p.Record()
	return &r
}

func intentResult(p *db.Payment, pi *stripeapi.PaymentIntent, action payments.Action) *IntentResult {
	return &IntentResult{
		PaymentID:       p.ID,
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		Kind:            p.Kind,
		Action:          action,
		Status:          p.Status,
	}
}

func ownerError(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrOwnerNotFound
	}
	return storageError(err)
}

func storageError(err error) error {
	return NewStripeError(CodeStorageFailed, "storage operation failed", err)
}
