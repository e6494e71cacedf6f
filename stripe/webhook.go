package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/metrics"
	"github.com/rentalhq/backoffice/payments"
	stripeapi "github.com/stripe/stripe-go/v81"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

// HandleWebhook verifies, dedupes and processes a webhook delivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := ValidateWebhookEvent(payload, signatureHeader, s.config.WebhookSecret)
	if err != nil {
		metrics.IncWebhook("unknown", "invalid_signature")
		return err
	}
	exists, err := s.events.EventExists(ctx, event.ID)
	if err != nil {
		log.Warnw("cannot check webhook event store", "event", event.ID, "error", err)
	}
	if exists {
		log.Debugw("stripe webhook: event already processed, skipping", "event", event.ID)
		metrics.IncWebhook(string(event.Type), "duplicate")
		return nil
	}
	if err := s.HandleEvent(ctx, event); err != nil {
		metrics.IncWebhook(string(event.Type), "error")
		return err
	}
	if err := s.events.MarkProcessed(ctx, event.ID); err != nil {
		log.Warnw("cannot mark webhook event processed", "event", event.ID, "error", err)
	}
	metrics.IncWebhook(string(event.Type), "ok")
	return nil
}

// HandleEvent dispatches an already verified event.
func (s *Service) HandleEvent(ctx context.Context, event *stripeapi.Event) error {
	switch event.Type {
	case stripeapi.EventTypePaymentIntentSucceeded,
		stripeapi.EventTypePaymentIntentProcessing,
		stripeapi.EventTypePaymentIntentPaymentFailed,
		stripeapi.EventTypePaymentIntentCanceled,
		stripeapi.EventTypePaymentIntentRequiresAction,
		stripeapi.EventTypePaymentIntentAmountCapturableUpdated:
		pi, err := parseEvent[stripeapi.PaymentIntent](event)
		if err != nil {
			return err
		}
		return s.handlePaymentIntent(ctx, pi)
	case stripeapi.EventTypeChargeRefunded:
		charge, err := parseEvent[stripeapi.Charge](event)
		if err != nil {
			return err
		}
		return s.handleChargeRefunded(ctx, charge)
	default:
		log.Debugw("ignoring stripe event", "type", event.Type, "event", event.ID)
		return nil
	}
}

func parseEvent[T any](event *stripeapi.Event) (*T, error) {
	if event.Data == nil {
		return nil, NewStripeError(CodeInvalidEvent, "event without data", nil)
	}
	var obj T
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return nil, NewStripeError(CodeInvalidEvent, fmt.Sprintf("cannot parse %s", event.Type), err)
	}
	return &obj, nil
}

func (s *Service) handlePaymentIntent(ctx context.Context, pi *stripeapi.PaymentIntent) error {
	p, err := s.repo.PaymentByIntentID(pi.ID)
	adopted := false
	switch {
	case errors.Is(err, db.ErrNotFound):
		if p, err = s.adopt(pi); err != nil || p == nil {
			return err
		}
		adopted = true
	case err != nil:
		return storageError(err)
	}
	unlock := s.lockManager.LockOwner(p.OwnerType, p.OwnerRef)
	defer unlock()
	if !adopted {
		// reload under the lock
		if p, err = s.repo.PaymentByIntentID(pi.ID); err != nil {
			return storageError(err)
		}
	}
	return s.reconcile(ctx, p, pi)
}

// adopt builds the payment row of an intent created outside this service,
// or whose row was lost, from its metadata. It returns nil when the intent
// does not belong to a known owner.
func (s *Service) adopt(pi *stripeapi.PaymentIntent) (*db.Payment, error) {
	ref := pi.Metadata[MetaReference]
	ownerType := payments.OwnerType(pi.Metadata[MetaOwnerType])
	kind := payments.Kind(pi.Metadata[MetaKind])
	if ref == "" || !ownerType.Valid() || !kind.Valid() {
		log.Warnw("payment intent without owner metadata, acknowledging", "intent", pi.ID)
		return nil, nil
	}
	if _, err := s.repo.Owner(ownerType, ref); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Warnw("payment intent of unknown owner", "intent", pi.ID, "reference", ref)
			return nil, ErrOwnerNotFound
		}
		return nil, storageError(err)
	}
	p := &db.Payment{
		ID:                    primitive.NewObjectID(),
		OwnerType:             ownerType,
		OwnerRef:              ref,
		Kind:                  kind,
		StripePaymentIntentID: pi.ID,
		Currency:              string(pi.Currency),
		RequestToken:          pi.Metadata[MetaRequestToken],
	}
	if id, err := primitive.ObjectIDFromHex(pi.Metadata[MetaPaymentID]); err == nil {
		p.ID = id
	}
	log.Infow("adopting payment intent", "intent", pi.ID, "owner", ref, "kind", kind)
	return p, nil
}

// reconcile applies the Stripe state of an intent to its payment and
// updates the owner. The caller holds the owner lock.
func (s *Service) reconcile(ctx context.Context, p *db.Payment, pi *stripeapi.PaymentIntent) error {
	before := p.Status
	if !applyIntent(p, pi) {
		log.Debugw("ignoring payment intent status regression", "payment", p.ID.Hex(),
			"stored", p.Status, "received", pi.Status)
		return nil
	}
	if err := s.repo.SetPayment(p); err != nil {
		return storageError(err)
	}
	return s.afterChange(ctx, p, before)
}

// applyIntent copies the state of pi into p unless that would regress its
// status. Refund states are tracked locally so a succeeded intent does not
// overwrite them.
func applyIntent(p *db.Payment, pi *stripeapi.PaymentIntent) bool {
	next := payments.Status(pi.Status)
	if p.Status.Collected() && next == payments.StatusSucceeded {
		next = p.Status
	}
	if !payments.Advance(p.Status, next) {
		return false
	}
	p.Status = next
	p.AmountCents = pi.Amount
	p.AmountCapturableCents = pi.AmountCapturable
	p.AmountReceivedCents = max(p.AmountReceivedCents, pi.AmountReceived)
	if pi.Currency != "" {
		p.Currency = string(pi.Currency)
	}
	if pi.CaptureMethod == stripeapi.PaymentIntentCaptureMethodManual {
		p.CaptureMethod = payments.CaptureManual
	} else if pi.CaptureMethod != "" {
		p.CaptureMethod = payments.CaptureAutomatic
	}
	switch {
	case pi.LastPaymentError != nil:
		p.LastError = pi.LastPaymentError.Msg
	case next == payments.StatusSucceeded:
		p.LastError = ""
	}
	return true
}

func (s *Service) handleChargeRefunded(ctx context.Context, charge *stripeapi.Charge) error {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		log.Debugw("refunded charge without payment intent", "charge", charge.ID)
		return nil
	}
	p, err := s.repo.PaymentByIntentID(charge.PaymentIntent.ID)
	if errors.Is(err, db.ErrNotFound) {
		log.Warnw("refund of unknown payment intent, acknowledging", "intent", charge.PaymentIntent.ID)
		return nil
	}
	if err != nil {
		return storageError(err)
	}
	unlock := s.lockManager.LockOwner(p.OwnerType, p.OwnerRef)
	defer unlock()
	if p, err = s.repo.PaymentByIntentID(charge.PaymentIntent.ID); err != nil {
		return storageError(err)
	}
	return s.applyRefunded(ctx, p, charge.AmountRefunded, charge.AmountCaptured)
}

// applyRefunded records the total refunded amount of a payment. The caller
// holds the owner lock.
func (s *Service) applyRefunded(ctx context.Context, p *db.Payment, refunded, captured int64) error {
	if refunded <= p.AmountRefundedCents {
		return nil
	}
	before := p.Status
	p.AmountReceivedCents = max(p.AmountReceivedCents, captured)
	next := payments.RefundStatus(p.AmountReceivedCents, refunded)
	if !payments.Advance(p.Status, next) {
		log.Debugw("ignoring refund on payment", "payment", p.ID.Hex(), "status", p.Status)
		return nil
	}
	p.AmountRefundedCents = min(refunded, p.AmountReceivedCents)
	p.Status = next
	if err := s.repo.SetPayment(p); err != nil {
		return storageError(err)
	}
	return s.afterChange(ctx, p, before)
}

// afterChange updates what the owner derives from its payments: the paid
// amount, confirmation, the bond status and the linked payment request.
func (s *Service) afterChange(ctx context.Context, p *db.Payment, before payments.Status) error {
	owner, err := s.repo.Owner(p.OwnerType, p.OwnerRef)
	if err != nil {
		return ownerError(err)
	}
	summary, err := s.Summary(owner)
	if err != nil {
		return err
	}
	if summary.PaidCents != owner.PaidCents {
		if err := s.repo.SetOwnerPaid(owner.Type, owner.Reference, summary.PaidCents); err != nil {
			return storageError(err)
		}
		owner.PaidCents = summary.PaidCents
	}
	if p.Kind == payments.KindBond {
		bond := payments.BondStatusFor(p.Record())
		if bond != owner.BondStatus {
			if err := s.repo.SetOwnerBondStatus(owner.Type, owner.Reference, bond); err != nil {
				return storageError(err)
			}
			owner.BondStatus = bond
		}
	}
	settled := p.Status == payments.StatusSucceeded && before != payments.StatusSucceeded
	if settled && p.Kind != payments.KindBond && owner.Status == db.StatusPending && summary.DepositSatisfied {
		confirmed, err := s.repo.ConfirmOwner(owner.Type, owner.Reference)
		if err != nil {
			return storageError(err)
		}
		if confirmed {
			owner.Status = db.StatusConfirmed
			log.Infow("owner confirmed by payment", "reference", owner.Reference, "payment", p.ID.Hex())
		}
	}
	if settled && p.RequestToken != "" {
		err := s.repo.SetPaymentRequestStatus(p.RequestToken, db.RequestPaid, p.ID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return storageError(err)
		}
	}
	if settled && s.onSettled != nil {
		s.onSettled(ctx, owner, p)
	}
	return nil
}
