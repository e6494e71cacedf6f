package payments

import (
	"fmt"
)

var (
	ErrNothingDue     = fmt.Errorf("nothing due")
	ErrInvalidAmount  = fmt.Errorf("invalid amount")
	ErrInvalidState   = fmt.Errorf("operation not allowed in the current payment state")
	ErrInvalidKind    = fmt.Errorf("invalid payment kind")
	ErrAlreadyCharged = fmt.Errorf("bond already captured")
)

// Action tells the caller what to do with the PaymentIntent.
type Action string

const (
	ActionCreate Action = "create"
	ActionReuse  Action = "reuse"
	ActionUpdate Action = "update"
)

// Plan is the decision taken for the next charge.
type Plan struct {
	Action        Action
	Kind          Kind
	AmountCents   int64
	CaptureMethod CaptureMethod
}

// PlanCharge decides how to collect the outstanding deposit or balance given
// the latest intent of the same kind, if any.
func PlanCharge(kind Kind, s Summary, existing *Record) (Plan, error) {
	var amount int64
	switch kind {
	case KindDeposit:
		amount = s.DepositOutstandingCents
	case KindBalance:
		amount = s.BalanceCents
	default:
		return Plan{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return planIntent(kind, amount, CaptureAutomatic, existing)
}

// PlanRequest decides how to collect an ad-hoc payment request amount.
func PlanRequest(amount int64, existing *Record) (Plan, error) {
	return planIntent(KindRequest, amount, CaptureAutomatic, existing)
}

// PlanHold decides how to authorize the bond. An authorization cannot be
// raised, so an intent already in requires_capture is always reused.
func PlanHold(s Summary, existing *Record) (Plan, error) {
	bond := s.Account.BondCents
	if bond <= 0 {
		return Plan{}, ErrNothingDue
	}
	if existing != nil {
		switch {
		case existing.Status == StatusRequiresCapture:
			return Plan{Action: ActionReuse, Kind: KindBond, AmountCents: existing.AmountCents, CaptureMethod: CaptureManual}, nil
		case existing.Status.Collected():
			return Plan{}, ErrAlreadyCharged
		}
	}
	return planIntent(KindBond, bond, CaptureManual, existing)
}

func planIntent(kind Kind, amount int64, method CaptureMethod, existing *Record) (Plan, error) {
	if amount <= 0 {
		return Plan{}, ErrNothingDue
	}
	p := Plan{Action: ActionCreate, Kind: kind, AmountCents: amount, CaptureMethod: method}
	if existing == nil {
		return p, nil
	}
	switch {
	case existing.Status == StatusProcessing:
		// never open a parallel intent while one is in flight
		p.Action = ActionReuse
		p.AmountCents = existing.AmountCents
	case existing.Status.Updatable():
		if existing.AmountCents == amount {
			p.Action = ActionReuse
		} else {
			p.Action = ActionUpdate
		}
	}
	return p, nil
}

// ValidateCapture checks a hold can be captured and returns the amount to
// capture. Zero means the full capturable amount.
func ValidateCapture(p Record, amount int64) (int64, error) {
	if p.CaptureMethod != CaptureManual || p.Status != StatusRequiresCapture {
		return 0, fmt.Errorf("%w: cannot capture a %s payment", ErrInvalidState, p.Status)
	}
	if amount == 0 {
		amount = p.CapturableCents
	}
	if amount <= 0 || amount > p.CapturableCents {
		return 0, fmt.Errorf("%w: capture %d exceeds capturable %d", ErrInvalidAmount, amount, p.CapturableCents)
	}
	return amount, nil
}

// ValidateRelease checks the intent can still be canceled.
func ValidateRelease(p Record) error {
	if p.Status == StatusRequiresCapture || p.Status.Updatable() {
		return nil
	}
	return fmt.Errorf("%w: cannot release a %s payment", ErrInvalidState, p.Status)
}

// ValidateRefund checks the payment can be refunded and returns the amount to
// refund. Zero means the remaining refundable amount.
func ValidateRefund(p Record, amount int64) (int64, error) {
	if p.Status != StatusSucceeded && p.Status != StatusPartiallyRefunded {
		return 0, fmt.Errorf("%w: cannot refund a %s payment", ErrInvalidState, p.Status)
	}
	remaining := p.NetCents()
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 || amount > remaining {
		return 0, fmt.Errorf("%w: refund %d exceeds refundable %d", ErrInvalidAmount, amount, remaining)
	}
	return amount, nil
}

// RefundStatus returns the status a collected payment reaches after the total
// refunded amount becomes refunded.
func RefundStatus(received, refunded int64) Status {
	switch {
	case refunded <= 0:
		return StatusSucceeded
	case refunded >= received:
		return StatusRefunded
	default:
		return StatusPartiallyRefunded
	}
}
