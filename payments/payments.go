// Package payments holds the rules that decide what a booking or job owes and
// which Stripe PaymentIntent should serve the next charge. Nothing here does
// I/O; callers load the history and apply the returned plan.
package payments

import "slices"

// OwnerType identifies the kind of record a payment belongs to.
type OwnerType string

const (
	OwnerBooking OwnerType = "booking"
	OwnerJob     OwnerType = "job"
)

// Valid reports whether t is a known owner type.
func (t OwnerType) Valid() bool { return t == OwnerBooking || t == OwnerJob }

// Kind is the purpose of a payment.
type Kind string

const (
	KindDeposit Kind = "deposit"
	KindBalance Kind = "balance"
	KindBond    Kind = "bond"
	KindRequest Kind = "request"
)

// Valid reports whether k is a known payment kind.
func (k Kind) Valid() bool {
	return slices.Contains([]Kind{KindDeposit, KindBalance, KindBond, KindRequest}, k)
}

// CaptureMethod mirrors the PaymentIntent capture_method.
type CaptureMethod string

const (
	CaptureAutomatic CaptureMethod = "automatic"
	CaptureManual    CaptureMethod = "manual"
)

// Status is a PaymentIntent status, extended with the local refund states.
type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusRequiresCapture       Status = "requires_capture"
	StatusCanceled              Status = "canceled"
	StatusSucceeded             Status = "succeeded"
	StatusPartiallyRefunded     Status = "partially_refunded"
	StatusRefunded              Status = "refunded"
)

// updatable statuses accept a new amount on the same intent.
var updatable = []Status{StatusRequiresPaymentMethod, StatusRequiresConfirmation, StatusRequiresAction}

// collected statuses count towards the paid amount.
var collected = []Status{StatusSucceeded, StatusPartiallyRefunded, StatusRefunded}

// Updatable reports whether the intent amount can still be changed.
func (s Status) Updatable() bool { return slices.Contains(updatable, s) }

// Collected reports whether money was received for the payment.
func (s Status) Collected() bool { return slices.Contains(collected, s) }

// IsTerminal reports whether no further transition is accepted.
func (s Status) IsTerminal() bool { return s == StatusCanceled || s == StatusRefunded }

// Advance reports whether a payment currently in status current may be moved
// to next. Late or reordered webhook deliveries must not downgrade a record,
// so terminal statuses are final, succeeded only moves into the refund states
// and partially_refunded only moves to refunded.
func Advance(current, next Status) bool {
	if current == "" || current == next {
		return true
	}
	switch current {
	case StatusCanceled, StatusRefunded:
		return false
	case StatusSucceeded:
		return next == StatusPartiallyRefunded || next == StatusRefunded
	case StatusPartiallyRefunded:
		return next == StatusRefunded
	default:
		return true
	}
}

// BondStatus is the bond state shown on the owner.
type BondStatus string

const (
	BondNone       BondStatus = "none"
	BondPending    BondStatus = "pending"
	BondAuthorized BondStatus = "authorized"
	BondCaptured   BondStatus = "captured"
	BondReleased   BondStatus = "released"
)

// BondStatusFor maps the status of a bond payment to the owner bond status.
func BondStatusFor(p Record) BondStatus {
	switch {
	case p.Status == StatusRequiresCapture:
		return BondAuthorized
	case p.Status.Collected():
		return BondCaptured
	case p.Status == StatusCanceled:
		return BondReleased
	case p.Status == "":
		return BondNone
	default:
		return BondPending
	}
}

// Record is the part of a stored payment the rules look at.
type Record struct {
	Kind            Kind
	Status          Status
	CaptureMethod   CaptureMethod
	AmountCents     int64
	CapturableCents int64
	ReceivedCents   int64
	RefundedCents   int64
}

// NetCents is the amount received and not refunded.
func (r Record) NetCents() int64 {
	if n := r.ReceivedCents - r.RefundedCents; n > 0 {
		return n
	}
	return 0
}
