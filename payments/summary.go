package payments

import "fmt"

// DepositType selects how a flow computes the deposit.
type DepositType string

const (
	DepositPercent DepositType = "percent"
	DepositFixed   DepositType = "fixed"
)

// DepositFor returns the deposit required on total. Percent values are
// percentage points rounded half-up to the cent; fixed values are cents.
// The result never exceeds total.
func DepositFor(t DepositType, value, total int64) (int64, error) {
	if value < 0 || total < 0 {
		return 0, fmt.Errorf("%w: negative deposit rule", ErrInvalidAmount)
	}
	var d int64
	switch t {
	case DepositPercent:
		if value > 100 {
			return 0, fmt.Errorf("%w: percent above 100", ErrInvalidAmount)
		}
		d = (total*value + 50) / 100
	case DepositFixed, "":
		d = value
	default:
		return 0, fmt.Errorf("%w: deposit type %q", ErrInvalidAmount, t)
	}
	return min(d, total), nil
}

// Account is what an owner is expected to pay.
type Account struct {
	OwnerType    OwnerType
	Reference    string
	Currency     string
	TotalCents   int64
	DepositCents int64
	BondCents    int64
}

// Summary is the result of applying the payment history to an account.
type Summary struct {
	Account                 Account
	PaidCents               int64
	RefundedCents           int64
	BalanceCents            int64
	DepositOutstandingCents int64
	HeldCents               int64
	DepositSatisfied        bool
}

// Summarize folds payments and offline deposits into the owner's totals. Bond
// holds never count as paid, only their capturable amount counts as held.
func Summarize(acct Account, records []Record, offline []int64) Summary {
	s := Summary{Account: acct}
	for _, r := range records {
		if r.Kind == KindBond {
			if r.Status == StatusRequiresCapture {
				s.HeldCents += r.CapturableCents
			}
			continue
		}
		if r.Status.Collected() {
			s.PaidCents += r.NetCents()
			s.RefundedCents += r.RefundedCents
		}
	}
	for _, d := range offline {
		s.PaidCents += d
	}
	s.BalanceCents = max(acct.TotalCents-s.PaidCents, 0)
	s.DepositOutstandingCents = min(max(acct.DepositCents-s.PaidCents, 0), s.BalanceCents)
	s.DepositSatisfied = s.PaidCents >= acct.DepositCents
	return s
}
