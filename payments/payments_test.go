package payments

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestAdvance(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		current, next Status
		want          bool
	}{
		{"", StatusRequiresPaymentMethod, true},
		{StatusRequiresPaymentMethod, StatusProcessing, true},
		{StatusProcessing, StatusRequiresPaymentMethod, true},
		{StatusRequiresCapture, StatusSucceeded, true},
		{StatusRequiresCapture, StatusCanceled, true},
		{StatusSucceeded, StatusProcessing, false},
		{StatusSucceeded, StatusRequiresCapture, false},
		{StatusSucceeded, StatusPartiallyRefunded, true},
		{StatusSucceeded, StatusRefunded, true},
		{StatusPartiallyRefunded, StatusSucceeded, false},
		{StatusPartiallyRefunded, StatusRefunded, true},
		{StatusPartiallyRefunded, StatusPartiallyRefunded, true},
		{StatusCanceled, StatusSucceeded, false},
		{StatusRefunded, StatusSucceeded, false},
		{StatusRefunded, StatusPartiallyRefunded, false},
	}
	for _, tt := range tests {
		c.Assert(Advance(tt.current, tt.next), qt.Equals, tt.want, qt.Commentf("%s -> %s", tt.current, tt.next))
	}
}

func TestBondStatusFor(t *testing.T) {
	c := qt.New(t)
	c.Assert(BondStatusFor(Record{}), qt.Equals, BondNone)
	c.Assert(BondStatusFor(Record{Status: StatusRequiresPaymentMethod}), qt.Equals, BondPending)
	c.Assert(BondStatusFor(Record{Status: StatusRequiresCapture}), qt.Equals, BondAuthorized)
	c.Assert(BondStatusFor(Record{Status: StatusSucceeded}), qt.Equals, BondCaptured)
	c.Assert(BondStatusFor(Record{Status: StatusPartiallyRefunded}), qt.Equals, BondCaptured)
	c.Assert(BondStatusFor(Record{Status: StatusCanceled}), qt.Equals, BondReleased)
}

func TestDepositFor(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		typ          DepositType
		value, total int64
		want         int64
	}{
		{DepositPercent, 20, 50000, 10000},
		{DepositPercent, 15, 333, 50}, // 49.95 rounds half-up
		{DepositPercent, 10, 5, 1},    // 0.5 rounds up
		{DepositPercent, 100, 1234, 1234},
		{DepositFixed, 30000, 50000, 30000},
		{DepositFixed, 80000, 50000, 50000},
		{DepositFixed, 0, 50000, 0},
	}
	for _, tt := range tests {
		got, err := DepositFor(tt.typ, tt.value, tt.total)
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Equals, tt.want, qt.Commentf("%s %d of %d", tt.typ, tt.value, tt.total))
	}
	_, err := DepositFor(DepositPercent, 120, 100)
	c.Assert(errors.Is(err, ErrInvalidAmount), qt.IsTrue)
	_, err = DepositFor("weekly", 1, 100)
	c.Assert(errors.Is(err, ErrInvalidAmount), qt.IsTrue)
}

func TestSummarize(t *testing.T) {
	c := qt.New(t)
	acct := Account{OwnerType: OwnerBooking, Reference: "BK-00000001", Currency: "aud", TotalCents: 100000, DepositCents: 30000, BondCents: 50000}

	c.Run("empty history", func(c *qt.C) {
		s := Summarize(acct, nil, nil)
		c.Assert(s.PaidCents, qt.Equals, int64(0))
		c.Assert(s.BalanceCents, qt.Equals, int64(100000))
		c.Assert(s.DepositOutstandingCents, qt.Equals, int64(30000))
		c.Assert(s.DepositSatisfied, qt.IsFalse)
	})

	c.Run("partial deposit with offline cash", func(c *qt.C) {
		s := Summarize(acct, []Record{
			{Kind: KindDeposit, Status: StatusSucceeded, AmountCents: 20000, ReceivedCents: 20000},
			{Kind: KindDeposit, Status: StatusRequiresPaymentMethod, AmountCents: 10000},
		}, []int64{5000})
		c.Assert(s.PaidCents, qt.Equals, int64(25000))
		c.Assert(s.DepositOutstandingCents, qt.Equals, int64(5000))
		c.Assert(s.BalanceCents, qt.Equals, int64(75000))
	})

	c.Run("refunds reduce paid and bonds only count as held", func(c *qt.C) {
		s := Summarize(acct, []Record{
			{Kind: KindDeposit, Status: StatusPartiallyRefunded, ReceivedCents: 30000, RefundedCents: 10000},
			{Kind: KindBond, Status: StatusRequiresCapture, AmountCents: 50000, CapturableCents: 50000},
			{Kind: KindBond, Status: StatusCanceled, AmountCents: 50000},
		}, nil)
		c.Assert(s.PaidCents, qt.Equals, int64(20000))
		c.Assert(s.RefundedCents, qt.Equals, int64(10000))
		c.Assert(s.HeldCents, qt.Equals, int64(50000))
		c.Assert(s.DepositSatisfied, qt.IsFalse)
	})

	c.Run("overpayment", func(c *qt.C) {
		s := Summarize(acct, []Record{
			{Kind: KindBalance, Status: StatusSucceeded, ReceivedCents: 120000},
		}, nil)
		c.Assert(s.BalanceCents, qt.Equals, int64(0))
		c.Assert(s.DepositOutstandingCents, qt.Equals, int64(0))
		c.Assert(s.DepositSatisfied, qt.IsTrue)
	})

	c.Run("deposit outstanding never exceeds balance", func(c *qt.C) {
		small := acct
		small.DepositCents = 150000
		s := Summarize(small, []Record{{Kind: KindBalance, Status: StatusSucceeded, ReceivedCents: 90000}}, nil)
		c.Assert(s.BalanceCents, qt.Equals, int64(10000))
		c.Assert(s.DepositOutstandingCents, qt.Equals, int64(10000))
	})
}

func TestPlanCharge(t *testing.T) {
	c := qt.New(t)
	s := Summarize(Account{TotalCents: 100000, DepositCents: 30000}, nil, nil)

	tests := []struct {
		name       string
		kind       Kind
		existing   *Record
		wantAction Action
		wantAmount int64
	}{
		{"no intent", KindDeposit, nil, ActionCreate, 30000},
		{"balance without intent", KindBalance, nil, ActionCreate, 100000},
		{"same amount awaiting method", KindDeposit, &Record{Status: StatusRequiresPaymentMethod, AmountCents: 30000}, ActionReuse, 30000},
		{"different amount awaiting method", KindDeposit, &Record{Status: StatusRequiresPaymentMethod, AmountCents: 25000}, ActionUpdate, 30000},
		{"requires action different amount", KindBalance, &Record{Status: StatusRequiresAction, AmountCents: 1}, ActionUpdate, 100000},
		{"processing is reused as is", KindDeposit, &Record{Status: StatusProcessing, AmountCents: 25000}, ActionReuse, 25000},
		{"succeeded needs new intent", KindDeposit, &Record{Status: StatusSucceeded, AmountCents: 30000}, ActionCreate, 30000},
		{"canceled needs new intent", KindDeposit, &Record{Status: StatusCanceled, AmountCents: 30000}, ActionCreate, 30000},
		{"refunded needs new intent", KindBalance, &Record{Status: StatusRefunded}, ActionCreate, 100000},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			p, err := PlanCharge(tt.kind, s, tt.existing)
			c.Assert(err, qt.IsNil)
			c.Assert(p.Action, qt.Equals, tt.wantAction)
			c.Assert(p.AmountCents, qt.Equals, tt.wantAmount)
			c.Assert(p.CaptureMethod, qt.Equals, CaptureAutomatic)
		})
	}

	paid := Summarize(Account{TotalCents: 100000, DepositCents: 30000}, []Record{{Status: StatusSucceeded, ReceivedCents: 100000}}, nil)
	_, err := PlanCharge(KindBalance, paid, nil)
	c.Assert(err, qt.Equals, ErrNothingDue)
	_, err = PlanCharge(KindDeposit, paid, nil)
	c.Assert(err, qt.Equals, ErrNothingDue)
	_, err = PlanCharge(KindBond, s, nil)
	c.Assert(errors.Is(err, ErrInvalidKind), qt.IsTrue)
}

func TestPlanHold(t *testing.T) {
	c := qt.New(t)
	s := Summarize(Account{TotalCents: 100000, BondCents: 50000}, nil, nil)

	p, err := PlanHold(s, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(p, qt.DeepEquals, Plan{Action: ActionCreate, Kind: KindBond, AmountCents: 50000, CaptureMethod: CaptureManual})

	p, err = PlanHold(s, &Record{Status: StatusRequiresCapture, AmountCents: 40000})
	c.Assert(err, qt.IsNil)
	c.Assert(p.Action, qt.Equals, ActionReuse)
	c.Assert(p.AmountCents, qt.Equals, int64(40000))

	p, err = PlanHold(s, &Record{Status: StatusRequiresPaymentMethod, AmountCents: 40000})
	c.Assert(err, qt.IsNil)
	c.Assert(p.Action, qt.Equals, ActionUpdate)

	p, err = PlanHold(s, &Record{Status: StatusCanceled, AmountCents: 50000})
	c.Assert(err, qt.IsNil)
	c.Assert(p.Action, qt.Equals, ActionCreate)

	_, err = PlanHold(s, &Record{Status: StatusSucceeded})
	c.Assert(err, qt.Equals, ErrAlreadyCharged)

	_, err = PlanHold(Summarize(Account{TotalCents: 100}, nil, nil), nil)
	c.Assert(err, qt.Equals, ErrNothingDue)
}

func TestPlanRequest(t *testing.T) {
	c := qt.New(t)
	p, err := PlanRequest(4500, &Record{Status: StatusRequiresConfirmation, AmountCents: 4500})
	c.Assert(err, qt.IsNil)
	c.Assert(p.Action, qt.Equals, ActionReuse)
	c.Assert(p.Kind, qt.Equals, KindRequest)
	_, err = PlanRequest(0, nil)
	c.Assert(err, qt.Equals, ErrNothingDue)
}

func TestValidateCapture(t *testing.T) {
	c := qt.New(t)
	hold := Record{Kind: KindBond, Status: StatusRequiresCapture, CaptureMethod: CaptureManual, AmountCents: 50000, CapturableCents: 50000}

	amount, err := ValidateCapture(hold, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(amount, qt.Equals, int64(50000))

	amount, err = ValidateCapture(hold, 12000)
	c.Assert(err, qt.IsNil)
	c.Assert(amount, qt.Equals, int64(12000))

	_, err = ValidateCapture(hold, 50001)
	c.Assert(errors.Is(err, ErrInvalidAmount), qt.IsTrue)
	_, err = ValidateCapture(hold, -1)
	c.Assert(errors.Is(err, ErrInvalidAmount), qt.IsTrue)

	auto := hold
	auto.CaptureMethod = CaptureAutomatic
	_, err = ValidateCapture(auto, 0)
	c.Assert(errors.Is(err, ErrInvalidState), qt.IsTrue)

	done := hold
	done.Status = StatusSucceeded
	_, err = ValidateCapture(done, 0)
	c.Assert(errors.Is(err, ErrInvalidState), qt.IsTrue)
}

func TestValidateReleaseAndRefund(t *testing.T) {
	c := qt.New(t)
	c.Assert(ValidateRelease(Record{Status: StatusRequiresCapture}), qt.IsNil)
	c.Assert(ValidateRelease(Record{Status: StatusRequiresAction}), qt.IsNil)
	c.Assert(errors.Is(ValidateRelease(Record{Status: StatusSucceeded}), ErrInvalidState), qt.IsTrue)
	c.Assert(errors.Is(ValidateRelease(Record{Status: StatusProcessing}), ErrInvalidState), qt.IsTrue)

	paid := Record{Status: StatusPartiallyRefunded, ReceivedCents: 30000, RefundedCents: 10000}
	amount, err := ValidateRefund(paid, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(amount, qt.Equals, int64(20000))
	_, err = ValidateRefund(paid, 20001)
	c.Assert(errors.Is(err, ErrInvalidAmount), qt.IsTrue)
	_, err = ValidateRefund(Record{Status: StatusRefunded, ReceivedCents: 1, RefundedCents: 1}, 0)
	c.Assert(errors.Is(err, ErrInvalidState), qt.IsTrue)

	c.Assert(RefundStatus(30000, 0), qt.Equals, StatusSucceeded)
	c.Assert(RefundStatus(30000, 100), qt.Equals, StatusPartiallyRefunded)
	c.Assert(RefundStatus(30000, 30000), qt.Equals, StatusRefunded)
}

func TestParseAmount(t *testing.T) {
	c := qt.New(t)
	ok := map[string]int64{
		"1,234.50":  123450,
		"0.00":      0,
		"99":        9900,
		"$45.9":     4590,
		".75":       75,
		"1000.000":  100000,
		"0.1":       10,
		"19.99":     1999,
		"2 500.00":  250000,
		"100000.01": 10000001,
	}
	for in, want := range ok {
		got, err := ParseAmount(in)
		c.Assert(err, qt.IsNil, qt.Commentf("%q", in))
		c.Assert(got, qt.Equals, want, qt.Commentf("%q", in))
	}
	for _, in := range []string{"", "-5.00", "12.345", "abc", "1.2.3", "99999999999999999999",
		"1.+5", "1.-5", "1.5x", "+1.50", ".", "1e3"} {
		_, err := ParseAmount(in)
		c.Assert(errors.Is(err, ErrInvalidAmount), qt.IsTrue, qt.Commentf("%q", in))
	}
	_, err := ParseAmount("1.-5")
	c.Assert(err, qt.Not(qt.ErrorMatches), ".*overflows")
	c.Assert(FormatAmount(123450), qt.Equals, "1234.50")
	c.Assert(FormatAmount(5), qt.Equals, "0.05")
}
