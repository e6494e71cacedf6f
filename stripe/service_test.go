package stripe

import (
	"context"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	stripeapi "github.com/stripe/stripe-go/v81"
)

func TestChargeIntentPlans(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	res, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Action, qt.Equals, payments.ActionCreate)
	c.Assert(res.AmountCents, qt.Equals, int64(30000))
	c.Assert(res.ClientSecret, qt.Not(qt.Equals), "")
	pi, err := gw.GetIntent(ctx, res.PaymentIntentID)
	c.Assert(err, qt.IsNil)
	c.Assert(pi.Metadata, qt.DeepEquals, map[string]string{
		MetaReference:    b.Reference,
		MetaOwnerType:    "booking",
		MetaKind:         "deposit",
		MetaPaymentID:    res.PaymentID.Hex(),
		MetaRequestToken: "",
	})
	c.Assert(pi.Customer.ID, qt.Equals, "cus_test_1")
	customer, err := testDB.Customer(b.CustomerID)
	c.Assert(err, qt.IsNil)
	c.Assert(customer.StripeCustomerID, qt.Equals, "cus_test_1")

	// same amount, intent still awaiting the payer
	again, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Action, qt.Equals, payments.ActionReuse)
	c.Assert(again.PaymentIntentID, qt.Equals, res.PaymentIntentID)
	c.Assert(gw.count("create"), qt.Equals, 1)

	// an offline deposit lowers what is due
	c.Assert(testDB.AddDeposit(&db.Deposit{OwnerType: payments.OwnerBooking, OwnerRef: b.Reference,
		AmountCents: 10000, Method: db.MethodCash}), qt.IsNil)
	updated, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	c.Assert(updated.Action, qt.Equals, payments.ActionUpdate)
	c.Assert(updated.AmountCents, qt.Equals, int64(20000))
	c.Assert(updated.PaymentIntentID, qt.Equals, res.PaymentIntentID)
	c.Assert(gw.count("update"), qt.Equals, 1)

	// the payer paid but the webhook has not arrived yet
	gw.set(res.PaymentIntentID, succeed)
	_, err = svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.ErrorIs, payments.ErrNothingDue)
	stored := reloadBooking(c, b.Reference)
	c.Assert(stored.PaidCents, qt.Equals, int64(30000))
	c.Assert(stored.Status, qt.Equals, db.StatusConfirmed)

	balance, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindBalance)
	c.Assert(err, qt.IsNil)
	c.Assert(balance.Action, qt.Equals, payments.ActionCreate)
	c.Assert(balance.AmountCents, qt.Equals, int64(70000))
	c.Assert(gw.count("customer"), qt.Equals, 1)

	_, err = svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindBond)
	c.Assert(err, qt.ErrorIs, payments.ErrInvalidKind)
	_, err = svc.ChargeIntent(ctx, payments.OwnerBooking, "BK-MISSING", payments.KindDeposit)
	c.Assert(err, qt.ErrorIs, ErrOwnerNotFound)
}

func TestChargeIntentProcessingIsReused(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	res, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	gw.set(res.PaymentIntentID, func(pi *stripeapi.PaymentIntent) {
		pi.Status = stripeapi.PaymentIntentStatusProcessing
	})
	_, err = svc.SyncPayment(ctx, res.PaymentID)
	c.Assert(err, qt.IsNil)

	c.Assert(testDB.AddDeposit(&db.Deposit{OwnerType: payments.OwnerBooking, OwnerRef: b.Reference,
		AmountCents: 5000}), qt.IsNil)
	again, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Action, qt.Equals, payments.ActionReuse)
	c.Assert(again.AmountCents, qt.Equals, int64(30000))
	c.Assert(gw.count("create"), qt.Equals, 1)
	c.Assert(gw.count("update"), qt.Equals, 0)
}

func TestHoldCaptureRelease(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	hold, err := svc.HoldIntent(ctx, payments.OwnerBooking, b.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(hold.Action, qt.Equals, payments.ActionCreate)
	c.Assert(hold.AmountCents, qt.Equals, int64(50000))
	c.Assert(reloadBooking(c, b.Reference).BondStatus, qt.Equals, payments.BondPending)

	gw.set(hold.PaymentIntentID, authorize)
	p, err := svc.SyncPayment(ctx, hold.PaymentID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, payments.StatusRequiresCapture)
	c.Assert(p.CaptureMethod, qt.Equals, payments.CaptureManual)
	c.Assert(reloadBooking(c, b.Reference).BondStatus, qt.Equals, payments.BondAuthorized)

	// an authorized hold is reused, never re-created
	again, err := svc.HoldIntent(ctx, payments.OwnerBooking, b.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Action, qt.Equals, payments.ActionReuse)

	_, err = svc.CaptureHold(ctx, hold.PaymentID, 60000)
	c.Assert(err, qt.ErrorIs, payments.ErrInvalidAmount)
	c.Assert(gw.count("capture"), qt.Equals, 0)

	p, err = svc.CaptureHold(ctx, hold.PaymentID, 20000)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, payments.StatusSucceeded)
	c.Assert(p.AmountReceivedCents, qt.Equals, int64(20000))
	stored := reloadBooking(c, b.Reference)
	c.Assert(stored.BondStatus, qt.Equals, payments.BondCaptured)
	c.Assert(stored.PaidCents, qt.Equals, int64(0))
	c.Assert(stored.Status, qt.Equals, db.StatusPending)

	_, err = svc.ReleaseHold(ctx, hold.PaymentID)
	c.Assert(err, qt.ErrorIs, payments.ErrInvalidState)
	_, err = svc.HoldIntent(ctx, payments.OwnerBooking, b.Reference)
	c.Assert(err, qt.ErrorIs, payments.ErrAlreadyCharged)
}

func TestReleaseHold(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	hold, err := svc.HoldIntent(ctx, payments.OwnerBooking, b.Reference)
	c.Assert(err, qt.IsNil)
	gw.set(hold.PaymentIntentID, authorize)
	p, err := svc.ReleaseHold(ctx, hold.PaymentID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, payments.StatusCanceled)
	c.Assert(p.AmountCapturableCents, qt.Equals, int64(0))
	c.Assert(reloadBooking(c, b.Reference).BondStatus, qt.Equals, payments.BondReleased)
}

func TestRefund(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	res, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	_, err = svc.Refund(ctx, res.PaymentID, 0)
	c.Assert(err, qt.ErrorIs, payments.ErrInvalidState)

	gw.set(res.PaymentIntentID, succeed)
	_, err = svc.SyncPayment(ctx, res.PaymentID)
	c.Assert(err, qt.IsNil)
	c.Assert(reloadBooking(c, b.Reference).PaidCents, qt.Equals, int64(30000))

	_, err = svc.Refund(ctx, res.PaymentID, 40000)
	c.Assert(err, qt.ErrorIs, payments.ErrInvalidAmount)

	p, err := svc.Refund(ctx, res.PaymentID, 10000)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, payments.StatusPartiallyRefunded)
	c.Assert(p.AmountRefundedCents, qt.Equals, int64(10000))
	c.Assert(reloadBooking(c, b.Reference).PaidCents, qt.Equals, int64(20000))

	// a late sync reading succeeded keeps the refund state
	p, err = svc.SyncPayment(ctx, res.PaymentID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, payments.StatusPartiallyRefunded)

	p, err = svc.Refund(ctx, res.PaymentID, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, payments.StatusRefunded)
	c.Assert(reloadBooking(c, b.Reference).PaidCents, qt.Equals, int64(0))
	c.Assert(gw.refunds, qt.DeepEquals, []int64{10000, 20000})

	_, err = svc.Refund(ctx, res.PaymentID, 0)
	c.Assert(err, qt.ErrorIs, payments.ErrInvalidState)
}

func TestRequestIntent(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	req := &db.PaymentRequest{OwnerType: payments.OwnerBooking, OwnerRef: b.Reference,
		AmountCents: 4500, Description: "Fuel refill"}
	c.Assert(testDB.CreatePaymentRequest(req), qt.IsNil)

	res, err := svc.RequestIntent(ctx, req.Token)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Action, qt.Equals, payments.ActionCreate)
	c.Assert(res.Kind, qt.Equals, payments.KindRequest)
	c.Assert(res.AmountCents, qt.Equals, int64(4500))

	again, err := svc.RequestIntent(ctx, req.Token)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Action, qt.Equals, payments.ActionReuse)

	settled := make(chan *db.Payment, 1)
	svc.OnSettled(func(_ context.Context, _ *db.Owner, p *db.Payment) { settled <- p })
	gw.set(res.PaymentIntentID, succeed)
	_, err = svc.SyncPayment(ctx, res.PaymentID)
	c.Assert(err, qt.IsNil)
	c.Assert((<-settled).ID, qt.Equals, res.PaymentID)

	stored, err := testDB.PaymentRequest(req.Token)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, db.RequestPaid)
	c.Assert(stored.PaymentID, qt.Equals, res.PaymentID)
	c.Assert(reloadBooking(c, b.Reference).PaidCents, qt.Equals, int64(4500))

	_, err = svc.RequestIntent(ctx, req.Token)
	c.Assert(err, qt.ErrorIs, ErrRequestClosed)
	_, err = svc.RequestIntent(ctx, "unknown")
	c.Assert(err, qt.ErrorIs, ErrRequestNotFound)
}

func TestCloseOwner(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()

	b := newTestBooking(c)
	deposit, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	hold, err := svc.HoldIntent(ctx, payments.OwnerBooking, b.Reference)
	c.Assert(err, qt.IsNil)
	gw.set(hold.PaymentIntentID, authorize)

	c.Assert(svc.CloseOwner(ctx, payments.OwnerBooking, b.Reference), qt.IsNil)
	c.Assert(gw.count("cancel"), qt.Equals, 2)
	for _, id := range []string{deposit.PaymentIntentID, hold.PaymentIntentID} {
		p, err := testDB.PaymentByIntentID(id)
		c.Assert(err, qt.IsNil)
		c.Assert(p.Status, qt.Equals, payments.StatusCanceled)
	}
	c.Assert(reloadBooking(c, b.Reference).Status, qt.Equals, db.StatusCancelled)
	_, err = svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
	c.Assert(err, qt.ErrorIs, payments.ErrInvalidState)

	paid := newTestBooking(c)
	res, err := svc.ChargeIntent(ctx, payments.OwnerBooking, paid.Reference, payments.KindDeposit)
	c.Assert(err, qt.IsNil)
	gw.set(res.PaymentIntentID, succeed)
	_, err = svc.SyncPayment(ctx, res.PaymentID)
	c.Assert(err, qt.IsNil)
	c.Assert(svc.CloseOwner(ctx, payments.OwnerBooking, paid.Reference), qt.ErrorIs, db.ErrInUse)
}

func TestReconcileOfflineDeposit(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	c.Assert(testDB.AddDeposit(&db.Deposit{OwnerType: payments.OwnerBooking, OwnerRef: b.Reference,
		AmountCents: 10000, Method: db.MethodBankTransfer}), qt.IsNil)
	summary, err := svc.Reconcile(ctx, payments.OwnerBooking, b.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(summary.PaidCents, qt.Equals, int64(10000))
	c.Assert(summary.DepositSatisfied, qt.IsFalse)
	stored := reloadBooking(c, b.Reference)
	c.Assert(stored.PaidCents, qt.Equals, int64(10000))
	c.Assert(stored.Status, qt.Equals, db.StatusPending)

	c.Assert(testDB.AddDeposit(&db.Deposit{OwnerType: payments.OwnerBooking, OwnerRef: b.Reference,
		AmountCents: 20000, Method: db.MethodCash}), qt.IsNil)
	summary, err = svc.Reconcile(ctx, payments.OwnerBooking, b.Reference)
	c.Assert(err, qt.IsNil)
	c.Assert(summary.DepositSatisfied, qt.IsTrue)
	c.Assert(reloadBooking(c, b.Reference).Status, qt.Equals, db.StatusConfirmed)

	_, err = svc.Reconcile(ctx, payments.OwnerBooking, "BK-MISSING")
	c.Assert(err, qt.ErrorIs, ErrOwnerNotFound)
}

func TestConcurrentChargeIntents(t *testing.T) {
	c := qt.New(t)
	svc, gw := newTestService(c)
	ctx := context.Background()
	b := newTestBooking(c)

	var wg sync.WaitGroup
	results := make(chan *IntentResult, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ChargeIntent(ctx, payments.OwnerBooking, b.Reference, payments.KindDeposit)
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)
	ids := map[string]bool{}
	for res := range results {
		ids[res.PaymentIntentID] = true
	}
	c.Assert(ids, qt.HasLen, 1)
	c.Assert(gw.count("create"), qt.Equals, 1)
}
