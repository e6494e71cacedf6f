package db

import (
	"time"

	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Source tells where a booking or job was created.
type Source string

const (
	SourceManual      Source = "manual"
	SourceVEVS        Source = "vevs"
	SourceDreamDrives Source = "dreamdrives"
)

// BookingStatus is the lifecycle status of a booking or job.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type User struct {
	ID        primitive.ObjectID `json:"id" bson:"_id"`
	Email     string             `json:"email" bson:"email"`
	Password  string             `json:"-" bson:"password"`
	Name      string             `json:"name" bson:"name"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

type Customer struct {
	ID               primitive.ObjectID `json:"id" bson:"_id"`
	FirstName        string             `json:"firstName" bson:"firstName"`
	LastName         string             `json:"lastName" bson:"lastName"`
	Email            string             `json:"email,omitempty" bson:"email,omitempty"`
	Phone            string             `json:"phone,omitempty" bson:"phone,omitempty"`
	StripeCustomerID string             `json:"stripeCustomerId,omitempty" bson:"stripeCustomerId,omitempty"`
	LicenceNumber    string             `json:"licenceNumber,omitempty" bson:"licenceNumber,omitempty"`
	CreatedAt        time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// FullName joins first and last name.
func (c *Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Booking struct {
	ID             primitive.ObjectID  `json:"id" bson:"_id"`
	Reference      string              `json:"reference" bson:"reference"`
	Source         Source              `json:"source" bson:"source"`
	ExternalID     string              `json:"externalId,omitempty" bson:"externalId,omitempty"`
	CustomerID     primitive.ObjectID  `json:"customerId" bson:"customerId"`
	Vehicle        string              `json:"vehicle" bson:"vehicle"`
	PickupAt       time.Time           `json:"pickupAt" bson:"pickupAt"`
	ReturnAt       time.Time           `json:"returnAt" bson:"returnAt"`
	PickupLocation string              `json:"pickupLocation,omitempty" bson:"pickupLocation,omitempty"`
	ReturnLocation string              `json:"returnLocation,omitempty" bson:"returnLocation,omitempty"`
	Status         BookingStatus       `json:"status" bson:"status"`
	Currency       string              `json:"currency" bson:"currency"`
	TotalCents     int64               `json:"totalCents" bson:"totalCents"`
	DepositCents   int64               `json:"depositCents" bson:"depositCents"`
	BondCents      int64               `json:"bondCents" bson:"bondCents"`
	PaidCents      int64               `json:"paidCents" bson:"paidCents"`
	PortalToken    string              `json:"-" bson:"portalToken"`
	BondStatus     payments.BondStatus `json:"bondStatus" bson:"bondStatus"`
	Notes          string              `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt      time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// Account returns what the booking is expected to pay.
func (b *Booking) Account() payments.Account {
	return payments.Account{
		OwnerType:    payments.OwnerBooking,
		Reference:    b.Reference,
		Currency:     b.Currency,
		TotalCents:   b.TotalCents,
		DepositCents: min(b.DepositCents, b.TotalCents),
		BondCents:    b.BondCents,
	}
}

type Flow struct {
	ID             primitive.ObjectID   `json:"id" bson:"_id"`
	Name           string               `json:"name" bson:"name" yaml:"name"`
	Slug           string               `json:"slug" bson:"slug" yaml:"slug"`
	Brand          string               `json:"brand,omitempty" bson:"brand,omitempty" yaml:"brand"`
	Currency       string               `json:"currency" bson:"currency" yaml:"currency"`
	DepositType    payments.DepositType `json:"depositType" bson:"depositType" yaml:"depositType"`
	DepositValue   int64                `json:"depositValue" bson:"depositValue" yaml:"depositValue"`
	BondCents      int64                `json:"bondCents" bson:"bondCents" yaml:"bondCents"`
	BalanceDueDays int                  `json:"balanceDueDays" bson:"balanceDueDays" yaml:"balanceDueDays"`
	CreatedAt      time.Time            `json:"createdAt" bson:"createdAt" yaml:"-"`
	UpdatedAt      time.Time            `json:"updatedAt" bson:"updatedAt" yaml:"-"`
}

// DepositFor returns the deposit the flow requires on total.
func (f *Flow) DepositFor(total int64) (int64, error) {
	return payments.DepositFor(f.DepositType, f.DepositValue, total)
}

type Job struct {
	ID          primitive.ObjectID  `json:"id" bson:"_id"`
	Reference   string              `json:"reference" bson:"reference"`
	FlowID      primitive.ObjectID  `json:"flowId" bson:"flowId"`
	Source      Source              `json:"source" bson:"source"`
	ExternalID  string              `json:"externalId,omitempty" bson:"externalId,omitempty"`
	CustomerID  primitive.ObjectID  `json:"customerId" bson:"customerId"`
	Vehicle     string              `json:"vehicle" bson:"vehicle"`
	StartAt     time.Time           `json:"startAt" bson:"startAt"`
	EndAt       time.Time           `json:"endAt" bson:"endAt"`
	Status      BookingStatus       `json:"status" bson:"status"`
	Currency    string              `json:"currency" bson:"currency"`
	TotalCents  int64               `json:"totalCents" bson:"totalCents"`
	PaidCents   int64               `json:"paidCents" bson:"paidCents"`
	PortalToken string              `json:"-" bson:"portalToken"`
	BondStatus  payments.BondStatus `json:"bondStatus" bson:"bondStatus"`
	CreatedAt   time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// Account returns what the job is expected to pay under its flow.
func (j *Job) Account(flow *Flow) (payments.Account, error) {
	deposit, err := flow.DepositFor(j.TotalCents)
	if err != nil {
		return payments.Account{}, err
	}
	return payments.Account{
		OwnerType:    payments.OwnerJob,
		Reference:    j.Reference,
		Currency:     j.Currency,
		TotalCents:   j.TotalCents,
		DepositCents: deposit,
		BondCents:    flow.BondCents,
	}, nil
}

// BalanceDueAt is the date the remaining balance is due.
func (j *Job) BalanceDueAt(flow *Flow) time.Time {
	return j.StartAt.AddDate(0, 0, -flow.BalanceDueDays)
}

type Payment struct {
	ID                    primitive.ObjectID     `json:"id" bson:"_id"`
	OwnerType             payments.OwnerType     `json:"ownerType" bson:"ownerType"`
	OwnerRef              string                 `json:"ownerRef" bson:"ownerRef"`
	Kind                  payments.Kind          `json:"kind" bson:"kind"`
	StripePaymentIntentID string                 `json:"stripePaymentIntentId,omitempty" bson:"stripePaymentIntentId,omitempty"`
	CaptureMethod         payments.CaptureMethod `json:"captureMethod" bson:"captureMethod"`
	AmountCents           int64                  `json:"amountCents" bson:"amountCents"`
	AmountCapturableCents int64                  `json:"amountCapturableCents" bson:"amountCapturableCents"`
	AmountReceivedCents   int64                  `json:"amountReceivedCents" bson:"amountReceivedCents"`
	AmountRefundedCents   int64                  `json:"amountRefundedCents" bson:"amountRefundedCents"`
	Currency              string                 `json:"currency" bson:"currency"`
	Status                payments.Status        `json:"status" bson:"status"`
	RequestToken          string                 `json:"requestToken,omitempty" bson:"requestToken,omitempty"`
	LastError             string                 `json:"lastError,omitempty" bson:"lastError,omitempty"`
	CreatedAt             time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt             time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// Record returns the view of the payment used by the payment rules.
func (p *Payment) Record() payments.Record {
	return payments.Record{
		Kind:            p.Kind,
		Status:          p.Status,
		CaptureMethod:   p.CaptureMethod,
		AmountCents:     p.AmountCents,
		CapturableCents: p.AmountCapturableCents,
		ReceivedCents:   p.AmountReceivedCents,
		RefundedCents:   p.AmountRefundedCents,
	}
}

// DepositMethod is how an offline deposit was received.
type DepositMethod string

const (
	MethodCash         DepositMethod = "cash"
	MethodBankTransfer DepositMethod = "bank_transfer"
	MethodCardTerminal DepositMethod = "card_terminal"
	MethodOther        DepositMethod = "other"
)

type Deposit struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	OwnerType   payments.OwnerType `json:"ownerType" bson:"ownerType"`
	OwnerRef    string             `json:"ownerRef" bson:"ownerRef"`
	AmountCents int64              `json:"amountCents" bson:"amountCents"`
	Currency    string             `json:"currency" bson:"currency"`
	Method      DepositMethod      `json:"method" bson:"method"`
	Note        string             `json:"note,omitempty" bson:"note,omitempty"`
	ReceivedAt  time.Time          `json:"receivedAt" bson:"receivedAt"`
	CreatedBy   primitive.ObjectID `json:"createdBy" bson:"createdBy"`
}

// RequestStatus is the lifecycle status of a payment request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestPaid      RequestStatus = "paid"
	RequestCancelled RequestStatus = "cancelled"
	RequestExpired   RequestStatus = "expired"
)

type PaymentRequest struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	Token       string             `json:"token" bson:"token"`
	OwnerType   payments.OwnerType `json:"ownerType" bson:"ownerType"`
	OwnerRef    string             `json:"ownerRef" bson:"ownerRef"`
	AmountCents int64              `json:"amountCents" bson:"amountCents"`
	Currency    string             `json:"currency" bson:"currency"`
	Description string             `json:"description" bson:"description"`
	Status      RequestStatus      `json:"status" bson:"status"`
	PaymentID   primitive.ObjectID `json:"paymentId,omitempty" bson:"paymentId,omitempty"`
	ExpiresAt   time.Time          `json:"expiresAt" bson:"expiresAt"`
	SentVia     []string           `json:"sentVia,omitempty" bson:"sentVia,omitempty"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
}

// EffectiveStatus reports expired for pending requests past their expiry.
func (r *PaymentRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestPending && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt) {
		return RequestExpired
	}
	return r.Status
}

type ImportRun struct {
	ID          string    `json:"id" bson:"_id"`
	Source      Source    `json:"source" bson:"source"`
	StartedAt   time.Time `json:"startedAt" bson:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	Total       int       `json:"total" bson:"total"`
	Created     int       `json:"created" bson:"created"`
	Updated     int       `json:"updated" bson:"updated"`
	Skipped     int       `json:"skipped" bson:"skipped"`
	Errors      []string  `json:"errors" bson:"errors"`
}

type Document struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	OwnerType   payments.OwnerType `json:"ownerType" bson:"ownerType"`
	OwnerRef    string             `json:"ownerRef" bson:"ownerRef"`
	Key         string             `json:"key" bson:"key"`
	Name        string             `json:"name,omitempty" bson:"name,omitempty"`
	ContentType string             `json:"contentType" bson:"contentType"`
	Size        int64              `json:"size" bson:"size"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
}

// UpsertResult tells whether a feed upsert created a new record.
type UpsertResult struct {
	Created bool
}
