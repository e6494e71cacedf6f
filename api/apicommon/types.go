package apicommon

//revive:disable:max-public-structs

import (
	"time"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/stripe"
)

// LoginRequest holds the admin credentials.
// swagger:model LoginRequest
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the response for a successful login.
// swagger:model LoginResponse
type LoginResponse struct {
	// JWT authentication token
	Token string `json:"token"`
	// Token expiration time
	Expirity time.Time `json:"expirity"`
}

// AdminInfo describes the authenticated admin.
// swagger:model AdminInfo
type AdminInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SummaryInfo is the payment position of a booking or job.
// swagger:model SummaryInfo
type SummaryInfo struct {
	Currency                string `json:"currency"`
	TotalCents              int64  `json:"totalCents"`
	DepositCents            int64  `json:"depositCents"`
	BondCents               int64  `json:"bondCents"`
	PaidCents               int64  `json:"paidCents"`
	RefundedCents           int64  `json:"refundedCents"`
	BalanceCents            int64  `json:"balanceCents"`
	DepositOutstandingCents int64  `json:"depositOutstandingCents"`
	HeldCents               int64  `json:"heldCents"`
	DepositSatisfied        bool   `json:"depositSatisfied"`
}

// SummaryFromPayments converts a payments.Summary for the API.
func SummaryFromPayments(s payments.Summary) *SummaryInfo {
	return &SummaryInfo{
		Currency:                s.Account.Currency,
		TotalCents:              s.Account.TotalCents,
		DepositCents:            s.Account.DepositCents,
		BondCents:               s.Account.BondCents,
		PaidCents:               s.PaidCents,
		RefundedCents:           s.RefundedCents,
		BalanceCents:            s.BalanceCents,
		DepositOutstandingCents: s.DepositOutstandingCents,
		HeldCents:               s.HeldCents,
		DepositSatisfied:        s.DepositSatisfied,
	}
}

// CustomerRequest creates or updates a customer. A customer needs at least a
// first name or an email.
// swagger:model CustomerRequest
type CustomerRequest struct {
	FirstName     string `json:"firstName" validate:"required_without=Email,max=100"`
	LastName      string `json:"lastName" validate:"max=100"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"omitempty,phone"`
	LicenceNumber string `json:"licenceNumber" validate:"max=50"`
}

// UpdateCustomerRequest changes the non-empty fields of a customer.
// swagger:model UpdateCustomerRequest
type UpdateCustomerRequest struct {
	FirstName     string `json:"firstName" validate:"max=100"`
	LastName      string `json:"lastName" validate:"max=100"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"omitempty,phone"`
	LicenceNumber string `json:"licenceNumber" validate:"max=50"`
}

// CustomersResponse is a page of customers.
// swagger:model CustomersResponse
type CustomersResponse struct {
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Customers   []db.Customer `json:"customers"`
}

// BookingRequest creates a booking. Either CustomerID names an existing
// customer or Customer describes a new one, matched by email.
// swagger:model BookingRequest
type BookingRequest struct {
	CustomerID     string           `json:"customerId" validate:"required_without=Customer,omitempty,mongodb"`
	Customer       *CustomerRequest `json:"customer,omitempty" validate:"omitempty"`
	Vehicle        string           `json:"vehicle" validate:"required,max=200"`
	PickupAt       time.Time        `json:"pickupAt" validate:"required"`
	ReturnAt       time.Time        `json:"returnAt" validate:"required,gtfield=PickupAt"`
	PickupLocation string           `json:"pickupLocation" validate:"max=200"`
	ReturnLocation string           `json:"returnLocation" validate:"max=200"`
	Currency       string           `json:"currency" validate:"omitempty,currency"`
	TotalCents     int64            `json:"totalCents" validate:"gte=0"`
	DepositCents   int64            `json:"depositCents" validate:"gte=0,ltefield=TotalCents"`
	BondCents      int64            `json:"bondCents" validate:"gte=0"`
	Notes          string           `json:"notes" validate:"max=2000"`
}

// UpdateBookingRequest changes the non-zero fields of a booking.
// swagger:model UpdateBookingRequest
type UpdateBookingRequest struct {
	CustomerID     string           `json:"customerId" validate:"omitempty,mongodb"`
	Vehicle        string           `json:"vehicle" validate:"max=200"`
	PickupAt       time.Time        `json:"pickupAt"`
	ReturnAt       time.Time        `json:"returnAt"`
	PickupLocation string           `json:"pickupLocation" validate:"max=200"`
	ReturnLocation string           `json:"returnLocation" validate:"max=200"`
	Status         db.BookingStatus `json:"status" validate:"omitempty,oneof=pending confirmed completed"`
	Currency       string           `json:"currency" validate:"omitempty,currency"`
	TotalCents     int64            `json:"totalCents" validate:"gte=0"`
	DepositCents   int64            `json:"depositCents" validate:"gte=0"`
	BondCents      int64            `json:"bondCents" validate:"gte=0"`
	Notes          string           `json:"notes" validate:"max=2000"`
}

// BookingInfo is a booking with its customer, portal link and payment
// position.
// swagger:model BookingInfo
type BookingInfo struct {
	*db.Booking
	Customer  *db.Customer `json:"customer,omitempty"`
	PortalURL string       `json:"portalUrl,omitempty"`
	Summary   *SummaryInfo `json:"summary,omitempty"`
}

// BookingsResponse is a page of bookings.
// swagger:model BookingsResponse
type BookingsResponse struct {
	TotalPages  int          `json:"totalPages"`
	CurrentPage int          `json:"currentPage"`
	Bookings    []db.Booking `json:"bookings"`
}

// FlowRequest creates or replaces a flow.
// swagger:model FlowRequest
type FlowRequest struct {
	Name           string               `json:"name" validate:"required,max=100"`
	Slug           string               `json:"slug" validate:"required,slug,max=64"`
	Brand          string               `json:"brand" validate:"max=100"`
	Currency       string               `json:"currency" validate:"omitempty,currency"`
	DepositType    payments.DepositType `json:"depositType" validate:"required,oneof=percent fixed"`
	DepositValue   int64                `json:"depositValue" validate:"gte=0"`
	BondCents      int64                `json:"bondCents" validate:"gte=0"`
	BalanceDueDays int                  `json:"balanceDueDays" validate:"gte=0,lte=365"`
}

// FlowsResponse is a page of flows.
// swagger:model FlowsResponse
type FlowsResponse struct {
	TotalPages  int       `json:"totalPages"`
	CurrentPage int       `json:"currentPage"`
	Flows       []db.Flow `json:"flows"`
}

// JobRequest creates a job under a flow.
// swagger:model JobRequest
type JobRequest struct {
	Flow       string           `json:"flow" validate:"required,slug"`
	CustomerID string           `json:"customerId" validate:"required_without=Customer,omitempty,mongodb"`
	Customer   *CustomerRequest `json:"customer,omitempty" validate:"omitempty"`
	Vehicle    string           `json:"vehicle" validate:"required,max=200"`
	StartAt    time.Time        `json:"startAt" validate:"required"`
	EndAt      time.Time        `json:"endAt" validate:"required,gtfield=StartAt"`
	Currency   string           `json:"currency" validate:"omitempty,currency"`
	TotalCents int64            `json:"totalCents" validate:"gte=0"`
}

// UpdateJobRequest changes the non-zero fields of a job.
// swagger:model UpdateJobRequest
type UpdateJobRequest struct {
	Flow       string           `json:"flow" validate:"omitempty,slug"`
	CustomerID string           `json:"customerId" validate:"omitempty,mongodb"`
	Vehicle    string           `json:"vehicle" validate:"max=200"`
	StartAt    time.Time        `json:"startAt"`
	EndAt      time.Time        `json:"endAt"`
	Status     db.BookingStatus `json:"status" validate:"omitempty,oneof=pending confirmed completed"`
	Currency   string           `json:"currency" validate:"omitempty,currency"`
	TotalCents int64            `json:"totalCents" validate:"gte=0"`
}

// JobInfo is a job with its flow, customer, portal link and payment position.
// swagger:model JobInfo
type JobInfo struct {
	*db.Job
	Flow         *db.Flow     `json:"flow,omitempty"`
	Customer     *db.Customer `json:"customer,omitempty"`
	PortalURL    string       `json:"portalUrl,omitempty"`
	BalanceDueAt time.Time    `json:"balanceDueAt"`
	Summary      *SummaryInfo `json:"summary,omitempty"`
}

// JobsResponse is a page of jobs.
// swagger:model JobsResponse
type JobsResponse struct {
	TotalPages  int      `json:"totalPages"`
	CurrentPage int      `json:"currentPage"`
	Jobs        []db.Job `json:"jobs"`
}

// PaymentsResponse lists the payments and offline deposits of an owner.
// swagger:model PaymentsResponse
type PaymentsResponse struct {
	Payments []db.Payment `json:"payments"`
	Deposits []db.Deposit `json:"deposits"`
	Summary  *SummaryInfo `json:"summary"`
}

// DepositRequest records an offline deposit. Amount is a decimal string in
// major units, e.g. "150.00".
// swagger:model DepositRequest
type DepositRequest struct {
	Amount     string           `json:"amount" validate:"required,amount"`
	Method     db.DepositMethod `json:"method" validate:"omitempty,oneof=cash bank_transfer card_terminal other"`
	Note       string           `json:"note" validate:"max=500"`
	ReceivedAt time.Time        `json:"receivedAt"`
}

// PortalTokenResponse returns a rotated portal token.
// swagger:model PortalTokenResponse
type PortalTokenResponse struct {
	PortalToken string `json:"portalToken"`
	PortalURL   string `json:"portalUrl"`
}

// AmountRequest carries an optional amount in cents. Zero means the whole
// capturable or refundable amount.
// swagger:model AmountRequest
type AmountRequest struct {
	AmountCents int64 `json:"amountCents" validate:"gte=0"`
}

// PaymentRequestRequest creates a payment request and optionally sends its
// link to the customer.
// swagger:model PaymentRequestRequest
type PaymentRequestRequest struct {
	OwnerType   payments.OwnerType `json:"ownerType" validate:"required,oneof=booking job"`
	Reference   string             `json:"reference" validate:"required"`
	Amount      string             `json:"amount" validate:"required,amount"`
	Description string             `json:"description" validate:"required,max=500"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	SendEmail   bool               `json:"sendEmail"`
	SendSMS     bool               `json:"sendSms"`
}

// PaymentRequestInfo is a payment request with its payable link.
// swagger:model PaymentRequestInfo
type PaymentRequestInfo struct {
	*db.PaymentRequest
	Status db.RequestStatus `json:"status"`
	URL    string           `json:"url"`
}

// PaymentRequestsResponse is a page of payment requests.
// swagger:model PaymentRequestsResponse
type PaymentRequestsResponse struct {
	TotalPages  int                  `json:"totalPages"`
	CurrentPage int                  `json:"currentPage"`
	Requests    []PaymentRequestInfo `json:"requests"`
}

// PublicPaymentRequest is what the payer sees of a payment request.
// swagger:model PublicPaymentRequest
type PublicPaymentRequest struct {
	Brand       string           `json:"brand,omitempty"`
	Reference   string           `json:"reference"`
	AmountCents int64            `json:"amountCents"`
	Currency    string           `json:"currency"`
	Description string           `json:"description"`
	Status      db.RequestStatus `json:"status"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}

// PortalPayment is a payment as shown to the customer.
// swagger:model PortalPayment
type PortalPayment struct {
	Kind        payments.Kind   `json:"kind"`
	Status      payments.Status `json:"status"`
	AmountCents int64           `json:"amountCents"`
	PaidCents   int64           `json:"paidCents"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// PortalPaymentFromDb hides the internal fields of a payment.
func PortalPaymentFromDb(p *db.Payment) PortalPayment {
	return PortalPayment{
		Kind:        p.Kind,
		Status:      p.Status,
		AmountCents: p.AmountCents,
		PaidCents:   p.AmountReceivedCents - p.AmountRefundedCents,
		CreatedAt:   p.CreatedAt,
	}
}

// PortalInfo is the customer view of a booking or job.
// swagger:model PortalInfo
type PortalInfo struct {
	Type         payments.OwnerType  `json:"type"`
	Reference    string              `json:"reference"`
	Brand        string              `json:"brand,omitempty"`
	Status       db.BookingStatus    `json:"status"`
	Vehicle      string              `json:"vehicle"`
	StartAt      time.Time           `json:"startAt"`
	EndAt        time.Time           `json:"endAt"`
	CustomerName string              `json:"customerName,omitempty"`
	BondStatus   payments.BondStatus `json:"bondStatus"`
	Summary      *SummaryInfo        `json:"summary"`
	Payments     []PortalPayment     `json:"payments"`
	Documents    []db.Document       `json:"documents"`
}

// PortalPaymentRequest asks for the intent of a deposit or balance payment.
// swagger:model PortalPaymentRequest
type PortalPaymentRequest struct {
	Kind payments.Kind `json:"kind" validate:"required,oneof=deposit balance"`
}

// IntentResponse is what the payer needs to confirm a PaymentIntent with
// Stripe.js.
// swagger:model IntentResponse
type IntentResponse = stripe.IntentResult

// VEVSImportRequest bounds a VEVS import by pickup date.
// swagger:model VEVSImportRequest
type VEVSImportRequest struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required,gtfield=From"`
}

// DreamDrivesImportRequest imports the Dream Drives bookings changed since a
// date. A zero date imports everything.
// swagger:model DreamDrivesImportRequest
type DreamDrivesImportRequest struct {
	Since time.Time `json:"since"`
}

// ImportRunsResponse is a page of import runs.
// swagger:model ImportRunsResponse
type ImportRunsResponse struct {
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	Runs        []db.ImportRun `json:"runs"`
}

// QueuedResponse acknowledges work queued for later processing.
// swagger:model QueuedResponse
type QueuedResponse struct {
	Queued  int `json:"queued"`
	Pending int `json:"pending"`
}
