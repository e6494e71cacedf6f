// Package mailtemplates holds the customer notifications sent for payment
// requests and received payments, and renders them from the embedded assets.
package mailtemplates

import "github.com/rentalhq/backoffice/notifications"

// PaymentRequestData fills PaymentRequestNotification. Amounts are already
// formatted.
type PaymentRequestData struct {
	Brand        string
	CustomerName string
	Reference    string
	Currency     string
	Amount       string
	Description  string
	Link         string
	ExpiresAt    string
}

// PaymentReceiptData fills PaymentReceiptNotification.
type PaymentReceiptData struct {
	Brand        string
	CustomerName string
	Reference    string
	Currency     string
	Amount       string
	Total        string
	Paid         string
	Outstanding  string
	Link         string
}

// PaymentRequestNotification asks a customer to pay through a payment link.
var PaymentRequestNotification = MailTemplate{
	File: "payment_request",
	Placeholder: notifications.Notification{
		Subject: "{{.Brand}}: payment request for booking {{.Reference}}",
		PlainBody: `Hi {{.CustomerName}},

A payment of {{.Currency}} {{.Amount}} is due for booking {{.Reference}}.
{{if .Description}}
{{.Description}}
{{end}}
Pay here: {{.Link}}
{{if .ExpiresAt}}
This link expires on {{.ExpiresAt}}.
{{end}}`,
	},
	SMSBody: `{{.Brand}}: {{.Currency}} {{.Amount}} is due for booking {{.Reference}}. Pay here: {{.Link}}`,
}

// PaymentReceiptNotification confirms a received payment.
var PaymentReceiptNotification = MailTemplate{
	File: "payment_receipt",
	Placeholder: notifications.Notification{
		Subject: "{{.Brand}}: payment received for booking {{.Reference}}",
		PlainBody: `Hi {{.CustomerName}},

We received your payment of {{.Currency}} {{.Amount}} for booking {{.Reference}}.

Booking total: {{.Currency}} {{.Total}}
Paid to date: {{.Currency}} {{.Paid}}
Outstanding: {{.Currency}} {{.Outstanding}}

Your booking: {{.Link}}`,
	},
	SMSBody: `{{.Brand}}: we received {{.Currency}} {{.Amount}} for booking {{.Reference}}. Outstanding: {{.Currency}} {{.Outstanding}}.`,
}
