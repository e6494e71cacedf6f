package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/internal"
	"github.com/rentalhq/backoffice/notifications"
	"github.com/rentalhq/backoffice/notifications/mailtemplates"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/stripe"
	"go.vocdoni.io/dvote/log"
)

// pushMail executes the mail template with data and enqueues it for the
// email address provided. It returns an error if the address is invalid or
// the notification could not be enqueued.
func (a *API) pushMail(to, reference string, mail mailtemplates.MailTemplate, data any) error {
	if !internal.ValidEmail(to) {
		return fmt.Errorf("invalid email address")
	}
	notification, err := mail.ExecTemplate(data)
	if err != nil {
		return err
	}
	notification.ToAddress = to
	_, err = a.notifications.Push(notifications.ChannelEmail, reference, notification)
	return err
}

// pushSMS executes the SMS body of the template with data and enqueues it for
// the phone number provided.
func (a *API) pushSMS(to, reference string, mail mailtemplates.MailTemplate, data any) error {
	recipient, err := internal.SanitizeAndVerifyPhoneNumber(to, internal.DefaultPhoneCountry)
	if err != nil {
		return err
	}
	notification, err := mail.ExecSMS(data)
	if err != nil {
		return err
	}
	notification.ToNumber = recipient
	_, err = a.notifications.Push(notifications.ChannelSMS, reference, notification)
	return err
}

// sendPaymentRequest enqueues the link of the payment request to the
// customer over the channels asked for, recording each one used. It returns
// the channels the link was queued on.
func (a *API) sendPaymentRequest(pr *db.PaymentRequest, owner *db.Owner, customer *db.Customer,
	email, sms bool,
) []string {
	if a.notifications == nil || customer == nil || (!email && !sms) {
		return nil
	}
	data := mailtemplates.PaymentRequestData{
		Brand:        a.brandOf(owner),
		CustomerName: customer.FullName(),
		Reference:    owner.Reference,
		Currency:     strings.ToUpper(pr.Currency),
		Amount:       payments.FormatAmount(pr.AmountCents),
		Description:  pr.Description,
		Link:         a.payLink(pr.Token),
		ExpiresAt:    pr.ExpiresAt.In(a.location).Format("2 Jan 2006 15:04"),
	}
	var sent []string
	send := func(ch notifications.Channel, push func() error) {
		if err := push(); err != nil {
			log.Warnw("could not send payment request", "channel", ch, "reference", owner.Reference, "error", err)
			return
		}
		if err := a.db.AddPaymentRequestChannel(pr.Token, string(ch)); err != nil {
			log.Warnw("could not record payment request channel", "channel", ch, "error", err)
		}
		sent = append(sent, string(ch))
	}
	if email && customer.Email != "" {
		send(notifications.ChannelEmail, func() error {
			return a.pushMail(customer.Email, owner.Reference, mailtemplates.PaymentRequestNotification, data)
		})
	}
	if sms && customer.Phone != "" {
		send(notifications.ChannelSMS, func() error {
			return a.pushSMS(customer.Phone, owner.Reference, mailtemplates.PaymentRequestNotification, data)
		})
	}
	pr.SentVia = append(pr.SentVia, sent...)
	return sent
}

// ReceiptHook returns the function that emails a receipt to the customer
// when one of their payments succeeds. Bond holds produce no receipt.
func (a *API) ReceiptHook() stripe.SettledFunc {
	return func(_ context.Context, owner *db.Owner, p *db.Payment) {
		if a.notifications == nil || !a.notifications.Enabled(notifications.ChannelEmail) {
			return
		}
		if p.Kind == payments.KindBond {
			return
		}
		customer, err := a.db.Customer(owner.CustomerID)
		if err != nil || customer.Email == "" {
			log.Debugw("no receipt address", "reference", owner.Reference)
			return
		}
		summary, err := a.payments.Summary(owner)
		if err != nil {
			log.Warnw("could not build receipt summary", "reference", owner.Reference, "error", err)
			return
		}
		data := mailtemplates.PaymentReceiptData{
			Brand:        a.brandOf(owner),
			CustomerName: customer.FullName(),
			Reference:    owner.Reference,
			Currency:     strings.ToUpper(p.Currency),
			Amount:       payments.FormatAmount(p.AmountReceivedCents),
			Total:        payments.FormatAmount(summary.Account.TotalCents),
			Paid:         payments.FormatAmount(summary.PaidCents),
			Outstanding:  payments.FormatAmount(summary.BalanceCents),
			Link:         a.portalLink(owner.PortalToken),
		}
		if err := a.pushMail(customer.Email, owner.Reference, mailtemplates.PaymentReceiptNotification, data); err != nil {
			log.Warnw("could not send receipt", "reference", owner.Reference, "error", err)
		}
	}
}
