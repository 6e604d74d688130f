package services

import (
	"context"
	"fmt"

	"github.com/threadlane/threadlane/internal/email"
	"github.com/threadlane/threadlane/internal/models"
)

type OrderEmailSender interface {
	SendOrderPlaced(ctx context.Context, order *models.Order) error
	SendPaymentReceived(ctx context.Context, order *models.Order) error
	SendRefundDecision(ctx context.Context, order *models.Order, refund *models.Refund) error
}

type ProviderOrderEmailSender struct {
	provider email.Provider
}

func NewProviderOrderEmailSender(provider email.Provider) *ProviderOrderEmailSender {
	if provider == nil {
		provider = email.NoopProvider{}
	}
	return &ProviderOrderEmailSender{provider: provider}
}

func (s *ProviderOrderEmailSender) SendOrderPlaced(ctx context.Context, order *models.Order) error {
	if order.CustomerEmail == "" {
		return nil
	}
	return s.provider.SendEmail(ctx, &email.Email{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Order %s received", order.Code),
		Text: fmt.Sprintf(
			"Thanks for your order %s.\n\nSubtotal: %d\nShipping: %d\nDiscount: %d\nTotal: %d\n\nWe will confirm it shortly.",
			order.Code, order.SubtotalCents, order.ShippingCents, order.DiscountCents, order.TotalCents,
		),
	})
}

func (s *ProviderOrderEmailSender) SendPaymentReceived(ctx context.Context, order *models.Order) error {
	if order.CustomerEmail == "" {
		return nil
	}
	return s.provider.SendEmail(ctx, &email.Email{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Payment received for order %s", order.Code),
		Text:    fmt.Sprintf("We received your payment of %d for order %s. Your order is being prepared.", order.TotalCents, order.Code),
	})
}

func (s *ProviderOrderEmailSender) SendRefundDecision(ctx context.Context, order *models.Order, refund *models.Refund) error {
	if order.CustomerEmail == "" {
		return nil
	}

	var subject, body string
	switch refund.Status {
	case models.RefundApproved:
		subject = fmt.Sprintf("Refund for order %s approved", order.Code)
		body = fmt.Sprintf("Your refund request of %d for order %s was approved. The payout will follow shortly.", refund.AmountCents, order.Code)
	case models.RefundRejected:
		subject = fmt.Sprintf("Refund for order %s rejected", order.Code)
		body = fmt.Sprintf("Your refund request for order %s was rejected: %s", order.Code, refund.RejectReason)
	case models.RefundDone:
		subject = fmt.Sprintf("Refund for order %s paid out", order.Code)
		body = fmt.Sprintf("Your refund of %d for order %s has been paid out to %s (%s).", refund.AmountCents, order.Code, refund.Bank.AccountName, refund.Bank.BankName)
	default:
		return nil
	}

	return s.provider.SendEmail(ctx, &email.Email{To: order.CustomerEmail, Subject: subject, Text: body})
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderPlaced(ctx context.Context, order *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendPaymentReceived(ctx context.Context, order *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendRefundDecision(ctx context.Context, order *models.Order, refund *models.Refund) error {
	return nil
}
