// Package payments wraps the payment gateway used for non-COD orders.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/threadlane/threadlane/internal/models"
)

// Client creates hosted checkout sessions for gateway-paid orders. The
// gateway's own processing is opaque to the engine; only the redirect
// reference and the signed callback matter.
type Client struct {
	client   *stripe.Client
	baseURL  string
	currency string
}

func NewClient(secretKey, baseURL, currency string) *Client {
	return &Client{
		client:   stripe.NewClient(secretKey),
		baseURL:  baseURL,
		currency: currency,
	}
}

// CreateOrderSession opens a checkout session charging the order's final
// amount. The order id travels in the metadata so the callback can be checked
// against the originating order.
func (c *Client) CreateOrderSession(ctx context.Context, order *models.Order) (*stripe.CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(fmt.Sprintf("%s/orders/%s?payment=success", c.baseURL, order.ID)),
		CancelURL:          stripe.String(fmt.Sprintf("%s/orders/%s?payment=cancelled", c.baseURL, order.ID)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(c.currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Order %s", order.Code)),
					},
					UnitAmount: stripe.Int64(order.TotalCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"order_id":   order.ID.String(),
			"order_code": order.Code,
		},
	}

	sess, err := c.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess, nil
}
