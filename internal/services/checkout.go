package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/threadlane/threadlane/internal/catalog"
	"github.com/threadlane/threadlane/internal/logging"
	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/observability"
	"github.com/threadlane/threadlane/internal/pricing"
	"github.com/threadlane/threadlane/internal/shoperr"
)

// CheckoutService turns a cart into an order. Preview is advisory and changes
// nothing; Place recomputes everything server-side and commits atomically.
type CheckoutService struct {
	orderStore   orderStore
	voucherStore voucherStore
	catalogs     catalog.Source
	pricer       *pricing.Pricer
	gateway      gatewayClient
	emailSender  OrderEmailSender
	logger       *slog.Logger
	now          func() time.Time
}

func NewCheckoutService(orderStore orderStore, voucherStore voucherStore, catalogs catalog.Source, pricer *pricing.Pricer, gateway gatewayClient, emailSender OrderEmailSender, logger *slog.Logger) *CheckoutService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	return &CheckoutService{
		orderStore:   orderStore,
		voucherStore: voucherStore,
		catalogs:     catalogs,
		pricer:       pricer,
		gateway:      gateway,
		emailSender:  emailSender,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CheckoutInput struct {
	CustomerID         uuid.UUID
	CustomerEmail      string
	Lines              []pricing.CartLine
	VoucherCode        string
	RecipientName      string
	RecipientPhone     string
	ShippingAddress    string
	Note               string
	PaymentMethod      models.PaymentMethod
	ExpectedTotalCents *int64
}

// CheckoutPreview is a non-binding quote. An ineligible voucher is reported as
// advisory so the storefront can explain it; nothing is reserved or redeemed.
type CheckoutPreview struct {
	Lines           []pricing.ResolvedLine `json:"lines"`
	SubtotalCents   int64                  `json:"subtotal_cents"`
	ShippingCents   int64                  `json:"shipping_cents"`
	DiscountCents   int64                  `json:"discount_cents"`
	TotalCents      int64                  `json:"total_cents"`
	VoucherCode     string                 `json:"voucher_code,omitempty"`
	VoucherEligible bool                   `json:"voucher_eligible,omitempty"`
	VoucherReason   string                 `json:"voucher_reason,omitempty"`
}

type PlaceResult struct {
	Order *models.Order `json:"order"`
	// RedirectURL points the customer at the hosted payment page for gateway
	// orders. Empty for COD, and when session creation failed and the customer
	// has to retry payment from the order page.
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (s *CheckoutService) Preview(ctx context.Context, input CheckoutInput) (*CheckoutPreview, error) {
	cat := s.catalogs.Catalog()
	lines, err := s.pricer.ResolveLines(cat, input.Lines)
	if err != nil {
		return nil, err
	}

	preview := &CheckoutPreview{
		Lines:         lines,
		SubtotalCents: s.pricer.Subtotal(lines),
		ShippingCents: s.pricer.ShippingCents(cat),
	}

	if input.VoucherCode != "" {
		preview.VoucherCode = input.VoucherCode
		voucher, err := s.voucherStore.GetByCode(ctx, input.VoucherCode)
		switch {
		case shoperr.KindOf(err) == shoperr.KindNotFound:
			preview.VoucherReason = "not_found"
		case err != nil:
			return nil, err
		default:
			result := pricing.ComputeDiscount(voucher, preview.SubtotalCents, s.now())
			preview.VoucherEligible = result.Eligible
			preview.VoucherReason = result.Reason
			preview.DiscountCents = result.DiscountCents
		}
	}

	preview.TotalCents = preview.SubtotalCents + preview.ShippingCents - preview.DiscountCents
	return preview, nil
}

// Place commits the checkout. Prices and discounts are recomputed from the
// live catalog and voucher state; a voucher that no longer applies fails the
// placement, and a stale quoted total is rejected instead of silently charging
// something else.
func (s *CheckoutService) Place(ctx context.Context, input CheckoutInput) (*PlaceResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.place",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Place"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("checkout.place.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("checkout.place.received", 1)

	if err := validatePlaceInput(input); err != nil {
		recordFailure("invalid_input")
		return nil, err
	}

	cat := s.catalogs.Catalog()
	lines, err := s.pricer.ResolveLines(cat, input.Lines)
	if err != nil {
		recordFailure("cart_invalid")
		return nil, err
	}

	subtotal := s.pricer.Subtotal(lines)
	shipping := s.pricer.ShippingCents(cat)

	var discount int64
	if input.VoucherCode != "" {
		voucher, err := s.voucherStore.GetByCode(ctx, input.VoucherCode)
		if shoperr.KindOf(err) == shoperr.KindNotFound {
			recordFailure("voucher_not_found")
			return nil, shoperr.VoucherIneligible("not_found")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load voucher: %w", err)
		}
		result := pricing.ComputeDiscount(voucher, subtotal, s.now())
		if !result.Eligible {
			recordFailure("voucher_ineligible")
			return nil, shoperr.VoucherIneligible(result.Reason)
		}
		discount = result.DiscountCents
	}

	total := subtotal + shipping - discount
	if input.ExpectedTotalCents != nil && *input.ExpectedTotalCents != total {
		recordFailure("price_changed")
		return nil, shoperr.PriceChanged(fmt.Sprintf("total is now %d, quoted %d", total, *input.ExpectedTotalCents))
	}

	if input.VoucherCode != "" {
		// Atomic check-and-increment. A voucher exhausted since the eligibility
		// check fails here, still before anything is written.
		if err := s.voucherStore.Redeem(ctx, input.VoucherCode); err != nil {
			recordFailure("voucher_redeem_failed")
			return nil, err
		}
	}

	order := &models.Order{
		CustomerID:      input.CustomerID,
		CustomerEmail:   input.CustomerEmail,
		Items:           orderItemsFromLines(lines),
		RecipientName:   input.RecipientName,
		RecipientPhone:  input.RecipientPhone,
		ShippingAddress: input.ShippingAddress,
		Note:            input.Note,
		PaymentMethod:   input.PaymentMethod,
		Status:          models.StatusWaitingConfirm,
		PaymentStatus:   models.PaymentUnpaid,
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		DiscountCents:   discount,
		TotalCents:      total,
		VoucherCode:     input.VoucherCode,
	}

	if err := s.orderStore.Create(ctx, order); err != nil {
		recordFailure("order_create_failed")
		if input.VoucherCode != "" {
			if releaseErr := s.voucherStore.Release(ctx, input.VoucherCode); releaseErr != nil {
				logger.Error("failed to release voucher after create failure", "error", releaseErr, "voucher_code", input.VoucherCode)
			}
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	meter.Count("order.placed", 1, sentry.WithAttributes(
		attribute.String("payment_method", string(order.PaymentMethod)),
	))
	logger.Info("order placed", "order_id", order.ID, "order_code", order.Code, "total_cents", order.TotalCents, "payment_method", order.PaymentMethod)

	result := &PlaceResult{Order: order}
	if order.PaymentMethod == models.PaymentMethodGateway {
		session, err := s.gateway.CreateOrderSession(ctx, order)
		if err != nil {
			// The order stands; the customer retries payment from the order
			// page instead of re-placing.
			meter.Count("checkout.session.failed", 1, sentry.WithAttributes(
				attribute.String("source", "place"),
			))
			logger.Error("failed to create payment session", "error", err, "order_id", order.ID)
		} else if err := s.orderStore.UpdateGatewaySession(ctx, order.ID, session.ID); err != nil {
			logger.Error("failed to store payment session", "error", err, "order_id", order.ID)
		} else {
			order.GatewaySessionID = session.ID
			result.RedirectURL = session.URL
			meter.Count("checkout.session.created", 1, sentry.WithAttributes(
				attribute.String("source", "place"),
			))
		}
	}

	if err := s.emailSender.SendOrderPlaced(ctx, order); err != nil {
		logger.Warn("failed to send order placed email", "error", err, "order_id", order.ID)
	}

	return result, nil
}

func validatePlaceInput(input CheckoutInput) error {
	if input.CustomerID == uuid.Nil {
		return shoperr.MissingField("customer_id")
	}
	if input.RecipientName == "" {
		return shoperr.MissingField("recipient_name")
	}
	if input.RecipientPhone == "" {
		return shoperr.MissingField("recipient_phone")
	}
	if input.ShippingAddress == "" {
		return shoperr.MissingField("shipping_address")
	}
	switch input.PaymentMethod {
	case models.PaymentMethodCOD, models.PaymentMethodGateway:
		return nil
	default:
		return shoperr.Validation("payment_method must be cod or gateway")
	}
}

func orderItemsFromLines(lines []pricing.ResolvedLine) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			VariationSKU:   line.VariationSKU,
			ProductName:    line.ProductName,
			Attributes:     line.Attributes,
			UnitPriceCents: line.UnitPriceCents,
			SalePriceCents: line.SalePriceCents,
			Quantity:       line.Quantity,
		})
	}
	return items
}
