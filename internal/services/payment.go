package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/threadlane/threadlane/internal/cache"
	"github.com/threadlane/threadlane/internal/logging"
	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/observability"
	"github.com/threadlane/threadlane/internal/shoperr"
)

// Callback events are remembered this long; the gateway stops retrying well
// before that.
const callbackDedupTTL = 24 * time.Hour

// PaymentService owns everything after "the customer owes money": issuing new
// payment sessions and settling orders from signed gateway callbacks.
type PaymentService struct {
	orderStore  orderStore
	gateway     gatewayClient
	cache       cache.Provider
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewPaymentService(orderStore orderStore, gateway gatewayClient, cacheProvider cache.Provider, emailSender OrderEmailSender, logger *slog.Logger) *PaymentService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	return &PaymentService{
		orderStore:  orderStore,
		gateway:     gateway,
		cache:       cacheProvider,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Retry issues a fresh payment session for an unpaid gateway order, replacing
// any stale session reference. The order itself is untouched.
func (s *PaymentService) Retry(ctx context.Context, actor models.Actor, orderID uuid.UUID) (string, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.retry",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("Retry"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.Count("payment.retry.received", 1)

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if err := requireOrderAccess(order, actor); err != nil {
		return "", err
	}
	if order.PaymentMethod != models.PaymentMethodGateway {
		return "", shoperr.Validation("only gateway orders have payment sessions")
	}
	if order.PaymentStatus == models.PaymentPaid {
		return "", shoperr.Conflict("order is already paid")
	}
	if order.Status.Terminal() || order.Status == models.StatusCancelled {
		return "", shoperr.InvalidTransition(fmt.Sprintf("cannot pay a %s order", order.Status))
	}

	session, err := s.gateway.CreateOrderSession(ctx, order)
	if err != nil {
		meter.Count("checkout.session.failed", 1, sentry.WithAttributes(
			attribute.String("source", "retry"),
		))
		return "", fmt.Errorf("failed to create payment session: %w", err)
	}
	if err := s.orderStore.UpdateGatewaySession(ctx, orderID, session.ID); err != nil {
		return "", err
	}
	meter.Count("checkout.session.created", 1, sentry.WithAttributes(
		attribute.String("source", "retry"),
	))
	s.loggerFromContext(ctx).Info("payment session reissued", "order_id", orderID, "session_id", session.ID)

	return session.URL, nil
}

// HandleCallback settles an order from a verified gateway event. Replays are
// absorbed twice over: a cache of seen event IDs short-circuits most of them,
// and MarkPaid itself treats an already-paid order as a no-op. The charged
// amount is checked against the order before anything is recorded.
func (s *PaymentService) HandleCallback(ctx context.Context, event *stripe.Event) error {
	span := sentry.StartSpan(
		ctx,
		"service.payment.handle_callback",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("HandleCallback"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.Count("payment.callback.received", 1, sentry.WithAttributes(
		attribute.String("event_type", string(event.Type)),
	))

	if event.Type != "checkout.session.completed" {
		return nil
	}

	dedupKey := cache.WebhookKey("gateway", event.ID)
	if s.cache != nil {
		if _, err := s.cache.Get(ctx, dedupKey); err == nil {
			meter.Count("payment.callback.duplicate", 1)
			logger.Info("skipping already-processed callback", "event_id", event.ID)
			return nil
		} else if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("callback dedup lookup failed", "error", err, "event_id", event.ID)
		}
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session from event: %w", err)
	}

	order, err := s.orderStore.GetByGatewaySession(ctx, session.ID)
	if err != nil {
		meter.Count("payment.callback.failed", 1, sentry.WithAttributes(
			attribute.String("reason", "order_not_found"),
		))
		return fmt.Errorf("no order for session %s: %w", session.ID, err)
	}

	if session.AmountTotal != order.TotalCents {
		meter.Count("payment.callback.failed", 1, sentry.WithAttributes(
			attribute.String("reason", "amount_mismatch"),
		))
		return fmt.Errorf("callback amount %d does not match order %s total %d", session.AmountTotal, order.Code, order.TotalCents)
	}

	paymentID := ""
	if session.PaymentIntent != nil {
		paymentID = session.PaymentIntent.ID
	}
	changed, err := s.orderStore.MarkPaid(ctx, order.ID, paymentID)
	if err != nil {
		meter.Count("payment.callback.failed", 1, sentry.WithAttributes(
			attribute.String("reason", "mark_paid_failed"),
		))
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dedupKey, "processed", callbackDedupTTL); err != nil {
			logger.Warn("failed to record callback dedup key", "error", err, "event_id", event.ID)
		}
	}

	if !changed {
		logger.Info("order already paid, callback replay", "order_id", order.ID, "event_id", event.ID)
		return nil
	}
	meter.Count("payment.succeeded", 1)
	logger.Info("payment recorded", "order_id", order.ID, "order_code", order.Code, "amount_cents", order.TotalCents)

	order.PaymentStatus = models.PaymentPaid
	if err := s.emailSender.SendPaymentReceived(ctx, order); err != nil {
		logger.Warn("failed to send payment received email", "error", err, "order_id", order.ID)
	}
	return nil
}
