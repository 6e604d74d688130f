package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/threadlane/threadlane/internal/logging"
	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/observability"
	"github.com/threadlane/threadlane/internal/shoperr"
)

// RefundService runs the refund workflow: customer request against a shipped
// order, then admin review and payout.
type RefundService struct {
	refundStore refundStore
	orderStore  orderStore
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewRefundService(refundStore refundStore, orderStore orderStore, emailSender OrderEmailSender, logger *slog.Logger) *RefundService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	return &RefundService{
		refundStore: refundStore,
		orderStore:  orderStore,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *RefundService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type RefundRequestInput struct {
	Type           models.RefundType `json:"type"`
	Reason         string            `json:"reason"`
	Bank           models.BankInfo   `json:"bank"`
	EvidenceImages []string          `json:"evidence_images"`
}

// Request opens a refund on a shipped, paid order. Always the full order
// amount. The cancel_before_shipping type is reserved for cancellation of paid
// orders and cannot be requested directly.
func (s *RefundService) Request(ctx context.Context, actor models.Actor, orderID uuid.UUID, input RefundRequestInput) (*models.Refund, error) {
	span := sentry.StartSpan(
		ctx,
		"service.refund.request",
		sentry.WithOpName("service.refund"),
		sentry.WithDescription("Request"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	if input.Reason == "" {
		return nil, shoperr.MissingField("reason")
	}
	if !input.Bank.Complete() {
		return nil, shoperr.Validation("complete bank details are required for the payout")
	}
	if !input.Type.Valid() {
		return nil, shoperr.Validation(fmt.Sprintf("unknown refund type %s", input.Type))
	}
	if input.Type == models.RefundCancelBeforeShipping {
		return nil, shoperr.Validation("cancel_before_shipping refunds are opened by cancelling the order")
	}

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOrderAccess(order, actor); err != nil {
		return nil, err
	}
	if order.PaymentStatus != models.PaymentPaid {
		return nil, shoperr.Validation("order has not been paid, nothing to refund")
	}

	refund := &models.Refund{
		OrderID:        orderID,
		Type:           input.Type,
		Status:         models.RefundPending,
		AmountCents:    order.TotalCents,
		Reason:         input.Reason,
		Bank:           input.Bank,
		EvidenceImages: input.EvidenceImages,
	}
	if err := s.refundStore.Create(ctx, refund, actor); err != nil {
		return nil, err
	}
	meter.Count("refund.requested", 1, sentry.WithAttributes(
		attribute.String("type", string(refund.Type)),
	))
	s.loggerFromContext(ctx).Info("refund requested", "refund_id", refund.ID, "order_id", orderID, "amount_cents", refund.AmountCents)

	return refund, nil
}

func (s *RefundService) Get(ctx context.Context, actor models.Actor, refundID uuid.UUID) (*models.Refund, error) {
	refund, err := s.refundStore.GetByID(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin {
		return refund, nil
	}
	order, err := s.orderStore.GetByID(ctx, refund.OrderID)
	if err != nil {
		return nil, err
	}
	if err := requireOrderAccess(order, actor); err != nil {
		return nil, err
	}
	return refund, nil
}

func (s *RefundService) ListByOrder(ctx context.Context, actor models.Actor, orderID uuid.UUID) ([]*models.Refund, error) {
	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOrderAccess(order, actor); err != nil {
		return nil, err
	}
	return s.refundStore.ListByOrder(ctx, orderID)
}

func (s *RefundService) ListPending(ctx context.Context, actor models.Actor) ([]*models.Refund, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can list refunds")
	}
	return s.refundStore.ListByStatus(ctx, models.RefundPending, defaultListLimit)
}

func (s *RefundService) Approve(ctx context.Context, actor models.Actor, refundID uuid.UUID) (*models.Refund, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can approve refunds")
	}

	if err := s.refundStore.Approve(ctx, refundID, actor); err != nil {
		return nil, err
	}
	return s.notifyDecision(ctx, refundID, "refund.approved")
}

// Reject closes a pending refund and, for requested refunds, releases the
// order back to shipped so the customer can complete or request again.
func (s *RefundService) Reject(ctx context.Context, actor models.Actor, refundID uuid.UUID, reason string) (*models.Refund, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can reject refunds")
	}
	if reason == "" {
		return nil, shoperr.MissingField("reason")
	}

	if err := s.refundStore.Reject(ctx, refundID, reason, actor); err != nil {
		return nil, err
	}
	return s.notifyDecision(ctx, refundID, "refund.rejected")
}

// MarkRefunded records the completed payout. Proof of the transfer is
// mandatory; the refund and its order both become terminal.
func (s *RefundService) MarkRefunded(ctx context.Context, actor models.Actor, refundID uuid.UUID, proofImage string) (*models.Refund, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can settle refunds")
	}
	if proofImage == "" {
		return nil, shoperr.MissingField("proof_image")
	}

	if err := s.refundStore.MarkRefunded(ctx, refundID, proofImage, actor); err != nil {
		return nil, err
	}
	return s.notifyDecision(ctx, refundID, "refund.settled")
}

func (s *RefundService) notifyDecision(ctx context.Context, refundID uuid.UUID, metric string) (*models.Refund, error) {
	observability.MeterFromContext(ctx).Count(metric, 1)

	refund, err := s.refundStore.GetByID(ctx, refundID)
	if err != nil {
		return nil, err
	}
	order, err := s.orderStore.GetByID(ctx, refund.OrderID)
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to load order for refund email", "error", err, "refund_id", refundID)
		return refund, nil
	}
	if err := s.emailSender.SendRefundDecision(ctx, order, refund); err != nil {
		s.loggerFromContext(ctx).Warn("failed to send refund decision email", "error", err, "refund_id", refundID)
	}
	return refund, nil
}
