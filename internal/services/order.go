package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/threadlane/threadlane/internal/db"
	"github.com/threadlane/threadlane/internal/logging"
	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/observability"
	"github.com/threadlane/threadlane/internal/shoperr"
)

// OrderService drives the order lifecycle after placement: fulfilment
// advancement, cancellation, completion, and COD settlement.
type OrderService struct {
	orderStore  orderStore
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewOrderService(orderStore orderStore, emailSender OrderEmailSender, logger *slog.Logger) *OrderService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	return &OrderService{
		orderStore:  orderStore,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Get returns the order with items and history. Customers see only their own
// orders; admins see all.
func (s *OrderService) Get(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOrderAccess(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListForActor(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	if actor.Role == models.RoleAdmin {
		return s.orderStore.List(ctx, defaultListLimit)
	}
	customerID, err := uuid.Parse(actor.ID)
	if err != nil {
		return nil, shoperr.Forbidden("unknown customer identity")
	}
	return s.orderStore.ListByCustomer(ctx, customerID, defaultListLimit)
}

type CancelInput struct {
	Reason string          `json:"reason"`
	Bank   models.BankInfo `json:"bank"`
}

// Cancel ends an order that has not started shipping. A reason is always
// required. When payment was already collected, complete bank details are
// required and a payout refund is opened atomically with the cancellation.
func (s *OrderService) Cancel(ctx context.Context, actor models.Actor, orderID uuid.UUID, input CancelInput) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.cancel",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("Cancel"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	if input.Reason == "" {
		return nil, shoperr.MissingField("reason")
	}

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOrderAccess(order, actor); err != nil {
		return nil, err
	}
	if !order.Status.Cancellable() {
		return nil, shoperr.InvalidTransition(fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
	}

	params := db.CancelParams{
		OrderID: orderID,
		From:    order.Status,
		Reason:  input.Reason,
		Actor:   actor,
	}
	if order.PaymentStatus == models.PaymentPaid {
		if !input.Bank.Complete() {
			return nil, shoperr.Validation("bank details are required to refund a paid order")
		}
		params.Refund = &models.Refund{
			OrderID:     orderID,
			Type:        models.RefundCancelBeforeShipping,
			Status:      models.RefundPending,
			AmountCents: order.TotalCents,
			Reason:      input.Reason,
			Bank:        input.Bank,
		}
	}

	if err := s.orderStore.Cancel(ctx, params); err != nil {
		return nil, err
	}
	meter.Count("order.cancelled", 1, sentry.WithAttributes(
		attribute.String("actor_role", string(actor.Role)),
		attribute.Bool("refund_opened", params.Refund != nil),
	))
	s.loggerFromContext(ctx).Info("order cancelled", "order_id", orderID, "actor_role", actor.Role, "refund_opened", params.Refund != nil)

	return s.orderStore.GetByID(ctx, orderID)
}

// Advance moves the order one step along the fulfilment path. Admin only.
// Cancellation goes through Cancel, which enforces the reason and bank rules.
func (s *OrderService) Advance(ctx context.Context, actor models.Actor, orderID uuid.UUID, target models.OrderStatus) (*models.Order, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can advance orders")
	}
	if !target.Valid() {
		return nil, shoperr.Validation(fmt.Sprintf("unknown status %s", target))
	}
	if target == models.StatusCancelled {
		return nil, shoperr.InvalidTransition("cancellation requires a reason, use the cancel operation")
	}

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, shoperr.InvalidTransition(fmt.Sprintf("cannot move %s order to %s", order.Status, target))
	}

	if err := s.orderStore.Transition(ctx, orderID, order.Status, target, actor, ""); err != nil {
		return nil, err
	}
	s.loggerFromContext(ctx).Info("order advanced", "order_id", orderID, "from", order.Status, "to", target)

	return s.orderStore.GetByID(ctx, orderID)
}

// Complete confirms receipt of a shipped order. The owning customer or an
// admin may complete; completion closes the refund window.
func (s *OrderService) Complete(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOrderAccess(order, actor); err != nil {
		return nil, err
	}
	if order.Status != models.StatusShipped {
		return nil, shoperr.InvalidTransition(fmt.Sprintf("only shipped orders can be completed, order is %s", order.Status))
	}

	if err := s.orderStore.Transition(ctx, orderID, models.StatusShipped, models.StatusCompleted, actor, "order received"); err != nil {
		return nil, err
	}
	return s.orderStore.GetByID(ctx, orderID)
}

// MarkCODPaid records the cash collection for a COD order at hand-over.
func (s *OrderService) MarkCODPaid(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can record cod collection")
	}

	if err := s.orderStore.MarkPaidByAdmin(ctx, orderID); err != nil {
		return nil, err
	}

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.emailSender.SendPaymentReceived(ctx, order); err != nil {
		s.loggerFromContext(ctx).Warn("failed to send payment received email", "error", err, "order_id", orderID)
	}
	return order, nil
}

func requireOrderAccess(order *models.Order, actor models.Actor) error {
	if actor.Role == models.RoleAdmin || actor.Role == models.RoleSystem {
		return nil
	}
	if actor.Role == models.RoleCustomer && actor.ID == order.CustomerID.String() {
		return nil
	}
	return shoperr.Forbidden("order belongs to another customer")
}
