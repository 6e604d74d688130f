// Package services holds the business rules of the settlement engine: order
// and refund state machines, checkout aggregation, voucher administration, and
// gateway payment handling. Services enforce who may do what and in which
// state; the stores enforce atomicity.
package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/threadlane/threadlane/internal/db"
	"github.com/threadlane/threadlane/internal/models"
)

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByGatewaySession(ctx context.Context, sessionID string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*models.Order, error)
	List(ctx context.Context, limit int) ([]*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, actor models.Actor, note string) error
	Cancel(ctx context.Context, params db.CancelParams) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string) (bool, error)
	UpdateGatewaySession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	MarkPaidByAdmin(ctx context.Context, orderID uuid.UUID) error
}

type voucherStore interface {
	Create(ctx context.Context, voucher *models.Voucher) error
	Update(ctx context.Context, voucher *models.Voucher) error
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
	List(ctx context.Context, limit int) ([]*models.Voucher, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

type refundStore interface {
	Create(ctx context.Context, refund *models.Refund, actor models.Actor) error
	GetByID(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Refund, error)
	ListByStatus(ctx context.Context, status models.RefundStatus, limit int) ([]*models.Refund, error)
	Approve(ctx context.Context, refundID uuid.UUID, actor models.Actor) error
	Reject(ctx context.Context, refundID uuid.UUID, reason string, actor models.Actor) error
	MarkRefunded(ctx context.Context, refundID uuid.UUID, proofImage string, actor models.Actor) error
}

type gatewayClient interface {
	CreateOrderSession(ctx context.Context, order *models.Order) (*stripe.CheckoutSession, error)
}

const defaultListLimit = 100
