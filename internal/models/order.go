package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusWaitingConfirm  OrderStatus = "waiting_confirm"
	StatusConfirmed       OrderStatus = "confirmed"
	StatusShipping        OrderStatus = "shipping"
	StatusShipped         OrderStatus = "shipped"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRefundRequested OrderStatus = "refund_requested"
	StatusRefunded        OrderStatus = "refunded"
)

// orderTransitions is the only place legal status edges are declared. The
// refund projections (refund_requested, refunded) are intentionally absent:
// they are written by the refund workflow, never by a direct advance call.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusWaitingConfirm: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusShipping, StatusCancelled},
	StatusShipping:       {StatusShipped},
	StatusShipped:        {StatusCompleted},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusWaitingConfirm, StatusConfirmed, StatusShipping, StatusShipped,
		StatusCompleted, StatusCancelled, StatusRefundRequested, StatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether s → target is a declared edge.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s == StatusWaitingConfirm || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodGateway PaymentMethod = "gateway"
)

type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleAdmin    ActorRole = "admin"
	RoleSystem   ActorRole = "system"
)

// Actor identifies who drove a transition, for history attribution.
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

var SystemActor = Actor{ID: "system", Role: RoleSystem}

// BankInfo is the payout routing detail required whenever money already
// collected has to be returned.
type BankInfo struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

func (b BankInfo) Complete() bool {
	return b.BankName != "" && b.AccountName != "" && b.AccountNumber != ""
}

type Order struct {
	ID               uuid.UUID      `json:"id"`
	Code             string         `json:"code"`
	CustomerID       uuid.UUID      `json:"customer_id"`
	CustomerEmail    string         `json:"customer_email,omitempty"`
	Items            []OrderItem    `json:"items"`
	RecipientName    string         `json:"recipient_name"`
	RecipientPhone   string         `json:"recipient_phone"`
	ShippingAddress  string         `json:"shipping_address"`
	Note             string         `json:"note"`
	PaymentMethod    PaymentMethod  `json:"payment_method"`
	Status           OrderStatus    `json:"status"`
	PaymentStatus    PaymentStatus  `json:"payment_status"`
	SubtotalCents    int64          `json:"subtotal_cents"`
	ShippingCents    int64          `json:"shipping_cents"`
	DiscountCents    int64          `json:"discount_cents"`
	TotalCents       int64          `json:"total_cents"`
	VoucherCode      string         `json:"voucher_code,omitempty"`
	CancelReason     string         `json:"cancel_reason,omitempty"`
	GatewaySessionID string         `json:"gateway_session_id,omitempty"`
	GatewayPaymentID string         `json:"gateway_payment_id,omitempty"`
	History          []StatusChange `json:"history,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	PaidAt           time.Time      `json:"paid_at,omitzero"`
	CompletedAt      time.Time      `json:"completed_at,omitzero"`
}

// OrderItem is an immutable snapshot of a purchased variation; later catalog
// edits never change historical orders.
type OrderItem struct {
	ID             uuid.UUID         `json:"id"`
	OrderID        uuid.UUID         `json:"order_id"`
	VariationSKU   string            `json:"variation_sku"`
	ProductName    string            `json:"product_name"`
	Attributes     map[string]string `json:"attributes"`
	UnitPriceCents int64             `json:"unit_price_cents"`
	SalePriceCents int64             `json:"sale_price_cents,omitempty"`
	Quantity       int               `json:"quantity"`
}

// EffectiveUnitCents is the price the line was actually charged at.
func (i OrderItem) EffectiveUnitCents() int64 {
	if i.SalePriceCents > 0 {
		return i.SalePriceCents
	}
	return i.UnitPriceCents
}

// StatusChange is one append-only history record on an order.
type StatusChange struct {
	ID         uuid.UUID   `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ActorID    string      `json:"actor_id"`
	ActorRole  ActorRole   `json:"actor_role"`
	Note       string      `json:"note,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
