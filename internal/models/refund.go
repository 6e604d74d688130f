package models

import (
	"time"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
	RefundDone     RefundStatus = "refunded"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundPending:  {RefundApproved, RefundRejected},
	RefundApproved: {RefundDone},
}

func (s RefundStatus) Valid() bool {
	switch s {
	case RefundPending, RefundApproved, RefundRejected, RefundDone:
		return true
	}
	return false
}

func (s RefundStatus) Terminal() bool {
	return s == RefundRejected || s == RefundDone
}

func (s RefundStatus) CanTransitionTo(target RefundStatus) bool {
	for _, next := range refundTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

type RefundType string

const (
	RefundCancelBeforeShipping RefundType = "cancel_before_shipping"
	RefundBeforeReceiving      RefundType = "before_receiving"
	RefundReturnAfterReceived  RefundType = "return_after_received"
)

func (t RefundType) Valid() bool {
	switch t {
	case RefundCancelBeforeShipping, RefundBeforeReceiving, RefundReturnAfterReceived:
		return true
	}
	return false
}

// Refund is a settlement request against exactly one order. At most one
// non-rejected, non-settled refund may exist per order.
type Refund struct {
	ID             uuid.UUID    `json:"id"`
	OrderID        uuid.UUID    `json:"order_id"`
	Type           RefundType   `json:"type"`
	Status         RefundStatus `json:"status"`
	AmountCents    int64        `json:"amount_cents"`
	Reason         string       `json:"reason"`
	Bank           BankInfo     `json:"bank"`
	EvidenceImages []string     `json:"evidence_images,omitempty"`
	ProofImage     string       `json:"proof_image,omitempty"`
	RejectReason   string       `json:"reject_reason,omitempty"`
	RequestedAt    time.Time    `json:"requested_at"`
	ApprovedAt     time.Time    `json:"approved_at,omitzero"`
	RefundedAt     time.Time    `json:"refunded_at,omitzero"`
}

// Active reports whether the refund still blocks a new request on its order.
func (r *Refund) Active() bool {
	return r.Status == RefundPending || r.Status == RefundApproved
}
