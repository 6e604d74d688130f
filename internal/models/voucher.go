package models

import (
	"time"

	"github.com/google/uuid"
)

type VoucherType string

const (
	VoucherPercent VoucherType = "percent"
	VoucherAmount  VoucherType = "amount"
)

func (t VoucherType) Valid() bool {
	return t == VoucherPercent || t == VoucherAmount
}

// Voucher is an administrator-issued discount code. The code is immutable once
// issued; eligibility and amount computation live in the pricing package.
type Voucher struct {
	ID               uuid.UUID   `json:"id"`
	Code             string      `json:"code"`
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	Type             VoucherType `json:"type"`
	DiscountPercent  int         `json:"discount_percent,omitempty"`
	AmountCents      int64       `json:"amount_cents,omitempty"`
	MaxDiscountCents int64       `json:"max_discount_cents,omitempty"`
	MinSubtotalCents int64       `json:"min_subtotal_cents"`
	UsageLimit       int         `json:"usage_limit"`
	UsedCount        int         `json:"used_count"`
	StartsAt         time.Time   `json:"starts_at"`
	ExpiresAt        time.Time   `json:"expires_at"`
	Active           bool        `json:"active"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RemainingUses returns how many redemptions are left.
func (v *Voucher) RemainingUses() int {
	remaining := v.UsageLimit - v.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
