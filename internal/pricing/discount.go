package pricing

import (
	"time"

	"github.com/threadlane/threadlane/internal/models"
)

// Ineligibility sub-reasons returned by ComputeDiscount.
const (
	ReasonInactive       = "inactive"
	ReasonNotStarted     = "not_started"
	ReasonExpired        = "expired"
	ReasonBelowMinimum   = "below_minimum_subtotal"
	ReasonUsageExhausted = "usage_exhausted"
)

// DiscountResult is the outcome of pricing a voucher against a subtotal.
type DiscountResult struct {
	Eligible      bool
	DiscountCents int64
	Reason        string
}

// ComputeDiscount is a pure function of (voucher, subtotal, now). It is
// recomputed server-side at placement time; previously displayed values are
// never trusted.
func ComputeDiscount(voucher *models.Voucher, subtotalCents int64, now time.Time) DiscountResult {
	if !voucher.Active {
		return DiscountResult{Reason: ReasonInactive}
	}
	if now.Before(voucher.StartsAt) {
		return DiscountResult{Reason: ReasonNotStarted}
	}
	if now.After(voucher.ExpiresAt) {
		return DiscountResult{Reason: ReasonExpired}
	}
	if subtotalCents < voucher.MinSubtotalCents {
		return DiscountResult{Reason: ReasonBelowMinimum}
	}
	if voucher.RemainingUses() <= 0 {
		return DiscountResult{Reason: ReasonUsageExhausted}
	}

	var discount int64
	switch voucher.Type {
	case models.VoucherPercent:
		discount = subtotalCents * int64(voucher.DiscountPercent) / 100
		if voucher.MaxDiscountCents > 0 && discount > voucher.MaxDiscountCents {
			discount = voucher.MaxDiscountCents
		}
	case models.VoucherAmount:
		discount = voucher.AmountCents
	}

	// A discount never exceeds the subtotal and never goes negative.
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if discount < 0 {
		discount = 0
	}

	return DiscountResult{Eligible: true, DiscountCents: discount}
}
