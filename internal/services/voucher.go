package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/shoperr"
)

// VoucherService is the admin surface for issuing and editing vouchers.
// Eligibility and discount math live in the pricing package; redemption
// accounting lives in the store.
type VoucherService struct {
	voucherStore voucherStore
	logger       *slog.Logger
}

func NewVoucherService(voucherStore voucherStore, logger *slog.Logger) *VoucherService {
	return &VoucherService{voucherStore: voucherStore, logger: logger}
}

func (s *VoucherService) Create(ctx context.Context, actor models.Actor, voucher *models.Voucher) error {
	if actor.Role != models.RoleAdmin {
		return shoperr.Forbidden("only admins can issue vouchers")
	}
	voucher.Code = strings.ToUpper(strings.TrimSpace(voucher.Code))
	if err := validateVoucher(voucher); err != nil {
		return err
	}
	if err := s.voucherStore.Create(ctx, voucher); err != nil {
		return err
	}
	s.logger.Info("voucher issued", "code", voucher.Code, "type", voucher.Type, "usage_limit", voucher.UsageLimit)
	return nil
}

// Update edits a voucher's terms. The code itself never changes; orders
// reference vouchers by code.
func (s *VoucherService) Update(ctx context.Context, actor models.Actor, voucher *models.Voucher) error {
	if actor.Role != models.RoleAdmin {
		return shoperr.Forbidden("only admins can edit vouchers")
	}
	voucher.Code = strings.ToUpper(strings.TrimSpace(voucher.Code))
	if err := validateVoucher(voucher); err != nil {
		return err
	}
	return s.voucherStore.Update(ctx, voucher)
}

func (s *VoucherService) Get(ctx context.Context, actor models.Actor, code string) (*models.Voucher, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can inspect vouchers")
	}
	return s.voucherStore.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *VoucherService) List(ctx context.Context, actor models.Actor) ([]*models.Voucher, error) {
	if actor.Role != models.RoleAdmin {
		return nil, shoperr.Forbidden("only admins can list vouchers")
	}
	return s.voucherStore.List(ctx, defaultListLimit)
}

// validateVoucher enforces the type-exclusive fields: percent vouchers carry a
// percentage and optional cap, amount vouchers carry a fixed amount only.
func validateVoucher(voucher *models.Voucher) error {
	if voucher.Code == "" {
		return shoperr.MissingField("code")
	}
	if voucher.Name == "" {
		return shoperr.MissingField("name")
	}
	if !voucher.Type.Valid() {
		return shoperr.Validation("type must be percent or amount")
	}

	switch voucher.Type {
	case models.VoucherPercent:
		if voucher.DiscountPercent < 1 || voucher.DiscountPercent > 100 {
			return shoperr.Validation("discount_percent must be between 1 and 100")
		}
		if voucher.AmountCents != 0 {
			return shoperr.Validation("amount_cents does not apply to percent vouchers")
		}
		if voucher.MaxDiscountCents < 0 {
			return shoperr.Validation("max_discount_cents cannot be negative")
		}
	case models.VoucherAmount:
		if voucher.AmountCents <= 0 {
			return shoperr.Validation("amount_cents must be positive")
		}
		if voucher.DiscountPercent != 0 {
			return shoperr.Validation("discount_percent does not apply to amount vouchers")
		}
		if voucher.MaxDiscountCents != 0 {
			return shoperr.Validation("max_discount_cents does not apply to amount vouchers")
		}
	}

	if voucher.MinSubtotalCents < 0 {
		return shoperr.Validation("min_subtotal_cents cannot be negative")
	}
	if voucher.UsageLimit <= 0 {
		return shoperr.Validation("usage_limit must be positive")
	}
	if !voucher.StartsAt.Before(voucher.ExpiresAt) {
		return shoperr.Validation("starts_at must be before expires_at")
	}
	return nil
}
