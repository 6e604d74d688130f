package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/shoperr"
)

func validVoucher() *models.Voucher {
	return &models.Voucher{
		Code:             "spring20",
		Name:             "Spring Sale",
		Type:             models.VoucherPercent,
		DiscountPercent:  20,
		MaxDiscountCents: 50000,
		UsageLimit:       100,
		StartsAt:         time.Now(),
		ExpiresAt:        time.Now().Add(30 * 24 * time.Hour),
		Active:           true,
	}
}

func TestVoucherCreateNormalizesCode(t *testing.T) {
	t.Parallel()

	store := newFakeVoucherStore()
	service := NewVoucherService(store, testLogger())

	voucher := validVoucher()
	if err := service.Create(context.Background(), adminActor, voucher); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if voucher.Code != "SPRING20" {
		t.Fatalf("code = %q, want SPRING20", voucher.Code)
	}
	if _, ok := store.vouchers["SPRING20"]; !ok {
		t.Fatal("voucher not stored under normalized code")
	}
}

func TestVoucherCreateRejectsDuplicateCode(t *testing.T) {
	t.Parallel()

	store := newFakeVoucherStore()
	service := NewVoucherService(store, testLogger())

	if err := service.Create(context.Background(), adminActor, validVoucher()); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if err := service.Create(context.Background(), adminActor, validVoucher()); !errors.Is(err, shoperr.Conflict("")) {
		t.Fatalf("second Create() error = %v, want conflict", err)
	}
}

func TestVoucherAdminOnly(t *testing.T) {
	t.Parallel()

	store := newFakeVoucherStore()
	service := NewVoucherService(store, testLogger())
	customer := models.Actor{ID: "c1", Role: models.RoleCustomer}

	if err := service.Create(context.Background(), customer, validVoucher()); !errors.Is(err, shoperr.Forbidden("")) {
		t.Fatalf("Create() error = %v, want forbidden", err)
	}
	if _, err := service.List(context.Background(), customer); !errors.Is(err, shoperr.Forbidden("")) {
		t.Fatalf("List() error = %v, want forbidden", err)
	}
}

func TestVoucherValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*models.Voucher)
	}{
		{name: "missing code", mutate: func(v *models.Voucher) { v.Code = "  " }},
		{name: "missing name", mutate: func(v *models.Voucher) { v.Name = "" }},
		{name: "unknown type", mutate: func(v *models.Voucher) { v.Type = "bogo" }},
		{name: "percent out of range low", mutate: func(v *models.Voucher) { v.DiscountPercent = 0 }},
		{name: "percent out of range high", mutate: func(v *models.Voucher) { v.DiscountPercent = 101 }},
		{name: "percent with fixed amount", mutate: func(v *models.Voucher) { v.AmountCents = 1000 }},
		{name: "amount without value", mutate: func(v *models.Voucher) {
			v.Type = models.VoucherAmount
			v.DiscountPercent = 0
			v.MaxDiscountCents = 0
			v.AmountCents = 0
		}},
		{name: "amount with percent", mutate: func(v *models.Voucher) {
			v.Type = models.VoucherAmount
			v.AmountCents = 1000
			v.MaxDiscountCents = 0
		}},
		{name: "amount with cap", mutate: func(v *models.Voucher) {
			v.Type = models.VoucherAmount
			v.AmountCents = 1000
			v.DiscountPercent = 0
		}},
		{name: "negative minimum subtotal", mutate: func(v *models.Voucher) { v.MinSubtotalCents = -1 }},
		{name: "zero usage limit", mutate: func(v *models.Voucher) { v.UsageLimit = 0 }},
		{name: "window inverted", mutate: func(v *models.Voucher) { v.ExpiresAt = v.StartsAt.Add(-time.Hour) }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeVoucherStore()
			service := NewVoucherService(store, testLogger())

			voucher := validVoucher()
			tc.mutate(voucher)
			if err := service.Create(context.Background(), adminActor, voucher); !errors.Is(err, shoperr.Validation("")) {
				t.Fatalf("Create() error = %v, want validation", err)
			}
		})
	}
}

func TestVoucherUpdate(t *testing.T) {
	t.Parallel()

	store := newFakeVoucherStore()
	service := NewVoucherService(store, testLogger())
	if err := service.Create(context.Background(), adminActor, validVoucher()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	edited := validVoucher()
	edited.DiscountPercent = 25
	edited.Active = false
	if err := service.Update(context.Background(), adminActor, edited); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := service.Get(context.Background(), adminActor, "spring20")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DiscountPercent != 25 || got.Active {
		t.Fatalf("update not applied: percent %d active %v", got.DiscountPercent, got.Active)
	}

	missing := validVoucher()
	missing.Code = "GHOST"
	if err := service.Update(context.Background(), adminActor, missing); !errors.Is(err, shoperr.NotFound("")) {
		t.Fatalf("Update() of missing voucher error = %v, want not_found", err)
	}
}
