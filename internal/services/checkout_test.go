package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/threadlane/threadlane/internal/catalog"
	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/pricing"
	"github.com/threadlane/threadlane/internal/shoperr"
)

type checkoutFixture struct {
	service  *CheckoutService
	orders   *fakeOrderStore
	vouchers *fakeVoucherStore
	gateway  *fakeGateway
	emails   *recordingEmailSender
}

func newCheckoutFixture(vouchers ...*models.Voucher) *checkoutFixture {
	f := &checkoutFixture{
		orders:   newFakeOrderStore(),
		vouchers: newFakeVoucherStore(vouchers...),
		gateway:  &fakeGateway{},
		emails:   &recordingEmailSender{},
	}
	f.service = NewCheckoutService(
		f.orders, f.vouchers, catalog.NewStaticSource(testCatalog()),
		pricing.NewPricer(), f.gateway, f.emails, testLogger(),
	)
	return f
}

func validInput(customerID uuid.UUID) CheckoutInput {
	return CheckoutInput{
		CustomerID:      customerID,
		CustomerEmail:   "shopper@example.com",
		Lines:           []pricing.CartLine{{VariationSKU: "TEE_CLASSIC_BLK_M", Quantity: 2}},
		RecipientName:   "Sam Rivera",
		RecipientPhone:  "+1 555 0100",
		ShippingAddress: "1 Loom St, Fabric City",
		PaymentMethod:   models.PaymentMethodGateway,
	}
}

func TestPreviewComputesTotals(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(percentVoucher("SPRING20", 20, 50000, 0, 10))

	preview, err := f.service.Preview(context.Background(), CheckoutInput{
		Lines: []pricing.CartLine{
			{VariationSKU: "TEE_CLASSIC_BLK_M", Quantity: 2},
			{VariationSKU: "TEE_CLASSIC_BLK_L", Quantity: 1},
		},
		VoucherCode: "SPRING20",
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	// 2x120000 list + 1x90000 sale.
	if preview.SubtotalCents != 330000 {
		t.Fatalf("subtotal = %d, want 330000", preview.SubtotalCents)
	}
	if preview.ShippingCents != 500 {
		t.Fatalf("shipping = %d, want 500", preview.ShippingCents)
	}
	if !preview.VoucherEligible {
		t.Fatalf("voucher should be eligible, reason %q", preview.VoucherReason)
	}
	// 20% of 330000 = 66000, capped at 50000.
	if preview.DiscountCents != 50000 {
		t.Fatalf("discount = %d, want 50000", preview.DiscountCents)
	}
	if preview.TotalCents != 280500 {
		t.Fatalf("total = %d, want 280500", preview.TotalCents)
	}
}

func TestPreviewIneligibleVoucherIsAdvisory(t *testing.T) {
	t.Parallel()

	expired := percentVoucher("GONE", 10, 0, 0, 10)
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	f := newCheckoutFixture(expired)

	tests := []struct {
		name       string
		code       string
		wantReason string
	}{
		{name: "expired voucher", code: "GONE", wantReason: pricing.ReasonExpired},
		{name: "unknown voucher", code: "NOPE", wantReason: "not_found"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			preview, err := f.service.Preview(context.Background(), CheckoutInput{
				Lines:       []pricing.CartLine{{VariationSKU: "TEE_CLASSIC_BLK_M", Quantity: 1}},
				VoucherCode: tc.code,
			})
			if err != nil {
				t.Fatalf("Preview() error = %v", err)
			}
			if preview.VoucherEligible {
				t.Fatal("voucher should not be eligible")
			}
			if preview.VoucherReason != tc.wantReason {
				t.Fatalf("reason = %q, want %q", preview.VoucherReason, tc.wantReason)
			}
			// Full price quote, nothing reserved.
			if preview.DiscountCents != 0 || preview.TotalCents != 120500 {
				t.Fatalf("got discount %d total %d, want 0 / 120500", preview.DiscountCents, preview.TotalCents)
			}
		})
	}
}

func TestPlaceGatewayOrder(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(percentVoucher("SPRING20", 20, 50000, 0, 10))
	customerID := uuid.New()
	input := validInput(customerID)
	input.VoucherCode = "SPRING20"

	result, err := f.service.Place(context.Background(), input)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	order := result.Order
	if order.Status != models.StatusWaitingConfirm {
		t.Fatalf("status = %s, want %s", order.Status, models.StatusWaitingConfirm)
	}
	if order.PaymentStatus != models.PaymentUnpaid {
		t.Fatalf("payment status = %s, want unpaid", order.PaymentStatus)
	}
	// 240000 subtotal, 48000 discount (under the 50000 cap), 500 shipping.
	if order.TotalCents != 192500 {
		t.Fatalf("total = %d, want 192500", order.TotalCents)
	}
	if result.RedirectURL == "" {
		t.Fatal("expected a payment redirect URL")
	}
	if order.GatewaySessionID == "" {
		t.Fatal("expected the session reference on the order")
	}
	if got := f.vouchers.vouchers["SPRING20"].UsedCount; got != 1 {
		t.Fatalf("voucher used count = %d, want 1", got)
	}
	if len(f.emails.placed) != 1 {
		t.Fatalf("placed emails = %d, want 1", len(f.emails.placed))
	}
}

func TestPlaceCODOrderHasNoRedirect(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture()
	input := validInput(uuid.New())
	input.PaymentMethod = models.PaymentMethodCOD

	result, err := f.service.Place(context.Background(), input)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if result.RedirectURL != "" {
		t.Fatalf("cod order got redirect %q", result.RedirectURL)
	}
	if f.gateway.sessions != 0 {
		t.Fatalf("gateway sessions = %d, want 0", f.gateway.sessions)
	}
}

func TestPlaceIneligibleVoucherIsFatal(t *testing.T) {
	t.Parallel()

	below := percentVoucher("BIGSPEND", 10, 0, 1000000, 10)
	f := newCheckoutFixture(below)
	input := validInput(uuid.New())
	input.VoucherCode = "BIGSPEND"

	_, err := f.service.Place(context.Background(), input)
	if !errors.Is(err, shoperr.VoucherIneligible("")) {
		t.Fatalf("Place() error = %v, want voucher_ineligible", err)
	}
	if len(f.orders.orders) != 0 {
		t.Fatal("no order should be created")
	}
	if f.vouchers.vouchers["BIGSPEND"].UsedCount != 0 {
		t.Fatal("voucher must not be consumed")
	}
}

func TestPlaceUnknownVoucherIsFatal(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture()
	input := validInput(uuid.New())
	input.VoucherCode = "NOPE"

	_, err := f.service.Place(context.Background(), input)
	if !errors.Is(err, shoperr.VoucherIneligible("")) {
		t.Fatalf("Place() error = %v, want voucher_ineligible", err)
	}
}

func TestPlaceRejectsStaleQuotedTotal(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(percentVoucher("SPRING20", 20, 50000, 0, 10))
	input := validInput(uuid.New())
	input.VoucherCode = "SPRING20"
	stale := int64(999999)
	input.ExpectedTotalCents = &stale

	_, err := f.service.Place(context.Background(), input)
	if !errors.Is(err, shoperr.PriceChanged("")) {
		t.Fatalf("Place() error = %v, want price_changed", err)
	}
	if len(f.orders.orders) != 0 {
		t.Fatal("no order should be created")
	}
	if f.vouchers.vouchers["SPRING20"].UsedCount != 0 {
		t.Fatal("voucher must not be consumed on a rejected placement")
	}
}

func TestPlaceMatchingQuotedTotalSucceeds(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture()
	input := validInput(uuid.New())
	expected := int64(240500)
	input.ExpectedTotalCents = &expected

	result, err := f.service.Place(context.Background(), input)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if result.Order.TotalCents != expected {
		t.Fatalf("total = %d, want %d", result.Order.TotalCents, expected)
	}
}

func TestPlaceReleasesVoucherWhenCreateFails(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(percentVoucher("SPRING20", 20, 0, 0, 10))
	f.orders.createErr = fmt.Errorf("connection reset")
	input := validInput(uuid.New())
	input.VoucherCode = "SPRING20"

	if _, err := f.service.Place(context.Background(), input); err == nil {
		t.Fatal("Place() should fail when the store fails")
	}
	if f.vouchers.vouchers["SPRING20"].UsedCount != 0 {
		t.Fatal("redeemed use was not released")
	}
	if len(f.vouchers.released) != 1 {
		t.Fatalf("releases = %d, want 1", len(f.vouchers.released))
	}
}

func TestPlaceSurvivesGatewaySessionFailure(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture()
	f.gateway.failCreate = true

	result, err := f.service.Place(context.Background(), validInput(uuid.New()))
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if result.RedirectURL != "" {
		t.Fatal("redirect should be empty when session creation failed")
	}
	// Order stands, customer retries payment later.
	if len(f.orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(f.orders.orders))
	}
}

func TestPlaceInputValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CheckoutInput)
	}{
		{name: "missing customer", mutate: func(in *CheckoutInput) { in.CustomerID = uuid.Nil }},
		{name: "missing recipient name", mutate: func(in *CheckoutInput) { in.RecipientName = "" }},
		{name: "missing phone", mutate: func(in *CheckoutInput) { in.RecipientPhone = "" }},
		{name: "missing address", mutate: func(in *CheckoutInput) { in.ShippingAddress = "" }},
		{name: "bad payment method", mutate: func(in *CheckoutInput) { in.PaymentMethod = "wire" }},
		{name: "empty cart", mutate: func(in *CheckoutInput) { in.Lines = nil }},
		{name: "unknown sku", mutate: func(in *CheckoutInput) {
			in.Lines = []pricing.CartLine{{VariationSKU: "GHOST", Quantity: 1}}
		}},
		{name: "inactive product", mutate: func(in *CheckoutInput) {
			in.Lines = []pricing.CartLine{{VariationSKU: "HOODIE_RETIRED_GRY_M", Quantity: 1}}
		}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newCheckoutFixture()
			input := validInput(uuid.New())
			tc.mutate(&input)

			_, err := f.service.Place(context.Background(), input)
			if !errors.Is(err, shoperr.Validation("")) {
				t.Fatalf("Place() error = %v, want validation", err)
			}
		})
	}
}
