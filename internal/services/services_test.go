package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/threadlane/threadlane/internal/catalog"
	"github.com/threadlane/threadlane/internal/db"
	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/shoperr"
)

// The fakes below mirror the store guarantees the services lean on: guarded
// transitions, idempotent payment marking, and atomic voucher redemption.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOrderStore struct {
	orders    map[uuid.UUID]*models.Order
	refunds   *fakeRefundStore
	createErr error
	seq       int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (s *fakeOrderStore) add(order *models.Order) *models.Order {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Code == "" {
		s.seq++
		order.Code = fmt.Sprintf("TL-%06d", s.seq)
	}
	s.orders[order.ID] = order
	return order
}

func (s *fakeOrderStore) Create(ctx context.Context, order *models.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.add(order)
	order.CreatedAt = time.Now()
	return nil
}

func (s *fakeOrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, shoperr.NotFound("order not found")
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) GetByGatewaySession(ctx context.Context, sessionID string) (*models.Order, error) {
	for _, order := range s.orders {
		if order.GatewaySessionID == sessionID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, shoperr.NotFound("order not found")
}

func (s *fakeOrderStore) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*models.Order, error) {
	var out []*models.Order
	for _, order := range s.orders {
		if order.CustomerID == customerID {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) List(ctx context.Context, limit int) ([]*models.Order, error) {
	var out []*models.Order
	for _, order := range s.orders {
		copied := *order
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeOrderStore) Transition(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, actor models.Actor, note string) error {
	order, ok := s.orders[orderID]
	if !ok {
		return shoperr.NotFound("order not found")
	}
	if order.Status != from {
		return shoperr.Conflict(fmt.Sprintf("order status changed concurrently: expected %s, found %s", from, order.Status))
	}
	order.Status = to
	if to == models.StatusCompleted {
		order.CompletedAt = time.Now()
	}
	order.History = append(order.History, models.StatusChange{
		OrderID: orderID, FromStatus: from, ToStatus: to,
		ActorID: actor.ID, ActorRole: actor.Role, Note: note,
	})
	return nil
}

func (s *fakeOrderStore) Cancel(ctx context.Context, params db.CancelParams) error {
	order, ok := s.orders[params.OrderID]
	if !ok {
		return shoperr.NotFound("order not found")
	}
	if order.Status != params.From {
		return shoperr.Conflict("order status changed concurrently")
	}
	order.Status = models.StatusCancelled
	order.CancelReason = params.Reason
	if params.Refund != nil {
		if s.refunds == nil {
			s.refunds = newFakeRefundStore(s)
		}
		if err := s.refunds.insert(params.Refund); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeOrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return false, shoperr.NotFound("order not found")
	}
	if order.PaymentStatus == models.PaymentPaid {
		return false, nil
	}
	order.PaymentStatus = models.PaymentPaid
	order.GatewayPaymentID = gatewayPaymentID
	order.PaidAt = time.Now()
	return true, nil
}

func (s *fakeOrderStore) UpdateGatewaySession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	order, ok := s.orders[orderID]
	if !ok {
		return shoperr.InvalidTransition("order is not an unpaid gateway order")
	}
	if order.PaymentMethod != models.PaymentMethodGateway || order.PaymentStatus != models.PaymentUnpaid {
		return shoperr.InvalidTransition("order is not an unpaid gateway order")
	}
	order.GatewaySessionID = sessionID
	return nil
}

func (s *fakeOrderStore) MarkPaidByAdmin(ctx context.Context, orderID uuid.UUID) error {
	order, ok := s.orders[orderID]
	if !ok {
		return shoperr.Conflict("order is not an unpaid cod order")
	}
	if order.PaymentMethod != models.PaymentMethodCOD || order.PaymentStatus != models.PaymentUnpaid {
		return shoperr.Conflict("order is not an unpaid cod order")
	}
	order.PaymentStatus = models.PaymentPaid
	order.PaidAt = time.Now()
	return nil
}

type fakeRefundStore struct {
	orders  *fakeOrderStore
	refunds map[uuid.UUID]*models.Refund
}

func newFakeRefundStore(orders *fakeOrderStore) *fakeRefundStore {
	return &fakeRefundStore{orders: orders, refunds: make(map[uuid.UUID]*models.Refund)}
}

func (s *fakeRefundStore) insert(refund *models.Refund) error {
	for _, existing := range s.refunds {
		if existing.OrderID == refund.OrderID && existing.Active() {
			return shoperr.Conflict("an active refund already exists for this order")
		}
	}
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	refund.RequestedAt = time.Now()
	s.refunds[refund.ID] = refund
	return nil
}

func (s *fakeRefundStore) Create(ctx context.Context, refund *models.Refund, actor models.Actor) error {
	order, ok := s.orders.orders[refund.OrderID]
	if !ok {
		return shoperr.NotFound("order not found")
	}
	if order.Status != models.StatusShipped {
		return shoperr.InvalidTransition(fmt.Sprintf("refunds can only be requested for shipped orders, order is %s", order.Status))
	}
	if err := s.insert(refund); err != nil {
		return err
	}
	order.Status = models.StatusRefundRequested
	return nil
}

func (s *fakeRefundStore) GetByID(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	refund, ok := s.refunds[refundID]
	if !ok {
		return nil, shoperr.NotFound("refund not found")
	}
	copied := *refund
	return &copied, nil
}

func (s *fakeRefundStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Refund, error) {
	var out []*models.Refund
	for _, refund := range s.refunds {
		if refund.OrderID == orderID {
			copied := *refund
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeRefundStore) ListByStatus(ctx context.Context, status models.RefundStatus, limit int) ([]*models.Refund, error) {
	var out []*models.Refund
	for _, refund := range s.refunds {
		if refund.Status == status {
			copied := *refund
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeRefundStore) Approve(ctx context.Context, refundID uuid.UUID, actor models.Actor) error {
	refund, ok := s.refunds[refundID]
	if !ok {
		return shoperr.NotFound("refund not found")
	}
	if refund.Status != models.RefundPending {
		return shoperr.InvalidRefundTransition(fmt.Sprintf("refund is %s, expected %s", refund.Status, models.RefundPending))
	}
	refund.Status = models.RefundApproved
	refund.ApprovedAt = time.Now()
	return nil
}

func (s *fakeRefundStore) Reject(ctx context.Context, refundID uuid.UUID, reason string, actor models.Actor) error {
	refund, ok := s.refunds[refundID]
	if !ok {
		return shoperr.NotFound("refund not found")
	}
	if refund.Status != models.RefundPending {
		return shoperr.InvalidRefundTransition(fmt.Sprintf("refund is %s, expected %s", refund.Status, models.RefundPending))
	}
	refund.Status = models.RefundRejected
	refund.RejectReason = reason
	if order, ok := s.orders.orders[refund.OrderID]; ok && order.Status == models.StatusRefundRequested {
		order.Status = models.StatusShipped
	}
	return nil
}

func (s *fakeRefundStore) MarkRefunded(ctx context.Context, refundID uuid.UUID, proofImage string, actor models.Actor) error {
	refund, ok := s.refunds[refundID]
	if !ok {
		return shoperr.NotFound("refund not found")
	}
	if refund.Status != models.RefundApproved {
		return shoperr.InvalidRefundTransition(fmt.Sprintf("refund is %s, expected %s", refund.Status, models.RefundApproved))
	}
	refund.Status = models.RefundDone
	refund.ProofImage = proofImage
	refund.RefundedAt = time.Now()
	if order, ok := s.orders.orders[refund.OrderID]; ok && order.Status == models.StatusRefundRequested {
		order.Status = models.StatusRefunded
	}
	return nil
}

type fakeVoucherStore struct {
	vouchers map[string]*models.Voucher
	released []string
}

func newFakeVoucherStore(vouchers ...*models.Voucher) *fakeVoucherStore {
	s := &fakeVoucherStore{vouchers: make(map[string]*models.Voucher)}
	for _, v := range vouchers {
		s.vouchers[v.Code] = v
	}
	return s
}

func (s *fakeVoucherStore) Create(ctx context.Context, voucher *models.Voucher) error {
	if _, exists := s.vouchers[voucher.Code]; exists {
		return shoperr.Conflict(fmt.Sprintf("voucher code %s already exists", voucher.Code))
	}
	if voucher.ID == uuid.Nil {
		voucher.ID = uuid.New()
	}
	s.vouchers[voucher.Code] = voucher
	return nil
}

func (s *fakeVoucherStore) Update(ctx context.Context, voucher *models.Voucher) error {
	existing, ok := s.vouchers[voucher.Code]
	if !ok {
		return shoperr.NotFound("voucher not found")
	}
	voucher.ID = existing.ID
	s.vouchers[voucher.Code] = voucher
	return nil
}

func (s *fakeVoucherStore) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	voucher, ok := s.vouchers[code]
	if !ok {
		return nil, shoperr.NotFound("voucher not found")
	}
	copied := *voucher
	return &copied, nil
}

func (s *fakeVoucherStore) List(ctx context.Context, limit int) ([]*models.Voucher, error) {
	var out []*models.Voucher
	for _, voucher := range s.vouchers {
		copied := *voucher
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeVoucherStore) Redeem(ctx context.Context, code string) error {
	voucher, ok := s.vouchers[code]
	if !ok {
		return shoperr.NotFound("voucher not found")
	}
	if !voucher.Active || voucher.UsedCount >= voucher.UsageLimit {
		return shoperr.VoucherIneligible("usage_exhausted")
	}
	voucher.UsedCount++
	return nil
}

func (s *fakeVoucherStore) Release(ctx context.Context, code string) error {
	if voucher, ok := s.vouchers[code]; ok && voucher.UsedCount > 0 {
		voucher.UsedCount--
	}
	s.released = append(s.released, code)
	return nil
}

type fakeGateway struct {
	failCreate bool
	sessions   int
}

func (g *fakeGateway) CreateOrderSession(ctx context.Context, order *models.Order) (*stripe.CheckoutSession, error) {
	if g.failCreate {
		return nil, fmt.Errorf("gateway unavailable")
	}
	g.sessions++
	id := fmt.Sprintf("cs_test_%d", g.sessions)
	return &stripe.CheckoutSession{
		ID:          id,
		URL:         "https://pay.example.com/" + id,
		AmountTotal: order.TotalCents,
	}, nil
}

type recordingEmailSender struct {
	placed   []string
	paid     []string
	decision []string
}

func (r *recordingEmailSender) SendOrderPlaced(ctx context.Context, order *models.Order) error {
	r.placed = append(r.placed, order.Code)
	return nil
}

func (r *recordingEmailSender) SendPaymentReceived(ctx context.Context, order *models.Order) error {
	r.paid = append(r.paid, order.Code)
	return nil
}

func (r *recordingEmailSender) SendRefundDecision(ctx context.Context, order *models.Order, refund *models.Refund) error {
	r.decision = append(r.decision, fmt.Sprintf("%s:%s", order.Code, refund.Status))
	return nil
}

func testCatalog() *catalog.ShopCatalog {
	return &catalog.ShopCatalog{
		Shop: catalog.ShopConfig{
			Name:     "Threadlane",
			Currency: "usd",
			Shipping: catalog.ShippingConfig{FlatRateCents: 500},
		},
		Products: []catalog.ProductConfig{
			{
				SKU:    "TEE_CLASSIC",
				Name:   "Classic Tee",
				Active: true,
				Variations: []catalog.VariationConfig{
					{SKU: "TEE_CLASSIC_BLK_M", Attributes: map[string]string{"color": "black", "size": "M"}, UnitPriceCents: 120000},
					{SKU: "TEE_CLASSIC_BLK_L", Attributes: map[string]string{"color": "black", "size": "L"}, UnitPriceCents: 120000, SalePriceCents: 90000},
				},
			},
			{
				SKU:    "HOODIE_RETIRED",
				Name:   "Retired Hoodie",
				Active: false,
				Variations: []catalog.VariationConfig{
					{SKU: "HOODIE_RETIRED_GRY_M", Attributes: map[string]string{"color": "grey", "size": "M"}, UnitPriceCents: 250000},
				},
			},
		},
	}
}

func percentVoucher(code string, percent int, capCents, minSubtotal int64, limit int) *models.Voucher {
	return &models.Voucher{
		ID:               uuid.New(),
		Code:             code,
		Name:             code,
		Type:             models.VoucherPercent,
		DiscountPercent:  percent,
		MaxDiscountCents: capCents,
		MinSubtotalCents: minSubtotal,
		UsageLimit:       limit,
		StartsAt:         time.Now().Add(-time.Hour),
		ExpiresAt:        time.Now().Add(time.Hour),
		Active:           true,
	}
}

func customerActor(id uuid.UUID) models.Actor {
	return models.Actor{ID: id.String(), Role: models.RoleCustomer}
}

var adminActor = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
