package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/shoperr"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts the order, its item snapshots, and the initial history
// record in one transaction. The human order code is assigned from a sequence.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO orders (
				customer_id, customer_email, code, recipient_name, recipient_phone, shipping_address, note,
				payment_method, status, payment_status,
				subtotal_cents, shipping_cents, discount_cents, total_cents,
				voucher_code, gateway_session_id
			)
			VALUES (
				$1, $2, 'TL-' || lpad(nextval('order_code_seq')::text, 6, '0'), $3, $4, $5, $6,
				$7, $8, $9, $10, $11, $12, $13, $14, $15
			)
			RETURNING id, code, created_at
		`,
			order.CustomerID, order.CustomerEmail, order.RecipientName, order.RecipientPhone, order.ShippingAddress, order.Note,
			string(order.PaymentMethod), string(order.Status), string(order.PaymentStatus),
			order.SubtotalCents, order.ShippingCents, order.DiscountCents, order.TotalCents,
			textOrNull(order.VoucherCode), textOrNull(order.GatewaySessionID),
		)

		var createdAt pgtype.Timestamptz
		if err := row.Scan(&order.ID, &order.Code, &createdAt); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		order.CreatedAt = createdAt.Time

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			attrs, err := json.Marshal(item.Attributes)
			if err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, `
				INSERT INTO order_items (order_id, variation_sku, product_name, attributes, unit_price_cents, sale_price_cents, quantity)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, order.ID, item.VariationSKU, item.ProductName, attrs, item.UnitPriceCents, item.SalePriceCents, item.Quantity).Scan(&item.ID); err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		return appendHistory(ctx, tx, order.ID, "", order.Status, models.SystemActor, "order placed")
	})
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.getOrder(ctx, `WHERE id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetByGatewaySession(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := s.getOrder(ctx, `WHERE gateway_session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*models.Order, error) {
	return s.listOrders(ctx, `WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limit)
}

func (s *OrderStore) List(ctx context.Context, limit int) ([]*models.Order, error) {
	return s.listOrders(ctx, `ORDER BY created_at DESC LIMIT $1`, limit)
}

// Transition moves the order along one declared edge. The source status is
// re-checked inside the UPDATE, so a concurrent transition loses with a
// Conflict instead of double-applying.
func (s *OrderStore) Transition(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, actor models.Actor, note string) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		completedAt := ""
		if to == models.StatusCompleted {
			completedAt = ", completed_at = now()"
		}
		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders SET status = $1`+completedAt+` WHERE id = $2 AND status = $3`,
			string(to), orderID, string(from),
		)
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return s.transitionConflict(ctx, tx, orderID, from)
		}
		return appendHistory(ctx, tx, orderID, from, to, actor, note)
	})
}

type CancelParams struct {
	OrderID uuid.UUID
	From    models.OrderStatus
	Reason  string
	Actor   models.Actor
	// Refund, when set, is created in the same transaction. Used when payment
	// was already collected and the money has to flow back.
	Refund *models.Refund
}

// Cancel marks the order cancelled and, for paid orders, opens the payout
// refund atomically with the status change.
func (s *OrderStore) Cancel(ctx context.Context, params CancelParams) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $1, cancel_reason = $2
			WHERE id = $3 AND status = $4
		`, string(models.StatusCancelled), params.Reason, params.OrderID, string(params.From))
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return s.transitionConflict(ctx, tx, params.OrderID, params.From)
		}
		if err := appendHistory(ctx, tx, params.OrderID, params.From, models.StatusCancelled, params.Actor, params.Reason); err != nil {
			return err
		}
		if params.Refund != nil {
			if err := insertRefund(ctx, tx, params.Refund); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkPaid records a successful gateway payment. Replays for an already-paid
// order are a no-op; the returned flag reports whether anything changed.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string) (bool, error) {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $1, gateway_payment_id = $2, paid_at = now()
		WHERE id = $3 AND payment_status = $4
	`, string(models.PaymentPaid), textOrNull(gatewayPaymentID), orderID, string(models.PaymentUnpaid))
	if err != nil {
		return false, err
	}
	if cmdTag.RowsAffected() > 0 {
		return true, nil
	}

	var status string
	err = s.pool.QueryRow(ctx, `SELECT payment_status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, shoperr.NotFound("order not found")
	}
	if err != nil {
		return false, err
	}
	// Already paid: replayed callback, nothing to do.
	return false, nil
}

// UpdateGatewaySession stores a freshly generated checkout session reference.
// Only unpaid gateway orders may be repointed.
func (s *OrderStore) UpdateGatewaySession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders SET gateway_session_id = $1
		WHERE id = $2 AND payment_method = $3 AND payment_status = $4
	`, sessionID, orderID, string(models.PaymentMethodGateway), string(models.PaymentUnpaid))
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return shoperr.InvalidTransition("order is not an unpaid gateway order")
	}
	return nil
}

// MarkPaidByAdmin settles a COD order at hand-over. Guarded the same way as
// gateway payment so two admins cannot both record the collection.
func (s *OrderStore) MarkPaidByAdmin(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders SET payment_status = $1, paid_at = now()
		WHERE id = $2 AND payment_method = $3 AND payment_status = $4
	`, string(models.PaymentPaid), orderID, string(models.PaymentMethodCOD), string(models.PaymentUnpaid))
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return shoperr.Conflict("order is not an unpaid cod order")
	}
	return nil
}

func (s *OrderStore) transitionConflict(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, expected models.OrderStatus) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return shoperr.NotFound("order not found")
	}
	if err != nil {
		return err
	}
	return shoperr.Conflict(fmt.Sprintf("order status changed concurrently: expected %s, found %s", expected, current))
}

func appendHistory(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, from, to models.OrderStatus, actor models.Actor, note string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, actor_role, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, orderID, string(from), string(to), actor.ID, string(actor.Role), note)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

const orderColumns = `
	id, code, customer_id, customer_email, recipient_name, recipient_phone, shipping_address, note,
	payment_method, status, payment_status,
	subtotal_cents, shipping_cents, discount_cents, total_cents,
	voucher_code, cancel_reason, gateway_session_id, gateway_payment_id,
	created_at, paid_at, completed_at
`

func (s *OrderStore) getOrder(ctx context.Context, where string, args ...any) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shoperr.NotFound("order not found")
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) listOrders(ctx context.Context, tail string, args ...any) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := s.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order                                                         models.Order
		paymentMethod, status, paymentStatus                          string
		voucherCode, cancelReason, gatewaySessionID, gatewayPaymentID pgtype.Text
		createdAt, paidAt, completedAt                                pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID, &order.Code, &order.CustomerID, &order.CustomerEmail,
		&order.RecipientName, &order.RecipientPhone, &order.ShippingAddress, &order.Note,
		&paymentMethod, &status, &paymentStatus,
		&order.SubtotalCents, &order.ShippingCents, &order.DiscountCents, &order.TotalCents,
		&voucherCode, &cancelReason, &gatewaySessionID, &gatewayPaymentID,
		&createdAt, &paidAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.Status = models.OrderStatus(status)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.VoucherCode = voucherCode.String
	order.CancelReason = cancelReason.String
	order.GatewaySessionID = gatewaySessionID.String
	order.GatewayPaymentID = gatewayPaymentID.String
	order.CreatedAt = createdAt.Time
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if completedAt.Valid {
		order.CompletedAt = completedAt.Time
	}
	return &order, nil
}

func (s *OrderStore) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, variation_sku, product_name, attributes, unit_price_cents, sale_price_cents, quantity
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		item := models.OrderItem{OrderID: order.ID}
		var attrs []byte
		if err := rows.Scan(&item.ID, &item.VariationSKU, &item.ProductName, &attrs, &item.UnitPriceCents, &item.SalePriceCents, &item.Quantity); err != nil {
			return err
		}
		if attrs != nil {
			if err := json.Unmarshal(attrs, &item.Attributes); err != nil {
				return err
			}
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (s *OrderStore) loadHistory(ctx context.Context, order *models.Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_status, to_status, actor_id, actor_role, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		change := models.StatusChange{OrderID: order.ID}
		var from, to, role string
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&change.ID, &from, &to, &change.ActorID, &role, &change.Note, &createdAt); err != nil {
			return err
		}
		change.FromStatus = models.OrderStatus(from)
		change.ToStatus = models.OrderStatus(to)
		change.ActorRole = models.ActorRole(role)
		change.CreatedAt = createdAt.Time
		order.History = append(order.History, change)
	}
	return rows.Err()
}

func textOrNull(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
