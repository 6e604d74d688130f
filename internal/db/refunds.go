package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/shoperr"
)

type RefundStore struct {
	pool *pgxpool.Pool
}

func NewRefundStore(pool *pgxpool.Pool) *RefundStore {
	return &RefundStore{pool: pool}
}

// Create opens a refund for a shipped order. The parent order row is locked
// for the duration of the transaction, so two concurrent requests cannot both
// pass the single-active-refund check. The order status is projected to
// refund_requested in the same transaction.
func (s *RefundStore) Create(ctx context.Context, refund *models.Refund, actor models.Actor) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, refund.OrderID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return shoperr.NotFound("order not found")
		}
		if err != nil {
			return err
		}
		if models.OrderStatus(status) != models.StatusShipped {
			return shoperr.InvalidTransition(fmt.Sprintf("refunds can only be requested for shipped orders, order is %s", status))
		}

		if err := insertRefund(ctx, tx, refund); err != nil {
			return err
		}

		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $1 WHERE id = $2 AND status = $3
		`, string(models.StatusRefundRequested), refund.OrderID, string(models.StatusShipped))
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return shoperr.Conflict("order status changed concurrently")
		}
		return appendHistory(ctx, tx, refund.OrderID, models.StatusShipped, models.StatusRefundRequested, actor, refund.Reason)
	})
}

// insertRefund enforces the at-most-one-active-refund rule. Callers must hold
// a lock on the parent order row.
func insertRefund(ctx context.Context, tx pgx.Tx, refund *models.Refund) error {
	var active bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM refunds WHERE order_id = $1 AND status IN ($2, $3)
		)
	`, refund.OrderID, string(models.RefundPending), string(models.RefundApproved)).Scan(&active)
	if err != nil {
		return err
	}
	if active {
		return shoperr.Conflict("an active refund already exists for this order")
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO refunds (order_id, type, status, amount_cents, reason, bank_name, bank_account_name, bank_account_number, evidence_images)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, requested_at
	`,
		refund.OrderID, string(refund.Type), string(refund.Status), refund.AmountCents, refund.Reason,
		refund.Bank.BankName, refund.Bank.AccountName, refund.Bank.AccountNumber, refund.EvidenceImages,
	)
	var requestedAt pgtype.Timestamptz
	if err := row.Scan(&refund.ID, &requestedAt); err != nil {
		return fmt.Errorf("failed to insert refund: %w", err)
	}
	refund.RequestedAt = requestedAt.Time
	return nil
}

func (s *RefundStore) GetByID(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, refundID)
	refund, err := scanRefund(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shoperr.NotFound("refund not found")
	}
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (s *RefundStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Refund, error) {
	return s.list(ctx, `WHERE order_id = $1 ORDER BY requested_at DESC`, orderID)
}

func (s *RefundStore) ListByStatus(ctx context.Context, status models.RefundStatus, limit int) ([]*models.Refund, error) {
	return s.list(ctx, `WHERE status = $1 ORDER BY requested_at DESC LIMIT $2`, string(status), limit)
}

// Approve moves pending → approved. The status guard in the UPDATE makes the
// loser of two simultaneous approvals fail instead of double-approving.
func (s *RefundStore) Approve(ctx context.Context, refundID uuid.UUID, actor models.Actor) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE refunds SET status = $1, approved_at = now()
			WHERE id = $2 AND status = $3
		`, string(models.RefundApproved), refundID, string(models.RefundPending))
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return s.refundConflict(ctx, tx, refundID, models.RefundPending)
		}
		return nil
	})
}

// Reject moves pending → rejected and restores the parent order to shipped
// when the request had projected refund_requested onto it.
func (s *RefundStore) Reject(ctx context.Context, refundID uuid.UUID, reason string, actor models.Actor) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var orderID uuid.UUID
		err := tx.QueryRow(ctx, `
			UPDATE refunds SET status = $1, reject_reason = $2
			WHERE id = $3 AND status = $4
			RETURNING order_id
		`, string(models.RefundRejected), reason, refundID, string(models.RefundPending)).Scan(&orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.refundConflict(ctx, tx, refundID, models.RefundPending)
		}
		if err != nil {
			return err
		}

		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $1 WHERE id = $2 AND status = $3
		`, string(models.StatusShipped), orderID, string(models.StatusRefundRequested))
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() > 0 {
			return appendHistory(ctx, tx, orderID, models.StatusRefundRequested, models.StatusShipped, actor, "refund rejected: "+reason)
		}
		return nil
	})
}

// MarkRefunded moves approved → refunded, records the payout proof, and
// projects refunded onto the parent order when it is still refund_requested.
// Cancelled orders keep their terminal status.
func (s *RefundStore) MarkRefunded(ctx context.Context, refundID uuid.UUID, proofImage string, actor models.Actor) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var orderID uuid.UUID
		err := tx.QueryRow(ctx, `
			UPDATE refunds SET status = $1, proof_image = $2, refunded_at = now()
			WHERE id = $3 AND status = $4
			RETURNING order_id
		`, string(models.RefundDone), proofImage, refundID, string(models.RefundApproved)).Scan(&orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.refundConflict(ctx, tx, refundID, models.RefundApproved)
		}
		if err != nil {
			return err
		}

		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $1 WHERE id = $2 AND status = $3
		`, string(models.StatusRefunded), orderID, string(models.StatusRefundRequested))
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() > 0 {
			return appendHistory(ctx, tx, orderID, models.StatusRefundRequested, models.StatusRefunded, actor, "refund paid out")
		}
		return nil
	})
}

func (s *RefundStore) refundConflict(ctx context.Context, tx pgx.Tx, refundID uuid.UUID, expected models.RefundStatus) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT status FROM refunds WHERE id = $1`, refundID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return shoperr.NotFound("refund not found")
	}
	if err != nil {
		return err
	}
	return shoperr.InvalidRefundTransition(fmt.Sprintf("refund is %s, expected %s", current, expected))
}

const refundColumns = `
	id, order_id, type, status, amount_cents, reason,
	bank_name, bank_account_name, bank_account_number,
	evidence_images, proof_image, reject_reason,
	requested_at, approved_at, refunded_at
`

func (s *RefundStore) list(ctx context.Context, tail string, args ...any) ([]*models.Refund, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+refundColumns+` FROM refunds `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []*models.Refund
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, refund)
	}
	return refunds, rows.Err()
}

func scanRefund(row pgx.Row) (*models.Refund, error) {
	var (
		refund                            models.Refund
		refundType, status                string
		proofImage, rejectReason          pgtype.Text
		requestedAt, approvedAt, refunded pgtype.Timestamptz
	)
	err := row.Scan(
		&refund.ID, &refund.OrderID, &refundType, &status, &refund.AmountCents, &refund.Reason,
		&refund.Bank.BankName, &refund.Bank.AccountName, &refund.Bank.AccountNumber,
		&refund.EvidenceImages, &proofImage, &rejectReason,
		&requestedAt, &approvedAt, &refunded,
	)
	if err != nil {
		return nil, err
	}

	refund.Type = models.RefundType(refundType)
	refund.Status = models.RefundStatus(status)
	refund.ProofImage = proofImage.String
	refund.RejectReason = rejectReason.String
	refund.RequestedAt = requestedAt.Time
	if approvedAt.Valid {
		refund.ApprovedAt = approvedAt.Time
	}
	if refunded.Valid {
		refund.RefundedAt = refunded.Time
	}
	return &refund, nil
}
