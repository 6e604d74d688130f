package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/shoperr"
)

type VoucherStore struct {
	pool *pgxpool.Pool
}

func NewVoucherStore(pool *pgxpool.Pool) *VoucherStore {
	return &VoucherStore{pool: pool}
}

func (s *VoucherStore) Create(ctx context.Context, voucher *models.Voucher) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO vouchers (
			code, name, description, type, discount_percent, amount_cents,
			max_discount_cents, min_subtotal_cents, usage_limit, starts_at, expires_at, active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`,
		voucher.Code, voucher.Name, voucher.Description, string(voucher.Type),
		voucher.DiscountPercent, voucher.AmountCents, voucher.MaxDiscountCents,
		voucher.MinSubtotalCents, voucher.UsageLimit, voucher.StartsAt, voucher.ExpiresAt, voucher.Active,
	)

	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&voucher.ID, &createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return shoperr.Conflict(fmt.Sprintf("voucher code %s already exists", voucher.Code))
		}
		return fmt.Errorf("failed to insert voucher: %w", err)
	}
	voucher.CreatedAt = createdAt.Time
	voucher.UpdatedAt = updatedAt.Time
	return nil
}

// Update edits everything except the code, which is immutable once issued.
func (s *VoucherStore) Update(ctx context.Context, voucher *models.Voucher) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE vouchers SET
			name = $1, description = $2, type = $3, discount_percent = $4, amount_cents = $5,
			max_discount_cents = $6, min_subtotal_cents = $7, usage_limit = $8,
			starts_at = $9, expires_at = $10, active = $11, updated_at = now()
		WHERE code = $12
	`,
		voucher.Name, voucher.Description, string(voucher.Type), voucher.DiscountPercent,
		voucher.AmountCents, voucher.MaxDiscountCents, voucher.MinSubtotalCents,
		voucher.UsageLimit, voucher.StartsAt, voucher.ExpiresAt, voucher.Active, voucher.Code,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return shoperr.NotFound("voucher not found")
	}
	return nil
}

func (s *VoucherStore) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code)
	voucher, err := scanVoucher(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shoperr.NotFound("voucher not found")
	}
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

func (s *VoucherStore) List(ctx context.Context, limit int) ([]*models.Voucher, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vouchers []*models.Voucher
	for rows.Next() {
		voucher, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, voucher)
	}
	return vouchers, rows.Err()
}

// Redeem consumes one use atomically. The usage check and the increment are a
// single statement, so concurrent checkouts cannot over-redeem.
func (s *VoucherStore) Redeem(ctx context.Context, code string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE vouchers SET used_count = used_count + 1, updated_at = now()
		WHERE code = $1 AND active AND used_count < usage_limit
	`, code)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vouchers WHERE code = $1)`, code).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shoperr.NotFound("voucher not found")
	}
	return shoperr.VoucherIneligible("usage_exhausted")
}

// Release returns a consumed use, for when placement fails after redemption.
func (s *VoucherStore) Release(ctx context.Context, code string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE vouchers SET used_count = greatest(used_count - 1, 0), updated_at = now()
		WHERE code = $1
	`, code)
	return err
}

const voucherColumns = `
	id, code, name, description, type, discount_percent, amount_cents,
	max_discount_cents, min_subtotal_cents, usage_limit, used_count,
	starts_at, expires_at, active, created_at, updated_at
`

func scanVoucher(row pgx.Row) (*models.Voucher, error) {
	var (
		voucher              models.Voucher
		voucherType          string
		startsAt, expiresAt  pgtype.Timestamptz
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&voucher.ID, &voucher.Code, &voucher.Name, &voucher.Description, &voucherType,
		&voucher.DiscountPercent, &voucher.AmountCents, &voucher.MaxDiscountCents,
		&voucher.MinSubtotalCents, &voucher.UsageLimit, &voucher.UsedCount,
		&startsAt, &expiresAt, &voucher.Active, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	voucher.Type = models.VoucherType(voucherType)
	voucher.StartsAt = startsAt.Time
	voucher.ExpiresAt = expiresAt.Time
	voucher.CreatedAt = createdAt.Time
	voucher.UpdatedAt = updatedAt.Time
	return &voucher, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
