// Package postgres provides the PostgreSQL store backend. Each repository runs on a
// pool or, through WithTx, inside a transaction so a lifecycle transition, the
// merchant counters and the webhook jobs commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/platform/persistence"
)

const merchantColumns = `id, name, callback_url, secret_key, total_payments, total_amount, created_at, updated_at`

// MerchantRepository persists merchants
type MerchantRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

func NewMerchantRepository(logger *slog.Logger, querier persistence.Querier) *MerchantRepository {
	return &MerchantRepository{
		querier: querier,
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *MerchantRepository) WithTx(tx pgx.Tx) *MerchantRepository {
	return &MerchantRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func (r *MerchantRepository) Create(ctx context.Context, m *merchant.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, callback_url, secret_key, total_payments, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		m.ID,
		m.Name,
		m.CallbackURL,
		m.SecretKey,
		m.TotalPayments,
		m.TotalAmount,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create merchant", "merchant_id", m.ID.String(), "error", err)
		return fmt.Errorf("failed to create merchant: %w", err)
	}

	return nil
}

func (r *MerchantRepository) GetByID(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetForUpdate reads a merchant and locks its row until the transaction ends
func (r *MerchantRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *MerchantRepository) get(ctx context.Context, query string, id uuid.UUID) (*merchant.Merchant, error) {
	var m merchant.Merchant
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Name,
		&m.CallbackURL,
		&m.SecretKey,
		&m.TotalPayments,
		&m.TotalAmount,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, merchant.ErrMerchantNotFound{MerchantID: id}
		}
		r.logger.Error("Failed to get merchant", "merchant_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}

	return &m, nil
}

// UpdateTotals writes the aggregate counters
func (r *MerchantRepository) UpdateTotals(ctx context.Context, m *merchant.Merchant) error {
	query := `
		UPDATE merchants
		SET total_payments = $1, total_amount = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, m.TotalPayments, m.TotalAmount, m.UpdatedAt, m.ID)
	if err != nil {
		r.logger.Error("Failed to update merchant totals", "merchant_id", m.ID.String(), "error", err)
		return fmt.Errorf("failed to update merchant totals: %w", err)
	}

	if result.RowsAffected() == 0 {
		return merchant.ErrMerchantNotFound{MerchantID: m.ID}
	}

	return nil
}
