package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/domain/shared"
	"github.com/vly-payment-engine/internal/platform/persistence"
)

const (
	paymentColumns = `id, merchant_id, requested_amount, received_amount, currency, order_id, payment_address,
		status, confirmations, txid, callback_url, created_at, updated_at, expires_at, paid_at, confirmed_at, expired_at`

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	addressConstraint     = "payment_requests_address_key"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// PaymentRepository persists payment requests
type PaymentRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewPaymentRepository(logger *slog.Logger, querier persistence.Querier) *PaymentRepository {
	return &PaymentRepository{
		querier: querier,
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *PaymentRepository) WithTx(tx pgx.Tx) *PaymentRepository {
	return &PaymentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts a new request. A reused address maps to payment.ErrDuplicateAddress
// and an unknown owner to merchant.ErrMerchantNotFound.
func (r *PaymentRepository) Create(ctx context.Context, req *payment.Request) error {
	query := `
		INSERT INTO payment_requests (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.querier.Exec(ctx, query,
		req.ID,
		req.MerchantID,
		req.RequestedAmount,
		req.ReceivedAmount,
		req.Currency,
		req.OrderID,
		req.PaymentAddress,
		req.Status,
		req.Confirmations,
		req.TxID,
		req.CallbackURL,
		req.CreatedAt,
		req.UpdatedAt,
		req.ExpiresAt,
		req.PaidAt,
		req.ConfirmedAt,
		req.ExpiredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == addressConstraint:
				return payment.ErrDuplicateAddress{Address: req.PaymentAddress}
			case pgErr.Code == pgForeignKeyViolation:
				return merchant.ErrMerchantNotFound{MerchantID: req.MerchantID}
			}
		}
		r.logger.Error("Failed to create payment request", "payment_id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to create payment request: %w", err)
	}

	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Request, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetForUpdate reads a request and locks its row until the transaction ends
func (r *PaymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Request, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *PaymentRepository) get(ctx context.Context, query string, id uuid.UUID) (*payment.Request, error) {
	req, err := scanPayment(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound{PaymentID: id}
		}
		r.logger.Error("Failed to get payment request", "payment_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return req, nil
}

// ListActive returns every PENDING or PAID request, oldest first
func (r *PaymentRepository) ListActive(ctx context.Context) ([]*payment.Request, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_requests
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, shared.PaymentStatusPending, shared.PaymentStatusPaid)
	if err != nil {
		r.logger.Error("Failed to list active payment requests", "error", err)
		return nil, fmt.Errorf("failed to list active payment requests: %w", err)
	}
	defer rows.Close()

	var requests []*payment.Request
	for rows.Next() {
		req, err := scanPayment(rows)
		if err != nil {
			r.logger.Error("Failed to scan payment request", "error", err)
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over payment requests", "error", err)
		return nil, fmt.Errorf("error iterating over payment requests: %w", err)
	}

	return requests, nil
}

// Update writes the observed and lifecycle fields of a request
func (r *PaymentRepository) Update(ctx context.Context, req *payment.Request) error {
	query := `
		UPDATE payment_requests
		SET status = $1, received_amount = $2, confirmations = $3, txid = $4, updated_at = $5,
			paid_at = $6, confirmed_at = $7, expired_at = $8
		WHERE id = $9
	`

	result, err := r.querier.Exec(ctx, query,
		req.Status,
		req.ReceivedAmount,
		req.Confirmations,
		req.TxID,
		req.UpdatedAt,
		req.PaidAt,
		req.ConfirmedAt,
		req.ExpiredAt,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update payment request", "payment_id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to update payment request: %w", err)
	}

	if result.RowsAffected() == 0 {
		return payment.ErrPaymentNotFound{PaymentID: req.ID}
	}

	return nil
}

func scanPayment(row rowScanner) (*payment.Request, error) {
	var req payment.Request
	err := row.Scan(
		&req.ID,
		&req.MerchantID,
		&req.RequestedAmount,
		&req.ReceivedAmount,
		&req.Currency,
		&req.OrderID,
		&req.PaymentAddress,
		&req.Status,
		&req.Confirmations,
		&req.TxID,
		&req.CallbackURL,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.ExpiresAt,
		&req.PaidAt,
		&req.ConfirmedAt,
		&req.ExpiredAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
