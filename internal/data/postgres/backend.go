package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/platform/persistence"
	"github.com/vly-payment-engine/internal/store"
)

// Backend implements store.Backend on top of the three repositories
type Backend struct {
	pool      persistence.TxBeginner
	payments  *PaymentRepository
	merchants *MerchantRepository
	jobs      *NotificationRepository
	logger    *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// NewBackend creates a backend over an open database
func NewBackend(logger *slog.Logger, db *persistence.PostgresDB) *Backend {
	return newBackend(logger, db.Pool())
}

func newBackend(logger *slog.Logger, pool persistence.Pool) *Backend {
	return &Backend{
		pool:      pool,
		payments:  NewPaymentRepository(logger, pool),
		merchants: NewMerchantRepository(logger, pool),
		jobs:      NewNotificationRepository(logger, pool),
		logger:    logger,
	}
}

func (b *Backend) InsertMerchant(ctx context.Context, m *merchant.Merchant) error {
	return b.merchants.Create(ctx, m)
}

func (b *Backend) GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	return b.merchants.GetByID(ctx, id)
}

func (b *Backend) InsertPayment(ctx context.Context, req *payment.Request) error {
	return b.payments.Create(ctx, req)
}

func (b *Backend) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Request, error) {
	return b.payments.GetByID(ctx, id)
}

func (b *Backend) ListActive(ctx context.Context) ([]*payment.Request, error) {
	return b.payments.ListActive(ctx)
}

// Mutate locks the request row, then its merchant row, and applies fn's result in
// the same transaction. Locks are always taken in that order.
func (b *Backend) Mutate(ctx context.Context, id uuid.UUID, fn store.MutateFunc) error {
	return persistence.InTx(ctx, b.pool, func(tx pgx.Tx) error {
		payments := b.payments.WithTx(tx)
		merchants := b.merchants.WithTx(tx)
		jobs := b.jobs.WithTx(tx)

		req, err := payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		m, err := merchants.GetForUpdate(ctx, req.MerchantID)
		if err != nil {
			return err
		}

		mut, err := fn(req, m)
		if err != nil {
			return err
		}
		if !mut.Write {
			return nil
		}

		if err := payments.Update(ctx, req); err != nil {
			return err
		}
		if mut.MerchantChanged {
			if err := merchants.UpdateTotals(ctx, m); err != nil {
				return err
			}
		}
		for _, job := range mut.Jobs {
			if err := jobs.Create(ctx, job); err != nil {
				return err
			}
		}

		b.logger.Debug("Committed payment mutation", "payment_id", id.String(), "jobs", len(mut.Jobs))
		return nil
	})
}

func (b *Backend) GetPending(ctx context.Context, limit int) ([]*notification.Job, error) {
	return b.jobs.GetPending(ctx, limit)
}

func (b *Backend) MarkDelivered(ctx context.Context, id int64) error {
	return b.jobs.MarkDelivered(ctx, id)
}

func (b *Backend) RecordAttempt(ctx context.Context, job *notification.Job) error {
	return b.jobs.RecordAttempt(ctx, job)
}

func (b *Backend) MarkFailed(ctx context.Context, id int64) error {
	return b.jobs.MarkFailed(ctx, id)
}
