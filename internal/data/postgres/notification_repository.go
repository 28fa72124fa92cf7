package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/domain/shared"
	"github.com/vly-payment-engine/internal/platform/persistence"
)

// NotificationRepository implements notification.Queue for PostgreSQL.
// Finished jobs stay in the table with their final status for auditing.
type NotificationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

var _ notification.Queue = (*NotificationRepository)(nil)

func NewNotificationRepository(logger *slog.Logger, querier persistence.Querier) *NotificationRepository {
	return &NotificationRepository{
		querier: querier,
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so jobs are enqueued
// atomically with the transition that produced them.
func (r *NotificationRepository) WithTx(tx pgx.Tx) *NotificationRepository {
	return &NotificationRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new pending job and fills in its ID
func (r *NotificationRepository) Create(ctx context.Context, job *notification.Job) error {
	query := `
		INSERT INTO notification_jobs (payment_id, merchant_id, event, target_url, payload, status, attempt_count, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		job.PaymentID,
		job.MerchantID,
		job.Event,
		job.TargetURL,
		job.Payload,
		job.Status,
		job.AttemptCount,
		job.MaxAttempts,
		job.CreatedAt,
	).Scan(&job.ID)

	if err != nil {
		r.logger.Error("Failed to create notification job",
			"payment_id", job.PaymentID.String(),
			"event", string(job.Event),
			"error", err,
		)
		return fmt.Errorf("failed to create notification job: %w", err)
	}

	return nil
}

// GetPending retrieves a batch of pending jobs in insertion order
func (r *NotificationRepository) GetPending(ctx context.Context, limit int) ([]*notification.Job, error) {
	query := `
		SELECT id, payment_id, merchant_id, event, target_url, payload, status, attempt_count, max_attempts,
			last_error, created_at, last_attempt_at
		FROM notification_jobs
		WHERE status = $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.NotificationStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending notification jobs", "error", err)
		return nil, fmt.Errorf("failed to get pending notification jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*notification.Job
	for rows.Next() {
		var job notification.Job
		err := rows.Scan(
			&job.ID,
			&job.PaymentID,
			&job.MerchantID,
			&job.Event,
			&job.TargetURL,
			&job.Payload,
			&job.Status,
			&job.AttemptCount,
			&job.MaxAttempts,
			&job.LastError,
			&job.CreatedAt,
			&job.LastAttemptAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan notification job", "error", err)
			return nil, fmt.Errorf("failed to scan notification job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over notification jobs", "error", err)
		return nil, fmt.Errorf("error iterating over notification jobs: %w", err)
	}

	return jobs, nil
}

func (r *NotificationRepository) MarkDelivered(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, shared.NotificationStatusDelivered)
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, shared.NotificationStatusFailed)
}

// RecordAttempt stores the retry counter and last error of a failed delivery
func (r *NotificationRepository) RecordAttempt(ctx context.Context, job *notification.Job) error {
	query := `
		UPDATE notification_jobs
		SET attempt_count = $1, last_error = $2, last_attempt_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, job.AttemptCount, job.LastError, job.LastAttemptAt, job.ID)
	if err != nil {
		r.logger.Error("Failed to record notification attempt", "job_id", job.ID, "error", err)
		return fmt.Errorf("failed to record notification attempt: %w", err)
	}

	if result.RowsAffected() == 0 {
		return notification.ErrJobNotFound{ID: job.ID}
	}

	return nil
}

func (r *NotificationRepository) updateStatus(ctx context.Context, id int64, status shared.NotificationStatus) error {
	query := `
		UPDATE notification_jobs
		SET status = $1, last_attempt_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update notification job status",
			"job_id", id,
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to update notification job status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return notification.ErrJobNotFound{ID: id}
	}

	return nil
}
