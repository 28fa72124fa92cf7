package dispatcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vly-payment-engine/internal/domain/notification"
)

// FailureSink receives jobs whose retry budget is spent
type FailureSink interface {
	RecordFailure(ctx context.Context, job *notification.Job) error
}

// Sinks fans a failure out to every sink and joins their errors
type Sinks []FailureSink

func (s Sinks) RecordFailure(ctx context.Context, job *notification.Job) error {
	var errs []error
	for _, sink := range s {
		if err := sink.RecordFailure(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes the permanent-failure record to the log
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) RecordFailure(_ context.Context, job *notification.Job) error {
	s.Logger.Error("Webhook notification permanently failed",
		"job_id", job.ID,
		"payment_id", job.PaymentID.String(),
		"merchant_id", job.MerchantID.String(),
		"event", string(job.Event),
		"target_url", job.TargetURL,
		"attempts", job.AttemptCount,
		"last_error", job.LastError,
	)
	return nil
}
