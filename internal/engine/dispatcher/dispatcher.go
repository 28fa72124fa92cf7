// Package dispatcher drains the notification queue and delivers signed webhooks
// to merchants with a bounded number of attempts per job.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/engine/scheduler"
	"github.com/vly-payment-engine/internal/metrics"
	"github.com/vly-payment-engine/internal/signature"
)

const taskName = "dispatcher"

// MerchantLookup resolves the signing secret of a job's merchant
type MerchantLookup interface {
	GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error)
}

// Sender performs a single webhook POST
type Sender interface {
	Deliver(ctx context.Context, job *notification.Job, body []byte, sig string) error
}

type Config struct {
	BatchSize int
	PoolSize  int
	Clock     func() time.Time
}

type Dispatcher struct {
	queue     notification.Queue
	merchants MerchantLookup
	sender    Sender
	sink      FailureSink
	pool      *ants.Pool
	batchSize int
	clock     func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger
	guard     scheduler.Guard
}

func New(
	queue notification.Queue,
	merchants MerchantLookup,
	sender Sender,
	sink FailureSink,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Dispatcher, error) {
	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher worker pool: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}

	return &Dispatcher{
		queue:     queue,
		merchants: merchants,
		sender:    sender,
		sink:      sink,
		pool:      pool,
		batchSize: cfg.BatchSize,
		clock:     cfg.Clock,
		metrics:   m,
		logger:    logger,
	}, nil
}

func (d *Dispatcher) Name() string {
	return taskName
}

// RunOnce delivers one batch of pending jobs
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	err := d.guard.Run(func() error {
		return d.processPendingJobs(ctx)
	})
	if errors.Is(err, scheduler.ErrCycleInProgress) {
		d.metrics.CycleSkipped(taskName)
	}
	return err
}

func (d *Dispatcher) processPendingJobs(ctx context.Context) error {
	jobs, err := d.queue.GetPending(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending notification jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	d.logger.Debug("Processing pending notification jobs", "count", len(jobs))

	var wg sync.WaitGroup
	for _, chain := range byPayment(jobs) {
		chain := chain // per-iteration copy for the pooled closure (go 1.21 loop semantics)
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := d.pool.Submit(func() {
			defer wg.Done()
			d.deliverChain(ctx, chain)
		}); err != nil {
			wg.Done()
			d.logger.Error("Failed to submit notification jobs to worker pool",
				"payment_id", chain[0].PaymentID.String(),
				"error", err,
			)
		}
	}
	wg.Wait()

	return ctx.Err()
}

// byPayment splits a queue-ordered batch into per-payment chains, keeping the
// queue order inside each chain.
func byPayment(jobs []*notification.Job) [][]*notification.Job {
	index := make(map[uuid.UUID]int)
	var chains [][]*notification.Job
	for _, job := range jobs {
		i, ok := index[job.PaymentID]
		if !ok {
			i = len(chains)
			index[job.PaymentID] = i
			chains = append(chains, nil)
		}
		chains[i] = append(chains[i], job)
	}
	return chains
}

// deliverChain sends one payment's jobs in order. A job that stays queued holds
// back the ones behind it until the next cycle, so a merchant never sees a later
// status before an earlier one.
func (d *Dispatcher) deliverChain(ctx context.Context, chain []*notification.Job) {
	for i, job := range chain {
		if ctx.Err() != nil {
			return
		}
		if !d.deliver(ctx, job) {
			if held := len(chain) - i - 1; held > 0 {
				d.logger.Debug("Holding back later notifications for payment",
					"payment_id", job.PaymentID.String(),
					"held", held,
				)
			}
			return
		}
	}
}

// deliver makes one attempt at a job and reports whether the job left the queue.
// Queue updates run detached from ctx so a shutdown never loses the record of an
// attempt that was already made.
func (d *Dispatcher) deliver(ctx context.Context, job *notification.Job) bool {
	logger := d.logger.With(
		"job_id", job.ID,
		"payment_id", job.PaymentID.String(),
		"event", string(job.Event),
	)
	storeCtx := context.WithoutCancel(ctx)

	m, err := d.merchants.GetMerchant(ctx, job.MerchantID)
	if err != nil {
		// Not a delivery attempt; the job stays queued untouched
		logger.Error("Failed to load merchant for notification", "merchant_id", job.MerchantID.String(), "error", err)
		return false
	}

	// Stored payloads may come back re-encoded (JSONB does not keep key order),
	// so sign the canonical form the receiver will rebuild.
	canonical, _, err := notification.Canonicalize(job.Payload)
	if err != nil {
		logger.Error("Failed to canonicalize webhook payload", "error", err)
		return false
	}
	sig := signature.Sign(m.SecretKey, canonical)
	body, err := notification.SignedBody(canonical, sig)
	if err != nil {
		logger.Error("Failed to build webhook body", "error", err)
		return false
	}
	job.Signature = sig

	start := time.Now()
	deliveryErr := d.sender.Deliver(ctx, job, body, sig)
	elapsed := time.Since(start)

	if deliveryErr == nil {
		job.MarkDelivered(d.clock())
		if err := d.queue.MarkDelivered(storeCtx, job.ID); err != nil {
			logger.Error("Failed to mark notification as delivered", "error", err)
		}
		d.metrics.Delivery(string(job.Event), metrics.DeliveryDelivered, elapsed)
		logger.Info("Webhook delivered", "attempt", job.AttemptCount+1)
		return true
	}

	if errors.Is(deliveryErr, ErrEndpointUnavailable) {
		// Nothing was POSTed, so the attempt budget is untouched
		d.metrics.Delivery(string(job.Event), metrics.DeliveryDeferred, elapsed)
		logger.Warn("Webhook endpoint unavailable, deferring delivery",
			"attempts", job.AttemptCount,
			"error", deliveryErr,
		)
		return false
	}

	job.RecordFailure(deliveryErr, d.clock())
	if err := d.queue.RecordAttempt(storeCtx, job); err != nil {
		logger.Error("Failed to record delivery attempt", "error", err)
	}

	if !job.Exhausted() {
		d.metrics.Delivery(string(job.Event), metrics.DeliveryRetry, elapsed)
		logger.Warn("Webhook delivery failed, will retry",
			"attempt", job.AttemptCount,
			"max_attempts", job.MaxAttempts,
			"error", deliveryErr,
		)
		return false
	}

	job.MarkFailed(d.clock())
	if err := d.queue.MarkFailed(storeCtx, job.ID); err != nil {
		logger.Error("Failed to mark notification as failed", "error", err)
	}
	d.metrics.Delivery(string(job.Event), metrics.DeliveryFailed, elapsed)
	if err := d.sink.RecordFailure(storeCtx, job); err != nil {
		logger.Error("Failed to record permanent notification failure", "error", err)
	}
	return true
}

// Release stops the worker pool. Call after the scheduler has stopped.
func (d *Dispatcher) Release() {
	d.logger.Info("Releasing dispatcher worker pool", "running_workers", d.pool.Running())
	d.pool.Release()
}
