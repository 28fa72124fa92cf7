// Package reconciler periodically compares every open payment request with what
// the ledger reports for its address and drives the request's lifecycle.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/engine/scheduler"
	"github.com/vly-payment-engine/internal/ledger"
	"github.com/vly-payment-engine/internal/metrics"
	"github.com/vly-payment-engine/internal/store"
)

const taskName = "reconciler"

// Store is the part of the payment store the loop drives
type Store interface {
	ListPending(ctx context.Context) ([]*payment.Request, error)
	ApplyObservation(ctx context.Context, id uuid.UUID, obs payment.Observation) (store.Outcome, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (store.Outcome, error)
	Now() time.Time
}

type Reconciler struct {
	store           Store
	observer        ledger.Observer
	pool            *ants.Pool
	observerTimeout time.Duration
	metrics         *metrics.Metrics
	logger          *slog.Logger
	guard           scheduler.Guard
}

// New creates a reconciler that checks up to poolSize requests at a time
func New(
	s Store,
	observer ledger.Observer,
	poolSize int,
	observerTimeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Reconciler, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler worker pool: %w", err)
	}

	return &Reconciler{
		store:           s,
		observer:        observer,
		pool:            pool,
		observerTimeout: observerTimeout,
		metrics:         m,
		logger:          logger,
	}, nil
}

func (r *Reconciler) Name() string {
	return taskName
}

// RunOnce runs one reconciliation cycle. It returns scheduler.ErrCycleInProgress
// if another cycle has not finished yet.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	err := r.guard.Run(func() error {
		return r.cycle(ctx)
	})
	if errors.Is(err, scheduler.ErrCycleInProgress) {
		r.metrics.CycleSkipped(taskName)
	}
	return err
}

func (r *Reconciler) cycle(ctx context.Context) error {
	start := time.Now()

	requests, err := r.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending payment requests: %w", err)
	}
	if len(requests) == 0 {
		r.logger.Debug("No open payment requests")
		return nil
	}

	var wg sync.WaitGroup
	for _, req := range requests {
		req := req // per-iteration copy for the pooled closure (go 1.21 loop semantics)
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := r.pool.Submit(func() {
			defer wg.Done()
			r.reconcile(ctx, req)
		}); err != nil {
			wg.Done()
			r.logger.Error("Failed to submit payment request to worker pool",
				"payment_id", req.ID.String(),
				"error", err,
			)
		}
	}
	wg.Wait()

	r.metrics.ReconcileCycle(time.Since(start))
	r.logger.Debug("Reconciliation cycle finished",
		"requests", len(requests),
		"duration", time.Since(start).String(),
	)
	return ctx.Err()
}

// reconcile handles a single request. Failures stay local to the request and are
// retried on the next cycle.
func (r *Reconciler) reconcile(ctx context.Context, req *payment.Request) {
	logger := r.logger.With("payment_id", req.ID.String())

	// Expiry wins over anything the ledger might report
	if req.IsDue(r.store.Now()) {
		outcome, err := r.store.MarkExpired(ctx, req.ID)
		if err != nil {
			logger.Error("Failed to expire payment request", "error", err)
			return
		}
		r.record(outcome)
		return
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.observerTimeout)
	obs, err := r.observer.QueryAddress(queryCtx, req.PaymentAddress)
	cancel()
	if err != nil {
		logger.Warn("Ledger query failed, retrying next cycle", "address", req.PaymentAddress, "error", err)
		r.metrics.ObserverError()
		return
	}
	if !obs.HasFunds() {
		return
	}

	outcome, err := r.store.ApplyObservation(ctx, req.ID, obs)
	if err != nil {
		logger.Error("Failed to apply ledger observation", "error", err)
		return
	}
	r.record(outcome)
}

func (r *Reconciler) record(outcome store.Outcome) {
	for _, event := range outcome.Events {
		r.metrics.Transition(string(event))
	}
}

// Release stops the worker pool. Call after the scheduler has stopped.
func (r *Reconciler) Release() {
	r.logger.Info("Releasing reconciler worker pool", "running_workers", r.pool.Running())
	r.pool.Release()
}
