// Package store is the single source of truth for payment requests, merchants and
// the webhook queue. Every lifecycle transition and the notifications it produces
// are written together through Backend.Mutate.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/domain/shared"
)

// Options tune the transition rules
type Options struct {
	ConfirmationThreshold int64
	MaxAttempts           int
	Clock                 func() time.Time
}

// Outcome describes what a mutation did to a request
type Outcome struct {
	Events []shared.EventType
	Status shared.PaymentStatus
	// Enqueued counts the webhook jobs written, which is fewer than Events when
	// neither the request nor its merchant has a callback URL
	Enqueued int
}

type Store struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
}

func New(backend Backend, opts Options, logger *slog.Logger) *Store {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.ConfirmationThreshold <= 0 {
		opts.ConfirmationThreshold = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Store{
		backend: backend,
		opts:    opts,
		logger:  logger,
	}
}

// Queue exposes the webhook queue to the dispatcher
func (s *Store) Queue() notification.Queue {
	return s.backend
}

// Now is the store's clock
func (s *Store) Now() time.Time {
	return s.opts.Clock()
}

func (s *Store) RegisterMerchant(ctx context.Context, m *merchant.Merchant) error {
	if err := s.backend.InsertMerchant(ctx, m); err != nil {
		return fmt.Errorf("failed to register merchant: %w", err)
	}
	s.logger.Info("Merchant registered", "merchant_id", m.ID.String())
	return nil
}

func (s *Store) GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	return s.backend.GetMerchant(ctx, id)
}

// Create makes a request visible to the reconciliation loop. The address must
// already be provisioned.
func (s *Store) Create(ctx context.Context, req *payment.Request) error {
	if err := s.backend.InsertPayment(ctx, req); err != nil {
		return err
	}
	s.logger.Info("Payment request created",
		"payment_id", req.ID.String(),
		"merchant_id", req.MerchantID.String(),
		"address", req.PaymentAddress,
		"expires_at", req.ExpiresAt,
	)
	return nil
}

// Get returns a snapshot of the request
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*payment.Request, error) {
	return s.backend.GetPayment(ctx, id)
}

// ListPending returns snapshots of every request that still needs polling
func (s *Store) ListPending(ctx context.Context) ([]*payment.Request, error) {
	return s.backend.ListActive(ctx)
}

// ApplyObservation folds a ledger observation into the request. Observations that
// would move the amount or the confirmation count backwards are dropped.
func (s *Store) ApplyObservation(ctx context.Context, id uuid.UUID, obs payment.Observation) (Outcome, error) {
	var outcome Outcome
	err := s.mutate(ctx, id, func(req *payment.Request, m *merchant.Merchant) (Mutation, error) {
		now := s.opts.Clock()
		prevAmount, prevConfirmations, prevTxID := req.ReceivedAmount, req.Confirmations, req.TxID

		events, err := req.Apply(obs, s.opts.ConfirmationThreshold, now)
		var backward payment.ErrBackwardObservation
		if errors.As(err, &backward) {
			s.logger.Debug("Ignoring backward observation", "payment_id", id.String(), "error", err)
			outcome.Status = req.Status
			return Mutation{}, nil
		}
		if err != nil {
			return Mutation{}, err
		}

		outcome.Status = req.Status
		changed := len(events) > 0 ||
			!prevAmount.Equal(req.ReceivedAmount) ||
			prevConfirmations != req.Confirmations ||
			(prevTxID == nil) != (req.TxID == nil)
		if !changed {
			return Mutation{}, nil
		}

		mut := Mutation{Write: true}
		for _, event := range events {
			if event == shared.EventPaymentConfirmed {
				m.RecordConfirmedPayment(req.RequestedAmount, now)
				mut.MerchantChanged = true
			}
		}
		jobs, err := s.jobsFor(events, req, m, now)
		if err != nil {
			return Mutation{}, err
		}
		mut.Jobs = jobs

		outcome.Events = events
		outcome.Enqueued = len(jobs)
		return mut, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	for _, event := range outcome.Events {
		s.logger.Info("Payment transitioned",
			"payment_id", id.String(),
			"event", string(event),
			"status", string(outcome.Status),
		)
	}
	return outcome, nil
}

// MarkExpired moves a due PENDING request to EXPIRED. Anything else is left alone
// and reported with an empty outcome.
func (s *Store) MarkExpired(ctx context.Context, id uuid.UUID) (Outcome, error) {
	var outcome Outcome
	err := s.mutate(ctx, id, func(req *payment.Request, m *merchant.Merchant) (Mutation, error) {
		now := s.opts.Clock()
		outcome.Status = req.Status
		if !req.Expire(now) {
			return Mutation{}, nil
		}

		events := []shared.EventType{shared.EventPaymentExpired}
		jobs, err := s.jobsFor(events, req, m, now)
		if err != nil {
			return Mutation{}, err
		}

		outcome.Status = req.Status
		outcome.Events = events
		outcome.Enqueued = len(jobs)
		return Mutation{Write: true, Jobs: jobs}, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if len(outcome.Events) > 0 {
		s.logger.Info("Payment request expired", "payment_id", id.String())
	}
	return outcome, nil
}

// mutate detaches from cancellation so a transition is never split from its jobs
func (s *Store) mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) error {
	return s.backend.Mutate(context.WithoutCancel(ctx), id, fn)
}

// jobsFor builds one job per event. The request's callback URL wins over the
// merchant default, and with neither there is nothing to deliver.
func (s *Store) jobsFor(events []shared.EventType, req *payment.Request, m *merchant.Merchant, now time.Time) ([]*notification.Job, error) {
	target := req.CallbackURL
	if target == "" {
		target = m.CallbackURL
	}
	if target == "" {
		if len(events) > 0 {
			s.logger.Debug("No callback URL, skipping notifications", "payment_id", req.ID.String())
		}
		return nil, nil
	}

	jobs := make([]*notification.Job, 0, len(events))
	for _, event := range events {
		job, err := notification.NewJob(event, req, target, s.opts.MaxAttempts, now)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
