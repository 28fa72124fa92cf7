// Package memory is a process-local store backend. A single mutex guards every map
// and the queue; callers only ever see clones.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/store"
)

type Backend struct {
	mu        sync.Mutex
	merchants map[uuid.UUID]*merchant.Merchant
	payments  map[uuid.UUID]*payment.Request
	addresses map[string]uuid.UUID
	order     []uuid.UUID
	jobs      []*notification.Job
	nextJobID int64
	logger    *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

func NewBackend(logger *slog.Logger) *Backend {
	return &Backend{
		merchants: make(map[uuid.UUID]*merchant.Merchant),
		payments:  make(map[uuid.UUID]*payment.Request),
		addresses: make(map[string]uuid.UUID),
		logger:    logger,
	}
}

func (b *Backend) InsertMerchant(_ context.Context, m *merchant.Merchant) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.merchants[m.ID] = m.Clone()
	return nil
}

func (b *Backend) GetMerchant(_ context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.merchants[id]
	if !ok {
		return nil, merchant.ErrMerchantNotFound{MerchantID: id}
	}
	return m.Clone(), nil
}

func (b *Backend) InsertPayment(_ context.Context, req *payment.Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.merchants[req.MerchantID]; !ok {
		return merchant.ErrMerchantNotFound{MerchantID: req.MerchantID}
	}
	if _, taken := b.addresses[req.PaymentAddress]; taken {
		return payment.ErrDuplicateAddress{Address: req.PaymentAddress}
	}

	b.payments[req.ID] = req.Clone()
	b.addresses[req.PaymentAddress] = req.ID
	b.order = append(b.order, req.ID)
	return nil
}

func (b *Backend) GetPayment(_ context.Context, id uuid.UUID) (*payment.Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req, ok := b.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound{PaymentID: id}
	}
	return req.Clone(), nil
}

func (b *Backend) ListActive(_ context.Context) ([]*payment.Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var active []*payment.Request
	for _, id := range b.order {
		req := b.payments[id]
		if !req.IsTerminal() {
			active = append(active, req.Clone())
		}
	}
	return active, nil
}

// Mutate holds the store lock across fn, so transitions on different requests are
// serialized too. fn works on clones that only replace the stored records on success.
func (b *Backend) Mutate(_ context.Context, id uuid.UUID, fn store.MutateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.payments[id]
	if !ok {
		return payment.ErrPaymentNotFound{PaymentID: id}
	}
	owner, ok := b.merchants[stored.MerchantID]
	if !ok {
		return merchant.ErrMerchantNotFound{MerchantID: stored.MerchantID}
	}

	req, m := stored.Clone(), owner.Clone()
	mut, err := fn(req, m)
	if err != nil {
		return err
	}
	if !mut.Write {
		return nil
	}

	b.payments[id] = req
	if mut.MerchantChanged {
		b.merchants[m.ID] = m
	}
	for _, job := range mut.Jobs {
		b.nextJobID++
		job.ID = b.nextJobID
		b.jobs = append(b.jobs, job.Clone())
	}
	return nil
}

func (b *Backend) GetPending(_ context.Context, limit int) ([]*notification.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.jobs)
	if limit > 0 && limit < n {
		n = limit
	}
	batch := make([]*notification.Job, 0, n)
	for _, job := range b.jobs[:n] {
		batch = append(batch, job.Clone())
	}
	return batch, nil
}

func (b *Backend) MarkDelivered(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.remove(id)
}

func (b *Backend) RecordAttempt(_ context.Context, job *notification.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(job.ID)
	if i < 0 {
		return notification.ErrJobNotFound{ID: job.ID}
	}
	queued := b.jobs[i]
	queued.AttemptCount = job.AttemptCount
	queued.LastError = job.LastError
	queued.LastAttemptAt = job.LastAttemptAt
	return nil
}

func (b *Backend) MarkFailed(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.remove(id); err != nil {
		return err
	}
	b.logger.Debug("Dropped failed notification from queue", "job_id", id)
	return nil
}

func (b *Backend) remove(id int64) error {
	i := b.indexOf(id)
	if i < 0 {
		return notification.ErrJobNotFound{ID: id}
	}
	b.jobs = append(b.jobs[:i], b.jobs[i+1:]...)
	return nil
}

func (b *Backend) indexOf(id int64) int {
	for i, job := range b.jobs {
		if job.ID == id {
			return i
		}
	}
	return -1
}
