package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vly-payment-engine/internal/data/memory"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/domain/shared"
	"github.com/vly-payment-engine/internal/engine/scheduler"
	"github.com/vly-payment-engine/internal/metrics"
	"github.com/vly-payment-engine/internal/store"
)

// fakeObserver serves canned observations per address and counts queries
type fakeObserver struct {
	mu      sync.Mutex
	results map[string]payment.Observation
	errs    map[string]error
	queries map[string]int
	block   chan struct{} // when set, QueryAddress waits on it or on ctx
	entered chan struct{}
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{
		results: make(map[string]payment.Observation),
		errs:    make(map[string]error),
		queries: make(map[string]int),
	}
}

func (o *fakeObserver) NewAddress(_ context.Context, label string) (string, error) {
	return "addr-" + label, nil
}

func (o *fakeObserver) QueryAddress(ctx context.Context, address string) (payment.Observation, error) {
	o.mu.Lock()
	o.queries[address]++
	block, entered := o.block, o.entered
	obs, err := o.results[address], o.errs[address]
	o.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return payment.Observation{}, ctx.Err()
		}
	}
	return obs, err
}

func (o *fakeObserver) set(address, amount string, confirmations int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[address] = payment.Observation{
		Amount:        decimal.RequireFromString(amount),
		Confirmations: confirmations,
		TxID:          "tx-" + address,
	}
}

func (o *fakeObserver) fail(address string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[address] = err
}

func (o *fakeObserver) queryCount(address string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queries[address]
}

type fixture struct {
	mu       sync.Mutex
	now      time.Time
	store    *store.Store
	queue    *memory.Backend
	observer *fakeObserver
	metrics  *metrics.Metrics
	merchant *merchant.Merchant
	rec      *Reconciler
}

func newFixture(t *testing.T, observerTimeout time.Duration) *fixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	f := &fixture{
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		observer: newFakeObserver(),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.queue = memory.NewBackend(logger)
	f.store = store.New(f.queue, store.Options{
		ConfirmationThreshold: 1,
		MaxAttempts:           3,
		Clock:                 f.clock,
	}, logger)

	m, err := merchant.NewMerchant("Shop", "https://shop.test/hook", "0123456789abcdef", f.now)
	require.NoError(t, err)
	require.NoError(t, f.store.RegisterMerchant(context.Background(), m))
	f.merchant = m

	f.rec, err = New(f.store, f.observer, 4, observerTimeout, f.metrics, logger)
	require.NoError(t, err)
	t.Cleanup(f.rec.Release)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) create(t *testing.T, amount, address string, ttl time.Duration) *payment.Request {
	t.Helper()
	req, err := payment.NewRequest(f.merchant.ID, decimal.RequireFromString(amount), "VLY", "order-"+address, address, "", ttl, f.clock())
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), req))
	return req
}

func (f *fixture) status(t *testing.T, req *payment.Request) shared.PaymentStatus {
	t.Helper()
	got, err := f.store.Get(context.Background(), req.ID)
	require.NoError(t, err)
	return got.Status
}

func (f *fixture) pendingEvents(t *testing.T) []shared.EventType {
	t.Helper()
	jobs, err := f.queue.GetPending(context.Background(), 100)
	require.NoError(t, err)
	events := make([]shared.EventType, 0, len(jobs))
	for _, job := range jobs {
		events = append(events, job.Event)
	}
	return events
}

func TestReconciler_PaidThenConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	req := f.create(t, "1.50", "addr-1", time.Hour)

	// Nothing at the address yet
	require.NoError(t, f.rec.RunOnce(ctx))
	assert.Equal(t, shared.PaymentStatusPending, f.status(t, req))
	assert.Empty(t, f.pendingEvents(t))

	f.observer.set("addr-1", "1.50", 0)
	require.NoError(t, f.rec.RunOnce(ctx))
	assert.Equal(t, shared.PaymentStatusPaid, f.status(t, req))
	assert.Equal(t, []shared.EventType{shared.EventPaymentReceived}, f.pendingEvents(t))

	f.observer.set("addr-1", "1.50", 1)
	require.NoError(t, f.rec.RunOnce(ctx))
	assert.Equal(t, shared.PaymentStatusConfirmed, f.status(t, req))
	assert.Equal(t, []shared.EventType{shared.EventPaymentReceived, shared.EventPaymentConfirmed}, f.pendingEvents(t))

	m, err := f.store.GetMerchant(ctx, f.merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.TotalPayments)
	assert.True(t, decimal.RequireFromString("1.50").Equal(m.TotalAmount))

	// Confirmed requests drop out of the polling set
	queriesBefore := f.observer.queryCount("addr-1")
	require.NoError(t, f.rec.RunOnce(ctx))
	assert.Equal(t, queriesBefore, f.observer.queryCount("addr-1"))
	assert.Len(t, f.pendingEvents(t), 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PaymentTransitionsTotal.WithLabelValues(string(shared.EventPaymentReceived))))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PaymentTransitionsTotal.WithLabelValues(string(shared.EventPaymentConfirmed))))
}

func TestReconciler_RepeatedCyclesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	req := f.create(t, "2", "addr-1", time.Hour)
	f.observer.set("addr-1", "2", 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.rec.RunOnce(ctx))
	}

	assert.Equal(t, shared.PaymentStatusPaid, f.status(t, req))
	assert.Equal(t, []shared.EventType{shared.EventPaymentReceived}, f.pendingEvents(t))
}

func TestReconciler_ExpiresDueRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	req := f.create(t, "1", "addr-1", 60*time.Second)

	f.advance(61 * time.Second)
	require.NoError(t, f.rec.RunOnce(ctx))

	assert.Equal(t, shared.PaymentStatusExpired, f.status(t, req))
	assert.Equal(t, []shared.EventType{shared.EventPaymentExpired}, f.pendingEvents(t))
	assert.Zero(t, f.observer.queryCount("addr-1"), "a due request is not checked against the ledger")

	// Late funds change nothing
	f.observer.set("addr-1", "1", 3)
	require.NoError(t, f.rec.RunOnce(ctx))
	assert.Equal(t, shared.PaymentStatusExpired, f.status(t, req))
	assert.Len(t, f.pendingEvents(t), 1)
}

func TestReconciler_ExpiryWinsOverFundsInSameCycle(t *testing.T) {
	f := newFixture(t, time.Second)
	req := f.create(t, "1", "addr-1", 60*time.Second)
	f.observer.set("addr-1", "1", 1)

	f.advance(60 * time.Second)
	require.NoError(t, f.rec.RunOnce(context.Background()))

	assert.Equal(t, shared.PaymentStatusExpired, f.status(t, req))
}

func TestReconciler_ObserverFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	broken := f.create(t, "1", "addr-broken", time.Hour)
	healthy := f.create(t, "1", "addr-healthy", time.Hour)

	f.observer.fail("addr-broken", errors.New("explorer unavailable"))
	f.observer.set("addr-healthy", "1", 0)

	require.NoError(t, f.rec.RunOnce(ctx))

	assert.Equal(t, shared.PaymentStatusPending, f.status(t, broken))
	assert.Equal(t, shared.PaymentStatusPaid, f.status(t, healthy))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ObserverErrorsTotal))

	// The failed request is retried on the next cycle
	f.observer.fail("addr-broken", nil)
	f.observer.set("addr-broken", "1", 0)
	require.NoError(t, f.rec.RunOnce(ctx))
	assert.Equal(t, shared.PaymentStatusPaid, f.status(t, broken))
}

func TestReconciler_ObserverTimeout(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	req := f.create(t, "1", "addr-1", time.Hour)
	f.observer.set("addr-1", "1", 0)
	f.observer.block = make(chan struct{})

	start := time.Now()
	require.NoError(t, f.rec.RunOnce(context.Background()))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, shared.PaymentStatusPending, f.status(t, req))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ObserverErrorsTotal))
}

func TestReconciler_OverlappingCycleIsRejected(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.create(t, "1", "addr-1", time.Hour)
	f.observer.block = make(chan struct{})
	f.observer.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- f.rec.RunOnce(context.Background())
	}()

	select {
	case <-f.observer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never reached the observer")
	}

	err := f.rec.RunOnce(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrCycleInProgress)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CyclesSkippedTotal.WithLabelValues("reconciler")))

	close(f.observer.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.observer.queryCount("addr-1"))
}

func TestReconciler_CancelledContext(t *testing.T) {
	f := newFixture(t, time.Second)
	f.create(t, "1", "addr-1", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.rec.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.observer.queryCount("addr-1"))
}
