package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/domain/shared"
	"github.com/vly-payment-engine/internal/store"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBackend(t *testing.T) (*Backend, *merchant.Merchant) {
	t.Helper()
	b := NewBackend(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	m, err := merchant.NewMerchant("Shop", "https://shop.test/hook", "0123456789abcdef", testNow)
	require.NoError(t, err)
	require.NoError(t, b.InsertMerchant(context.Background(), m))
	return b, m
}

func newTestRequest(t *testing.T, owner *merchant.Merchant, address string) *payment.Request {
	t.Helper()
	req, err := payment.NewRequest(owner.ID, decimal.RequireFromString("1.50"), "VLY", "order-"+address, address, "", time.Hour, testNow)
	require.NoError(t, err)
	return req
}

func TestBackend_InsertPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("DuplicateAddress", func(t *testing.T) {
		b, m := newTestBackend(t)
		require.NoError(t, b.InsertPayment(ctx, newTestRequest(t, m, "addr-1")))

		err := b.InsertPayment(ctx, newTestRequest(t, m, "addr-1"))
		var dup payment.ErrDuplicateAddress
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, "addr-1", dup.Address)
	})

	t.Run("UnknownMerchant", func(t *testing.T) {
		b, _ := newTestBackend(t)
		stranger, err := merchant.NewMerchant("Stranger", "", "", testNow)
		require.NoError(t, err)

		err = b.InsertPayment(ctx, newTestRequest(t, stranger, "addr-2"))
		var notFound merchant.ErrMerchantNotFound
		assert.True(t, errors.As(err, &notFound))
	})

	t.Run("SnapshotsAreIsolated", func(t *testing.T) {
		b, m := newTestBackend(t)
		req := newTestRequest(t, m, "addr-3")
		require.NoError(t, b.InsertPayment(ctx, req))

		req.Status = shared.PaymentStatusConfirmed
		got, err := b.GetPayment(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.PaymentStatusPending, got.Status)

		got.ReceivedAmount = decimal.NewFromInt(99)
		again, err := b.GetPayment(ctx, req.ID)
		require.NoError(t, err)
		assert.True(t, again.ReceivedAmount.IsZero())
	})
}

func TestBackend_ListActive(t *testing.T) {
	ctx := context.Background()
	b, m := newTestBackend(t)

	first := newTestRequest(t, m, "addr-a")
	second := newTestRequest(t, m, "addr-b")
	third := newTestRequest(t, m, "addr-c")
	for _, req := range []*payment.Request{first, second, third} {
		require.NoError(t, b.InsertPayment(ctx, req))
	}

	err := b.Mutate(ctx, second.ID, func(req *payment.Request, _ *merchant.Merchant) (store.Mutation, error) {
		req.Expire(testNow.Add(2 * time.Hour))
		return store.Mutation{Write: true}, nil
	})
	require.NoError(t, err)

	active, err := b.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, third.ID, active[1].ID)
}

func TestBackend_Mutate(t *testing.T) {
	ctx := context.Background()

	t.Run("ErrorDiscardsChanges", func(t *testing.T) {
		b, m := newTestBackend(t)
		req := newTestRequest(t, m, "addr-1")
		require.NoError(t, b.InsertPayment(ctx, req))

		boom := errors.New("boom")
		err := b.Mutate(ctx, req.ID, func(r *payment.Request, mm *merchant.Merchant) (store.Mutation, error) {
			r.Status = shared.PaymentStatusPaid
			mm.TotalPayments = 10
			return store.Mutation{Write: true, MerchantChanged: true}, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := b.GetPayment(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.PaymentStatusPending, got.Status)
		owner, err := b.GetMerchant(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), owner.TotalPayments)
	})

	t.Run("NoWriteLeavesRecord", func(t *testing.T) {
		b, m := newTestBackend(t)
		req := newTestRequest(t, m, "addr-2")
		require.NoError(t, b.InsertPayment(ctx, req))

		err := b.Mutate(ctx, req.ID, func(r *payment.Request, _ *merchant.Merchant) (store.Mutation, error) {
			r.Confirmations = 7
			return store.Mutation{}, nil
		})
		require.NoError(t, err)

		got, err := b.GetPayment(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Confirmations)
	})

	t.Run("WritesRequestMerchantAndJobs", func(t *testing.T) {
		b, m := newTestBackend(t)
		req := newTestRequest(t, m, "addr-3")
		require.NoError(t, b.InsertPayment(ctx, req))

		err := b.Mutate(ctx, req.ID, func(r *payment.Request, mm *merchant.Merchant) (store.Mutation, error) {
			r.Expire(testNow.Add(2 * time.Hour))
			mm.RecordConfirmedPayment(decimal.NewFromInt(1), testNow)
			job, err := notification.NewJob(shared.EventPaymentExpired, r, mm.CallbackURL, 3, testNow)
			require.NoError(t, err)
			return store.Mutation{Write: true, MerchantChanged: true, Jobs: []*notification.Job{job}}, nil
		})
		require.NoError(t, err)

		got, err := b.GetPayment(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.PaymentStatusExpired, got.Status)

		owner, err := b.GetMerchant(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), owner.TotalPayments)

		jobs, err := b.GetPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, int64(1), jobs[0].ID)
		assert.Equal(t, shared.EventPaymentExpired, jobs[0].Event)
	})

	t.Run("UnknownPayment", func(t *testing.T) {
		b, m := newTestBackend(t)
		err := b.Mutate(ctx, newTestRequest(t, m, "nowhere").ID, func(*payment.Request, *merchant.Merchant) (store.Mutation, error) {
			t.Fatal("mutate func must not run")
			return store.Mutation{}, nil
		})
		var notFound payment.ErrPaymentNotFound
		assert.True(t, errors.As(err, &notFound))
	})
}

func TestBackend_Queue(t *testing.T) {
	ctx := context.Background()
	b, m := newTestBackend(t)
	req := newTestRequest(t, m, "addr-q")
	require.NoError(t, b.InsertPayment(ctx, req))

	enqueue := func(event shared.EventType) {
		err := b.Mutate(ctx, req.ID, func(r *payment.Request, mm *merchant.Merchant) (store.Mutation, error) {
			job, err := notification.NewJob(event, r, mm.CallbackURL, 3, testNow)
			require.NoError(t, err)
			return store.Mutation{Write: true, Jobs: []*notification.Job{job}}, nil
		})
		require.NoError(t, err)
	}
	enqueue(shared.EventPaymentReceived)
	enqueue(shared.EventPaymentConfirmed)
	enqueue(shared.EventPaymentExpired)

	t.Run("FIFOWithLimit", func(t *testing.T) {
		jobs, err := b.GetPending(ctx, 2)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, shared.EventPaymentReceived, jobs[0].Event)
		assert.Equal(t, shared.EventPaymentConfirmed, jobs[1].Event)
	})

	t.Run("RecordAttempt", func(t *testing.T) {
		jobs, err := b.GetPending(ctx, 1)
		require.NoError(t, err)
		job := jobs[0]
		job.RecordFailure(errors.New("connection refused"), testNow)
		require.NoError(t, b.RecordAttempt(ctx, job))

		again, err := b.GetPending(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, again[0].AttemptCount)
		assert.Equal(t, "connection refused", again[0].LastError)
	})

	t.Run("MarkDeliveredAndFailedRemove", func(t *testing.T) {
		jobs, err := b.GetPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 3)

		require.NoError(t, b.MarkDelivered(ctx, jobs[0].ID))
		require.NoError(t, b.MarkFailed(ctx, jobs[2].ID))

		left, err := b.GetPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, jobs[1].ID, left[0].ID)
	})

	t.Run("UnknownJob", func(t *testing.T) {
		var notFound notification.ErrJobNotFound
		assert.True(t, errors.As(b.MarkDelivered(ctx, 999), &notFound))
		assert.True(t, errors.As(b.MarkFailed(ctx, 999), &notFound))
		assert.True(t, errors.As(b.RecordAttempt(ctx, &notification.Job{ID: 999}), &notFound))
	})
}
