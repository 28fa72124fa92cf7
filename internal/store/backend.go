package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/domain/payment"
)

// Mutation tells a backend what a MutateFunc changed
type Mutation struct {
	// Write persists the request handed to the MutateFunc
	Write bool
	// MerchantChanged persists the merchant handed to the MutateFunc
	MerchantChanged bool
	// Jobs are enqueued in order. The backend assigns their IDs.
	Jobs []*notification.Job
}

// MutateFunc decides a transition on private copies of a request and its merchant.
// Returning an error discards every change.
type MutateFunc func(req *payment.Request, m *merchant.Merchant) (Mutation, error)

// Backend is the storage behind Store. Mutate must run the read, the MutateFunc
// and all resulting writes as one critical section per request, so no other
// Mutate on the same request can interleave and no job is enqueued without
// its transition.
type Backend interface {
	InsertMerchant(ctx context.Context, m *merchant.Merchant) error
	GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error)

	// InsertPayment fails with payment.ErrDuplicateAddress if the address is taken
	// and merchant.ErrMerchantNotFound if the owner is unknown
	InsertPayment(ctx context.Context, req *payment.Request) error
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Request, error)
	// ListActive returns copies of every PENDING or PAID request, oldest first
	ListActive(ctx context.Context) ([]*payment.Request, error)

	Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) error

	notification.Queue
}
