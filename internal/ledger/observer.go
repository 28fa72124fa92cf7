// Package ledger defines how the engine observes the chain and provides an adapter
// for a REST block explorer.
package ledger

import (
	"context"
	"fmt"

	"github.com/vly-payment-engine/internal/domain/payment"
)

// Observer is the engine's only view of the chain
type Observer interface {
	// NewAddress reserves a fresh one-time receiving address
	NewAddress(ctx context.Context, label string) (string, error)
	// QueryAddress reports the funds currently sitting at address
	QueryAddress(ctx context.Context, address string) (payment.Observation, error)
}

// ProvisioningError means no address could be minted. Fatal to the creation call.
type ProvisioningError struct {
	Label string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision address for %q: %v", e.Label, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// QueryError means an address could not be queried this time. Transient.
type QueryError struct {
	Address string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to query address %s: %v", e.Address, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
