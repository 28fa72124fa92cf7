package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vly-payment-engine/internal/data/mongo"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/payment"
)

// PaymentService defines the interface for payment request operations
type PaymentService interface {
	// CreatePayment reserves a fresh address and records a PENDING request for it.
	// Returns *ledger.ProvisioningError if no address could be reserved, in which
	// case nothing is stored.
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*payment.Request, error)

	// GetStatus returns a snapshot of the request
	// Returns ErrPaymentNotFound if the request doesn't exist
	GetStatus(ctx context.Context, id uuid.UUID) (*payment.Request, error)

	// GetDeliveryFailures lists the webhooks given up on for a request, newest first.
	// Returns ErrAuditDisabled when no audit log is configured.
	GetDeliveryFailures(ctx context.Context, id uuid.UUID) ([]*mongo.DeliveryFailure, error)
}

// MerchantService defines the interface for merchant operations
type MerchantService interface {
	// RegisterMerchant creates a merchant. A signing secret is generated when secretKey is empty.
	RegisterMerchant(ctx context.Context, name, callbackURL, secretKey string) (*merchant.Merchant, error)

	// GetMerchant retrieves a merchant by its ID
	// Returns ErrMerchantNotFound if the merchant doesn't exist
	GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error)

	// VerifyWebhook checks a received webhook body against the merchant's secret
	VerifyWebhook(ctx context.Context, merchantID uuid.UUID, body []byte, sig string) (bool, error)
}

// CreatePaymentInput carries a merchant's payment request. A zero TTL means the
// configured default.
type CreatePaymentInput struct {
	MerchantID  uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	OrderID     string
	CallbackURL string
	TTL         time.Duration
}

// PaymentStore is the part of the payment store the HTTP surface uses
type PaymentStore interface {
	Create(ctx context.Context, req *payment.Request) error
	Get(ctx context.Context, id uuid.UUID) (*payment.Request, error)
	RegisterMerchant(ctx context.Context, m *merchant.Merchant) error
	GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error)
	Now() time.Time
}

// AddressProvisioner reserves one-time receiving addresses
type AddressProvisioner interface {
	NewAddress(ctx context.Context, label string) (string, error)
}

// FailureLog reads the delivery audit trail
type FailureLog interface {
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*mongo.DeliveryFailure, error)
}
