package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/notification"
	"github.com/vly-payment-engine/internal/signature"
)

// MerchantServiceImpl implements the MerchantService interface
type MerchantServiceImpl struct {
	store  PaymentStore
	logger *slog.Logger
}

// NewMerchantService creates a new merchant service
func NewMerchantService(logger *slog.Logger, store PaymentStore) MerchantService {
	return &MerchantServiceImpl{
		store:  store,
		logger: logger,
	}
}

func (s *MerchantServiceImpl) RegisterMerchant(ctx context.Context, name, callbackURL, secretKey string) (*merchant.Merchant, error) {
	m, err := merchant.NewMerchant(name, callbackURL, secretKey, s.store.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.RegisterMerchant(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("Merchant registered", "merchant_id", m.ID.String(), "has_callback", callbackURL != "")
	return m, nil
}

// GetMerchant retrieves a merchant by its ID, returns ErrMerchantNotFound if not found
func (s *MerchantServiceImpl) GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	return s.store.GetMerchant(ctx, id)
}

// VerifyWebhook canonicalizes body and checks sig, or the signature embedded in
// the body when sig is empty
func (s *MerchantServiceImpl) VerifyWebhook(ctx context.Context, merchantID uuid.UUID, body []byte, sig string) (bool, error) {
	m, err := s.store.GetMerchant(ctx, merchantID)
	if err != nil {
		return false, err
	}

	canonical, embedded, err := notification.Canonicalize(body)
	if err != nil {
		return false, err
	}
	if sig == "" {
		sig = embedded
	}
	return signature.Verify(m.SecretKey, canonical, sig), nil
}
