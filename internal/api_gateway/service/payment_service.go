package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/data/mongo"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/metrics"
)

// ErrAuditDisabled is returned when delivery failures are requested without an audit log
var ErrAuditDisabled = errors.New("delivery audit log is not configured")

// PaymentServiceImpl implements the PaymentService interface
type PaymentServiceImpl struct {
	store      PaymentStore
	addresses  AddressProvisioner
	failures   FailureLog
	defaultTTL time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPaymentService creates a new payment service. failures may be nil.
func NewPaymentService(
	logger *slog.Logger,
	store PaymentStore,
	addresses AddressProvisioner,
	failures FailureLog,
	defaultTTL time.Duration,
	m *metrics.Metrics,
) PaymentService {
	return &PaymentServiceImpl{
		store:      store,
		addresses:  addresses,
		failures:   failures,
		defaultTTL: defaultTTL,
		metrics:    m,
		logger:     logger,
	}
}

// CreatePayment validates the terms and the merchant before spending an address
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, in CreatePaymentInput) (*payment.Request, error) {
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if err := payment.ValidateTerms(in.Amount, in.Currency, in.OrderID, ttl); err != nil {
		return nil, err
	}

	m, err := s.store.GetMerchant(ctx, in.MerchantID)
	if err != nil {
		return nil, err
	}

	address, err := s.addresses.NewAddress(ctx, fmt.Sprintf("%s/%s", m.ID, in.OrderID))
	if err != nil {
		return nil, err
	}

	req, err := payment.NewRequest(m.ID, in.Amount, in.Currency, in.OrderID, address, in.CallbackURL, ttl, s.store.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.PaymentCreated(req.Currency)
	s.logger.Info("Payment request created",
		"payment_id", req.ID.String(),
		"merchant_id", m.ID.String(),
		"address", address,
		"amount", req.RequestedAmount.String(),
		"expires_at", req.ExpiresAt,
	)
	return req, nil
}

// GetStatus retrieves a payment request by its ID, returns ErrPaymentNotFound if not found
func (s *PaymentServiceImpl) GetStatus(ctx context.Context, id uuid.UUID) (*payment.Request, error) {
	return s.store.Get(ctx, id)
}

func (s *PaymentServiceImpl) GetDeliveryFailures(ctx context.Context, id uuid.UUID) ([]*mongo.DeliveryFailure, error) {
	if s.failures == nil {
		return nil, ErrAuditDisabled
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.failures.GetByPaymentID(ctx, id)
}
