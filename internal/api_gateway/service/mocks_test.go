package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vly-payment-engine/internal/data/mongo"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/payment"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type MockPaymentStore struct {
	mock.Mock
}

func (m *MockPaymentStore) Create(ctx context.Context, req *payment.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPaymentStore) Get(ctx context.Context, id uuid.UUID) (*payment.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Request), args.Error(1)
}

func (m *MockPaymentStore) RegisterMerchant(ctx context.Context, mer *merchant.Merchant) error {
	args := m.Called(ctx, mer)
	return args.Error(0)
}

func (m *MockPaymentStore) GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*merchant.Merchant), args.Error(1)
}

func (m *MockPaymentStore) Now() time.Time {
	return fixedNow
}

type MockAddressProvisioner struct {
	mock.Mock
}

func (m *MockAddressProvisioner) NewAddress(ctx context.Context, label string) (string, error) {
	args := m.Called(ctx, label)
	return args.String(0), args.Error(1)
}

type MockFailureLog struct {
	mock.Mock
}

func (m *MockFailureLog) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*mongo.DeliveryFailure, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mongo.DeliveryFailure), args.Error(1)
}
