package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vly-payment-engine/internal/api_gateway/service"
	"github.com/vly-payment-engine/internal/data/mongo"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/payment"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreatePayment(ctx context.Context, in service.CreatePaymentInput) (*payment.Request, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Request), args.Error(1)
}

func (m *MockPaymentService) GetStatus(ctx context.Context, id uuid.UUID) (*payment.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Request), args.Error(1)
}

func (m *MockPaymentService) GetDeliveryFailures(ctx context.Context, id uuid.UUID) ([]*mongo.DeliveryFailure, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mongo.DeliveryFailure), args.Error(1)
}

type MockMerchantService struct {
	mock.Mock
}

func (m *MockMerchantService) RegisterMerchant(ctx context.Context, name, callbackURL, secretKey string) (*merchant.Merchant, error) {
	args := m.Called(ctx, name, callbackURL, secretKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*merchant.Merchant), args.Error(1)
}

func (m *MockMerchantService) GetMerchant(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*merchant.Merchant), args.Error(1)
}

func (m *MockMerchantService) VerifyWebhook(ctx context.Context, merchantID uuid.UUID, body []byte, sig string) (bool, error) {
	args := m.Called(ctx, merchantID, body, sig)
	return args.Bool(0), args.Error(1)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// decodeData unwraps the response envelope into out
func decodeData(t *testing.T, body []byte, out interface{}) Response {
	t.Helper()
	var envelope Response
	require.NoError(t, json.Unmarshal(body, &envelope))
	if out != nil {
		require.NotNil(t, envelope.Data, "'data' field should not be nil")
		dataBytes, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(dataBytes, out))
	}
	return envelope
}
