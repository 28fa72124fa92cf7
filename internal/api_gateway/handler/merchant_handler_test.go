package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/signature"
)

func testMerchant() *merchant.Merchant {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &merchant.Merchant{
		ID:            uuid.New(),
		Name:          "Shop",
		CallbackURL:   "https://shop.test/hook",
		SecretKey:     "0123456789abcdef",
		TotalPayments: 2,
		TotalAmount:   decimal.RequireFromString("3.25"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestMerchantHandler_Create(t *testing.T) {
	post := func(h *MerchantHandler, body interface{}) *httptest.ResponseRecorder {
		router := setupTestRouter()
		router.POST("/merchants", h.Create)
		jsonBody, _ := json.Marshal(body)
		req, _ := http.NewRequest(http.MethodPost, "/merchants", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("SuccessReturnsSecretOnce", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)
		m := testMerchant()
		mockService.On("RegisterMerchant", mock.Anything, "Shop", "https://shop.test/hook", "").Return(m, nil).Once()

		rr := post(handler, CreateMerchantRequest{Name: "Shop", CallbackURL: "https://shop.test/hook"})

		assert.Equal(t, http.StatusCreated, rr.Code)
		var response MerchantResponse
		decodeData(t, rr.Body.Bytes(), &response)
		assert.Equal(t, m.ID.String(), response.ID)
		assert.Equal(t, m.SecretKey, response.SecretKey)
		mockService.AssertExpectations(t)
	})

	t.Run("MissingName", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)

		rr := post(handler, map[string]string{"callback_url": "https://shop.test/hook"})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "RegisterMerchant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ServiceError", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)
		mockService.On("RegisterMerchant", mock.Anything, "Shop", "", "").Return(nil, errors.New("db down")).Once()

		rr := post(handler, CreateMerchantRequest{Name: "Shop"})

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestMerchantHandler_GetByID(t *testing.T) {
	get := func(h *MerchantHandler, id string) *httptest.ResponseRecorder {
		router := setupTestRouter()
		router.GET("/merchants/:id", h.GetByID)
		req, _ := http.NewRequest(http.MethodGet, "/merchants/"+id, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("SuccessHidesSecret", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)
		m := testMerchant()
		mockService.On("GetMerchant", mock.Anything, m.ID).Return(m, nil).Once()

		rr := get(handler, m.ID.String())

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), m.SecretKey)
		var response MerchantResponse
		decodeData(t, rr.Body.Bytes(), &response)
		assert.Equal(t, int64(2), response.TotalPayments)
		assert.Equal(t, "3.25", response.TotalAmount)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)
		id := uuid.New()
		mockService.On("GetMerchant", mock.Anything, id).Return(nil, merchant.ErrMerchantNotFound{MerchantID: id}).Once()

		rr := get(handler, id.String())

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestMerchantHandler_VerifyWebhook(t *testing.T) {
	verify := func(h *MerchantHandler, id string, body []byte, sig string) *httptest.ResponseRecorder {
		router := setupTestRouter()
		router.POST("/merchants/:id/webhooks/verify", h.VerifyWebhook)
		req, _ := http.NewRequest(http.MethodPost, "/merchants/"+id+"/webhooks/verify", bytes.NewBuffer(body))
		if sig != "" {
			req.Header.Set(signature.Header, sig)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	body := []byte(`{"event":"payment_received"}`)

	t.Run("Valid", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)
		id := uuid.New()
		mockService.On("VerifyWebhook", mock.Anything, id, body, "abcd").Return(true, nil).Once()

		rr := verify(handler, id.String(), body, "abcd")

		assert.Equal(t, http.StatusOK, rr.Code)
		var response VerifyWebhookResponse
		decodeData(t, rr.Body.Bytes(), &response)
		assert.True(t, response.Valid)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)

		rr := verify(handler, uuid.New().String(), nil, "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		mockService := new(MockMerchantService)
		handler := NewMerchantHandler(testLogger(), mockService)
		id := uuid.New()
		mockService.On("VerifyWebhook", mock.Anything, id, body, "").Return(false, errors.New("failed to decode webhook payload")).Once()

		rr := verify(handler, id.String(), body, "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
