package handler

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/api_gateway/service"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/signature"
)

const maxWebhookBodyBytes = 64 << 10

// MerchantHandler handles HTTP requests for merchant operations
type MerchantHandler struct {
	merchantService service.MerchantService
	logger          *slog.Logger
}

// NewMerchantHandler creates a new merchant handler
func NewMerchantHandler(logger *slog.Logger, merchantService service.MerchantService) *MerchantHandler {
	return &MerchantHandler{
		merchantService: merchantService,
		logger:          logger,
	}
}

// Create registers a merchant. The response is the only place the signing secret is ever returned.
func (h *MerchantHandler) Create(c *gin.Context) {
	var req CreateMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	m, err := h.merchantService.RegisterMerchant(c.Request.Context(), req.Name, req.CallbackURL, req.SecretKey)
	if err != nil {
		if errors.Is(err, merchant.ErrEmptyName) || errors.Is(err, merchant.ErrSecretTooShort) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to register merchant", "error", err)
		RespondInternalError(c)
		return
	}

	response := mapMerchantToResponse(m)
	response.SecretKey = m.SecretKey
	RespondCreated(c, response)
}

// GetByID retrieves a merchant with its confirmed payment totals
func (h *MerchantHandler) GetByID(c *gin.Context) {
	id, ok := h.merchantID(c)
	if !ok {
		return
	}

	m, err := h.merchantService.GetMerchant(c.Request.Context(), id)
	if err != nil {
		var notFound merchant.ErrMerchantNotFound
		if errors.As(err, &notFound) {
			RespondNotFound(c, "Merchant not found")
			return
		}
		h.logger.Error("Failed to get merchant", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapMerchantToResponse(m))
}

// VerifyWebhook lets a merchant check a webhook it received against its secret.
// The signature is read from the X-Signature header, or from the body if the header is absent.
func (h *MerchantHandler) VerifyWebhook(c *gin.Context) {
	id, ok := h.merchantID(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil || len(body) == 0 {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	valid, err := h.merchantService.VerifyWebhook(c.Request.Context(), id, body, c.GetHeader(signature.Header))
	if err != nil {
		var notFound merchant.ErrMerchantNotFound
		if errors.As(err, &notFound) {
			RespondNotFound(c, "Merchant not found")
			return
		}
		RespondBadRequest(c, "Invalid webhook payload")
		return
	}

	RespondOK(c, VerifyWebhookResponse{Valid: valid})
}

func (h *MerchantHandler) merchantID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid merchant ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid merchant ID")
		return uuid.Nil, false
	}
	return id, true
}

// mapMerchantToResponse maps a merchant entity to a response DTO without its secret
func mapMerchantToResponse(m *merchant.Merchant) MerchantResponse {
	return MerchantResponse{
		ID:            m.ID.String(),
		Name:          m.Name,
		CallbackURL:   m.CallbackURL,
		TotalPayments: m.TotalPayments,
		TotalAmount:   m.TotalAmount.String(),
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     m.UpdatedAt.Format(time.RFC3339),
	}
}
