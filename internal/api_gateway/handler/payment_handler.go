package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vly-payment-engine/internal/api_gateway/service"
	"github.com/vly-payment-engine/internal/data/mongo"
	"github.com/vly-payment-engine/internal/domain/merchant"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/ledger"
)

// PaymentHandler handles HTTP requests for payment request operations
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// Create reserves an address for the merchant's order and returns the PENDING request
func (h *PaymentHandler) Create(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		RespondBadRequest(c, "Invalid merchant ID")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondBadRequest(c, "Invalid amount")
		return
	}

	created, err := h.paymentService.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		MerchantID:  merchantID,
		Amount:      amount,
		Currency:    req.Currency,
		OrderID:     req.OrderID,
		CallbackURL: req.CallbackURL,
		TTL:         time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		var merchantNotFound merchant.ErrMerchantNotFound
		var provisioningErr *ledger.ProvisioningError
		var duplicateAddress payment.ErrDuplicateAddress
		switch {
		case payment.IsValidationError(err):
			RespondBadRequest(c, err.Error())
		case errors.As(err, &merchantNotFound):
			RespondNotFound(c, "Merchant not found")
		case errors.As(err, &provisioningErr):
			h.logger.Error("Address provisioning failed", "merchant_id", merchantID.String(), "error", err)
			RespondBadGateway(c, "Could not allocate a payment address")
		case errors.As(err, &duplicateAddress):
			h.logger.Error("Ledger returned an address that is already assigned", "address", duplicateAddress.Address)
			RespondConflict(c, "Payment address already assigned")
		default:
			h.logger.Error("Failed to create payment request", "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondCreated(c, mapPaymentToResponse(created))
}

// GetByID returns the current snapshot of a payment request
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, ok := h.paymentID(c)
	if !ok {
		return
	}

	req, err := h.paymentService.GetStatus(c.Request.Context(), id)
	if err != nil {
		var notFound payment.ErrPaymentNotFound
		if errors.As(err, &notFound) {
			RespondNotFound(c, "Payment request not found")
			return
		}
		h.logger.Error("Failed to get payment request", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapPaymentToResponse(req))
}

// GetFailures lists webhooks for the request that were given up on
func (h *PaymentHandler) GetFailures(c *gin.Context) {
	id, ok := h.paymentID(c)
	if !ok {
		return
	}

	failures, err := h.paymentService.GetDeliveryFailures(c.Request.Context(), id)
	if err != nil {
		var notFound payment.ErrPaymentNotFound
		switch {
		case errors.Is(err, service.ErrAuditDisabled):
			RespondServiceUnavailable(c, "Delivery audit log is not enabled")
		case errors.As(err, &notFound):
			RespondNotFound(c, "Payment request not found")
		default:
			h.logger.Error("Failed to get delivery failures", "id", id.String(), "error", err)
			RespondInternalError(c)
		}
		return
	}

	response := make([]DeliveryFailureResponse, 0, len(failures))
	for _, f := range failures {
		response = append(response, mapFailureToResponse(f))
	}
	RespondOK(c, response)
}

func (h *PaymentHandler) paymentID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid payment ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid payment ID")
		return uuid.Nil, false
	}
	return id, true
}

func mapPaymentToResponse(req *payment.Request) PaymentResponse {
	return PaymentResponse{
		ID:             req.ID.String(),
		MerchantID:     req.MerchantID.String(),
		OrderID:        req.OrderID,
		PaymentAddress: req.PaymentAddress,
		Amount:         req.RequestedAmount.String(),
		ReceivedAmount: req.ReceivedAmount.String(),
		Currency:       req.Currency,
		Status:         string(req.Status),
		Confirmations:  req.Confirmations,
		TxID:           req.TxID,
		CallbackURL:    req.CallbackURL,
		CreatedAt:      req.CreatedAt.Format(time.RFC3339),
		ExpiresAt:      req.ExpiresAt.Format(time.RFC3339),
		PaidAt:         formatOptional(req.PaidAt),
		ConfirmedAt:    formatOptional(req.ConfirmedAt),
		ExpiredAt:      formatOptional(req.ExpiredAt),
	}
}

func mapFailureToResponse(f *mongo.DeliveryFailure) DeliveryFailureResponse {
	return DeliveryFailureResponse{
		JobID:     f.JobID,
		Event:     f.Event,
		TargetURL: f.TargetURL,
		Attempts:  f.Attempts,
		LastError: f.LastError,
		FailedAt:  f.FailedAt.Format(time.RFC3339),
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
