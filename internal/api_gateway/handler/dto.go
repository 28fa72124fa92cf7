package handler

// CreateMerchantRequest represents a request to register a merchant
type CreateMerchantRequest struct {
	Name        string `json:"name" binding:"required"`
	CallbackURL string `json:"callback_url,omitempty" binding:"omitempty,url"`
	SecretKey   string `json:"secret_key,omitempty" binding:"omitempty,min=16"`
}

// MerchantResponse represents a merchant in API responses. SecretKey is only
// filled in on registration.
type MerchantResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CallbackURL   string `json:"callback_url,omitempty"`
	SecretKey     string `json:"secret_key,omitempty"`
	TotalPayments int64  `json:"total_payments"`
	TotalAmount   string `json:"total_amount"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// CreatePaymentRequest represents a request to create a payment request.
// Amount is a decimal string so no precision is lost in transit.
type CreatePaymentRequest struct {
	MerchantID  string `json:"merchant_id" binding:"required,uuid"`
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required,min=2,max=10"`
	OrderID     string `json:"order_id" binding:"required"`
	CallbackURL string `json:"callback_url,omitempty" binding:"omitempty,url"`
	TTLSeconds  int64  `json:"ttl_seconds,omitempty" binding:"min=0"`
}

// PaymentResponse represents a payment request in API responses
type PaymentResponse struct {
	ID             string  `json:"id"`
	MerchantID     string  `json:"merchant_id"`
	OrderID        string  `json:"order_id"`
	PaymentAddress string  `json:"payment_address"`
	Amount         string  `json:"amount"`
	ReceivedAmount string  `json:"received_amount"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	Confirmations  int64   `json:"confirmations"`
	TxID           *string `json:"txid"`
	CallbackURL    string  `json:"callback_url,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ExpiresAt      string  `json:"expires_at"`
	PaidAt         string  `json:"paid_at,omitempty"`
	ConfirmedAt    string  `json:"confirmed_at,omitempty"`
	ExpiredAt      string  `json:"expired_at,omitempty"`
}

// DeliveryFailureResponse represents one abandoned webhook in API responses
type DeliveryFailureResponse struct {
	JobID     int64  `json:"job_id"`
	Event     string `json:"event"`
	TargetURL string `json:"target_url"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
	FailedAt  string `json:"failed_at"`
}

// VerifyWebhookResponse reports whether a webhook signature checks out
type VerifyWebhookResponse struct {
	Valid bool `json:"valid"`
}
