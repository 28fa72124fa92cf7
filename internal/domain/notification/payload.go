package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/domain/shared"
)

// Payload is the webhook body minus its signature. Field order is fixed by the
// struct, so encoding/json produces the same bytes on sender and receiver.
type Payload struct {
	Event          shared.EventType     `json:"event"`
	PaymentID      string               `json:"paymentId"`
	MerchantID     string               `json:"merchantId"`
	OrderID        string               `json:"orderId"`
	Amount         decimal.Decimal      `json:"amount"`
	ReceivedAmount decimal.Decimal      `json:"receivedAmount"`
	Currency       string               `json:"currency"`
	Status         shared.PaymentStatus `json:"status"`
	Confirmations  int64                `json:"confirmations"`
	TxID           *string              `json:"txid"`
	Timestamp      time.Time            `json:"timestamp"`
}

// SignedPayload is the body actually POSTed to the merchant
type SignedPayload struct {
	Payload
	Signature string `json:"signature"`
}

// NewPayload snapshots a payment request for the given event
func NewPayload(event shared.EventType, req *payment.Request, now time.Time) Payload {
	var txID *string
	if req.TxID != nil {
		v := *req.TxID
		txID = &v
	}
	return Payload{
		Event:          event,
		PaymentID:      req.ID.String(),
		MerchantID:     req.MerchantID.String(),
		OrderID:        req.OrderID,
		Amount:         req.RequestedAmount,
		ReceivedAmount: req.ReceivedAmount,
		Currency:       req.Currency,
		Status:         req.Status,
		Confirmations:  req.Confirmations,
		TxID:           txID,
		Timestamp:      now.UTC().Truncate(time.Millisecond),
	}
}

// Canonical returns the byte form that gets signed
func (p Payload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// Canonicalize re-encodes a received body (signed or not) into canonical form
// and returns it along with any signature the body carried.
func Canonicalize(body []byte) ([]byte, string, error) {
	var signed SignedPayload
	if err := json.Unmarshal(body, &signed); err != nil {
		return nil, "", fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	canonical, err := signed.Payload.Canonical()
	if err != nil {
		return nil, "", err
	}
	return canonical, signed.Signature, nil
}

// SignedBody attaches the signature to a canonical payload
func SignedBody(canonical []byte, signature string) ([]byte, error) {
	var p Payload
	if err := json.Unmarshal(canonical, &p); err != nil {
		return nil, fmt.Errorf("failed to decode canonical payload: %w", err)
	}
	return json.Marshal(SignedPayload{Payload: p, Signature: signature})
}
