package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vly-payment-engine/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrEmptyOrderID          = errors.New("order ID cannot be empty")
	ErrEmptyAddress          = errors.New("payment address cannot be empty")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 2-10 character code")
	ErrInvalidTTL            = errors.New("ttl must be positive")
)

// Request is a single merchant payment request watched against the ledger.
// ReceivedAmount and Confirmations never decrease; Status only moves forward.
type Request struct {
	ID              uuid.UUID            `json:"id"`
	MerchantID      uuid.UUID            `json:"merchant_id"`
	RequestedAmount decimal.Decimal      `json:"requested_amount"`
	Currency        string               `json:"currency"`
	OrderID         string               `json:"order_id"`
	PaymentAddress  string               `json:"payment_address"`
	Status          shared.PaymentStatus `json:"status"`
	ReceivedAmount  decimal.Decimal      `json:"received_amount"`
	Confirmations   int64                `json:"confirmations"`
	TxID            *string              `json:"txid"`
	CallbackURL     string               `json:"callback_url,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
	ConfirmedAt     *time.Time           `json:"confirmed_at,omitempty"`
	ExpiredAt       *time.Time           `json:"expired_at,omitempty"`
}

// ValidateTerms checks what the merchant asked for, before any address is reserved
func ValidateTerms(amount decimal.Decimal, currency, orderID string, ttl time.Duration) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if orderID == "" {
		return ErrEmptyOrderID
	}
	if len(currency) < 2 || len(currency) > 10 {
		return ErrInvalidCurrencyFormat
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// IsValidationError reports whether err came from request validation
func IsValidationError(err error) bool {
	for _, target := range []error{ErrInvalidAmount, ErrEmptyOrderID, ErrEmptyAddress, ErrInvalidCurrencyFormat, ErrInvalidTTL} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NewRequest builds a pending request bound to an already provisioned address
func NewRequest(
	merchantID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	orderID string,
	address string,
	callbackURL string,
	ttl time.Duration,
	now time.Time,
) (*Request, error) {
	if err := ValidateTerms(amount, currency, orderID, ttl); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, ErrEmptyAddress
	}

	now = now.UTC()
	return &Request{
		ID:              uuid.New(),
		MerchantID:      merchantID,
		RequestedAmount: amount,
		Currency:        currency,
		OrderID:         orderID,
		PaymentAddress:  address,
		Status:          shared.PaymentStatusPending,
		ReceivedAmount:  decimal.Zero,
		CallbackURL:     callbackURL,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}, nil
}

// Observation is what the ledger reports for a payment address at one point in time
type Observation struct {
	Amount        decimal.Decimal
	Confirmations int64
	TxID          string
}

// HasFunds reports whether anything has arrived at the address
func (o Observation) HasFunds() bool {
	return o.Amount.IsPositive()
}

// IsTerminal reports whether the request can no longer change state
func (r *Request) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// IsDue reports whether a pending request has reached its expiry time
func (r *Request) IsDue(now time.Time) bool {
	return r.Status == shared.PaymentStatusPending && !now.Before(r.ExpiresAt)
}

// Apply folds an observation into the request and returns the lifecycle events it
// produced, in order. An observation without funds, or against a terminal request,
// produces nothing. A stale observation (lower amount, or fewer confirmations with no
// new funds) is rejected with ErrBackwardObservation and leaves the request as is.
//
// Observed confirmations are the minimum across the address's outputs, so a fresh
// output can lower them while adding funds. The amount is taken and the recorded
// count kept, but confirmation waits until the observed count reaches the threshold.
func (r *Request) Apply(obs Observation, confirmationThreshold int64, now time.Time) ([]shared.EventType, error) {
	if r.IsTerminal() || !obs.HasFunds() {
		return nil, nil
	}
	newFunds := obs.Amount.GreaterThan(r.ReceivedAmount)
	if obs.Amount.LessThan(r.ReceivedAmount) || (obs.Confirmations < r.Confirmations && !newFunds) {
		return nil, ErrBackwardObservation{
			PaymentID:             r.ID,
			RecordedAmount:        r.ReceivedAmount,
			ObservedAmount:        obs.Amount,
			RecordedConfirmations: r.Confirmations,
			ObservedConfirmations: obs.Confirmations,
		}
	}

	now = now.UTC()
	r.ReceivedAmount = obs.Amount
	if obs.Confirmations > r.Confirmations {
		r.Confirmations = obs.Confirmations
	}
	if obs.TxID != "" {
		txID := obs.TxID
		r.TxID = &txID
	}
	r.UpdatedAt = now

	var events []shared.EventType
	if r.Status == shared.PaymentStatusPending && r.ReceivedAmount.GreaterThanOrEqual(r.RequestedAmount) {
		r.Status = shared.PaymentStatusPaid
		r.PaidAt = &now
		events = append(events, shared.EventPaymentReceived)
	}
	if r.Status == shared.PaymentStatusPaid && obs.Confirmations >= confirmationThreshold {
		r.Status = shared.PaymentStatusConfirmed
		r.ConfirmedAt = &now
		events = append(events, shared.EventPaymentConfirmed)
	}
	return events, nil
}

// Expire moves a due pending request to EXPIRED and reports whether it did
func (r *Request) Expire(now time.Time) bool {
	if !r.IsDue(now) {
		return false
	}
	now = now.UTC()
	r.Status = shared.PaymentStatusExpired
	r.ExpiredAt = &now
	r.UpdatedAt = now
	return true
}

// Clone returns a deep copy safe to hand across goroutines
func (r *Request) Clone() *Request {
	c := *r
	if r.TxID != nil {
		txID := *r.TxID
		c.TxID = &txID
	}
	c.PaidAt = cloneTime(r.PaidAt)
	c.ConfirmedAt = cloneTime(r.ConfirmedAt)
	c.ExpiredAt = cloneTime(r.ExpiredAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
