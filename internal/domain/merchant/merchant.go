package merchant

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrEmptyName      = errors.New("merchant name cannot be empty")
	ErrSecretTooShort = errors.New("secret key must be at least 16 characters")
)

const secretKeyByteCount = 32

// Merchant owns payment requests and receives their lifecycle webhooks
type Merchant struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	CallbackURL   string          `json:"callback_url,omitempty"`
	SecretKey     string          `json:"-"`
	TotalPayments int64           `json:"total_payments"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewMerchant creates a merchant. A random signing secret is generated when none is given.
func NewMerchant(name, callbackURL, secretKey string, now time.Time) (*Merchant, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if secretKey == "" {
		generated, err := GenerateSecretKey()
		if err != nil {
			return nil, err
		}
		secretKey = generated
	}
	if len(secretKey) < 16 {
		return nil, ErrSecretTooShort
	}

	now = now.UTC()
	return &Merchant{
		ID:          uuid.New(),
		Name:        name,
		CallbackURL: callbackURL,
		SecretKey:   secretKey,
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GenerateSecretKey returns a hex encoded random HMAC secret
func GenerateSecretKey() (string, error) {
	buf := make([]byte, secretKeyByteCount)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate merchant secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RecordConfirmedPayment bumps the aggregate counters. Called once per request,
// on its transition into CONFIRMED.
func (m *Merchant) RecordConfirmedPayment(amount decimal.Decimal, now time.Time) {
	m.TotalPayments++
	m.TotalAmount = m.TotalAmount.Add(amount)
	m.UpdatedAt = now.UTC()
}

// Clone returns a copy safe to hand across goroutines
func (m *Merchant) Clone() *Merchant {
	c := *m
	return &c
}

// ErrMerchantNotFound indicates a missing merchant
type ErrMerchantNotFound struct {
	MerchantID uuid.UUID
}

func (e ErrMerchantNotFound) Error() string {
	return "merchant not found: " + e.MerchantID.String()
}
