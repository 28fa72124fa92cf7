package merchant

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMerchant(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("GeneratesSecret", func(t *testing.T) {
		m, err := NewMerchant("Coffee Shop", "https://coffee.test/hooks", "", now)
		require.NoError(t, err)
		assert.Len(t, m.SecretKey, 64)
		assert.Equal(t, int64(0), m.TotalPayments)
		assert.True(t, m.TotalAmount.IsZero())
		assert.Equal(t, now, m.CreatedAt)
	})

	t.Run("KeepsProvidedSecret", func(t *testing.T) {
		m, err := NewMerchant("Coffee Shop", "", "0123456789abcdef", now)
		require.NoError(t, err)
		assert.Equal(t, "0123456789abcdef", m.SecretKey)
	})

	t.Run("RejectsEmptyName", func(t *testing.T) {
		_, err := NewMerchant("", "", "", now)
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("RejectsShortSecret", func(t *testing.T) {
		_, err := NewMerchant("Shop", "", "short", now)
		assert.ErrorIs(t, err, ErrSecretTooShort)
	})
}

func TestMerchant_RecordConfirmedPayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewMerchant("Shop", "", "", now)
	require.NoError(t, err)

	m.RecordConfirmedPayment(decimal.RequireFromString("1.50"), now.Add(time.Minute))
	m.RecordConfirmedPayment(decimal.RequireFromString("0.25"), now.Add(2*time.Minute))

	assert.Equal(t, int64(2), m.TotalPayments)
	assert.True(t, m.TotalAmount.Equal(decimal.RequireFromString("1.75")))
	assert.Equal(t, now.Add(2*time.Minute), m.UpdatedAt)
}

func TestMerchant_Clone(t *testing.T) {
	m, err := NewMerchant("Shop", "", "", time.Now())
	require.NoError(t, err)

	c := m.Clone()
	c.RecordConfirmedPayment(decimal.NewFromInt(1), time.Now())

	assert.Equal(t, int64(0), m.TotalPayments)
	assert.Equal(t, int64(1), c.TotalPayments)
}
