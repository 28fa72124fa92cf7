package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	// RFC 4231 test case 2
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)

	assert.Equal(t, got, Sign("Jefe", []byte("what do ya want for nothing?")))
	assert.NotEqual(t, got, Sign("jefe", []byte("what do ya want for nothing?")))
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"event":"payment_confirmed","paymentId":"p-1"}`)
	secret := "0123456789abcdef0123456789abcdef"
	sig := Sign(secret, payload)

	tests := []struct {
		name      string
		secret    string
		payload   []byte
		signature string
		expected  bool
	}{
		{"Valid", secret, payload, sig, true},
		{"WrongSecret", "another-secret-value", payload, sig, false},
		{"TamperedPayload", secret, []byte(`{"event":"payment_confirmed","paymentId":"p-2"}`), sig, false},
		{"NotHex", secret, payload, "zz-not-hex", false},
		{"Truncated", secret, payload, sig[:10], false},
		{"Empty", secret, payload, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Verify(tt.secret, tt.payload, tt.signature))
		})
	}
}
