// Package signature signs and verifies webhook payloads with HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header carries the hex signature on outbound webhooks
const Header = "X-Signature"

// Sign returns the hex encoded HMAC-SHA256 of payload under secret
func Sign(secret string, payload []byte) string {
	return hex.EncodeToString(compute(secret, payload))
}

// Verify recomputes the signature and compares it in constant time
func Verify(secret string, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, compute(secret, payload))
}

func compute(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
