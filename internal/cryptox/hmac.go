// Package cryptox implements the signing primitives for the peer sync
// channel. Every server-to-server request is authenticated by an HMAC-SHA256
// over the raw request body, keyed by material derived from the connection's
// shared secret. Both peers hold the same secret, so both derive the same key;
// only the derived key is ever stored.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DeriveSigningKey maps a shared secret onto the HMAC key used for the sync
// channel. The raw secret never touches the database: connections store
// hex(sha256(secret)) and both sides derive it independently.
func DeriveSigningKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// EncodeSigningKey returns the storable hex form of a derived signing key.
func EncodeSigningKey(key []byte) string {
	return hex.EncodeToString(key)
}

// DecodeSigningKey parses the stored hex form back into key bytes.
func DecodeSigningKey(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// Sign computes the hex-encoded HMAC-SHA256 of body under key.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is a valid hex HMAC-SHA256 of body under
// key. Comparison is constant-time; a malformed signature verifies as false,
// never as an error, so callers cannot distinguish it from a wrong key.
func Verify(key, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
