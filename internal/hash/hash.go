package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrHashMismatch = errors.New("hash mismatch")
	ErrMissingKey   = errors.New("signing key is not configured")
)

// CalculateHash returns hex HMAC-SHA256 of data, or "" when key is empty.
func CalculateHash(data, key string) string {
	if key == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHash fails with ErrMissingKey when key is empty, so an unconfigured
// secret never accepts a payload.
func VerifyHash(data, key, hash string) error {
	if key == "" {
		return ErrMissingKey
	}
	expected := CalculateHash(data, key)
	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return ErrHashMismatch
	}
	return nil
}
