// Copyright (c) 2026 FieldServe. All rights reserved.

package sec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns a hex-encoded string built from byteLength bytes
// of cryptographically secure random data.
//
// It is used for password-reset tokens and opaque secrets that must be
// unguessable (a 32-byte input yields 64 hex characters ≙ 256 bits of entropy).
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random source: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}
