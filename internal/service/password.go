package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// randomPassword returns 32 bytes of entropy, base64url encoded.
func randomPassword() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
