package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// RandomHex returns n random bytes, hex encoded (2n characters).
func RandomHex(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
