package ezlist

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// newKey returns a fresh opaque token with 128 bits of randomness,
// base64-encoded. The encoding alphabet matches the token pattern the
// command parser accepts, so keys survive a subject-line round trip.
func newKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
