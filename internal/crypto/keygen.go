package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// KeyPrefix identifies gateway-issued virtual keys.
const KeyPrefix = "sk-rules-v0"

// GeneratedKey holds a freshly issued virtual key. The plaintext is handed to
// the caller exactly once; only Hash and Preview are persisted.
type GeneratedKey struct {
	Key     string
	Hash    string
	Preview string
}

// GenerateAPIKey issues a new virtual key built from length random bytes,
// base58-encoded and prefixed.
func GenerateAPIKey(length int, prefix string) (GeneratedKey, error) {
	random := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, random); err != nil {
		return GeneratedKey{}, fmt.Errorf("failed to generate key material: %w", err)
	}

	key := prefix + "_" + base58.Encode(random)

	return GeneratedKey{
		Key:     key,
		Hash:    HashKey(key),
		Preview: Preview(key),
	}, nil
}

// Preview returns the display form of a key: the first 16 and last 4
// characters with the middle elided.
func Preview(key string) string {
	if len(key) <= 20 {
		return key
	}
	return key[:16] + "..." + key[len(key)-4:]
}
