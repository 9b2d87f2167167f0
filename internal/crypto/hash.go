package crypto

import (
	"crypto/sha256"
	"encoding/base64"
)

// HashKey returns the deterministic lookup digest of a virtual API key:
// SHA-256 encoded as standard base64. The hash is intentionally unsalted so
// inbound tokens can be matched by exact lookup; virtual keys are high-entropy
// random tokens, not user passwords.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.StdEncoding.EncodeToString(sum[:])
}
