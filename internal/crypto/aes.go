// Package crypto implements the credential cipher, virtual key hashing and
// virtual key generation used by the gateway.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32 // AES-256
	iterations = 100000
)

// ErrDecryptionFailed is returned when the GCM tag does not verify, i.e. the
// ciphertext was tampered with or a different key was used.
var ErrDecryptionFailed = errors.New("decryption failed: wrong key or corrupted data")

// Ciphertext is the stored form of an encrypted provider credential. Both
// fields are standard base64.
type Ciphertext struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
}

// DeriveKey derives the per-user AES-256 key from the process-wide master
// secret using PBKDF2-SHA256. The user ID acts as the salt, so a leaked row
// is useless without the master secret and a leaked master secret alone still
// requires the per-user salt.
func DeriveKey(userID, masterSecret string) []byte {
	return pbkdf2.Key([]byte(masterSecret), []byte(userID), iterations, keySize, sha256.New)
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random 96-bit IV.
func Encrypt(plaintext string, key []byte) (Ciphertext, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("failed to create GCM: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Ciphertext{}, fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)

	return Ciphertext{
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		IV:        base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Decrypt opens a sealed credential. A tag verification failure is reported
// as ErrDecryptionFailed; plaintext is never returned on a bad tag.
func Decrypt(ct Ciphertext, key []byte) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ct.Encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	iv, err := base64.StdEncoding.DecodeString(ct.IV)
	if err != nil {
		return "", fmt.Errorf("failed to decode IV: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(iv) != gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
