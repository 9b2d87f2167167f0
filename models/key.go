package models

import (
	"time"

	"github.com/google/uuid"
)

// VirtualKey represents a gateway-issued credential that clients present in
// place of a real provider key. Only the SHA-256 hash of the secret is stored;
// the plaintext is returned to the owner exactly once at issuance.
type VirtualKey struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name,omitempty"`
	Hash       string     `json:"hash"`
	Preview    string     `json:"preview"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Disabled reports whether the key has been turned off by its owner.
func (k *VirtualKey) Disabled() bool {
	return k.DisabledAt != nil
}
