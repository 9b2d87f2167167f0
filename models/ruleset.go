package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderRules is the parameter overlay applied to every request routed
// through a ruleset. A few numeric fields are common (temperature, max_tokens,
// top_p, frequency_penalty) but the override surface is provider-defined, so
// arbitrary keys are permitted.
type ProviderRules map[string]any

// ModelRules maps a model name to the overlay applied only when that exact
// model is resolved. Model-level entries win over provider rules key-for-key.
type ModelRules map[string]ProviderRules

// Ruleset binds a routing prefix to an upstream provider: its base URL, an
// encrypted credential and the parameter override rules.
type Ruleset struct {
	ID            uuid.UUID     `json:"id"`
	UserID        string        `json:"user_id"`
	Prefix        string        `json:"prefix"`
	BaseURL       string        `json:"base_url"` // normalized to end with exactly one trailing slash
	APIKeyPreview string        `json:"api_key_preview"`
	// Encrypted fields round-trip through the cache, so they carry JSON tags.
	// Admin responses use a redacted view instead of this struct.
	APIKeyEncrypted string       `json:"api_key_encrypted"`
	APIKeyIV        string       `json:"api_key_iv"`
	IsDefault       bool         `json:"is_default"`
	ProviderRules   ProviderRules `json:"provider_rules,omitempty"`
	ModelRules      ModelRules    `json:"model_rules,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       *time.Time   `json:"updated_at,omitempty"`
	DeletedAt       *time.Time   `json:"deleted_at,omitempty"`
}

// KeyWithRulesets is the result of the key-hash join query: the virtual key
// matching a hash plus every ruleset owned by the same user. This is the value
// cached per key hash by the gateway.
type KeyWithRulesets struct {
	Key      VirtualKey `json:"key"`
	Rulesets []Ruleset  `json:"rulesets"`
}
