package repository

import (
	"context"

	"modelrules/models"

	"github.com/google/uuid"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error

	// Keys
	FindByKeyHash(ctx context.Context, hash string) (*models.KeyWithRulesets, error)
	TouchKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateKey(ctx context.Context, key *models.VirtualKey) error
	ListKeys(ctx context.Context, userID string) ([]models.VirtualKey, error)
	SetKeyDisabled(ctx context.Context, userID string, id uuid.UUID, disabled bool) (string, error)
	SoftDeleteKey(ctx context.Context, userID string, id uuid.UUID) (string, error)
	ActiveKeyHashes(ctx context.Context, userID string) ([]string, error)

	// Rulesets
	CreateRuleset(ctx context.Context, rs *models.Ruleset) error
	ListRulesets(ctx context.Context, userID string) ([]models.Ruleset, error)
	GetRuleset(ctx context.Context, userID string, id uuid.UUID) (*models.Ruleset, error)
	UpdateRuleset(ctx context.Context, rs *models.Ruleset) error
	SoftDeleteRuleset(ctx context.Context, userID string, id uuid.UUID) error
}

// Compile-time interface verification
var _ RepositoryInterface = (*Repository)(nil)
