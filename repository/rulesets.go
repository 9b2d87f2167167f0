package repository

import (
	"context"
	"errors"
	"fmt"

	"modelrules/models"
	"modelrules/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRulesetNotFound is returned when a ruleset lookup matches nothing the
// caller owns.
var ErrRulesetNotFound = errors.New("ruleset not found")

// ErrDuplicatePrefix is returned when a user already has a live ruleset with
// the same prefix.
var ErrDuplicatePrefix = errors.New("prefix already in use")

// CreateRuleset inserts a new ruleset record.
func (r *Repository) CreateRuleset(ctx context.Context, rs *models.Ruleset) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "rulesets")

	if rs.ID == uuid.Nil {
		rs.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO rulesets (id, user_id, prefix, base_url, api_key_preview,
		                      api_key_encrypted, api_key_iv, is_default,
		                      provider_rules, model_rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at
	`,
		rs.ID,
		rs.UserID,
		rs.Prefix,
		rs.BaseURL,
		rs.APIKeyPreview,
		rs.APIKeyEncrypted,
		rs.APIKeyIV,
		rs.IsDefault,
		rs.ProviderRules,
		rs.ModelRules,
	).Scan(&rs.CreatedAt)
	if err != nil {
		metrics.RecordDBError("insert", "rulesets")
		if isUniqueViolation(err) {
			return ErrDuplicatePrefix
		}
		return fmt.Errorf("failed to create ruleset: %w", err)
	}
	return nil
}

// ListRulesets returns every non-deleted ruleset owned by userID in creation
// order, so the oldest default wins deterministically at resolve time.
func (r *Repository) ListRulesets(ctx context.Context, userID string) ([]models.Ruleset, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "rulesets")

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, prefix, base_url, api_key_preview,
		       api_key_encrypted, api_key_iv, is_default,
		       provider_rules, model_rules, created_at, updated_at, deleted_at
		FROM rulesets
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		metrics.RecordDBError("select", "rulesets")
		return nil, fmt.Errorf("failed to query rulesets: %w", err)
	}
	defer rows.Close()

	var rulesets []models.Ruleset
	for rows.Next() {
		rs, err := scanRuleset(rows)
		if err != nil {
			return nil, err
		}
		rulesets = append(rulesets, *rs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rulesets: %w", err)
	}

	return rulesets, nil
}

// GetRuleset returns a single non-deleted ruleset the user owns.
func (r *Repository) GetRuleset(ctx context.Context, userID string, id uuid.UUID) (*models.Ruleset, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "rulesets")

	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, prefix, base_url, api_key_preview,
		       api_key_encrypted, api_key_iv, is_default,
		       provider_rules, model_rules, created_at, updated_at, deleted_at
		FROM rulesets
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, id, userID)

	rs, err := scanRuleset(row)
	if err == pgx.ErrNoRows {
		return nil, ErrRulesetNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "rulesets")
		return nil, err
	}
	return rs, nil
}

// UpdateRuleset writes the full mutable state of a ruleset back. Callers read
// the current row, apply their changes and pass the result here.
func (r *Repository) UpdateRuleset(ctx context.Context, rs *models.Ruleset) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", "rulesets")

	tag, err := r.db.Exec(ctx, `
		UPDATE rulesets
		SET prefix = $3, base_url = $4, api_key_preview = $5,
		    api_key_encrypted = $6, api_key_iv = $7, is_default = $8,
		    provider_rules = $9, model_rules = $10, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`,
		rs.ID,
		rs.UserID,
		rs.Prefix,
		rs.BaseURL,
		rs.APIKeyPreview,
		rs.APIKeyEncrypted,
		rs.APIKeyIV,
		rs.IsDefault,
		rs.ProviderRules,
		rs.ModelRules,
	)
	if err != nil {
		metrics.RecordDBError("update", "rulesets")
		if isUniqueViolation(err) {
			return ErrDuplicatePrefix
		}
		return fmt.Errorf("failed to update ruleset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRulesetNotFound
	}
	return nil
}

// SoftDeleteRuleset marks a ruleset the user owns as deleted.
func (r *Repository) SoftDeleteRuleset(ctx context.Context, userID string, id uuid.UUID) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", "rulesets")

	tag, err := r.db.Exec(ctx, `
		UPDATE rulesets SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, id, userID)
	if err != nil {
		metrics.RecordDBError("update", "rulesets")
		return fmt.Errorf("failed to soft delete ruleset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRulesetNotFound
	}
	return nil
}

// scanRuleset reads one ruleset row. provider_rules and model_rules are JSONB
// columns that pgx decodes straight into the map types.
func scanRuleset(row pgx.Row) (*models.Ruleset, error) {
	var rs models.Ruleset
	err := row.Scan(
		&rs.ID,
		&rs.UserID,
		&rs.Prefix,
		&rs.BaseURL,
		&rs.APIKeyPreview,
		&rs.APIKeyEncrypted,
		&rs.APIKeyIV,
		&rs.IsDefault,
		&rs.ProviderRules,
		&rs.ModelRules,
		&rs.CreatedAt,
		&rs.UpdatedAt,
		&rs.DeletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ruleset: %w", err)
	}
	return &rs, nil
}
