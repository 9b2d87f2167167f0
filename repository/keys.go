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

// ErrNoKeyRulesets is returned when a key hash matches no usable key, or the
// key's owner has no rulesets. The message is surfaced to gateway clients
// verbatim, hence the capitalization.
var ErrNoKeyRulesets = errors.New("No providers and rules found for this key")

// ErrKeyNotFound is returned when a key lookup by ID matches nothing the
// caller owns.
var ErrKeyNotFound = errors.New("key not found")

// FindByKeyHash returns the non-deleted key matching hash together with every
// non-deleted ruleset owned by the same user. Disabled keys are returned; the
// caller decides how to treat them. This is the gateway's cache loader query.
func (r *Repository) FindByKeyHash(ctx context.Context, hash string) (*models.KeyWithRulesets, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "keys")

	var result models.KeyWithRulesets
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, name, hash, preview, last_used, disabled_at,
		       created_at, updated_at, deleted_at
		FROM keys
		WHERE hash = $1 AND deleted_at IS NULL
	`, hash).Scan(
		&result.Key.ID,
		&result.Key.UserID,
		&result.Key.Name,
		&result.Key.Hash,
		&result.Key.Preview,
		&result.Key.LastUsed,
		&result.Key.DisabledAt,
		&result.Key.CreatedAt,
		&result.Key.UpdatedAt,
		&result.Key.DeletedAt,
	)
	if err == pgx.ErrNoRows {
		metrics.RecordDBError("select", "keys")
		return nil, ErrNoKeyRulesets
	}
	if err != nil {
		metrics.RecordDBError("select", "keys")
		return nil, fmt.Errorf("failed to find key by hash: %w", err)
	}

	rulesets, err := r.ListRulesets(ctx, result.Key.UserID)
	if err != nil {
		return nil, err
	}
	if len(rulesets) == 0 {
		return nil, ErrNoKeyRulesets
	}
	result.Rulesets = rulesets

	return &result, nil
}

// TouchKeyLastUsed stamps the key's last_used time. Fired on every proxied
// request, including ones that are ultimately rejected.
func (r *Repository) TouchKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", "keys")

	_, err := r.db.Exec(ctx, `
		UPDATE keys SET last_used = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		metrics.RecordDBError("update", "keys")
		return fmt.Errorf("failed to touch key last_used: %w", err)
	}
	return nil
}

// CreateKey inserts a new virtual key record.
func (r *Repository) CreateKey(ctx context.Context, key *models.VirtualKey) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "keys")

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO keys (id, user_id, name, hash, preview, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at
	`,
		key.ID,
		key.UserID,
		key.Name,
		key.Hash,
		key.Preview,
	).Scan(&key.CreatedAt)
	if err != nil {
		metrics.RecordDBError("insert", "keys")
		return fmt.Errorf("failed to create key: %w", err)
	}
	return nil
}

// ListKeys returns every non-deleted key owned by userID, newest first.
func (r *Repository) ListKeys(ctx context.Context, userID string) ([]models.VirtualKey, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "keys")

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, name, hash, preview, last_used, disabled_at,
		       created_at, updated_at, deleted_at
		FROM keys
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		metrics.RecordDBError("select", "keys")
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	var keys []models.VirtualKey
	for rows.Next() {
		var key models.VirtualKey
		err := rows.Scan(
			&key.ID,
			&key.UserID,
			&key.Name,
			&key.Hash,
			&key.Preview,
			&key.LastUsed,
			&key.DisabledAt,
			&key.CreatedAt,
			&key.UpdatedAt,
			&key.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}

	return keys, nil
}

// SetKeyDisabled enables or disables a key the user owns and returns its hash
// so the caller can evict the cached entry.
func (r *Repository) SetKeyDisabled(ctx context.Context, userID string, id uuid.UUID, disabled bool) (string, error) {
	if err := r.checkDB(); err != nil {
		return "", err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", "keys")

	var hash string
	err := r.db.QueryRow(ctx, `
		UPDATE keys
		SET disabled_at = CASE WHEN $3 THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING hash
	`, id, userID, disabled).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", ErrKeyNotFound
	}
	if err != nil {
		metrics.RecordDBError("update", "keys")
		return "", fmt.Errorf("failed to set key disabled: %w", err)
	}
	return hash, nil
}

// SoftDeleteKey marks a key the user owns as deleted and returns its hash so
// the caller can evict the cached entry.
func (r *Repository) SoftDeleteKey(ctx context.Context, userID string, id uuid.UUID) (string, error) {
	if err := r.checkDB(); err != nil {
		return "", err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", "keys")

	var hash string
	err := r.db.QueryRow(ctx, `
		UPDATE keys SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING hash
	`, id, userID).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", ErrKeyNotFound
	}
	if err != nil {
		metrics.RecordDBError("update", "keys")
		return "", fmt.Errorf("failed to soft delete key: %w", err)
	}
	return hash, nil
}

// ActiveKeyHashes returns the hashes of every enabled, non-deleted key owned
// by userID. Used to fan out cache invalidation after a ruleset change.
func (r *Repository) ActiveKeyHashes(ctx context.Context, userID string) ([]string, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "keys")

	rows, err := r.db.Query(ctx, `
		SELECT hash FROM keys
		WHERE user_id = $1 AND disabled_at IS NULL AND deleted_at IS NULL
	`, userID)
	if err != nil {
		metrics.RecordDBError("select", "keys")
		return nil, fmt.Errorf("failed to query key hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan key hash: %w", err)
		}
		hashes = append(hashes, hash)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key hashes: %w", err)
	}

	return hashes, nil
}
