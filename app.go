package main

import (
	"context"
	"time"

	"modelrules/cache"
	"modelrules/config"
	"modelrules/models"
	"modelrules/observability"
	"modelrules/repository"
	"modelrules/services"
)

// rulesNamespace names the cache namespace holding key+ruleset bundles keyed
// by virtual key hash.
const rulesNamespace = "rulesByHash"

// taskTimeout bounds background work spawned by request handlers.
const taskTimeout = 10 * time.Second

// App wires the gateway's collaborators together
type App struct {
	cfg      *config.Config
	repo     repository.RepositoryInterface
	rules    *cache.Namespace[models.KeyWithRulesets]
	upstream services.Upstream
	tasks    cache.TaskRunner
}

// NewApp creates a new App application struct
func NewApp(cfg *config.Config, repo repository.RepositoryInterface, rules *cache.Namespace[models.KeyWithRulesets], upstream services.Upstream, tasks cache.TaskRunner) *App {
	return &App{
		cfg:      cfg,
		repo:     repo,
		rules:    rules,
		upstream: upstream,
		tasks:    tasks,
	}
}

// shutdown is called when the app is closing
func (a *App) shutdown() {
	if a.repo != nil {
		a.repo.Close()
	}
}

// LookupKey returns the virtual key and rulesets for a key hash, served from
// the cache when possible.
func (a *App) LookupKey(ctx context.Context, hash string) (models.KeyWithRulesets, error) {
	return a.rules.Get(ctx, hash, func(ctx context.Context) (models.KeyWithRulesets, error) {
		found, err := a.repo.FindByKeyHash(ctx, hash)
		if err != nil {
			return models.KeyWithRulesets{}, err
		}
		return *found, nil
	})
}

// TouchKeyUsed stamps a key's last_used time without blocking the request.
func (a *App) TouchKeyUsed(key models.VirtualKey) {
	a.tasks.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		if err := a.repo.TouchKeyLastUsed(ctx, key.ID); err != nil {
			observability.Warn("failed to touch key last_used", "key_id", key.ID, "error", err)
		}
	})
}

// InvalidateUserRules evicts the cached bundle for every active key the user
// owns. Runs in the background; a ruleset change must not block on cache I/O.
func (a *App) InvalidateUserRules(userID string) {
	a.tasks.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()

		hashes, err := a.repo.ActiveKeyHashes(ctx, userID)
		if err != nil {
			observability.WithUser(userID).Warn("failed to list key hashes for invalidation", "error", err)
			return
		}
		for _, hash := range hashes {
			a.rules.Remove(ctx, hash)
		}
	})
}

// InvalidateKeyHash evicts the cached bundle for a single key hash.
func (a *App) InvalidateKeyHash(hash string) {
	a.tasks.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		a.rules.Remove(ctx, hash)
	})
}
