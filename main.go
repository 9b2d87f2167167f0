package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"modelrules/cache"
	"modelrules/config"
	"modelrules/models"
	"modelrules/observability"
	"modelrules/repository"
	"modelrules/services"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		observability.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}

	observability.InitLogger(cfg.Production)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The gateway cannot route anything without its key and ruleset store.
	repo, err := repository.NewRepository(ctx, cfg.Database.URL)
	if err != nil {
		observability.Fatal("failed to initialize database", "error", err)
	}

	// Cache tiers, fastest first. Redis is optional; without it the
	// in-process tier carries the cache alone.
	stores := []cache.Store{cache.NewMemoryStore(10 * time.Minute)}
	if cfg.HasRedis() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			observability.Fatal("invalid REDIS_URL", "error", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			observability.Warn("redis unreachable, continuing with memory cache only", "error", err)
		} else {
			observability.Info("redis connection established")
			stores = append(stores, cache.NewRedisStore(client))
		}
	}

	tasks := &cache.GoRunner{}
	rules := cache.NewNamespace[models.KeyWithRulesets](
		rulesNamespace,
		stores,
		cache.Config{Fresh: cfg.Cache.RulesFresh, Stale: cfg.Cache.RulesStale},
		tasks,
	)

	app := NewApp(cfg, repo, rules, services.NewUpstreamClient(), tasks)
	handler := NewAPIHandler(app, cfg)
	router := NewRouter(handler, cfg)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	go func() {
		observability.Info("gateway listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	observability.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server shutdown failed", "error", err)
	}

	// Let in-flight background refreshes and invalidations finish.
	tasks.Wait()
	app.shutdown()
}
