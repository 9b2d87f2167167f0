package main

import (
	"net/http"
	"strconv"

	"modelrules/config"
	"modelrules/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *APIHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack. No timeout middleware: proxied completions may
	// stream for minutes.
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(metricsMiddleware)

	// Operational endpoints
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Admin API
	r.Route("/v1", func(r chi.Router) {
		r.Route("/rulesets", func(r chi.Router) {
			r.Post("/", h.handleCreateRuleset)
			r.Get("/", h.handleListRulesets)
			r.Get("/{id}", h.handleGetRuleset)
			r.Patch("/{id}", h.handleUpdateRuleset)
			r.Delete("/{id}", h.handleDeleteRuleset)
		})
		r.Route("/keys", func(r chi.Router) {
			r.Post("/", h.handleCreateKey)
			r.Get("/", h.handleListKeys)
			r.Post("/{id}/status", h.handleSetKeyStatus)
			r.Delete("/{id}", h.handleDeleteKey)
		})
	})

	// Proxy surface. Registered for every method; the handler itself
	// answers 405 for anything but POST.
	r.HandleFunc("/api/*", h.handleProxy)

	return r
}

// corsMiddleware returns CORS middleware with the specified allowed origins
func corsMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records request counts, latency and response size.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics := observability.GetMetrics()
		timer := metrics.NewTimer()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), timer.Duration(), ww.BytesWritten())
	})
}
