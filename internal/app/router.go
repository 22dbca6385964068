package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"subscription-backend/internal/auth"
	"subscription-backend/internal/maintenance"
	"subscription-backend/internal/observability"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Router struct {
	Auth    *auth.Handler
	Signer  auth.TokenSigner
	Limiter *auth.LoginRateLimiter
	Cleanup *maintenance.CleanupHandler
	Metrics *observability.Metrics
	Logger  *observability.Logger
	DB      Pinger
}

func NewRouter(deps Router) http.Handler {
	mux := http.NewServeMux()
	deps.Auth.Register(mux, deps.Signer, deps.Limiter)

	if deps.Cleanup != nil {
		mux.HandleFunc("GET /internal/maintenance/cleanup", deps.Cleanup.Handle)
		mux.HandleFunc("POST /internal/maintenance/cleanup", deps.Cleanup.Handle)
	}
	mux.HandleFunc("GET /health", healthHandler(deps.DB))
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	handler := deps.Metrics.Instrument(mux)
	handler = observability.RequestLoggingMiddleware(deps.Logger, handler)
	handler = observability.RecoverMiddleware(deps.Logger, handler)
	return observability.RequestIDMiddleware(handler)
}

func healthHandler(database Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
