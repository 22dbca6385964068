package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ExpiredTokenCleaner deletes up to batchSize rows that expired before now.
type ExpiredTokenCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type Logger interface {
	Info(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	DeletedResetTokens   int64 `json:"deleted_reset_tokens"`
}

type Cleaner struct {
	refresh   ExpiredTokenCleaner
	reset     ExpiredTokenCleaner
	batchSize int
	now       func() time.Time
}

func NewCleaner(refresh, reset ExpiredTokenCleaner, batchSize int) *Cleaner {
	return &Cleaner{refresh: refresh, reset: reset, batchSize: batchSize, now: time.Now}
}

func (c *Cleaner) Run(ctx context.Context) (CleanupResult, error) {
	now := c.now().UTC()

	var result CleanupResult
	deleted, err := c.refresh.DeleteExpired(ctx, now, c.batchSize)
	if err != nil {
		return result, fmt.Errorf("cleanup refresh tokens: %w", err)
	}
	result.DeletedRefreshTokens = deleted

	deleted, err = c.reset.DeleteExpired(ctx, now, c.batchSize)
	if err != nil {
		return result, fmt.Errorf("cleanup reset tokens: %w", err)
	}
	result.DeletedResetTokens = deleted

	return result, nil
}

type CleanupHandler struct {
	cleaner    *Cleaner
	logger     Logger
	cronSecret string
}

func NewCleanupHandler(cleaner *Cleaner, logger Logger, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		cleaner:    cleaner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.cleaner.Run(r.Context())
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"deleted_reset_tokens":   result.DeletedResetTokens,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
