package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	deleted   int64
	err       error
	gotNow    time.Time
	gotBatch  int
	callCount int
}

func (f *fakeCleaner) DeleteExpired(_ context.Context, now time.Time, batchSize int) (int64, error) {
	f.callCount++
	f.gotNow, f.gotBatch = now, batchSize
	return f.deleted, f.err
}

type nopLogger struct{}

func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}

func TestCleaner_RunDeletesBothKinds(t *testing.T) {
	refresh := &fakeCleaner{deleted: 3}
	reset := &fakeCleaner{deleted: 2}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := NewCleaner(refresh, reset, 100)
	c.now = func() time.Time { return fixed }

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{DeletedRefreshTokens: 3, DeletedResetTokens: 2}, result)
	assert.Equal(t, fixed, refresh.gotNow)
	assert.Equal(t, 100, reset.gotBatch)
}

func TestCleaner_StopsOnRefreshError(t *testing.T) {
	refresh := &fakeCleaner{err: errors.New("db down")}
	reset := &fakeCleaner{}

	_, err := NewCleaner(refresh, reset, 10).Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, reset.callCount)
}

func TestCleanupHandler_Auth(t *testing.T) {
	cleaner := NewCleaner(&fakeCleaner{deleted: 1}, &fakeCleaner{}, 10)

	cases := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"disabled without secret", "", "Bearer x", http.StatusNotFound},
		{"missing header", "cron", "", http.StatusUnauthorized},
		{"wrong secret", "cron", "Bearer nope", http.StatusUnauthorized},
		{"ok", "cron", "Bearer cron", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewCleanupHandler(cleaner, nopLogger{}, tc.secret)
			req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.Handle(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCleanupHandler_ReportsCounts(t *testing.T) {
	cleaner := NewCleaner(&fakeCleaner{deleted: 4}, &fakeCleaner{deleted: 1}, 10)
	h := NewCleanupHandler(cleaner, nopLogger{}, "cron")

	req := httptest.NewRequest(http.MethodGet, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","result":{"deleted_refresh_tokens":4,"deleted_reset_tokens":1}}`, rec.Body.String())
}

func TestCleanupHandler_Failure(t *testing.T) {
	cleaner := NewCleaner(&fakeCleaner{err: errors.New("boom")}, &fakeCleaner{}, 10)
	h := NewCleanupHandler(cleaner, nopLogger{}, "cron")

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
