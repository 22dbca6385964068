package db

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_UsesEmbeddedDir(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, RunMigrations(context.Background(), database))
	assert.Equal(t, "migrations", gotDir)
}

func TestRunMigrations_WrapsError(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	boom := errors.New("boom")
	gooseUp = func(context.Context, *sql.DB, string) error { return boom }

	err = RunMigrations(context.Background(), database)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "apply migrations")
}

func TestMigrationFiles_HaveGooseAnnotations(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, entry := range entries {
		body, err := fs.ReadFile(migrationFiles, "migrations/"+entry.Name())
		require.NoError(t, err)

		text := string(body)
		assert.True(t, strings.Contains(text, "-- +goose Up"), entry.Name())
		assert.True(t, strings.Contains(text, "-- +goose Down"), entry.Name())
	}
}

func TestMigrationFiles_EnforceOneRefreshTokenPerUser(t *testing.T) {
	body, err := fs.ReadFile(migrationFiles, "migrations/00002_create_refresh_tokens.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ON refresh_tokens (user_id)")
	assert.Contains(t, string(body), "CREATE UNIQUE INDEX IF NOT EXISTS refresh_tokens_user_id_key")
}
