package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var userColumns = []string{"id", "name", "email", "password_hash", "created_at", "updated_at"}

func TestUserRepository_FindByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, name, email, password_hash, created_at, updated_at\s+FROM users\s+WHERE email = \$1`).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("0195b1f4-0000-7000-8000-000000000001", "Ada", "ada@example.com", "$2a$hash", now, now))

	user, err := repo.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "$2a$hash", user.PasswordHash)
}

func TestUserRepository_FindByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM users`).WithArgs("nobody@example.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_FindByIDSkipsMalformedIDs(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewUserRepository(db)

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_CreateMapsUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", "$2a$hash", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	_, err := repo.Create(context.Background(), "ada@example.com", "Ada", "$2a$hash")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", "$2a$hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := repo.Create(context.Background(), "ada@example.com", "Ada", "$2a$hash")
	require.NoError(t, err)
	assert.Len(t, user.ID, 36)
}

func TestUserRepository_UpdatePasswordMissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`UPDATE users\s+SET password_hash = \$2`).
		WithArgs("id-1", "$2a$new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), "id-1", "$2a$new")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenRepository_FindValidHashesToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM refresh_tokens\s+WHERE token_hash = \$1 AND expires_at >= \$2`).
		WithArgs(tokenDigest("raw-token"), now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "created_at", "updated_at"}).
			AddRow("user-1", now.Add(time.Hour), now, now))

	record, err := repo.FindValidByToken(context.Background(), "raw-token", now)
	require.NoError(t, err)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "raw-token", record.Token)
}

func TestRefreshTokenRepository_FindValidMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery(`FROM refresh_tokens`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindValidByToken(context.Background(), "raw-token", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenRepository_UpsertByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	expires := time.Now().Add(72 * time.Hour).UTC()

	mock.ExpectExec(`INSERT INTO refresh_tokens .+ ON CONFLICT \(user_id\)\s+DO UPDATE SET`).
		WithArgs(sqlmock.AnyArg(), "user-1", tokenDigest("raw-token"), expires, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpsertByUserID(context.Background(), "user-1", "raw-token", expires))
}

func TestRefreshTokenRepository_InsertDuplicateUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := repo.Insert(context.Background(), RefreshTokenRecord{UserID: "user-1", Token: "t", ExpiresAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateRefreshToken)
}

func TestRefreshTokenRepository_UpdateByUserIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`UPDATE refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateByUserID(context.Background(), "user-1", "t", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenRepository_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(`WITH stale AS .+FROM refresh_tokens.+DELETE FROM refresh_tokens t`).
		WithArgs(now, defaultCleanupBatchSize).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := repo.DeleteExpired(context.Background(), now, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 7, deleted)
}

func TestResetTokenRepository_RoundTrip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewResetTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO reset_tokens`).
		WithArgs(sqlmock.AnyArg(), "user-1", tokenDigest("reset"), now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM reset_tokens\s+WHERE token_hash = \$1 AND expires_at >= \$2`).
		WithArgs(tokenDigest("reset"), now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "created_at"}).
			AddRow("user-1", now.Add(time.Hour), now))
	mock.ExpectExec(`DELETE FROM reset_tokens WHERE token_hash = \$1`).
		WithArgs(tokenDigest("reset")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, ResetTokenRecord{Token: "reset", UserID: "user-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}))

	record, err := repo.FindValidByToken(ctx, "reset", now)
	require.NoError(t, err)
	assert.Equal(t, "user-1", record.UserID)

	require.NoError(t, repo.DeleteByToken(ctx, "reset"))
}

func TestResetTokenRepository_WrapsDriverErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewResetTokenRepository(db)
	boom := errors.New("conn reset")

	mock.ExpectQuery(`FROM reset_tokens`).WillReturnError(boom)

	_, err := repo.FindValidByToken(context.Background(), "reset", time.Now())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestTokenDigest(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		tokenDigest("hello"))
}

func TestResetTokenRepository_ConsumeValidDeletesInOneStatement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewResetTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`DELETE FROM reset_tokens\s+WHERE token_hash = \$1 AND expires_at >= \$2\s+RETURNING user_id, expires_at, created_at`).
		WithArgs(tokenDigest("reset"), now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "created_at"}).
			AddRow("user-1", now.Add(time.Hour), now))
	mock.ExpectQuery(`DELETE FROM reset_tokens`).
		WithArgs(tokenDigest("reset"), now).
		WillReturnError(sql.ErrNoRows)

	record, err := repo.ConsumeValid(context.Background(), "reset", now)
	require.NoError(t, err)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "reset", record.Token)

	_, err = repo.ConsumeValid(context.Background(), "reset", now)
	assert.ErrorIs(t, err, ErrNotFound)
}
