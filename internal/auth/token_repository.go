package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultCleanupBatchSize = 500

type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) FindValidByToken(ctx context.Context, token string, now time.Time) (RefreshTokenRecord, error) {
	record := RefreshTokenRecord{Token: token}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at, created_at, updated_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at >= $2
	`, tokenDigest(token), now.UTC()).Scan(&record.UserID, &record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshTokenRecord{}, ErrNotFound
		}
		return RefreshTokenRecord{}, fmt.Errorf("query refresh token: %w", err)
	}

	return record, nil
}

// FindByUserID returns the user's row. Token holds the stored digest since
// the raw value is never persisted.
func (r *RefreshTokenRepository) FindByUserID(ctx context.Context, userID string) (RefreshTokenRecord, error) {
	record := RefreshTokenRecord{UserID: userID}
	err := r.db.QueryRowContext(ctx, `
		SELECT token_hash, expires_at, created_at, updated_at
		FROM refresh_tokens
		WHERE user_id = $1
	`, userID).Scan(&record.Token, &record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshTokenRecord{}, ErrNotFound
		}
		return RefreshTokenRecord{}, fmt.Errorf("query refresh token by user: %w", err)
	}

	return record, nil
}

func (r *RefreshTokenRepository) Insert(ctx context.Context, record RefreshTokenRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, id.String(), record.UserID, tokenDigest(record.Token), record.ExpiresAt.UTC(), now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRefreshToken
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepository) UpdateByUserID(ctx context.Context, userID, token string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET token_hash = $2, expires_at = $3, updated_at = $4
		WHERE user_id = $1
	`, userID, tokenDigest(token), expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpsertByUserID relies on the unique user_id constraint so concurrent
// logins for one user resolve to last-write-wins without a lookup.
func (r *RefreshTokenRepository) UpsertByUserID(ctx context.Context, userID, token string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, id.String(), userID, tokenDigest(token), expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert refresh token: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	return deleteExpired(ctx, r.db, "refresh_tokens", now, batchSize)
}

type ResetTokenRepository struct {
	db *sql.DB
}

func NewResetTokenRepository(db *sql.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) FindValidByToken(ctx context.Context, token string, now time.Time) (ResetTokenRecord, error) {
	record := ResetTokenRecord{Token: token}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at, created_at
		FROM reset_tokens
		WHERE token_hash = $1 AND expires_at >= $2
	`, tokenDigest(token), now.UTC()).Scan(&record.UserID, &record.ExpiresAt, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResetTokenRecord{}, ErrNotFound
		}
		return ResetTokenRecord{}, fmt.Errorf("query reset token: %w", err)
	}

	return record, nil
}

func (r *ResetTokenRepository) ConsumeValid(ctx context.Context, token string, now time.Time) (ResetTokenRecord, error) {
	record := ResetTokenRecord{Token: token}
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM reset_tokens
		WHERE token_hash = $1 AND expires_at >= $2
		RETURNING user_id, expires_at, created_at
	`, tokenDigest(token), now.UTC()).Scan(&record.UserID, &record.ExpiresAt, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResetTokenRecord{}, ErrNotFound
		}
		return ResetTokenRecord{}, fmt.Errorf("consume reset token: %w", err)
	}

	return record, nil
}

func (r *ResetTokenRepository) Insert(ctx context.Context, record ResetTokenRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate reset token id: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), record.UserID, tokenDigest(record.Token), record.ExpiresAt.UTC(), createdAt.UTC())
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	return nil
}

func (r *ResetTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reset_tokens WHERE token_hash = $1`, tokenDigest(token))
	if err != nil {
		return fmt.Errorf("delete reset token: %w", err)
	}
	return nil
}

func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	return deleteExpired(ctx, r.db, "reset_tokens", now, batchSize)
}

func deleteExpired(ctx context.Context, db *sql.DB, table string, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}

	res, err := db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM `+table+`
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM `+table+` t
		USING stale
		WHERE t.id = stale.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired %s: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired %s rows affected: %w", table, err)
	}

	return affected, nil
}
