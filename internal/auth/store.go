package auth

import (
	"context"
	"time"
)

// UserDirectory owns user records. Lookups return ErrNotFound when no user
// matches; Create returns ErrDuplicateEmail when the email is taken.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, email, name, passwordHash string) (User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// RefreshTokenStore keeps at most one refresh token per user. Service code
// rotates through UpsertByUserID; FindByUserID, Insert and UpdateByUserID
// serve callers that manage the row in separate steps.
//
// Records returned by FindByUserID carry the stored form in Token, which is
// the SHA-256 digest of the raw value. FindValidByToken echoes the raw token
// it was given.
type RefreshTokenStore interface {
	// FindValidByToken matches the token and expires_at >= now in one lookup.
	FindValidByToken(ctx context.Context, token string, now time.Time) (RefreshTokenRecord, error)
	FindByUserID(ctx context.Context, userID string) (RefreshTokenRecord, error)
	Insert(ctx context.Context, record RefreshTokenRecord) error
	UpdateByUserID(ctx context.Context, userID, token string, expiresAt time.Time) error
	// UpsertByUserID inserts the user's row or replaces its token and expiry
	// in a single atomic step.
	UpsertByUserID(ctx context.Context, userID, token string, expiresAt time.Time) error
	DeleteByUserID(ctx context.Context, userID string) error
}

type ResetTokenStore interface {
	FindValidByToken(ctx context.Context, token string, now time.Time) (ResetTokenRecord, error)
	// ConsumeValid deletes and returns the matching unexpired token in one
	// step, so only one caller can ever redeem it.
	ConsumeValid(ctx context.Context, token string, now time.Time) (ResetTokenRecord, error)
	Insert(ctx context.Context, record ResetTokenRecord) error
	DeleteByToken(ctx context.Context, token string) error
}

// Notifier delivers the password reset token to the user.
type Notifier interface {
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// Logger is the subset of observability.Logger the service writes to.
type Logger interface {
	Info(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}

type nopLogger struct{}

func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}
