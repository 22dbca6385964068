package auth

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Message struct {
	Message string `json:"message"`
}

// RefreshTokenRecord is the single live refresh token row a user may own.
type RefreshTokenRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResetTokenRecord is a one-time password reset token. A user may hold
// several at once; each is deleted when redeemed.
type ResetTokenRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

const (
	msgUserCreated     = "User created successfully"
	msgPasswordUpdated = "Password updated successfully"
	msgResetRequested  = "If the user exists, a password reset email will be sent"
	msgPasswordReset   = "Password reset successfully"
)
