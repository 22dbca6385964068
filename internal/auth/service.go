package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 3 * 24 * time.Hour
	defaultResetTTL   = time.Hour

	resetTokenBytes = 32
)

// Config carries the token lifetimes. AccessTTL is baked into the signer;
// the service reads the refresh and reset lifetimes.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// RevokeSessionsOnPasswordChange drops the user's refresh token after a
	// password change or reset.
	RevokeSessionsOnPasswordChange bool
}

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = defaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = defaultRefreshTTL
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = defaultResetTTL
	}
	return c
}

type Dependencies struct {
	Users         UserDirectory
	RefreshTokens RefreshTokenStore
	ResetTokens   ResetTokenStore
	Hasher        PasswordHasher
	Signer        TokenSigner
	Notifier      Notifier
	Logger        Logger
	Clock         func() time.Time
}

type Service struct {
	users    UserDirectory
	refresh  RefreshTokenStore
	reset    ResetTokenStore
	hasher   PasswordHasher
	signer   TokenSigner
	notifier Notifier
	logger   Logger
	now      func() time.Time
	cfg      Config

	// dummyHash is compared against when a login email is unknown so both
	// failure paths pay for one hash verification.
	dummyHash string
}

func NewService(deps Dependencies, cfg Config) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("user directory is required")
	case deps.RefreshTokens == nil:
		return nil, errors.New("refresh token store is required")
	case deps.ResetTokens == nil:
		return nil, errors.New("reset token store is required")
	case deps.Hasher == nil:
		return nil, errors.New("password hasher is required")
	case deps.Signer == nil:
		return nil, errors.New("token signer is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	}

	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	s := &Service{
		users:     deps.Users,
		refresh:   deps.RefreshTokens,
		reset:     deps.ResetTokens,
		hasher:    deps.Hasher,
		signer:    deps.Signer,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		now:       deps.Clock,
		cfg:       cfg.withDefaults(),
		dummyHash: dummy,
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Service) SignUp(ctx context.Context, email, name, password string) (Message, error) {
	email = normalizeEmail(email)

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return Message{}, ErrDuplicateEmail
	}
	if !errors.Is(err, ErrNotFound) {
		return Message{}, fmt.Errorf("find user by email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Message{}, err
	}

	user, err := s.users.Create(ctx, email, strings.TrimSpace(name), hash)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return Message{}, ErrDuplicateEmail
		}
		return Message{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user_signed_up", map[string]any{"user_id": user.ID})
	return Message{Message: msgUserCreated}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, fmt.Errorf("find user by email: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return Tokens{}, ErrInvalidCredentials
	}

	return s.issueTokens(ctx, user.ID)
}

func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Tokens{}, ErrInvalidRefreshToken
	}

	record, err := s.refresh.FindValidByToken(ctx, refreshToken, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tokens{}, ErrInvalidRefreshToken
		}
		return Tokens{}, fmt.Errorf("find refresh token: %w", err)
	}

	return s.issueTokens(ctx, record.UserID)
}

func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (Message, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, ErrUserNotFound
		}
		return Message{}, fmt.Errorf("find user by id: %w", err)
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return Message{}, ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return Message{}, err
	}

	return Message{Message: msgPasswordUpdated}, nil
}

// ForgotPassword answers with the same message whether or not the email
// belongs to a user. Only store lookup failures are returned.
func (s *Service) ForgotPassword(ctx context.Context, email string) (Message, error) {
	email = normalizeEmail(email)
	generic := Message{Message: msgResetRequested}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return generic, nil
		}
		return Message{}, fmt.Errorf("find user by email: %w", err)
	}

	token, err := randomToken(resetTokenBytes)
	if err != nil {
		s.logger.Error("reset_token_generate_failed", map[string]any{"error": err.Error()})
		return generic, nil
	}

	now := s.now().UTC()
	record := ResetTokenRecord{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.ResetTTL),
		CreatedAt: now,
	}
	if err := s.reset.Insert(ctx, record); err != nil {
		s.logger.Error("reset_token_insert_failed", map[string]any{"user_id": user.ID, "error": err.Error()})
		return generic, nil
	}

	if err := s.notifier.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		s.logger.Error("password_reset_email_failed", map[string]any{"user_id": user.ID, "error": err.Error()})
	}

	return generic, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (Message, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Message{}, ErrInvalidResetToken
	}

	// The token is spent before the password changes; a failed update means
	// the user has to request a new one.
	record, err := s.reset.ConsumeValid(ctx, token, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, ErrInvalidResetToken
		}
		return Message{}, fmt.Errorf("consume reset token: %w", err)
	}

	if err := s.setPassword(ctx, record.UserID, newPassword); err != nil {
		return Message{}, err
	}

	return Message{Message: msgPasswordReset}, nil
}

func (s *Service) setPassword(ctx context.Context, userID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if s.cfg.RevokeSessionsOnPasswordChange {
		if err := s.refresh.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	return nil
}

func (s *Service) issueTokens(ctx context.Context, userID string) (Tokens, error) {
	access, err := s.signer.Sign(userID)
	if err != nil {
		return Tokens{}, err
	}

	refresh, err := uuid.NewRandom()
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}

	expiresAt := s.now().UTC().Add(s.cfg.RefreshTTL)
	if err := s.refresh.UpsertByUserID(ctx, userID, refresh.String(), expiresAt); err != nil {
		return Tokens{}, fmt.Errorf("store refresh token: %w", err)
	}

	return Tokens{AccessToken: access, RefreshToken: refresh.String()}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
