package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryUsers is an in-process UserDirectory used by tests and local runs
// without a database.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryUsers) FindByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryUsers) Create(_ context.Context, email, name, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[email]; taken {
		return User{}, ErrDuplicateEmail
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	user := User{
		ID:           id.String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byID[user.ID] = user
	m.byEmail[email] = user.ID
	return user, nil
}

func (m *MemoryUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	m.byID[id] = user
	return nil
}

type MemoryRefreshTokens struct {
	mu     sync.Mutex
	byUser map[string]RefreshTokenRecord
}

func NewMemoryRefreshTokens() *MemoryRefreshTokens {
	return &MemoryRefreshTokens{byUser: make(map[string]RefreshTokenRecord)}
}

func (m *MemoryRefreshTokens) FindValidByToken(_ context.Context, token string, now time.Time) (RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	digest := tokenDigest(token)
	for _, record := range m.byUser {
		if record.Token == digest && !record.ExpiresAt.Before(now) {
			record.Token = token
			return record, nil
		}
	}
	return RefreshTokenRecord{}, ErrNotFound
}

func (m *MemoryRefreshTokens) FindByUserID(_ context.Context, userID string) (RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byUser[userID]
	if !ok {
		return RefreshTokenRecord{}, ErrNotFound
	}
	return record, nil
}

func (m *MemoryRefreshTokens) Insert(_ context.Context, record RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byUser[record.UserID]; exists {
		return ErrDuplicateRefreshToken
	}
	now := time.Now().UTC()
	record.Token = tokenDigest(record.Token)
	record.CreatedAt, record.UpdatedAt = now, now
	m.byUser[record.UserID] = record
	return nil
}

func (m *MemoryRefreshTokens) UpdateByUserID(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byUser[userID]
	if !ok {
		return ErrNotFound
	}
	record.Token = tokenDigest(token)
	record.ExpiresAt = expiresAt
	record.UpdatedAt = time.Now().UTC()
	m.byUser[userID] = record
	return nil
}

func (m *MemoryRefreshTokens) UpsertByUserID(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	record, ok := m.byUser[userID]
	if !ok {
		record = RefreshTokenRecord{UserID: userID, CreatedAt: now}
	}
	record.Token = tokenDigest(token)
	record.ExpiresAt = expiresAt
	record.UpdatedAt = now
	m.byUser[userID] = record
	return nil
}

func (m *MemoryRefreshTokens) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.byUser, userID)
	return nil
}

// Len reports how many users currently hold a refresh token.
func (m *MemoryRefreshTokens) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}

// MemoryResetTokens keys records by token digest, like the Postgres table.
type MemoryResetTokens struct {
	mu      sync.Mutex
	byToken map[string]ResetTokenRecord
}

func NewMemoryResetTokens() *MemoryResetTokens {
	return &MemoryResetTokens{byToken: make(map[string]ResetTokenRecord)}
}

func (m *MemoryResetTokens) FindValidByToken(_ context.Context, token string, now time.Time) (ResetTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byToken[tokenDigest(token)]
	if !ok || record.ExpiresAt.Before(now) {
		return ResetTokenRecord{}, ErrNotFound
	}
	record.Token = token
	return record, nil
}

func (m *MemoryResetTokens) ConsumeValid(_ context.Context, token string, now time.Time) (ResetTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	digest := tokenDigest(token)
	record, ok := m.byToken[digest]
	if !ok || record.ExpiresAt.Before(now) {
		return ResetTokenRecord{}, ErrNotFound
	}
	delete(m.byToken, digest)
	record.Token = token
	return record, nil
}

func (m *MemoryResetTokens) Insert(_ context.Context, record ResetTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	digest := tokenDigest(record.Token)
	record.Token = digest
	m.byToken[digest] = record
	return nil
}

func (m *MemoryResetTokens) DeleteByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.byToken, tokenDigest(token))
	return nil
}

func (m *MemoryResetTokens) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}
