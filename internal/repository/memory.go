package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"erms/api/internal/models"
)

// MemoryStore is an in-process credential store. A single mutex makes every
// token-list mutation atomic, matching the row lock of the Postgres store.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]models.User
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.User),
		now:   time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists || s.conflicts("", user.Email, user.Username) {
		return ErrDuplicate
	}
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role %q", user.Role)
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	user.RefreshTokenHashes = slices.Clone(user.RefreshTokenHashes)
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return withoutTokens(u), nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return withoutTokens(u), nil
}

func (s *MemoryStore) GetByIDWithTokens(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	u.RefreshTokenHashes = slices.Clone(u.RefreshTokenHashes)
	return u, nil
}

func (s *MemoryStore) MutateRefreshTokens(_ context.Context, userID string, fn TokenMutator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.RefreshTokenHashes = slices.Clone(fn(slices.Clone(u.RefreshTokenHashes)))
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) ClearRefreshTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.RefreshTokenHashes = nil
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) ClearRefreshTokensForInactive(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, u := range s.users {
		if !u.IsActive && len(u.RefreshTokenHashes) > 0 {
			u.RefreshTokenHashes = nil
			s.users[id] = u
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id string, update models.ProfileUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	email, username := u.Email, u.Username
	if update.Email != nil {
		email = *update.Email
	}
	if update.Username != nil {
		username = *update.Username
	}
	if s.conflicts(id, email, username) {
		return models.User{}, ErrDuplicate
	}

	u.Email, u.Username = email, username
	u.UpdatedAt = s.now()
	s.users[id] = u
	return withoutTokens(u), nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = slices.Clone(passwordHash)
	u.RefreshTokenHashes = nil
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsActive = active
	if !active {
		u.RefreshTokenHashes = nil
	}
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

// conflicts reports whether another user than skipID holds email or username.
// Caller holds s.mu.
func (s *MemoryStore) conflicts(skipID, email, username string) bool {
	for id, u := range s.users {
		if id == skipID {
			continue
		}
		if strings.EqualFold(u.Email, email) || u.Username == username {
			return true
		}
	}
	return false
}

func withoutTokens(u models.User) models.User {
	u.RefreshTokenHashes = nil
	return u
}
