package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"erms/api/internal/events"
	"erms/api/internal/ids"
	"erms/api/internal/models"
	"erms/api/internal/repository"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	minUsernameLen = 3
	maxUsernameLen = 50
)

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Register creates an active employee account. Elevated roles are never
// granted through registration.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (UserSummary, error) {
	return s.createUser(ctx, input, models.UserRoleEmployee)
}

// EnsureAdmin creates an admin account from operator-supplied credentials
// unless the email is already registered. It reports whether a user was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, input RegisterInput) (bool, error) {
	_, err := s.store.FindByEmail(ctx, normalizeEmail(input.Email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return false, storeError("find admin", err)
	}

	if _, err := s.createUser(ctx, input, models.UserRoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AuthService) createUser(ctx context.Context, input RegisterInput, role models.UserRole) (UserSummary, error) {
	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)
	if err := validateEmail(email); err != nil {
		return UserSummary{}, err
	}
	if err := validateUsername(username); err != nil {
		return UserSummary{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return UserSummary{}, err
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return UserSummary{}, internalError("hash password", err)
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return UserSummary{}, conflictError("Email or username already in use")
		}
		return UserSummary{}, storeError("create user", err)
	}

	created, err := s.store.GetByID(ctx, user.ID)
	if err != nil {
		return UserSummary{}, storeError("reload user", err)
	}
	return summarize(created), nil
}

// Profile returns the user without secret fields.
func (s *AuthService) Profile(ctx context.Context, userID string) (UserSummary, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return UserSummary{}, ErrNotFound
		}
		return UserSummary{}, storeError("load profile", err)
	}
	return summarize(user), nil
}

// ActiveSessions reports how many refresh tokens the user currently holds.
func (s *AuthService) ActiveSessions(ctx context.Context, userID string) (int, error) {
	user, err := s.store.GetByIDWithTokens(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrNotFound
		}
		return 0, storeError("load sessions", err)
	}
	return len(user.RefreshTokenHashes), nil
}

type ProfileInput struct {
	Email    *string
	Username *string
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (UserSummary, error) {
	var update models.ProfileUpdate
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if err := validateEmail(email); err != nil {
			return UserSummary{}, err
		}
		update.Email = &email
	}
	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if err := validateUsername(username); err != nil {
			return UserSummary{}, err
		}
		update.Username = &username
	}
	if update.Email == nil && update.Username == nil {
		return UserSummary{}, validationError("Nothing to update")
	}

	user, err := s.store.UpdateProfile(ctx, userID, update)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return UserSummary{}, ErrNotFound
		case errors.Is(err, repository.ErrDuplicate):
			return UserSummary{}, conflictError("Email or username already in use")
		}
		return UserSummary{}, storeError("update profile", err)
	}
	return summarize(user), nil
}

// ChangePassword replaces the password and ends every session, including the
// caller's; the client has to log in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return storeError("load user", err)
	}

	ok, err := s.passwords.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	if current == next {
		return validationError("New password must differ from the current one")
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return internalError("hash password", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return storeError("update password", err)
	}

	s.publish(ctx, events.TypePasswordChanged, userID, "")
	return nil
}

// SetActive flips the account gate. Deactivation revokes every session at once.
func (s *AuthService) SetActive(ctx context.Context, userID string, active bool) error {
	if err := s.store.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return storeError("set active", err)
	}
	if !active {
		s.publish(ctx, events.TypeAccountDisabled, userID, "")
	}
	return nil
}

// RevokeAllSessions clears the user's refresh-token list.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID, reason string) error {
	if err := s.store.ClearRefreshTokens(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return storeError("clear refresh tokens", err)
	}
	s.publish(ctx, events.TypeSessionsRevoked, userID, reason)
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("Email is invalid")
	}
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return validationError("Username must be between 3 and 50 characters")
	}
	return nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLen {
		return validationError("Password must be at least 8 characters")
	}
	if n > maxPasswordLen {
		return validationError("Password must be at most 128 characters")
	}
	return nil
}
