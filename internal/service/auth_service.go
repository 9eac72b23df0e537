package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"erms/api/internal/events"
	"erms/api/internal/metrics"
	"erms/api/internal/models"
	"erms/api/internal/repository"
	"erms/api/internal/security"
)

// CredentialStore is the persistence the session manager needs. The
// refresh-token list is only ever changed through MutateRefreshTokens or the
// blanket clears, all of which are atomic per user.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByIDWithTokens(ctx context.Context, id string) (models.User, error)
	MutateRefreshTokens(ctx context.Context, userID string, fn repository.TokenMutator) error
	ClearRefreshTokens(ctx context.Context, userID string) error

	Create(ctx context.Context, user models.User) error
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	SetActive(ctx context.Context, id string, active bool) error
}

// defaultPublishTimeout caps how long an auth event may hold up a request.
const defaultPublishTimeout = 300 * time.Millisecond

type AuthService struct {
	store          CredentialStore
	tokens         *security.TokenCodec
	passwords      *security.PasswordHasher
	maxSessions    int
	events         events.Publisher
	publishTimeout time.Duration
	metrics        *metrics.Auth
	log            zerolog.Logger
}

func NewAuthService(
	store CredentialStore,
	tokens *security.TokenCodec,
	passwords *security.PasswordHasher,
	maxSessions int,
	publisher events.Publisher,
	m *metrics.Auth,
	log zerolog.Logger,
) *AuthService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if m == nil {
		m = metrics.NewAuth(nil)
	}
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &AuthService{
		store:          store,
		tokens:         tokens,
		passwords:      passwords,
		maxSessions:    maxSessions,
		events:         publisher,
		publishTimeout: defaultPublishTimeout,
		metrics:        m,
		log:            log,
	}
}

// UserSummary is a user without secret fields.
type UserSummary struct {
	ID        string
	Email     string
	Username  string
	Role      models.UserRole
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func summarize(u models.User) UserSummary {
	return UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type AuthResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	User            UserSummary
}

func (s *AuthService) RefreshTTL() time.Duration {
	return s.tokens.TTL(security.RefreshToken)
}

// Login checks credentials and opens a new session, evicting the oldest one
// when the user already holds maxSessions.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	result, err := s.login(ctx, email, password)
	s.metrics.Logins.WithLabelValues(resultLabel(err)).Inc()
	return result, err
}

func (s *AuthService) login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		s.passwords.VerifyDummy(password)
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.passwords.VerifyDummy(password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, storeError("find user by email", err)
	}

	if !user.IsActive {
		return AuthResult{}, ErrAccountDisabled
	}

	ok, err := s.passwords.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	result, err := s.issuePair(user)
	if err != nil {
		return AuthResult{}, err
	}

	newHash := security.HashToken(result.RefreshToken)
	err = s.store.MutateRefreshTokens(ctx, user.ID, func(hashes []string) []string {
		return appendCapped(hashes, newHash, s.maxSessions)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, storeError("store refresh token", err)
	}

	s.publish(ctx, events.TypeLogin, user.ID, "")
	return result, nil
}

// Refresh rotates a refresh token. A token that verifies but is no longer in
// the user's list has already been used or revoked: every session of the user
// is ended and ErrTokenReuseDetected returned.
func (s *AuthService) Refresh(ctx context.Context, presented string) (AuthResult, error) {
	result, err := s.refresh(ctx, presented)
	s.metrics.Refreshes.WithLabelValues(resultLabel(err)).Inc()
	return result, err
}

func (s *AuthService) refresh(ctx context.Context, presented string) (AuthResult, error) {
	if presented == "" {
		return AuthResult{}, ErrMissingToken
	}

	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return AuthResult{}, ErrInvalidToken
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return AuthResult{}, err
	}

	result, err := s.issuePair(user)
	if err != nil {
		return AuthResult{}, err
	}

	oldHash := security.HashToken(presented)
	newHash := security.HashToken(result.RefreshToken)
	reused := false
	err = s.store.MutateRefreshTokens(ctx, user.ID, func(hashes []string) []string {
		idx := slices.Index(hashes, oldHash)
		if idx < 0 {
			reused = true
			return nil
		}
		hashes = slices.Delete(hashes, idx, idx+1)
		return appendCapped(hashes, newHash, s.maxSessions)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidToken
		}
		return AuthResult{}, storeError("rotate refresh token", err)
	}

	if reused {
		s.metrics.ReuseDetected.Inc()
		s.log.Warn().Str("user_id", user.ID).Msg("refresh token reuse detected; all sessions revoked")
		s.publish(ctx, events.TypeReuseDetected, user.ID, "superseded refresh token presented")
		return AuthResult{}, ErrTokenReuseDetected
	}

	s.publish(ctx, events.TypeRefresh, user.ID, "")
	return result, nil
}

// Logout ends the single session identified by the refresh token. With no
// userID the owner is taken from the token itself, so a client whose access
// token has expired can still log out. Missing or unverifiable input is a
// no-op; the returned error is only for logging, the client is always told
// the logout succeeded.
func (s *AuthService) Logout(ctx context.Context, presented, userID string) error {
	if presented == "" {
		return nil
	}
	if userID == "" {
		claims, err := s.tokens.VerifyRefreshToken(presented)
		if err != nil {
			return nil
		}
		userID = claims.UserID
	}

	hash := security.HashToken(presented)
	removed := false
	err := s.store.MutateRefreshTokens(ctx, userID, func(hashes []string) []string {
		before := len(hashes)
		hashes = slices.DeleteFunc(hashes, func(h string) bool { return h == hash })
		removed = len(hashes) != before
		return hashes
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return storeError("remove refresh token", err)
	}

	if removed {
		s.publish(ctx, events.TypeLogout, userID, "")
	}
	return nil
}

// VerifyAccess authenticates a request. The user is re-read on every call so
// deactivation and role changes apply before the access token expires.
func (s *AuthService) VerifyAccess(ctx context.Context, accessToken string) (security.Identity, error) {
	if accessToken == "" {
		return security.Identity{}, ErrMissingToken
	}

	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return security.Identity{}, ErrInvalidToken
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return security.Identity{}, err
	}
	return identityOf(user), nil
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrInvalidToken
		}
		return models.User{}, storeError("load user", err)
	}
	if !user.IsActive {
		return models.User{}, ErrInvalidToken
	}
	return user, nil
}

func (s *AuthService) issuePair(user models.User) (AuthResult, error) {
	id := identityOf(user)

	access, accessExp, err := s.tokens.Issue(security.AccessToken, id)
	if err != nil {
		return AuthResult{}, internalError("issue access token", err)
	}
	refresh, _, err := s.tokens.Issue(security.RefreshToken, id)
	if err != nil {
		return AuthResult{}, internalError("issue refresh token", err)
	}

	return AuthResult{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		RefreshToken:    refresh,
		User:            summarize(user),
	}, nil
}

// publish is bounded by publishTimeout so a stalled broker delays a request
// by at most that long. Failures are logged only.
func (s *AuthService) publish(ctx context.Context, typ events.Type, userID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	err := s.events.Publish(ctx, events.Event{
		Type:       typ,
		UserID:     userID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("event", string(typ)).Str("user_id", userID).Msg("publish auth event failed")
	}
}

func identityOf(u models.User) security.Identity {
	return security.Identity{
		UserID:   u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     string(u.Role),
	}
}

// appendCapped appends hash and keeps only the newest max entries.
func appendCapped(hashes []string, hash string, max int) []string {
	hashes = append(hashes, hash)
	if len(hashes) > max {
		hashes = slices.Clone(hashes[len(hashes)-max:])
	}
	return hashes
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
