package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"erms/api/internal/events"
	"erms/api/internal/metrics"
	"erms/api/internal/models"
	"erms/api/internal/repository"
	"erms/api/internal/security"
)

const testPassword = "s3cret-password"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingStore breaks token-list writes to simulate an unreachable database.
type failingStore struct {
	*repository.MemoryStore
}

var errConnReset = errors.New("connection reset by peer")

func (failingStore) MutateRefreshTokens(context.Context, string, repository.TokenMutator) error {
	return errConnReset
}

type fixture struct {
	svc     *AuthService
	store   *repository.MemoryStore
	codec   *security.TokenCodec
	hasher  *security.PasswordHasher
	events  *recordingPublisher
	metrics *metrics.Auth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, wrap func(*repository.MemoryStore) CredentialStore) *fixture {
	t.Helper()

	codec, err := security.NewTokenCodec("test-access-secret", "test-refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	hasher, err := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	require.NoError(t, err)

	mem := repository.NewMemoryStore()
	var store CredentialStore = mem
	if wrap != nil {
		store = wrap(mem)
	}

	pub := &recordingPublisher{}
	m := metrics.NewAuth(nil)
	return &fixture{
		svc:     NewAuthService(store, codec, hasher, 5, pub, m, zerolog.Nop()),
		store:   mem,
		codec:   codec,
		hasher:  hasher,
		events:  pub,
		metrics: m,
	}
}

func (f *fixture) createUser(t *testing.T, email, username string, role models.UserRole, active bool) models.User {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)

	u := models.User{
		ID:           "id-" + username,
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
	}
	require.NoError(t, f.store.Create(context.Background(), u))
	return u
}

func (f *fixture) storedHashes(t *testing.T, userID string) []string {
	t.Helper()
	u, err := f.store.GetByIDWithTokens(context.Background(), userID)
	require.NoError(t, err)
	return u.RefreshTokenHashes
}

func (f *fixture) login(t *testing.T, email string) AuthResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	return res
}
