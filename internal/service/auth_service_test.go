package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"erms/api/internal/events"
	"erms/api/internal/models"
	"erms/api/internal/repository"
	"erms/api/internal/security"
)

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleHR, true)

	res, err := f.svc.Login(context.Background(), "  Jane@Example.COM ", testPassword)
	require.NoError(t, err)

	assert.Equal(t, u.ID, res.User.ID)
	assert.Equal(t, models.UserRoleHR, res.User.Role)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.False(t, res.AccessExpiresAt.IsZero())

	id, err := f.codec.VerifyAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, security.Identity{UserID: u.ID, Email: u.Email, Username: "jane", Role: "hr"}, id)

	_, err = f.codec.VerifyRefreshToken(res.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, []string{security.HashToken(res.RefreshToken)}, f.storedHashes(t, u.ID))
	assert.Equal(t, []events.Type{events.TypeLogin}, f.events.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Logins.WithLabelValues("ok")))
}

func TestLogin_EnumerationResistance(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "real@x.com", "real", models.UserRoleEmployee, true)

	_, errUnknown := f.svc.Login(context.Background(), "unknown@x.com", "anything")
	_, errWrong := f.svc.Login(context.Background(), "real@x.com", "wrongpass")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, KindInvalidCredentials, KindOf(errUnknown))
	assert.Equal(t, KindOf(errUnknown), KindOf(errWrong))
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, PublicMessage(errUnknown), PublicMessage(errWrong))
}

func TestLogin_EmptyEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "   ", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_DisabledAccount(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "off@example.com", "off", models.UserRoleEmployee, false)

	_, err := f.svc.Login(context.Background(), "off@example.com", testPassword)
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLogin_CapKeepsNewestFive(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)

	var want []string
	for i := 0; i < 7; i++ {
		res := f.login(t, u.Email)
		want = append(want, security.HashToken(res.RefreshToken))
	}

	got := f.storedHashes(t, u.ID)
	assert.Len(t, got, 5)
	assert.Equal(t, want[2:], got)
}

func TestLogin_StoreFailureReturnsNoTokens(t *testing.T) {
	f := newFixtureWithStore(t, func(m *repository.MemoryStore) CredentialStore {
		return failingStore{m}
	})
	f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)

	res, err := f.svc.Login(context.Background(), "jane@example.com", testPassword)
	require.Error(t, err)
	assert.Equal(t, KindStoreUnavailable, KindOf(err))
	assert.ErrorIs(t, err, errConnReset)
	assert.Empty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)
	assert.Empty(t, f.events.types())
}

func TestRefresh_Rotates(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	first := f.login(t, u.Email)

	second, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEmpty(t, second.AccessToken)

	hashes := f.storedHashes(t, u.ID)
	assert.NotContains(t, hashes, security.HashToken(first.RefreshToken))
	assert.Contains(t, hashes, security.HashToken(second.RefreshToken))
	assert.Len(t, hashes, 1)
}

func TestRefresh_ReusedTokenRevokesEverything(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	t1 := f.login(t, u.Email)

	t2, err := f.svc.Refresh(context.Background(), t1.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), t1.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)
	assert.Empty(t, f.storedHashes(t, u.ID))

	// T2 was never used, yet the wipe is total.
	_, err = f.svc.Refresh(context.Background(), t2.RefreshToken)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ReuseDetected))
	assert.Contains(t, f.events.types(), events.TypeReuseDetected)
}

func TestRefresh_ReuseWipesOtherSessions(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	laptop := f.login(t, u.Email)
	phone := f.login(t, u.Email)

	_, err := f.svc.Refresh(context.Background(), laptop.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.Refresh(context.Background(), laptop.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReuseDetected)

	_, err = f.svc.Refresh(context.Background(), phone.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenReuseDetected)
}

func TestRefresh_InputErrors(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	res := f.login(t, u.Email)

	_, err := f.svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = f.svc.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(context.Background(), res.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Failed verification must not touch the stored list.
	assert.Len(t, f.storedHashes(t, u.ID), 1)
}

func TestRefresh_UnknownUser(t *testing.T) {
	f := newFixture(t)
	token, err := f.codec.IssueRefreshToken(security.Identity{UserID: "ghost", Role: "employee"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_StoreFailure(t *testing.T) {
	f := newFixtureWithStore(t, func(m *repository.MemoryStore) CredentialStore {
		return failingStore{m}
	})
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	token, err := f.codec.IssueRefreshToken(identityOf(u))
	require.NoError(t, err)

	res, err := f.svc.Refresh(context.Background(), token)
	assert.Equal(t, KindStoreUnavailable, KindOf(err))
	assert.Empty(t, res.RefreshToken)
}

func TestRefresh_ConcurrentSameTokenOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	res := f.login(t, u.Email)

	const racers = 8
	start := make(chan struct{})
	errs := make([]error, racers)

	var g errgroup.Group
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			<-start
			_, errs[i] = f.svc.Refresh(context.Background(), res.RefreshToken)
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrTokenReuseDetected)
	}
	assert.Equal(t, 1, wins)
}

func TestLogout_OnlyEndsThatSession(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	a := f.login(t, u.Email)
	b := f.login(t, u.Email)

	require.NoError(t, f.svc.Logout(context.Background(), a.RefreshToken, u.ID))
	assert.Equal(t, []string{security.HashToken(b.RefreshToken)}, f.storedHashes(t, u.ID))

	_, err := f.svc.Refresh(context.Background(), b.RefreshToken)
	assert.NoError(t, err)
	assert.Contains(t, f.events.types(), events.TypeLogout)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	a := f.login(t, u.Email)

	assert.NoError(t, f.svc.Logout(context.Background(), "", u.ID))
	assert.NoError(t, f.svc.Logout(context.Background(), a.RefreshToken, ""))
	assert.NoError(t, f.svc.Logout(context.Background(), a.RefreshToken, u.ID))
	assert.NoError(t, f.svc.Logout(context.Background(), a.RefreshToken, u.ID))
	assert.NoError(t, f.svc.Logout(context.Background(), a.RefreshToken, "ghost"))
	assert.Empty(t, f.storedHashes(t, u.ID))
}

func TestLogout_StoreFailureIsReported(t *testing.T) {
	f := newFixtureWithStore(t, func(m *repository.MemoryStore) CredentialStore {
		return failingStore{m}
	})
	err := f.svc.Logout(context.Background(), "token", "u1")
	assert.Equal(t, KindStoreUnavailable, KindOf(err))
}

func TestLogout_WithoutUserIDUsesTokenSubject(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	a := f.login(t, u.Email)
	b := f.login(t, u.Email)

	require.NoError(t, f.svc.Logout(context.Background(), a.RefreshToken, ""))
	assert.Equal(t, []string{security.HashToken(b.RefreshToken)}, f.storedHashes(t, u.ID))

	assert.NoError(t, f.svc.Logout(context.Background(), "not-a-jwt", ""))
	assert.Len(t, f.storedHashes(t, u.ID), 1)
}

// stalledPublisher never completes until its context is done, like an
// XADD against a Redis that accepts the connection but stops answering.
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ events.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledPublisherDoesNotBlockAuth(t *testing.T) {
	f := newFixture(t)
	f.svc.events = stalledPublisher{}
	f.svc.publishTimeout = 50 * time.Millisecond
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)

	start := time.Now()
	res, err := f.svc.Login(context.Background(), u.Email, testPassword)
	require.NoError(t, err)
	_, err = f.svc.Refresh(context.Background(), res.RefreshToken)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestVerifyAccess(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleAdmin, true)
	res := f.login(t, u.Email)

	id, err := f.svc.VerifyAccess(context.Background(), res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)
	assert.Equal(t, "admin", id.Role)

	_, err = f.svc.VerifyAccess(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = f.svc.VerifyAccess(context.Background(), res.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDeactivationGate(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "jane@example.com", "jane", models.UserRoleEmployee, true)
	res := f.login(t, u.Email)

	require.NoError(t, f.svc.SetActive(context.Background(), u.ID, false))

	_, err := f.svc.Login(context.Background(), u.Email, testPassword)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = f.svc.Refresh(context.Background(), res.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.VerifyAccess(context.Background(), res.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.Contains(t, f.events.types(), events.TypeAccountDisabled)
}

func TestError_IsMatchesKind(t *testing.T) {
	wrapped := &Error{Kind: KindInvalidToken, Message: "x", Err: errors.New("cause")}
	assert.ErrorIs(t, wrapped, ErrInvalidToken)
	assert.NotErrorIs(t, wrapped, ErrMissingToken)
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("plain")))
	assert.Equal(t, "token_reuse_detected", KindTokenReuseDetected.String())
}
