package authcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/memory"
)

func TestLoginIssuesVerifiablePair(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, testEmail, testPhone)

	pair := h.login(t)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if !pair.AccessExpiresAt.Equal(h.clock.Now().Add(2 * time.Hour)) {
		t.Fatalf("unexpected access expiry %v", pair.AccessExpiresAt)
	}
	if !pair.RefreshExpiresAt.Equal(h.clock.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", pair.RefreshExpiresAt)
	}

	id, err := h.engine.VerifyAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.AccountID != account.ID || id.Email != testEmail || id.Role != RoleUser {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestLoginNormalizesIdentifier(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)

	if _, err := h.engine.Login(context.Background(), "  ALICE@Example.com ", testPassword); err != nil {
		t.Fatalf("expected case-insensitive login, got %v", err)
	}
}

func TestLoginUnknownAndWrongSecretAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)
	ctx := context.Background()

	_, errUnknown := h.engine.Login(ctx, "nobody@example.com", testPassword)
	_, errWrong := h.engine.Login(ctx, testEmail, "wrong-password-0")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("error text differs: %q vs %q", errUnknown, errWrong)
	}
}

type countingHasher struct {
	password.Hasher
	verifies atomic.Int64
}

func (c *countingHasher) Verify(secret, encoded string) (bool, error) {
	c.verifies.Add(1)
	return c.Hasher.Verify(secret, encoded)
}

func TestUnknownIdentifierStillRunsHashComparison(t *testing.T) {
	inner, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hasher := &countingHasher{Hasher: inner}

	clk := clock.NewFake(time.Time{})
	st := memory.New(clk)
	engine, err := New().
		WithConfig(testConfig()).
		WithDirectory(st.Directory).
		WithAccessControlStore(st.AccessControl).
		WithRefreshStore(st.RefreshTokens).
		WithHistoryStore(st.History).
		WithClock(clk).
		WithHasher(hasher).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	defer engine.Close()
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"login unknown email", func() error {
			_, err := engine.Login(ctx, "nobody@example.com", testPassword)
			return err
		}},
		{"login empty identifier", func() error {
			_, err := engine.Login(ctx, "   ", testPassword)
			return err
		}},
		{"renew unknown email", func() error {
			return engine.RenewPassword(ctx, "nobody@example.com", testPassword, "another-long-secret")
		}},
	}
	for _, tc := range cases {
		before := hasher.verifies.Load()
		if err := tc.call(); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.name, err)
		}
		if got := hasher.verifies.Load() - before; got != 1 {
			t.Fatalf("%s: expected one hash comparison, got %d", tc.name, got)
		}
	}
}

func TestLockoutIsTimeGated(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, testEmail, testPhone)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := h.engine.Login(ctx, testEmail, "wrong-password-0"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// The fifth failure locks but is itself reported as a bad secret.
	if _, err := h.engine.Login(ctx, testEmail, "wrong-password-0"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials on locking attempt, got %v", err)
	}
	lockedAt := h.clock.Now()

	st, err := h.engine.LockoutStatus(ctx, account.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Failures != 5 || st.LockedUntil == nil || !st.LockedUntil.Equal(lockedAt.Add(15*time.Minute)) {
		t.Fatalf("unexpected state %+v", st)
	}

	h.clock.Advance(time.Minute)
	_, err = h.engine.Login(ctx, testEmail, testPassword)
	var locked *LockedError
	if !errors.As(err, &locked) || !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected LockedError with correct secret, got %v", err)
	}
	if !locked.Until.Equal(lockedAt.Add(15 * time.Minute)) {
		t.Fatalf("unexpected lock end %v", locked.Until)
	}

	h.clock.Advance(14 * time.Minute)
	if _, err := h.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("expected login after lock elapsed, got %v", err)
	}
	st, _ = h.engine.LockoutStatus(ctx, account.ID)
	if st.Failures != 0 || st.LockedUntil != nil {
		t.Fatalf("expected reset state, got %+v", st)
	}
}

func TestFailureAfterExpiredLockRelocks(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(ctx, testEmail, "wrong-password-0")
	}
	h.clock.Advance(16 * time.Minute)

	if _, err := h.engine.Login(ctx, testEmail, "wrong-password-0"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected relock, got %v", err)
	}
}

func TestSuccessfulLoginResetsFailures(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, testEmail, testPhone)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = h.engine.Login(ctx, testEmail, "wrong-password-0")
	}
	h.login(t)
	for i := 0; i < 4; i++ {
		_, _ = h.engine.Login(ctx, testEmail, "wrong-password-0")
	}
	st, _ := h.engine.LockoutStatus(ctx, account.ID)
	if st.Failures != 4 || st.LockedUntil != nil {
		t.Fatalf("expected 4 failures without lock, got %+v", st)
	}
}

func TestUnlockAccountClearsLock(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, testEmail, testPhone)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(ctx, testEmail, "wrong-password-0")
	}
	if err := h.engine.UnlockAccount(ctx, account.ID, "admin-1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	h.login(t)

	if err := h.engine.UnlockAccount(ctx, "missing", "admin-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, testEmail, testPhone)
	ctx := context.Background()

	if err := h.engine.DeactivateAccount(ctx, account.ID, "admin-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := h.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, "wrong-password-0"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong secret, got %v", err)
	}
}

func TestLoginPasswordExpiry(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)
	ctx := context.Background()

	h.clock.Advance(90 * 24 * time.Hour)
	h.login(t)

	h.clock.Advance(time.Second)
	if _, err := h.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}

	next := "a-brand-new-secret"
	if err := h.engine.RenewPassword(ctx, testEmail, testPassword, next); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, next); err != nil {
		t.Fatalf("login after renew: %v", err)
	}
}

func TestLoginWithoutHistoryIsExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hash, err := h.engine.passwords.Hash(testPassword)
	if err != nil {
		t.Fatal(err)
	}
	now := h.clock.Now()
	account := directory.Account{
		ID: "migrated-1", Email: testEmail, Phone: testPhone,
		Role: RoleUser, Active: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := h.store.Directory.CreateAccount(ctx, account); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Directory.CreateCredential(ctx, directory.Credential{
		ID: "cred-1", AccountID: account.ID, Email: testEmail,
		PasswordHash: hash, Active: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}
}

func TestRefreshRotationChain(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)
	ctx := context.Background()

	t0 := h.login(t)
	t1, err := h.engine.RefreshSession(ctx, t0.RefreshToken)
	if err != nil {
		t.Fatalf("rotate t0: %v", err)
	}
	if _, err := h.engine.RefreshSession(ctx, t0.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected replay of t0 to fail, got %v", err)
	}
	if _, err := h.engine.RefreshSession(ctx, t1.RefreshToken); err != nil {
		t.Fatalf("rotate t1: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)

	pair := h.login(t)
	h.clock.Advance(7*24*time.Hour + time.Second)
	if _, err := h.engine.RefreshSession(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)
	pair := h.login(t)

	const workers = 16
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.engine.RefreshSession(context.Background(), pair.RefreshToken)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrInvalidToken):
				losses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 || losses.Load() != workers-1 {
		t.Fatalf("expected one winner, got wins=%d losses=%d", wins.Load(), losses.Load())
	}
	if n := h.store.RefreshTokens.Len(); n != 1 {
		t.Fatalf("expected one live token, got %d", n)
	}
}

func TestRefreshForInactiveAccountConsumesToken(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, testEmail, testPhone)
	ctx := context.Background()
	pair := h.login(t)

	// Bypass the engine so the refresh token survives the status change.
	account.Active = false
	if err := h.store.Directory.UpdateAccount(ctx, account); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.RefreshSession(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if n := h.store.RefreshTokens.Len(); n != 0 {
		t.Fatalf("expected no live tokens, got %d", n)
	}
}

func TestLogoutAndLogoutAll(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, testEmail, testPhone)
	ctx := context.Background()

	a := h.login(t)
	h.login(t)
	h.login(t)

	if err := h.engine.Logout(ctx, a.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := h.engine.Logout(ctx, a.RefreshToken); err != nil {
		t.Fatalf("second logout should be a no-op, got %v", err)
	}
	if _, err := h.engine.RefreshSession(ctx, a.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}

	n, err := h.engine.LogoutAll(ctx, account.ID)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", n)
	}
}

func TestRevokeAccessToken(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)
	ctx := context.Background()
	pair := h.login(t)

	if err := h.engine.RevokeAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.engine.VerifyAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}

	other := h.login(t)
	if _, err := h.engine.VerifyAccessToken(ctx, other.AccessToken); err != nil {
		t.Fatalf("unrelated token rejected: %v", err)
	}
}

func TestRevokeAccessTokenWithoutDenylist(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	st := memory.New(clk)
	engine, err := New().
		WithConfig(testConfig()).
		WithDirectory(st.Directory).
		WithAccessControlStore(st.AccessControl).
		WithRefreshStore(st.RefreshTokens).
		WithHistoryStore(st.History).
		WithClock(clk).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.RevokeAccessToken(context.Background(), "anything"); !errors.Is(err, ErrRevocationUnsupported) {
		t.Fatalf("expected ErrRevocationUnsupported, got %v", err)
	}
}

func TestVerifyAccessTokenExpiry(t *testing.T) {
	h := newHarness(t)
	h.register(t, testEmail, testPhone)
	pair := h.login(t)

	h.clock.Advance(2*time.Hour + time.Second)
	if _, err := h.engine.VerifyAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
	if _, err := h.engine.VerifyAccessToken(context.Background(), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected garbage to fail, got %v", err)
	}
}

func TestLoginEmitsSecurityEvents(t *testing.T) {
	h := newHarness(t, withEvents)
	h.register(t, testEmail, testPhone)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(ctx, testEmail, "wrong-password-0")
	}
	_, _ = h.engine.Login(ctx, testEmail, testPassword)

	got := h.drain()
	for _, want := range []string{EventAccountCreated, EventLoginFailure, EventAccountLocked, EventLoginLocked} {
		if !contains(got, want) {
			t.Fatalf("missing %s in %v", want, got)
		}
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginFailure] != 5 || snap.Counters[MetricAccountLocked] != 1 || snap.Counters[MetricLoginLocked] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), testEmail, testPassword); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if cfg := e.Config(); cfg.Token.AccessTTL != 0 || cfg.Token.SigningKey != nil {
		t.Fatalf("expected zero config from nil engine, got %+v", cfg.Token)
	}
	e.Close()
}
