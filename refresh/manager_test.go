package refresh_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store/memory"
)

func newTestManager(t *testing.T, store refresh.Store, clk clock.Clock) *refresh.Manager {
	t.Helper()
	m, err := refresh.NewManager(store, refresh.Config{
		TTL:          refresh.DefaultTTL,
		MaxRotations: refresh.DefaultMaxRotations,
		Timeout:      time.Second,
	}, clk, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

type conflictStore struct{ *memory.RefreshTokens }

func (conflictStore) Rotate(context.Context, string, int, refresh.Record) error {
	return refresh.ErrRotationConflict
}

func TestCreateStoresOnlyHash(t *testing.T) {
	store := memory.NewRefreshTokens()
	clk := clock.NewFake(time.Time{})
	m := newTestManager(t, store, clk)
	ctx := context.Background()

	issued, err := m.Create(ctx, "acc-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(issued.Token) != 43 {
		t.Fatalf("expected 43 char base64url token, got %d", len(issued.Token))
	}
	if !issued.ExpiresAt.Equal(clk.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", issued.ExpiresAt)
	}
	if _, err := store.Find(ctx, issued.Token); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatal("raw token must not be a store key")
	}
	if !m.IsValid(ctx, issued.Token) {
		t.Fatal("fresh token should be valid")
	}
	owner, err := m.GetAccount(ctx, issued.Token)
	if err != nil || owner != "acc-1" {
		t.Fatalf("expected owner acc-1, got %q err=%v", owner, err)
	}
}

func TestRotateInvalidatesPredecessor(t *testing.T) {
	store := memory.NewRefreshTokens()
	m := newTestManager(t, store, clock.NewFake(time.Time{}))
	ctx := context.Background()

	first, _ := m.Create(ctx, "acc-1")
	second, err := m.Rotate(ctx, first.Token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if second.RotationCount != 1 || second.AccountID != "acc-1" {
		t.Fatalf("unexpected successor %+v", second)
	}
	if m.IsValid(ctx, first.Token) {
		t.Fatal("rotated token must be invalid")
	}
	if _, err := m.Rotate(ctx, first.Token); !errors.Is(err, refresh.ErrInvalidOrExpired) {
		t.Fatalf("expected ErrInvalidOrExpired on reuse, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one live record, got %d", store.Len())
	}
}

func TestRotationCapExhaustsChain(t *testing.T) {
	m := newTestManager(t, memory.NewRefreshTokens(), clock.NewFake(time.Time{}))
	ctx := context.Background()

	cur, _ := m.Create(ctx, "acc-1")
	for i := 1; i <= refresh.DefaultMaxRotations; i++ {
		next, err := m.Rotate(ctx, cur.Token)
		if err != nil {
			t.Fatalf("rotation %d: %v", i, err)
		}
		cur = next
	}
	if cur.RotationCount != refresh.DefaultMaxRotations {
		t.Fatalf("expected rotation count %d, got %d", refresh.DefaultMaxRotations, cur.RotationCount)
	}
	if m.IsValid(ctx, cur.Token) {
		t.Fatal("token at rotation cap must be unusable")
	}
	if _, err := m.Rotate(ctx, cur.Token); !errors.Is(err, refresh.ErrInvalidOrExpired) {
		t.Fatalf("expected ErrInvalidOrExpired at cap, got %v", err)
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	m := newTestManager(t, memory.NewRefreshTokens(), clk)
	ctx := context.Background()

	issued, _ := m.Create(ctx, "acc-1")
	clk.Advance(refresh.DefaultTTL)
	if m.IsValid(ctx, issued.Token) {
		t.Fatal("token must be invalid at expiry")
	}
	if _, err := m.GetAccount(ctx, issued.Token); !errors.Is(err, refresh.ErrInvalidOrExpired) {
		t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
	}
}

func TestMalformedTokens(t *testing.T) {
	m := newTestManager(t, memory.NewRefreshTokens(), clock.NewFake(time.Time{}))
	ctx := context.Background()

	for _, tok := range []string{"", "short", "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"} {
		if m.IsValid(ctx, tok) {
			t.Fatalf("%q should be invalid", tok)
		}
		if _, err := m.Rotate(ctx, tok); !errors.Is(err, refresh.ErrInvalidOrExpired) {
			t.Fatalf("%q: expected ErrInvalidOrExpired, got %v", tok, err)
		}
		if err := m.Revoke(ctx, tok); err != nil {
			t.Fatalf("%q: revoke must be a no-op, got %v", tok, err)
		}
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	m := newTestManager(t, memory.NewRefreshTokens(), clock.NewFake(time.Time{}))
	ctx := context.Background()

	issued, _ := m.Create(ctx, "acc-1")
	for i := 0; i < 2; i++ {
		if err := m.Revoke(ctx, issued.Token); err != nil {
			t.Fatalf("revoke %d: %v", i, err)
		}
	}
	if m.IsValid(ctx, issued.Token) {
		t.Fatal("revoked token must be invalid")
	}
}

func TestRevokeAllOnlyTouchesOwner(t *testing.T) {
	store := memory.NewRefreshTokens()
	m := newTestManager(t, store, clock.NewFake(time.Time{}))
	ctx := context.Background()

	a1, _ := m.Create(ctx, "acc-1")
	a2, _ := m.Create(ctx, "acc-1")
	b1, _ := m.Create(ctx, "acc-2")

	n, err := m.RevokeAll(ctx, "acc-1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked, got %d err=%v", n, err)
	}
	if m.IsValid(ctx, a1.Token) || m.IsValid(ctx, a2.Token) {
		t.Fatal("acc-1 tokens must be revoked")
	}
	if !m.IsValid(ctx, b1.Token) {
		t.Fatal("acc-2 token must survive")
	}
}

func TestConcurrentRotationSingleWinner(t *testing.T) {
	m := newTestManager(t, memory.NewRefreshTokens(), clock.NewFake(time.Time{}))
	ctx := context.Background()
	issued, _ := m.Create(ctx, "acc-1")

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Rotate(ctx, issued.Token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, refresh.ErrInvalidOrExpired):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || rejected != n-1 {
		t.Fatalf("expected 1 winner and %d rejections, got %d and %d", n-1, success, rejected)
	}
}

func TestRotationConflictIsInvariantViolation(t *testing.T) {
	store := conflictStore{memory.NewRefreshTokens()}
	var violations int
	m, err := refresh.NewManager(store, refresh.Config{
		TTL:                  time.Hour,
		MaxRotations:         3,
		OnInvariantViolation: func() { violations++ },
	}, clock.NewFake(time.Time{}), nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()

	issued, _ := m.Create(ctx, "acc-1")
	if _, err := m.Rotate(ctx, issued.Token); !errors.Is(err, refresh.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	if violations != 1 {
		t.Fatalf("expected one violation callback, got %d", violations)
	}
}

func TestEntropyFailureSurfacesAsUnavailable(t *testing.T) {
	m, err := refresh.NewManager(memory.NewRefreshTokens(), refresh.Config{TTL: time.Hour, MaxRotations: 1},
		nil, bytes.NewReader(nil), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Create(context.Background(), "acc-1"); !errors.Is(err, refresh.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
