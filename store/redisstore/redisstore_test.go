package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestAccessControlIncrementCapsAndLocks(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewAccessControl(rdb, Options{})
	ctx := context.Background()
	until := time.Date(2024, 1, 1, 12, 15, 0, 0, time.UTC)

	st, err := store.Get(ctx, "acc-1")
	if err != nil || st.Failures != 0 || st.LockedUntil != nil {
		t.Fatalf("expected zero state, got %+v err=%v", st, err)
	}

	for i := 1; i <= 2; i++ {
		st, err = store.Increment(ctx, "acc-1", 3, until)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if st.Failures != i || st.LockedUntil != nil {
			t.Fatalf("increment %d: unexpected state %+v", i, st)
		}
	}

	st, err = store.Increment(ctx, "acc-1", 3, until)
	if err != nil {
		t.Fatalf("threshold increment: %v", err)
	}
	if st.Failures != 3 || st.LockedUntil == nil || !st.LockedUntil.Equal(until) {
		t.Fatalf("expected lock at threshold, got %+v", st)
	}

	st, _ = store.Increment(ctx, "acc-1", 3, until.Add(time.Hour))
	if st.Failures != 3 || !st.LockedUntil.Equal(until.Add(time.Hour)) {
		t.Fatalf("expected capped counter and renewed lock, got %+v", st)
	}

	got, err := store.Get(ctx, "acc-1")
	if err != nil || got.Failures != 3 || !got.LockedUntil.Equal(until.Add(time.Hour)) {
		t.Fatalf("Get disagrees with Increment: %+v err=%v", got, err)
	}

	if err := store.Reset(ctx, "acc-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ = store.Get(ctx, "acc-1")
	if got.Failures != 0 || got.LockedUntil != nil {
		t.Fatalf("expected cleared state, got %+v", got)
	}
}

func TestAccessControlConcurrentIncrements(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewAccessControl(rdb, Options{Prefix: "t"})
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Increment(ctx, "acc-1", 1000, time.Now()); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	st, _ := store.Get(ctx, "acc-1")
	if st.Failures != n {
		t.Fatalf("expected %d failures, got %d", n, st.Failures)
	}
}

func TestAccessControlUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewAccessControl(rdb, Options{})
	mr.Close()

	if _, err := store.Get(context.Background(), "acc-1"); !errors.Is(err, lockout.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func testRecord(hash, account string, rotations int, now time.Time) refresh.Record {
	return refresh.Record{
		TokenHash:     hash,
		AccountID:     account,
		ExpiresAt:     now.Add(time.Hour),
		RotationCount: rotations,
		CreatedAt:     now,
	}
}

func TestRefreshTokensLifecycle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clk := clock.NewFake(time.Time{})
	store := NewRefreshTokens(rdb, Options{Clock: clk})
	ctx := context.Background()
	now := clk.Now()

	rec := testRecord("h1", "acc-1", 0, now)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ttl := mr.TTL("authcore:rt:h1"); ttl != time.Hour {
		t.Fatalf("expected 1h key TTL, got %v", ttl)
	}

	got, err := store.Find(ctx, "h1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.AccountID != rec.AccountID || got.RotationCount != 0 ||
		!got.ExpiresAt.Equal(rec.ExpiresAt) || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, rec)
	}

	next := testRecord("h2", "acc-1", 1, now)
	if err := store.Rotate(ctx, "h1", 0, next); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := store.Find(ctx, "h1"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("old record must be gone, got %v", err)
	}
	if err := store.Rotate(ctx, "h1", 0, testRecord("h3", "acc-1", 1, now)); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second rotation, got %v", err)
	}
	if err := store.Rotate(ctx, "h2", 0, testRecord("h3", "acc-1", 1, now)); !errors.Is(err, refresh.ErrRotationConflict) {
		t.Fatalf("expected ErrRotationConflict, got %v", err)
	}
	if mr.Exists("authcore:rt:h3") {
		t.Fatal("conflicting rotation must not write")
	}

	members, _ := mr.Members("authcore:rta:acc-1")
	if len(members) != 1 || members[0] != "h2" {
		t.Fatalf("unexpected account index %v", members)
	}

	if err := store.Delete(ctx, "h2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "h2"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if mr.Exists("authcore:rta:acc-1") {
		if members, _ := mr.Members("authcore:rta:acc-1"); len(members) != 0 {
			t.Fatalf("index should be empty, got %v", members)
		}
	}
}

func TestRefreshTokensDeleteByAccount(t *testing.T) {
	_, rdb := newTestRedis(t)
	clk := clock.NewFake(time.Time{})
	store := NewRefreshTokens(rdb, Options{Clock: clk})
	ctx := context.Background()
	now := clk.Now()

	for _, r := range []refresh.Record{
		testRecord("a1", "acc-1", 0, now),
		testRecord("a2", "acc-1", 0, now),
		testRecord("b1", "acc-2", 0, now),
	} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := store.DeleteByAccount(ctx, "acc-1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 removed, got %d err=%v", n, err)
	}
	if _, err := store.Find(ctx, "a1"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("a1 should be removed, got %v", err)
	}
	if _, err := store.Find(ctx, "b1"); err != nil {
		t.Fatalf("b1 should survive: %v", err)
	}

	n, err = store.DeleteByAccount(ctx, "acc-1")
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent bulk delete, got %d err=%v", n, err)
	}
}

func TestRefreshIndexDropsExpiredMembers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clk := clock.NewFake(time.Time{})
	store := NewRefreshTokens(rdb, Options{Clock: clk})
	ctx := context.Background()
	now := clk.Now()

	short := testRecord("old", "acc-1", 0, now)
	short.ExpiresAt = now.Add(time.Minute)
	if err := store.Insert(ctx, short); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ttl := mr.TTL("authcore:rta:acc-1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected index ttl bounded by the record, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	clk.Advance(2 * time.Minute)

	if err := store.Insert(ctx, testRecord("new", "acc-1", 0, clk.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	members, err := mr.Members("authcore:rta:acc-1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != "new" {
		t.Fatalf("expected only the live hash in the index, got %v", members)
	}

	next := testRecord("next", "acc-1", 1, clk.Now())
	next.ExpiresAt = clk.Now().Add(3 * time.Hour)
	if err := store.Rotate(ctx, "new", 0, next); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if ttl := mr.TTL("authcore:rta:acc-1"); ttl <= time.Hour {
		t.Fatalf("expected index ttl extended to the newest record, got %v", ttl)
	}
}

func TestRefreshManagerConcurrencySingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	clk := clock.NewFake(time.Time{})
	m, err := refresh.NewManager(NewRefreshTokens(rdb, Options{Clock: clk}),
		refresh.Config{TTL: refresh.DefaultTTL, MaxRotations: refresh.DefaultMaxRotations}, clk, nil, nil)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	ctx := context.Background()
	issued, err := m.Create(ctx, "acc-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

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

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, refresh.ErrInvalidOrExpired) {
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one rotation success, got %d", success)
	}
}

func TestDenylist(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clk := clock.NewFake(time.Time{})
	d := NewDenylist(rdb, Options{Clock: clk})
	ctx := context.Background()

	if err := d.Deny(ctx, "jti-1", clk.Now().Add(30*time.Minute)); err != nil {
		t.Fatalf("deny: %v", err)
	}
	denied, err := d.Denied(ctx, "jti-1")
	if err != nil || !denied {
		t.Fatalf("expected denied, got %v err=%v", denied, err)
	}
	if ttl := mr.TTL("authcore:deny:jti-1"); ttl != 30*time.Minute {
		t.Fatalf("expected 30m TTL, got %v", ttl)
	}

	if err := d.Deny(ctx, "jti-2", clk.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("deny expired: %v", err)
	}
	if denied, _ := d.Denied(ctx, "jti-2"); denied {
		t.Fatal("already expired tokens need no denylist entry")
	}

	mr.FastForward(31 * time.Minute)
	if denied, _ := d.Denied(ctx, "jti-1"); denied {
		t.Fatal("entry should expire with the token")
	}

	mr.Close()
	if _, err := d.Denied(ctx, "jti-1"); !errors.Is(err, token.ErrDenylistUnavailable) {
		t.Fatalf("expected ErrDenylistUnavailable, got %v", err)
	}
}
