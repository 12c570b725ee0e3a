package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal/rate"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("connection refused")
}

func TestSharedRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	shared, err := rate.New(rdb, rate.Config{Prefix: "t", Limit: 2, Window: time.Minute})
	if err != nil {
		t.Fatalf("rate.New: %v", err)
	}

	f := newFixture(t, func(c *Config) { c.SharedLimiter = shared })

	body := map[string]string{"email": userEmail, "password": "wrong-password-0"}
	for i := 0; i < 2; i++ {
		if rec := f.do(http.MethodPost, "/auth/login", "", body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	rec := f.do(http.MethodPost, "/auth/login", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}

	mr.FastForward(time.Minute + time.Second)
	if rec := f.do(http.MethodPost, "/auth/login", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("after window: expected 401, got %d", rec.Code)
	}
}

func TestSharedRateLimitFailsOpen(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SharedLimiter = brokenLimiter{} })

	body := map[string]string{"email": userEmail, "password": "wrong-password-0"}
	if rec := f.do(http.MethodPost, "/auth/login", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
