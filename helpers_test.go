package authcore

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/memory"
)

const (
	testEmail    = "alice@example.com"
	testPhone    = "+15550100"
	testPassword = "correct-horse-battery"
)

type harness struct {
	engine *Engine
	clock  clock.FakeClock
	store  *memory.Store
	sink   *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Hasher = password.HasherConfig{
		Algorithm:  password.AlgorithmBcrypt,
		BcryptCost: 4,
	}
	cfg.Store.Timeout = 0
	return cfg
}

func newHarness(t testing.TB, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	clk := clock.NewFake(time.Time{})
	st := memory.New(clk)
	sink := NewChannelSink(256)

	engine, err := New().
		WithConfig(cfg).
		WithDirectory(st.Directory).
		WithAccessControlStore(st.AccessControl).
		WithRefreshStore(st.RefreshTokens).
		WithHistoryStore(st.History).
		WithDenylist(st.Denylist).
		WithClock(clk).
		WithLogger(zaptest.NewLogger(t)).
		WithEventSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{engine: engine, clock: clk, store: st, sink: sink}
}

func withEvents(c *Config) { c.Events.Enabled = true }

func (h *harness) register(t testing.TB, email, phone string) Account {
	t.Helper()
	account, err := h.engine.RegisterAccount(context.Background(), NewAccount{
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     email,
		Phone:     phone,
		Password:  testPassword,
	}, "")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return account
}

func (h *harness) login(t testing.TB) TokenPair {
	t.Helper()
	pair, err := h.engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return pair
}

// drain returns the event types delivered so far.
func (h *harness) drain() []string {
	var out []string
	for {
		select {
		case ev := <-h.sink.Events():
			out = append(out, ev.Type)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
