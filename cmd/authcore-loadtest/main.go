package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/MrEthical07/authcore/token"
)

type chainState struct {
	accountID string
	refresh   string
	rotations int
	access    string
	mu        sync.Mutex
}

func main() {
	var (
		accounts     = flag.Int("accounts", 10000, "number of accounts to seed with a refresh token")
		concurrency  = flag.Int("concurrency", 256, "number of concurrent workers")
		ops          = flag.Int("ops", 200000, "operations per phase (verify + refresh)")
		maxRotations = flag.Int("max-rotations", refresh.DefaultMaxRotations, "rotations before a chain is re-created")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix       = flag.String("prefix", "authcore-load", "redis key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *maxRotations <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, ops and max-rotations must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	clk := clock.Real()
	stores := redisstore.New(client, redisstore.Options{Prefix: *prefix, Clock: clk})

	tokens, err := token.NewManager(token.Config{
		AccessTTL:  time.Hour,
		PrivateKey: []byte("loadtest-signing-key-0123456789ab"),
	}, clk, stores.Denylist)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token manager: %v\n", err)
		os.Exit(1)
	}
	refreshes, err := refresh.NewManager(stores.RefreshTokens, refresh.Config{
		TTL:          24 * time.Hour,
		MaxRotations: *maxRotations,
	}, clk, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "refresh manager: %v\n", err)
		os.Exit(1)
	}

	states := make([]chainState, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		id := fmt.Sprintf("acct-%d", i)
		rt, err := refreshes.Create(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create refresh token failed: %v\n", err)
			os.Exit(1)
		}
		at, err := tokens.Issue(token.Subject{AccountID: id, Email: id + "@load.test", Role: "USER"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue access token failed: %v\n", err)
			os.Exit(1)
		}
		states[i].accountID = id
		states[i].refresh = rt.Token
		states[i].access = at.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		_, err := tokens.VerifyContext(ctx, states[r.Intn(len(states))].access)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		return rotate(ctx, refreshes, &states[r.Intn(len(states))], *maxRotations)
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
}

// rotate advances one chain, starting a fresh one once the cap is reached.
func rotate(ctx context.Context, m *refresh.Manager, state *chainState, maxRotations int) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	var (
		next refresh.Issued
		err  error
	)
	if state.rotations >= maxRotations {
		next, err = m.Create(ctx, state.accountID)
	} else {
		next, err = m.Rotate(ctx, state.refresh)
	}
	if err != nil {
		return err
	}
	state.refresh = next.Token
	state.rotations = next.RotationCount
	return nil
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
