// Command otpgate-loadtest drives the engine's OTP issue, verify and session
// validation paths concurrently and prints latency percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/userstore/memory"
)

func main() {
	var (
		users       = flag.Int("users", 2000, "number of users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, OTPGATE_REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("OTPGATE_REDIS_ADDR")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	codes := &codeBook{codes: make(map[string]string)}
	store := memory.New()

	cfg := otpgate.DefaultConfig()
	cfg.Session.PrivateKey = []byte("otpgate-loadtest-signing-key-0123456789")
	cfg.OTP.MaxAttempts = 1000

	engine, err := otpgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserDirectory(store).
		WithMailSender(discardMail{}).
		WithComposer(codes.compose).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	emails, tokens, err := seed(ctx, engine, store, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	issueStats := runPhase(*ops, *concurrency, len(emails), func(idx int) (time.Duration, error) {
		t0 := time.Now()
		_, err := engine.IssueOTP(ctx, emails[idx], otpgate.PurposeLogin, nil)
		return time.Since(t0), err
	})

	// Workers sharing an email would consume each other's codes, so each
	// worker gets its own slice of users.
	verifyStats := runPartitionedPhase(*ops, *concurrency, len(emails), func(idx int) (time.Duration, error) {
		email := emails[idx]
		if _, err := engine.IssueOTP(ctx, email, otpgate.PurposeLogin, nil); err != nil {
			return 0, err
		}
		t0 := time.Now()
		_, err := engine.VerifyOTP(ctx, email, otpgate.PurposeLogin, codes.get(email))
		return time.Since(t0), err
	})

	validateStats := runPhase(*ops, *concurrency, len(tokens), func(idx int) (time.Duration, error) {
		t0 := time.Now()
		_, err := engine.ValidateSession(ctx, tokens[idx])
		return time.Since(t0), err
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("verify", verifyStats)
	printStats("validate", validateStats)
}

// seed creates verified users directly in the store, sharing one password
// hash, and issues a session token for each.
func seed(ctx context.Context, engine *otpgate.Engine, store *memory.Store, n int) ([]string, []string, error) {
	emails := make([]string, n)
	tokens := make([]string, n)
	now := time.Now().UTC()

	for i := 0; i < n; i++ {
		u := &otpgate.User{
			ID:           fmt.Sprintf("00000000-0000-4000-8000-%012d", i),
			Email:        fmt.Sprintf("user%d@loadtest.example", i),
			Name:         fmt.Sprintf("Load User %d", i),
			PasswordHash: "unused",
			Verified:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.Create(ctx, u); err != nil {
			return nil, nil, err
		}
		token, _, err := engine.IssueSession(ctx, u.ID)
		if err != nil {
			return nil, nil, err
		}
		emails[i] = u.Email
		tokens[i] = token
	}
	return emails, tokens, nil
}

type codeBook struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeBook) compose(n otpgate.OTPNotice) (otpgate.Mail, error) {
	c.mu.Lock()
	c.codes[n.To] = n.Code
	c.mu.Unlock()
	return otpgate.Mail{To: n.To, Subject: n.Purpose.Subject()}, nil
}

func (c *codeBook) get(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

type discardMail struct{}

func (discardMail) Send(context.Context, otpgate.Mail) error { return nil }

type opFunc func(idx int) (time.Duration, error)

func runPhase(ops, concurrency, n int, op opFunc) phaseStats {
	return run(ops, concurrency, func(worker int, r *rand.Rand) int {
		return r.Intn(n)
	}, op)
}

func runPartitionedPhase(ops, concurrency, n int, op opFunc) phaseStats {
	if concurrency > n {
		concurrency = n
	}
	per := n / concurrency
	return run(ops, concurrency, func(worker int, r *rand.Rand) int {
		return worker*per + r.Intn(per)
	}, op)
}

func run(ops, concurrency int, pick func(worker int, r *rand.Rand) int, op opFunc) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				d, err := op(pick(worker, r))
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
	return computeStats(time.Since(start), latencies, failures)
}
