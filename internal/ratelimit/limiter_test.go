package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLimiter(t *testing.T, at time.Time, opts ...Option) (*Limiter, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.SetClock(fixedClock(at))
	opts = append([]Option{WithClock(fixedClock(at))}, opts...)
	return New(store, opts...), store
}

func TestAllow_ExactlyNThenRejected(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, _ := newTestLimiter(t, at,
		WithLimits(Limits{Second: 3, Minute: 100, Hour: 100, Day: 100}))

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		d := l.Allow(ctx, "ip:203.0.113.9", RiskLow)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed, got %+v", i, d)
		}
	}

	d := l.Allow(ctx, "ip:203.0.113.9", RiskLow)
	if d.Allowed {
		t.Fatalf("4th request should be rejected, got %+v", d)
	}
	if d.Reason != ReasonSecondLimit {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonSecondLimit)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want (0, 1s]", d.RetryAfter)
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", d.Remaining)
	}
}

func TestAllow_WindowResetsAtBoundary(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()

	now := at
	clock := func() time.Time { return now }
	store.SetClock(clock)
	l := New(store, WithClock(clock),
		WithLimits(Limits{Second: 1, Minute: 100, Hour: 100, Day: 100}))

	ctx := context.Background()
	if d := l.Allow(ctx, "ip:x", RiskLow); !d.Allowed {
		t.Fatal("first request should pass")
	}
	if d := l.Allow(ctx, "ip:x", RiskLow); d.Allowed {
		t.Fatal("second request in same second should be rejected")
	}

	now = at.Add(1100 * time.Millisecond)
	if d := l.Allow(ctx, "ip:x", RiskLow); !d.Allowed {
		t.Fatalf("request in next second window should pass, got %+v", d)
	}
}

func TestAllow_RiskTightensLimits(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, _ := newTestLimiter(t, at,
		WithLimits(Limits{Second: 10, Minute: 100, Hour: 100, Day: 100}))

	ctx := context.Background()
	// critical risk scales second limit to 10*0.1 = 1
	if d := l.Allow(ctx, "ip:y", RiskCritical); !d.Allowed {
		t.Fatal("first critical request should pass")
	}
	if d := l.Allow(ctx, "ip:y", RiskCritical); d.Allowed {
		t.Fatal("second critical request should be rejected")
	}
	// the same identity at low risk still has headroom
	if d := l.Allow(ctx, "ip:z", RiskLow); !d.Allowed || d.Limit != 10 {
		t.Fatalf("low risk should use base limit, got %+v", d)
	}
}

func TestAllow_BlacklistAlwaysRejected(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, store := newTestLimiter(t, at)

	ctx := context.Background()
	store.SetReputation(ctx, "user:abuser@x.example", 10, time.Hour)

	for i := 0; i < 5; i++ {
		d := l.Allow(ctx, "user:abuser@x.example", RiskLow)
		if d.Allowed {
			t.Fatalf("blacklisted identity should always be rejected (attempt %d)", i)
		}
		if d.Reason != ReasonBlacklisted {
			t.Errorf("reason = %q, want %q", d.Reason, ReasonBlacklisted)
		}
	}
}

func TestAllow_BlacklistFloorIsInclusive(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, store := newTestLimiter(t, at)

	ctx := context.Background()
	store.SetReputation(ctx, "ip:atfloor", 10, time.Hour)
	if d := l.Allow(ctx, "ip:atfloor", RiskLow); d.Allowed || d.Reason != ReasonBlacklisted {
		t.Fatalf("reputation at the floor should be rejected, got %+v", d)
	}

	store.SetReputation(ctx, "ip:abovefloor", 11, time.Hour)
	if d := l.Allow(ctx, "ip:abovefloor", RiskLow); !d.Allowed {
		t.Fatalf("reputation one above the floor should be admitted, got %+v", d)
	}
}

func TestAllow_WhitelistBypassesCounters(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, store := newTestLimiter(t, at,
		WithLimits(Limits{Second: 1, Minute: 1, Hour: 1, Day: 1}))

	ctx := context.Background()
	store.SetReputation(ctx, "user:trusted@x.example", 90, time.Hour)

	for i := 0; i < 20; i++ {
		d := l.Allow(ctx, "user:trusted@x.example", RiskCritical)
		if !d.Allowed {
			t.Fatalf("whitelisted identity should never be rejected by counters (attempt %d): %+v", i, d)
		}
	}
}

func TestReputation_StaysWithinBounds(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	// floor below zero so the blacklist short-circuit never fires and the
	// penalty path runs all the way down
	l, store := newTestLimiter(t, at,
		WithLimits(Limits{Second: 1, Minute: 1000, Hour: 1000, Day: 1000}),
		WithReputationBounds(-1, 101))

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		l.Allow(ctx, "ip:flood", RiskLow)
		rep, ok, _ := store.Reputation(ctx, "ip:flood")
		if ok && (rep < 0 || rep > 100) {
			t.Fatalf("reputation %d out of bounds after %d requests", rep, i+1)
		}
	}

	rep, ok, _ := store.Reputation(ctx, "ip:flood")
	if !ok || rep != 0 {
		t.Fatalf("sustained flooding should pin reputation at 0, got %d (ok=%v)", rep, ok)
	}
}

func TestReputation_PatternEscalatesPenalty(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, store := newTestLimiter(t, at,
		WithLimits(Limits{Second: 1, Minute: 1000, Hour: 1000, Day: 1000}),
		WithPatternThreshold(3),
		WithReputationBounds(-1, 101))

	ctx := context.Background()
	// 1 allowed, then 3 second-window violations in a row:
	// penalties 2, 2, then 2+5 once the streak hits the threshold
	for i := 0; i < 4; i++ {
		l.Allow(ctx, "ip:burst", RiskLow)
	}

	rep, _, _ := store.Reputation(ctx, "ip:burst")
	if want := 50 - 2 - 2 - 7; rep != want {
		t.Fatalf("reputation = %d, want %d", rep, want)
	}
}

func TestReputation_CleanTrafficEarnsCredit(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, store := newTestLimiter(t, at,
		WithLimits(Limits{Second: 1000, Minute: 1000, Hour: 1000, Day: 1000}),
		WithReputationBounds(-1, 101))

	ctx := context.Background()
	store.SetReputation(ctx, "user:ok@x.example", 40, time.Hour)

	for i := 0; i < 100; i++ {
		if d := l.Allow(ctx, "user:ok@x.example", RiskLow); !d.Allowed {
			t.Fatalf("clean request %d rejected: %+v", i, d)
		}
	}

	rep, _, _ := store.Reputation(ctx, "user:ok@x.example")
	if rep != 41 {
		t.Fatalf("reputation = %d, want 41 after 100 clean requests", rep)
	}
}

func TestReputation_CreditClearsBurstStreak(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	l, store := newTestLimiter(t, at,
		WithLimits(Limits{Second: 1000, Minute: 1000, Hour: 1000, Day: 1000}),
		WithReputationBounds(-1, 101))

	ctx := context.Background()
	// a prior burst left a violation streak behind
	store.IncrCounter(ctx, "streak:ip:reformed", time.Hour)
	store.IncrCounter(ctx, "streak:ip:reformed", time.Hour)

	for i := 0; i < 100; i++ {
		if d := l.Allow(ctx, "ip:reformed", RiskLow); !d.Allowed {
			t.Fatalf("clean request %d rejected: %+v", i, d)
		}
	}

	// the earned credit wipes the streak, so the next violation counts from 1
	if n, _ := store.IncrCounter(ctx, "streak:ip:reformed", time.Hour); n != 1 {
		t.Errorf("streak counter = %d, want 1 after clean credit reset", n)
	}
}

type errStore struct{}

func (errStore) IncrWindows(context.Context, string, time.Time) (Counts, error) {
	return Counts{}, errors.New("store down")
}
func (errStore) Reputation(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("store down")
}
func (errStore) SetReputation(context.Context, string, int, time.Duration) error {
	return errors.New("store down")
}
func (errStore) IncrCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store down")
}
func (errStore) ResetCounter(context.Context, string) error { return errors.New("store down") }

func TestAllow_StoreErrorFailOpen(t *testing.T) {
	var storeErrs int
	l := New(errStore{}, WithFailOpen(true), WithOnStoreError(func(error) { storeErrs++ }))

	d := l.Allow(context.Background(), "ip:a", RiskLow)
	if !d.Allowed || d.Reason != ReasonStoreFailOpen {
		t.Fatalf("fail-open should admit, got %+v", d)
	}
	if storeErrs == 0 {
		t.Error("store error hook should fire")
	}
}

func TestAllow_StoreErrorFailClosed(t *testing.T) {
	l := New(errStore{}, WithFailOpen(false))

	d := l.Allow(context.Background(), "ip:a", RiskLow)
	if d.Allowed || d.Reason != ReasonStoreFailClose {
		t.Fatalf("fail-closed should reject, got %+v", d)
	}
	if d.RetryAfter <= 0 {
		t.Error("fail-closed rejection should carry a retry hint")
	}
}

func TestAllow_DecisionHookFires(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	var decisions []Decision
	l, _ := newTestLimiter(t, at, WithOnDecision(func(d Decision) { decisions = append(decisions, d) }))

	l.Allow(context.Background(), "ip:h", RiskLow)
	if len(decisions) != 1 || !decisions[0].Allowed {
		t.Fatalf("decision hook should record the outcome, got %+v", decisions)
	}
}

func TestMemoryStore_SweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	ctx := context.Background()
	store.IncrCounter(ctx, "streak:ip:x", time.Second)
	store.SetReputation(ctx, "ip:x", 42, time.Second)

	now = now.Add(time.Minute)
	store.sweep()

	if _, ok, _ := store.Reputation(ctx, "ip:x"); ok {
		t.Error("expired reputation should be swept")
	}
	if n, _ := store.IncrCounter(ctx, "streak:ip:x", time.Second); n != 1 {
		t.Errorf("expired counter should restart at 1, got %d", n)
	}
}
