// Package ratelimit implements the tiered request limiter: four rolling
// windows per identity, endpoint risk levels that tighten thresholds, and a
// bounded reputation score that blacklists repeat offenders and whitelists
// consistently clean callers.
package ratelimit

import (
	"context"
	"time"

	"github.com/retailcore/rebates-api/internal/log"
)

// RiskLevel classifies an endpoint by abuse impact. Higher risk scales the
// base window limits down.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) factor() float64 {
	switch r {
	case RiskMedium:
		return 0.5
	case RiskHigh:
		return 0.25
	case RiskCritical:
		return 0.1
	default:
		return 1.0
	}
}

// Limits are the base per-window thresholds at RiskLow.
type Limits struct {
	Second int
	Minute int
	Hour   int
	Day    int
}

// DefaultLimits mirror the shipped configuration defaults.
var DefaultLimits = Limits{Second: 10, Minute: 120, Hour: 2000, Day: 10000}

func (l Limits) scale(f float64) Limits {
	s := func(n int) int {
		v := int(float64(n) * f)
		if v < 1 {
			v = 1
		}
		return v
	}
	return Limits{Second: s(l.Second), Minute: s(l.Minute), Hour: s(l.Hour), Day: s(l.Day)}
}

// Decision is the outcome for one request. Limit and Remaining describe the
// most constrained window so they can feed X-RateLimit-* headers directly.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reason     string
	Reputation int
}

// Denial reasons.
const (
	ReasonBlacklisted    = "blacklisted"
	ReasonWhitelisted    = "whitelisted"
	ReasonSecondLimit    = "second_limit"
	ReasonMinuteLimit    = "minute_limit"
	ReasonHourLimit      = "hour_limit"
	ReasonDayLimit       = "day_limit"
	ReasonStoreFailOpen  = "store_error_fail_open"
	ReasonStoreFailClose = "store_error_fail_closed"
)

const (
	reputationStart = 50
	reputationMin   = 0
	reputationMax   = 100

	// base penalty per violation; escalated when a rapid second-window
	// violation streak is detected
	violationPenalty = 2
	patternPenalty   = 5

	// clean requests needed to earn one reputation point back
	cleanCreditEvery = 100

	reputationTTL = 7 * 24 * time.Hour
	streakTTL     = 10 * time.Second
	cleanTTL      = time.Hour
)

type Limiter struct {
	store            Store
	limits           Limits
	floor            int
	ceil             int
	failOpen         bool
	patternThreshold int64
	now              func() time.Time
	onDecision       func(Decision)
	onStoreError     func(error)
}

type Option func(*Limiter)

// WithLimits overrides the base window thresholds.
func WithLimits(l Limits) Option { return func(rl *Limiter) { rl.limits = l } }

// WithReputationBounds sets the blacklist floor and whitelist ceiling.
func WithReputationBounds(floor, ceil int) Option {
	return func(rl *Limiter) { rl.floor, rl.ceil = floor, ceil }
}

// WithFailOpen controls whether requests are admitted when the store errors.
func WithFailOpen(open bool) Option { return func(rl *Limiter) { rl.failOpen = open } }

// WithPatternThreshold sets how many consecutive second-window violations
// count as a burst pattern and escalate the penalty.
func WithPatternThreshold(n int) Option {
	return func(rl *Limiter) { rl.patternThreshold = int64(n) }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option { return func(rl *Limiter) { rl.now = now } }

// WithOnDecision registers a hook called after every decision (metrics).
func WithOnDecision(fn func(Decision)) Option { return func(rl *Limiter) { rl.onDecision = fn } }

// WithOnStoreError registers a hook called on counter-store failures.
func WithOnStoreError(fn func(error)) Option { return func(rl *Limiter) { rl.onStoreError = fn } }

func New(store Store, opts ...Option) *Limiter {
	rl := &Limiter{
		store:            store,
		limits:           DefaultLimits,
		floor:            10,
		ceil:             90,
		failOpen:         true,
		patternThreshold: 3,
		now:              time.Now,
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

// Allow decides one request for the identity at the given risk level.
// The returned error is always nil for callers; store failures are resolved
// through the fail-open policy and surfaced via hooks and logs.
func (rl *Limiter) Allow(ctx context.Context, identity string, risk RiskLevel) Decision {
	now := rl.now()

	rep, err := rl.reputation(ctx, identity)
	if err != nil {
		return rl.storeFailure(ctx, err)
	}

	if rep <= rl.floor {
		d := Decision{
			Allowed:    false,
			Reason:     ReasonBlacklisted,
			RetryAfter: untilReset(now, 24*time.Hour),
			Reputation: rep,
		}
		rl.finish(d)
		return d
	}

	if rep >= rl.ceil {
		// whitelisted identities still consume counters so a later score
		// drop sees accurate history, but thresholds are not enforced
		if _, err := rl.store.IncrWindows(ctx, identity, now); err != nil {
			rl.noteStoreError(ctx, err)
		}
		limits := rl.limits.scale(risk.factor())
		d := Decision{
			Allowed:    true,
			Limit:      limits.Second,
			Remaining:  limits.Second,
			Reason:     ReasonWhitelisted,
			Reputation: rep,
		}
		rl.finish(d)
		return d
	}

	counts, err := rl.store.IncrWindows(ctx, identity, now)
	if err != nil {
		return rl.storeFailure(ctx, err)
	}

	limits := rl.limits.scale(risk.factor())

	type window struct {
		reason string
		count  int64
		limit  int
		width  time.Duration
	}
	windows := []window{
		{ReasonSecondLimit, counts.Second, limits.Second, time.Second},
		{ReasonMinuteLimit, counts.Minute, limits.Minute, time.Minute},
		{ReasonHourLimit, counts.Hour, limits.Hour, time.Hour},
		{ReasonDayLimit, counts.Day, limits.Day, 24 * time.Hour},
	}

	for _, w := range windows {
		if w.count > int64(w.limit) {
			rep = rl.penalize(ctx, identity, rep, w.reason)
			d := Decision{
				Allowed:    false,
				Limit:      w.limit,
				Remaining:  0,
				RetryAfter: untilReset(now, w.width),
				Reason:     w.reason,
				Reputation: rep,
			}
			rl.finish(d)
			return d
		}
	}

	// allowed: report the most constrained window
	limit, remaining := limits.Second, int64(limits.Second)-counts.Second
	for _, w := range windows {
		if r := int64(w.limit) - w.count; r < remaining {
			limit, remaining = w.limit, r
		}
	}
	if remaining < 0 {
		remaining = 0
	}

	rep = rl.credit(ctx, identity, rep)

	d := Decision{
		Allowed:    true,
		Limit:      limit,
		Remaining:  int(remaining),
		Reputation: rep,
	}
	rl.finish(d)
	return d
}

func (rl *Limiter) reputation(ctx context.Context, identity string) (int, error) {
	rep, ok, err := rl.store.Reputation(ctx, identity)
	if err != nil {
		return 0, err
	}
	if !ok {
		return reputationStart, nil
	}
	return clamp(rep), nil
}

// penalize lowers the score for a violation, escalating when the identity is
// in a rapid second-window violation streak.
func (rl *Limiter) penalize(ctx context.Context, identity string, rep int, reason string) int {
	penalty := violationPenalty
	if reason == ReasonSecondLimit {
		streak, err := rl.store.IncrCounter(ctx, "streak:"+identity, streakTTL)
		if err != nil {
			rl.noteStoreError(ctx, err)
		} else if streak >= rl.patternThreshold {
			penalty += patternPenalty
		}
	}

	rep = clamp(rep - penalty)
	if err := rl.store.SetReputation(ctx, identity, rep, reputationTTL); err != nil {
		rl.noteStoreError(ctx, err)
	}
	return rep
}

// credit rewards sustained clean behavior: one point per cleanCreditEvery
// admitted requests. Earning a credit also clears any lingering burst streak
// so a past violation run cannot escalate the next penalty.
func (rl *Limiter) credit(ctx context.Context, identity string, rep int) int {
	n, err := rl.store.IncrCounter(ctx, "clean:"+identity, cleanTTL)
	if err != nil {
		rl.noteStoreError(ctx, err)
		return rep
	}
	if n%cleanCreditEvery != 0 {
		return rep
	}
	if err := rl.store.ResetCounter(ctx, "streak:"+identity); err != nil {
		rl.noteStoreError(ctx, err)
	}
	rep = clamp(rep + 1)
	if err := rl.store.SetReputation(ctx, identity, rep, reputationTTL); err != nil {
		rl.noteStoreError(ctx, err)
	}
	return rep
}

func (rl *Limiter) storeFailure(ctx context.Context, err error) Decision {
	rl.noteStoreError(ctx, err)
	d := Decision{Reputation: reputationStart}
	if rl.failOpen {
		d.Allowed = true
		d.Reason = ReasonStoreFailOpen
	} else {
		d.Allowed = false
		d.Reason = ReasonStoreFailClose
		d.RetryAfter = time.Second
	}
	rl.finish(d)
	return d
}

func (rl *Limiter) noteStoreError(ctx context.Context, err error) {
	log.FromContext(ctx).Error(ctx, err, "rate limit store error")
	if rl.onStoreError != nil {
		rl.onStoreError(err)
	}
}

func (rl *Limiter) finish(d Decision) {
	if rl.onDecision != nil {
		rl.onDecision(d)
	}
}

func clamp(v int) int {
	if v < reputationMin {
		return reputationMin
	}
	if v > reputationMax {
		return reputationMax
	}
	return v
}
