package ratelimit

import (
	"context"
	"time"
)

// Counts holds the post-increment counter values for all four windows.
type Counts struct {
	Second int64
	Minute int64
	Hour   int64
	Day    int64
}

// Store persists rate-limit state for an identity: the per-window request
// counters plus the small integers backing reputation tracking. Counter keys
// are bucketed by window start so they reset naturally at window boundaries.
type Store interface {
	// IncrWindows atomically increments the second/minute/hour/day buckets
	// for the identity and returns the new counts.
	IncrWindows(ctx context.Context, identity string, now time.Time) (Counts, error)

	// Reputation returns the stored score and whether one exists.
	Reputation(ctx context.Context, identity string) (int, bool, error)
	SetReputation(ctx context.Context, identity string, score int, ttl time.Duration) error

	// IncrCounter increments a named auxiliary counter (violation streaks,
	// clean-request credit) and refreshes its TTL.
	IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// ResetCounter deletes an auxiliary counter, used to forgive a
	// violation streak once clean behavior earns a credit.
	ResetCounter(ctx context.Context, key string) error
}

// bucketStart returns the inclusive start of the window containing t.
func bucketStart(t time.Time, w time.Duration) time.Time {
	return t.UTC().Truncate(w)
}

// untilReset returns how long until the window containing t rolls over.
func untilReset(t time.Time, w time.Duration) time.Duration {
	return bucketStart(t, w).Add(w).Sub(t.UTC())
}
