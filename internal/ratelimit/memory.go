package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-process Store for tests and
// single-instance deployments. Expired entries are swept by a background
// goroutine started with StartCleanup.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]memEntry
	scores   map[string]memEntry
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type memEntry struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]memEntry),
		scores:   make(map[string]memEntry),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// SetClock injects a time source for tests. Not safe to call after use.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

func windowKey(identity string, w time.Duration, start time.Time) string {
	return identity + ":" + w.String() + ":" + start.Format(time.RFC3339)
}

func (s *MemoryStore) IncrWindows(_ context.Context, identity string, now time.Time) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incr := func(w time.Duration) int64 {
		start := bucketStart(now, w)
		key := windowKey(identity, w, start)
		e := s.counters[key]
		if e.expiresAt.Before(s.now()) {
			e = memEntry{}
		}
		e.value++
		e.expiresAt = start.Add(w + time.Minute)
		s.counters[key] = e
		return e.value
	}

	return Counts{
		Second: incr(time.Second),
		Minute: incr(time.Minute),
		Hour:   incr(time.Hour),
		Day:    incr(24 * time.Hour),
	}, nil
}

func (s *MemoryStore) Reputation(_ context.Context, identity string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.scores[identity]
	if !ok || e.expiresAt.Before(s.now()) {
		return 0, false, nil
	}
	return int(e.value), true, nil
}

func (s *MemoryStore) SetReputation(_ context.Context, identity string, score int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[identity] = memEntry{value: int64(score), expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) IncrCounter(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.counters[key]
	if e.expiresAt.Before(s.now()) {
		e = memEntry{}
	}
	e.value++
	e.expiresAt = s.now().Add(ttl)
	s.counters[key] = e
	return e.value, nil
}

func (s *MemoryStore) ResetCounter(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// StartCleanup sweeps expired entries every interval until Stop is called.
func (s *MemoryStore) StartCleanup(interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.counters {
		if e.expiresAt.Before(now) {
			delete(s.counters, k)
		}
	}
	for k, e := range s.scores {
		if e.expiresAt.Before(now) {
			delete(s.scores, k)
		}
	}
}
