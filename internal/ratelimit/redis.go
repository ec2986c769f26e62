package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retailcore/rebates-api/internal/xerrors"
)

// RedisStore persists rate-limit state in Redis so limits hold across
// instances. Window increments run in a single pipeline: INCR + EXPIRE per
// bucket, one round trip for all four windows.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: "ratelimit:"}
}

func (s *RedisStore) bucketKey(identity string, w time.Duration, start time.Time) string {
	return s.keyPrefix + identity + ":" + w.String() + ":" + strconv.FormatInt(start.Unix(), 10)
}

func (s *RedisStore) IncrWindows(ctx context.Context, identity string, now time.Time) (Counts, error) {
	windows := []time.Duration{time.Second, time.Minute, time.Hour, 24 * time.Hour}

	pipe := s.rdb.TxPipeline()
	incrs := make([]*redis.IntCmd, len(windows))
	for i, w := range windows {
		start := bucketStart(now, w)
		key := s.bucketKey(identity, w, start)
		incrs[i] = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, w+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, xerrors.Wrap(err, "redis incr windows")
	}

	return Counts{
		Second: incrs[0].Val(),
		Minute: incrs[1].Val(),
		Hour:   incrs[2].Val(),
		Day:    incrs[3].Val(),
	}, nil
}

func (s *RedisStore) Reputation(ctx context.Context, identity string) (int, bool, error) {
	v, err := s.rdb.Get(ctx, s.keyPrefix+"rep:"+identity).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, xerrors.Wrap(err, "redis get reputation")
	}
	score, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, xerrors.Wrapf(err, "malformed reputation value %q", v)
	}
	return score, true, nil
}

func (s *RedisStore) SetReputation(ctx context.Context, identity string, score int, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.keyPrefix+"rep:"+identity, score, ttl).Err(); err != nil {
		return xerrors.Wrap(err, "redis set reputation")
	}
	return nil
}

func (s *RedisStore) IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, s.keyPrefix+key)
	pipe.Expire(ctx, s.keyPrefix+key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, xerrors.Wrap(err, "redis incr counter")
	}
	return incr.Val(), nil
}

func (s *RedisStore) ResetCounter(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return xerrors.Wrap(err, "redis reset counter")
	}
	return nil
}
