// Package bucket implements the leaky-bucket rate limit primitive keyed by an
// arbitrary string. Token counts are recomputed lazily at acquisition time from
// elapsed time, never stored stale.
package bucket

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"enroll/internal/ratelimit/models"
	"enroll/pkg/requestcontext"
)

const shardCount = 32

// InMemoryStore holds per-key buckets behind sharded locks so contention is
// scoped to a key's shard rather than the whole store.
type InMemoryStore struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*leakyBucket
}

type leakyBucket struct {
	tokens         float64
	lastRefillAt   time.Time
	lastAcquiredAt time.Time
}

// NewInMemoryStore creates an empty bucket store.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*leakyBucket)}
	}
	return s
}

// Acquire attempts to consume one permit for key under cfg. The whole
// refill-check-consume sequence runs in the key's shard critical section, so
// two concurrent acquirers can never both be granted a single remaining token.
func (s *InMemoryStore) Acquire(ctx context.Context, key string, cfg models.BucketConfig) models.Result {
	now := requestcontext.Now(ctx)
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok {
		b = &leakyBucket{tokens: cfg.InitialTokens, lastRefillAt: now}
		if b.tokens > float64(cfg.MaxCapacity) {
			b.tokens = float64(cfg.MaxCapacity)
		}
		sh.buckets[key] = b
	}

	b.refill(now, cfg)

	minDelayRemaining := time.Duration(0)
	if !b.lastAcquiredAt.IsZero() {
		if elapsed := now.Sub(b.lastAcquiredAt); elapsed < cfg.MinDelay {
			minDelayRemaining = cfg.MinDelay - elapsed
		}
	}

	if b.tokens >= 1 && minDelayRemaining == 0 {
		b.tokens--
		b.lastAcquiredAt = now
		return models.Result{
			Allowed:   true,
			Remaining: int(b.tokens),
			ResetAt:   now.Add(b.timeToNextToken(cfg)),
		}
	}

	retryAfter := minDelayRemaining
	if b.tokens < 1 {
		if wait := b.timeToNextToken(cfg); wait > retryAfter {
			retryAfter = wait
		}
	}
	return models.Result{
		Allowed:    false,
		Remaining:  int(b.tokens),
		RetryAfter: retryAfter,
		ResetAt:    now.Add(retryAfter),
	}
}

// Reset clears the bucket for a key.
func (s *InMemoryStore) Reset(_ context.Context, key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.buckets, key)
}

// refill adds elapsed/period*rate tokens, capped at capacity. Must be called
// while holding the shard lock.
func (b *leakyBucket) refill(now time.Time, cfg models.BucketConfig) {
	if cfg.RegenerationPeriod <= 0 || cfg.LeakRate <= 0 {
		b.lastRefillAt = now
		return
	}
	elapsed := now.Sub(b.lastRefillAt)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() / cfg.RegenerationPeriod.Seconds() * cfg.LeakRate
	if b.tokens > float64(cfg.MaxCapacity) {
		b.tokens = float64(cfg.MaxCapacity)
	}
	b.lastRefillAt = now
}

// timeToNextToken reports how long until a full token is available, zero when
// one already is.
func (b *leakyBucket) timeToNextToken(cfg models.BucketConfig) time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	if cfg.LeakRate <= 0 || cfg.RegenerationPeriod <= 0 {
		return cfg.RegenerationPeriod
	}
	deficit := 1 - b.tokens
	secs := deficit / cfg.LeakRate * cfg.RegenerationPeriod.Seconds()
	return time.Duration(secs * float64(time.Second))
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}
