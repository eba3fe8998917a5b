// Package cooldown implements the fixed-interval rate limit primitive: one
// last-fired timestamp per key, a configured delay that must elapse before the
// next permit.
package cooldown

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"enroll/internal/ratelimit/models"
	"enroll/pkg/requestcontext"
)

const shardCount = 32

// InMemoryStore holds per-key gates behind sharded locks.
type InMemoryStore struct {
	shards [shardCount]*shard
}

type shard struct {
	mu    sync.Mutex
	gates map[string]time.Time
}

// NewInMemoryStore creates an empty gate store.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{gates: make(map[string]time.Time)}
	}
	return s
}

// Acquire grants a permit if the delay has elapsed since the last grant for
// key, updating the last-fired timestamp on grant. Check and update are one
// critical section.
func (s *InMemoryStore) Acquire(ctx context.Context, key string, cfg models.CooldownConfig) models.Result {
	now := requestcontext.Now(ctx)
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	lastFiredAt, ok := sh.gates[key]
	if ok {
		if elapsed := now.Sub(lastFiredAt); elapsed < cfg.Delay {
			remaining := cfg.Delay - elapsed
			return models.Result{
				Allowed:    false,
				RetryAfter: remaining,
				ResetAt:    now.Add(remaining),
			}
		}
	}

	sh.gates[key] = now
	return models.Result{Allowed: true, ResetAt: now.Add(cfg.Delay)}
}

// Peek reports whether a permit would currently be granted without firing the
// gate. Used to surface may-retry timing in session metadata.
func (s *InMemoryStore) Peek(ctx context.Context, key string, cfg models.CooldownConfig) models.Result {
	now := requestcontext.Now(ctx)
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	lastFiredAt, ok := sh.gates[key]
	if ok {
		if elapsed := now.Sub(lastFiredAt); elapsed < cfg.Delay {
			remaining := cfg.Delay - elapsed
			return models.Result{
				Allowed:    false,
				RetryAfter: remaining,
				ResetAt:    now.Add(remaining),
			}
		}
	}
	return models.Result{Allowed: true}
}

// Reset clears the gate for a key.
func (s *InMemoryStore) Reset(_ context.Context, key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.gates, key)
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}
