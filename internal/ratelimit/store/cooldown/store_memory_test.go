package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"enroll/internal/ratelimit/models"
	"enroll/pkg/requestcontext"
)

type CooldownSuite struct {
	suite.Suite
	store *InMemoryStore
	base  time.Time
	cfg   models.CooldownConfig
}

func (s *CooldownSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.cfg = models.CooldownConfig{Delay: time.Minute}
}

func TestCooldownSuite(t *testing.T) {
	suite.Run(t, new(CooldownSuite))
}

func (s *CooldownSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.base.Add(offset))
}

func (s *CooldownSuite) TestAcquire_FirstFireAlwaysGranted() {
	result := s.store.Acquire(s.at(0), "key", s.cfg)
	assert.True(s.T(), result.Allowed)
	assert.Equal(s.T(), s.base.Add(time.Minute), result.ResetAt)
}

func (s *CooldownSuite) TestAcquire_DeniedWithinDelay() {
	s.store.Acquire(s.at(0), "key", s.cfg)

	result := s.store.Acquire(s.at(40*time.Second), "key", s.cfg)
	assert.False(s.T(), result.Allowed)
	assert.Equal(s.T(), 20*time.Second, result.RetryAfter)
}

func (s *CooldownSuite) TestAcquire_GrantedAfterDelay() {
	s.store.Acquire(s.at(0), "key", s.cfg)

	result := s.store.Acquire(s.at(time.Minute), "key", s.cfg)
	assert.True(s.T(), result.Allowed)
}

func (s *CooldownSuite) TestAcquire_DenialDoesNotExtendCooldown() {
	s.store.Acquire(s.at(0), "key", s.cfg)
	s.store.Acquire(s.at(59*time.Second), "key", s.cfg)

	// the denied attempt must not have reset the timer
	result := s.store.Acquire(s.at(time.Minute), "key", s.cfg)
	assert.True(s.T(), result.Allowed)
}

func (s *CooldownSuite) TestPeek_DoesNotFireGate() {
	peeked := s.store.Peek(s.at(0), "key", s.cfg)
	assert.True(s.T(), peeked.Allowed)

	// peeking consumed nothing: a real acquire still succeeds
	result := s.store.Acquire(s.at(0), "key", s.cfg)
	assert.True(s.T(), result.Allowed)

	blocked := s.store.Peek(s.at(30*time.Second), "key", s.cfg)
	assert.False(s.T(), blocked.Allowed)
	assert.Equal(s.T(), 30*time.Second, blocked.RetryAfter)
}

func (s *CooldownSuite) TestReset_ClearsGate() {
	s.store.Acquire(s.at(0), "key", s.cfg)
	s.store.Reset(context.Background(), "key")

	result := s.store.Acquire(s.at(time.Second), "key", s.cfg)
	assert.True(s.T(), result.Allowed)
}
