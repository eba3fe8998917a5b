//go:build integration

package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enroll/internal/registration/models"
	"enroll/internal/registration/ports"
	"enroll/internal/registration/store/session"
	"enroll/pkg/testutil/containers"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS registration_sessions (
    key        TEXT PRIMARY KEY,
    session_id TEXT NOT NULL UNIQUE,
    record     JSONB NOT NULL,
    version    BIGINT NOT NULL
)`

func newStoredSession(t *testing.T, key string) *models.Session {
	t.Helper()
	sess, err := models.NewSession(key, "alice", models.ChannelSMS, 3, time.Now().UTC().Truncate(time.Second))
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	return sess
}

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *session.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	_, err := s.postgres.DB.ExecContext(context.Background(), sessionsSchema)
	s.Require().NoError(err)
	s.store = session.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "registration_sessions")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestCreateAndLookup() {
	ctx := context.Background()
	sess := newStoredSession(s.T(), "+15550001111")

	s.Require().NoError(s.store.PutIf(ctx, sess, 0))
	s.Equal(int64(1), sess.Version)

	byKey, err := s.store.Get(ctx, sess.Key)
	s.Require().NoError(err)
	s.Equal(sess.SessionID, byKey.SessionID)
	s.Equal(int64(1), byKey.Version)

	byID, err := s.store.GetByID(ctx, sess.SessionID)
	s.Require().NoError(err)
	s.Equal(sess.Key, byID.Key)
}

func (s *PostgresStoreSuite) TestCreateRefusedWhenKeyExists() {
	ctx := context.Background()
	first := newStoredSession(s.T(), "+15550001111")
	s.Require().NoError(s.store.PutIf(ctx, first, 0))

	second := newStoredSession(s.T(), "+15550001111")
	err := s.store.PutIf(ctx, second, 0)
	s.Require().ErrorIs(err, ports.ErrConcurrentModification)
	s.Equal(int64(0), second.Version, "failed create leaves the caller's version untouched")

	// the stored record still belongs to the first writer
	stored, err := s.store.Get(ctx, first.Key)
	s.Require().NoError(err)
	s.Equal(first.SessionID, stored.SessionID)
}

func (s *PostgresStoreSuite) TestStaleVersionLosesRace() {
	ctx := context.Background()
	sess := newStoredSession(s.T(), "+15550002222")
	s.Require().NoError(s.store.PutIf(ctx, sess, 0))

	winner := sess.Clone()
	loser := sess.Clone()

	s.Require().NoError(s.store.PutIf(ctx, winner, 1))
	s.Equal(int64(2), winner.Version)

	err := s.store.PutIf(ctx, loser, 1)
	s.Require().ErrorIs(err, ports.ErrConcurrentModification)
	s.Equal(int64(1), loser.Version)

	stored, err := s.store.Get(ctx, sess.Key)
	s.Require().NoError(err)
	s.Equal(int64(2), stored.Version)
}

func (s *PostgresStoreSuite) TestConcurrentWritersSingleWinner() {
	ctx := context.Background()
	sess := newStoredSession(s.T(), "+15550003333")
	s.Require().NoError(s.store.PutIf(ctx, sess, 0))

	const goroutines = 20

	var wg sync.WaitGroup
	var wins atomic.Int32
	var losses atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			attempt := sess.Clone()
			switch err := s.store.PutIf(ctx, attempt, 1); {
			case err == nil:
				wins.Add(1)
			default:
				s.Require().ErrorIs(err, ports.ErrConcurrentModification)
				losses.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one writer commits at each version")
	s.Equal(int32(goroutines-1), losses.Load())

	stored, err := s.store.Get(ctx, sess.Key)
	s.Require().NoError(err)
	s.Equal(int64(2), stored.Version)
}

func (s *PostgresStoreSuite) TestDeleteRemovesSession() {
	ctx := context.Background()
	sess := newStoredSession(s.T(), "+15550004444")
	s.Require().NoError(s.store.PutIf(ctx, sess, 0))

	s.Require().NoError(s.store.Delete(ctx, sess.Key))

	_, err := s.store.Get(ctx, sess.Key)
	s.Require().ErrorIs(err, ports.ErrSessionNotFound)
	_, err = s.store.GetByID(ctx, sess.SessionID)
	s.Require().ErrorIs(err, ports.ErrSessionNotFound)

	// deleting an absent key is a no-op
	s.Require().NoError(s.store.Delete(ctx, sess.Key))
}
