package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"enroll/internal/registration/models"
	"enroll/internal/registration/ports"
	dErrors "enroll/pkg/domain-errors"
)

const (
	sessionKeyPrefix = "regsess:key:"
	sessionIDPrefix  = "regsess:id:"
)

// RedisStore is the production session store for distributed deployments.
// Conditional writes use WATCH on the phone-number key: if another writer
// commits between our read and our transaction, the transaction fails and the
// caller sees ErrConcurrentModification.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore constructs a Redis-backed session store. Retention bounds how
// long terminal sessions linger before the store garbage-collects them.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrSessionNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session store read failed")
	}
	return decodeSession(data)
}

func (s *RedisStore) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	key, err := s.client.Get(ctx, sessionIDPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrSessionNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session store read failed")
	}
	return s.Get(ctx, key)
}

func (s *RedisStore) PutIf(ctx context.Context, session *models.Session, expectedVersion int64) error {
	storageKey := sessionKeyPrefix + session.Key

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		currentVersion := int64(0)
		data, err := tx.Get(ctx, storageKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// absent: create only succeeds from version zero
		case err != nil:
			return err
		default:
			current, err := decodeSession(data)
			if err != nil {
				return err
			}
			currentVersion = current.Version
		}

		if currentVersion != expectedVersion {
			return ports.ErrConcurrentModification
		}

		session.Version = expectedVersion + 1
		encoded, err := json.Marshal(session)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, storageKey, encoded, s.retention)
			pipe.Set(ctx, sessionIDPrefix+session.SessionID, session.Key, s.retention)
			return nil
		})
		return err
	}, storageKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		// another writer committed between read and exec
		session.Version = expectedVersion
		return ports.ErrConcurrentModification
	case errors.Is(err, ports.ErrConcurrentModification):
		session.Version = expectedVersion
		return ports.ErrConcurrentModification
	default:
		session.Version = expectedVersion
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "session store write failed")
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	sess, err := s.Get(ctx, key)
	if errors.Is(err, ports.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+key, sessionIDPrefix+sess.SessionID).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "session store delete failed")
	}
	return nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt session record")
	}
	return &sess, nil
}
