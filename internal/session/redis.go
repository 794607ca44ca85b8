// internal/session/redis.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agrivoice/internal/common/database"
	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/common/metrics"
)

const sessionKeyPrefix = "session:"

// RedisStore is the session bridge backed by Redis, for deployments where
// the polling front end and the worker do not share a process. The key
// TTL replaces the in-memory reaper; Begin relies on SET NX for the
// duplicate check, so concurrent begins on one id cannot both win.
type RedisStore struct {
	db     *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisStore(db *database.RedisClient, ttl time.Duration, log logger.Logger) *RedisStore {
	return &RedisStore{
		db:  db,
		ttl: ttl,
		logger: log.With(map[string]interface{}{
			"component": "session_store",
		}),
	}
}

func (s *RedisStore) Begin(ctx context.Context, sessionID string) error {
	sess := Session{
		ID:        sessionID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	created, err := s.db.GetClient().SetNX(ctx, sessionKey(sessionID), raw, s.ttl).Result()
	if err != nil {
		return apperrors.NewSessionStoreError(fmt.Errorf("session begin failed: %w", err))
	}
	if !created {
		return ErrDuplicateSession
	}
	metrics.SessionsActive.Inc()
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, sessionID, answer string, artifacts map[string]string) error {
	key := sessionKey(sessionID)

	sess, err := s.load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.logger.Warn("completing expired session, answer dropped", map[string]interface{}{
				"session_id": sessionID,
			})
			return nil
		}
		return err
	}

	sess.Status = StatusCompleted
	sess.AnswerText = answer
	sess.Artifacts = artifacts

	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	// KeepTTL preserves the original expiry so completion does not extend
	// the session's life.
	if err := s.db.GetClient().Set(ctx, key, raw, redis.KeepTTL).Err(); err != nil {
		return apperrors.NewSessionStoreError(fmt.Errorf("session complete failed: %w", err))
	}
	return nil
}

func (s *RedisStore) Poll(ctx context.Context, sessionID string) (*Session, error) {
	return s.load(ctx, sessionKey(sessionID))
}

func (s *RedisStore) Cleanup(ctx context.Context, sessionID string) error {
	deleted, err := s.db.GetClient().Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return apperrors.NewSessionStoreError(fmt.Errorf("session cleanup failed: %w", err))
	}
	if deleted > 0 {
		metrics.SessionsActive.Dec()
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, key string) (*Session, error) {
	raw, err := s.db.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, apperrors.NewSessionStoreError(fmt.Errorf("session read failed: %w", err))
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, apperrors.NewSessionStoreError(fmt.Errorf("session decode failed: %w", err))
	}
	return &sess, nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
