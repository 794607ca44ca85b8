// internal/session/memory.go
package session

import (
	"context"
	"sync"
	"time"

	"agrivoice/internal/common/logger"
	"agrivoice/internal/common/metrics"
)

// MemoryStore is the in-process session bridge. One RWMutex guards the
// map; per-id operations therefore serialize, which is the only ordering
// the bridge promises. A background reaper drops sessions older than the
// TTL so abandoned polling loops cannot leak entries.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl    time.Duration
	stopCh chan struct{}
	logger logger.Logger
}

func NewMemoryStore(ttl, reapInterval time.Duration, log logger.Logger) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
		logger: log.With(map[string]interface{}{
			"component": "session_store",
		}),
	}
	if ttl > 0 && reapInterval > 0 {
		go s.reapLoop(reapInterval)
	}
	return s
}

func (s *MemoryStore) Begin(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; exists {
		return ErrDuplicateSession
	}
	s.sessions[sessionID] = &Session{
		ID:        sessionID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	metrics.SessionsActive.Inc()
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, sessionID, answer string, artifacts map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		// The poller gave up and reaped the session before the worker
		// finished. Dropping the answer is the documented outcome.
		s.logger.Warn("completing reaped session, answer dropped", map[string]interface{}{
			"session_id": sessionID,
		})
		return nil
	}
	sess.Status = StatusCompleted
	sess.AnswerText = answer
	sess.Artifacts = artifacts
	return nil
}

func (s *MemoryStore) Poll(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	copied := *sess
	return &copied, nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; exists {
		delete(s.sessions, sessionID)
		metrics.SessionsActive.Dec()
	}
	return nil
}

// Stop terminates the reaper goroutine.
func (s *MemoryStore) Stop() {
	close(s.stopCh)
}

func (s *MemoryStore) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reapExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) reapExpired() {
	cutoff := time.Now().UTC().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			metrics.SessionsActive.Dec()
			s.logger.Info("reaped expired session", map[string]interface{}{
				"session_id": id,
				"status":     string(sess.Status),
			})
		}
	}
}
