// internal/session/store.go
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateSession = errors.New("DUPLICATE_SESSION")
	ErrSessionNotFound  = errors.New("SESSION_NOT_FOUND")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Session bridges a background answer worker and the client polling loop.
// Artifacts carry side-channel references (a rendered audio file, say)
// that the bridge stores but never interprets.
type Session struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	AnswerText string            `json:"answer_text,omitempty"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store is the session bridge. Begin creates a pending session and fails
// with ErrDuplicateSession when the id is already live. Complete is
// last-writer-wins: the single worker assigned to a session calls it once,
// and a late call after the poller gave up lands on a reaped or soon
// reaped session harmlessly. Poll is a read. Cleanup removes the session;
// a subsequent Poll returns ErrSessionNotFound.
type Store interface {
	Begin(ctx context.Context, sessionID string) error
	Complete(ctx context.Context, sessionID, answer string, artifacts map[string]string) error
	Poll(ctx context.Context, sessionID string) (*Session, error)
	Cleanup(ctx context.Context, sessionID string) error
}
