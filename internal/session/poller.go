// internal/session/poller.go
package session

import (
	"context"
	"errors"
	"time"

	"agrivoice/internal/common/logger"
)

// TimeoutAnswer is what the polling side reports when the answer never
// arrived before the ceiling. It is synthesized locally and never written
// to the session.
const TimeoutAnswer = "Sorry, preparing your answer is taking longer than expected. Please try again in a few minutes."

type Outcome int

const (
	// OutcomeWaiting means the session is still pending and the caller
	// should poll again after RetryAfter.
	OutcomeWaiting Outcome = iota
	// OutcomeCompleted carries the worker's published answer.
	OutcomeCompleted
	// OutcomeTimedOut means the ceiling elapsed with no completion; the
	// answer is the synthesized timeout text.
	OutcomeTimedOut
	// OutcomeGone means no such session exists, because it was never
	// begun or already consumed.
	OutcomeGone
)

type PollResult struct {
	Outcome    Outcome
	Answer     string
	Artifacts  map[string]string
	RetryAfter time.Duration
}

// Poller enforces the interval/ceiling protocol on top of a Store. The
// ceiling is measured from the session's CreatedAt, so the stateless
// per-round-trip form needs no client-side bookkeeping.
type Poller struct {
	store    Store
	interval time.Duration
	ceiling  time.Duration
	logger   logger.Logger
}

func NewPoller(store Store, interval, ceiling time.Duration, log logger.Logger) *Poller {
	return &Poller{
		store:    store,
		interval: interval,
		ceiling:  ceiling,
		logger: log.With(map[string]interface{}{
			"component": "poller",
		}),
	}
}

// PollOnce performs one stateless polling round-trip. Terminal outcomes
// consume the session: completed answers and ceiling expiries both clean
// the session up before returning, so the next PollOnce on the same id
// reports OutcomeGone.
func (p *Poller) PollOnce(ctx context.Context, sessionID string) (PollResult, error) {
	sess, err := p.store.Poll(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return PollResult{Outcome: OutcomeGone}, nil
		}
		return PollResult{}, err
	}

	if sess.Status == StatusCompleted {
		if err := p.store.Cleanup(ctx, sessionID); err != nil {
			p.logger.Warn("session cleanup after consume failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
		return PollResult{
			Outcome:   OutcomeCompleted,
			Answer:    sess.AnswerText,
			Artifacts: sess.Artifacts,
		}, nil
	}

	if time.Since(sess.CreatedAt) >= p.ceiling {
		p.logger.Warn("polling ceiling exceeded", map[string]interface{}{
			"session_id": sessionID,
			"ceiling_ms": p.ceiling.Milliseconds(),
		})
		if err := p.store.Cleanup(ctx, sessionID); err != nil {
			p.logger.Warn("session cleanup after timeout failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
		return PollResult{Outcome: OutcomeTimedOut, Answer: TimeoutAnswer}, nil
	}

	return PollResult{Outcome: OutcomeWaiting, RetryAfter: p.interval}, nil
}

// Wait blocks until the session completes, the ceiling elapses, or the
// context is cancelled, polling the store on the configured interval.
// Used by in-process callers; remote polling loops use PollOnce instead.
func (p *Poller) Wait(ctx context.Context, sessionID string) (PollResult, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		result, err := p.PollOnce(ctx, sessionID)
		if err != nil {
			return PollResult{}, err
		}
		if result.Outcome != OutcomeWaiting {
			return result, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return PollResult{}, ctx.Err()
		}
	}
}
