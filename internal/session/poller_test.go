// internal/session/poller_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrivoice/internal/common/logger"
)

func newPoller(t *testing.T, interval, ceiling time.Duration) (*Poller, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(10*time.Minute, 0, logger.NewTestLogger(t))
	t.Cleanup(store.Stop)
	return NewPoller(store, interval, ceiling, logger.NewTestLogger(t)), store
}

func TestPoller_PollOnce_Waiting(t *testing.T) {
	ctx := context.Background()
	poller, store := newPoller(t, 3*time.Second, time.Minute)

	require.NoError(t, store.Begin(ctx, "call-1"))

	result, err := poller.PollOnce(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaiting, result.Outcome)
	assert.Equal(t, 3*time.Second, result.RetryAfter)

	// The session survives a pending poll.
	_, err = store.Poll(ctx, "call-1")
	assert.NoError(t, err)
}

func TestPoller_PollOnce_CompletedConsumesSession(t *testing.T) {
	ctx := context.Background()
	poller, store := newPoller(t, 3*time.Second, time.Minute)

	require.NoError(t, store.Begin(ctx, "call-2"))
	require.NoError(t, store.Complete(ctx, "call-2", "spray after 4pm", map[string]string{
		"audio_url": "u",
	}))

	result, err := poller.PollOnce(ctx, "call-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "spray after 4pm", result.Answer)
	assert.Equal(t, "u", result.Artifacts["audio_url"])

	// Consumed: the next round-trip sees nothing.
	result, err = poller.PollOnce(ctx, "call-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeGone, result.Outcome)
}

func TestPoller_PollOnce_CeilingExceeded(t *testing.T) {
	ctx := context.Background()
	poller, store := newPoller(t, 10*time.Millisecond, 30*time.Millisecond)

	require.NoError(t, store.Begin(ctx, "call-3"))
	time.Sleep(40 * time.Millisecond)

	result, err := poller.PollOnce(ctx, "call-3")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, result.Outcome)
	assert.Equal(t, TimeoutAnswer, result.Answer)

	// The timed-out session was reaped, never completed.
	_, err = store.Poll(ctx, "call-3")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPoller_PollOnce_UnknownSession(t *testing.T) {
	poller, _ := newPoller(t, time.Second, time.Minute)

	result, err := poller.PollOnce(context.Background(), "never-begun")
	require.NoError(t, err)
	assert.Equal(t, OutcomeGone, result.Outcome)
}

func TestPoller_Wait_ObservesConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	poller, store := newPoller(t, 5*time.Millisecond, time.Minute)

	require.NoError(t, store.Begin(ctx, "call-4"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.Complete(context.Background(), "call-4", "done", nil)
	}()

	result, err := poller.Wait(ctx, "call-4")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "done", result.Answer)
}

func TestPoller_Wait_TimesOutAtCeiling(t *testing.T) {
	ctx := context.Background()
	poller, store := newPoller(t, 5*time.Millisecond, 30*time.Millisecond)

	require.NoError(t, store.Begin(ctx, "call-5"))

	start := time.Now()
	result, err := poller.Wait(ctx, "call-5")
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, result.Outcome)
	assert.Equal(t, TimeoutAnswer, result.Answer)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPoller_Wait_ContextCancelled(t *testing.T) {
	poller, store := newPoller(t, 5*time.Millisecond, time.Minute)
	require.NoError(t, store.Begin(context.Background(), "call-6"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := poller.Wait(ctx, "call-6")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
