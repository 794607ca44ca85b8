// internal/worker/engine_test.go
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrivoice/internal/assemble"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/fetch"
	"agrivoice/internal/geo"
	"agrivoice/internal/pipeline/registry"
	"agrivoice/internal/pipeline/router"
	"agrivoice/internal/retrieval"
	"agrivoice/internal/session"
)

type scriptedCompleter struct {
	answer      string
	answerErr   error
	panicOnCall bool
	lastVars    map[string]string
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, vars map[string]string) (string, error) {
	if s.panicOnCall {
		panic("completer exploded")
	}
	s.lastVars = vars
	return s.answer, s.answerErr
}

func (s *scriptedCompleter) CompleteJSON(ctx context.Context, prompt string, vars map[string]string, schema string) (json.RawMessage, error) {
	return nil, fmt.Errorf("model unavailable")
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(ctx context.Context, place string) (float64, float64, error) {
	return 0, 0, geo.ErrPlaceNotFound
}

func newTestEngine(t *testing.T, completer *scriptedCompleter, store session.Store) *Engine {
	t.Helper()
	log := logger.NewTestLogger(t)

	path := filepath.Join(t.TempDir(), "pipelines.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "general_assistant", "description": "fallback", "prompt_key": "general"}
	]`), 0o644))

	return NewEngine(EngineDeps{
		Router:    router.New(registry.New(path), completer, log),
		Resolver:  geo.NewResolver(stubGeocoder{}, completer, 18.52, 73.85, log),
		Planner:   fetch.NewPlanner(completer, log),
		Executor:  fetch.NewExecutor(nil, log),
		Assembler: assemble.New(),
		Retriever: retrieval.NewNoOpRetriever(),
		LLM:       completer,
		Store:     store,
	}, log)
}

func TestEngine_Answer_PassesAssembledContext(t *testing.T) {
	completer := &scriptedCompleter{answer: "final advice"}
	engine := newTestEngine(t, completer, nil)

	answer, err := engine.Answer(context.Background(), Query{Text: "general question"})
	require.NoError(t, err)

	assert.Equal(t, "final advice", answer.Text)
	assert.Equal(t, "general", answer.PromptKey)
	require.NotNil(t, completer.lastVars)
	assert.Contains(t, completer.lastVars["context"], "No external data available.")
	assert.Contains(t, completer.lastVars["context"], "No relevant documents.")
	assert.Equal(t, "general question", completer.lastVars["question"])
}

func TestEngine_Process_PublishesAnswer(t *testing.T) {
	store := session.NewMemoryStore(time.Minute, 0, logger.NewTestLogger(t))
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Begin(ctx, "s-1"))

	engine := newTestEngine(t, &scriptedCompleter{answer: "harvest next week"}, store)
	engine.Process(ctx, Query{SessionID: "s-1", Text: "when to harvest"})

	sess, err := store.Poll(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, "harvest next week", sess.AnswerText)
}

func TestEngine_Process_FailurePublishesApology(t *testing.T) {
	store := session.NewMemoryStore(time.Minute, 0, logger.NewTestLogger(t))
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Begin(ctx, "s-2"))

	engine := newTestEngine(t, &scriptedCompleter{answerErr: fmt.Errorf("model down")}, store)
	engine.Process(ctx, Query{SessionID: "s-2", Text: "anything"})

	sess, err := store.Poll(ctx, "s-2")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, ApologyAnswer, sess.AnswerText)
}

func TestEngine_Process_PanicPublishesApology(t *testing.T) {
	store := session.NewMemoryStore(time.Minute, 0, logger.NewTestLogger(t))
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Begin(ctx, "s-3"))

	engine := newTestEngine(t, &scriptedCompleter{panicOnCall: true}, store)

	assert.NotPanics(t, func() {
		engine.Process(ctx, Query{SessionID: "s-3", Text: "anything"})
	})

	sess, err := store.Poll(ctx, "s-3")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, ApologyAnswer, sess.AnswerText)
}

func TestNeedsGeography(t *testing.T) {
	tests := []struct {
		ids      []string
		expected bool
	}{
		{[]string{"weather_advice"}, true},
		{[]string{"soil_advice"}, true},
		{[]string{"uv_advice"}, true},
		{[]string{"irrigation_advice"}, true},
		{[]string{"mandi_advice"}, false},
		{[]string{"general_assistant"}, false},
		{[]string{"mandi_advice", "weather_advice"}, true},
		{nil, false},
	}

	for _, tt := range tests {
		defs := make([]registry.Definition, 0, len(tt.ids))
		for _, id := range tt.ids {
			defs = append(defs, registry.Definition{ID: id})
		}
		assert.Equal(t, tt.expected, needsGeography(router.Decision{Pipelines: defs}), "%v", tt.ids)
	}
}
