// internal/server/handlers_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	"agrivoice/internal/worker"
)

// fakeCompleter routes every classification to the fallback pipeline and
// answers every completion with a fixed text.
type fakeCompleter struct {
	answer string
	fail   bool
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, vars map[string]string) (string, error) {
	if f.fail {
		return "", fmt.Errorf("model unavailable")
	}
	return f.answer, nil
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, prompt string, vars map[string]string, schema string) (json.RawMessage, error) {
	return nil, fmt.Errorf("model unavailable")
}

type failingGeocoder struct{}

func (f *failingGeocoder) Geocode(ctx context.Context, place string) (float64, float64, error) {
	return 0, 0, geo.ErrPlaceNotFound
}

func newTestStack(t *testing.T, completer *fakeCompleter) (*Server, session.Store) {
	t.Helper()
	log := logger.NewTestLogger(t)

	path := filepath.Join(t.TempDir(), "pipelines.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "general_assistant", "description": "fallback", "prompt_key": "general"}
	]`), 0o644))

	store := session.NewMemoryStore(10*time.Minute, 0, log)
	t.Cleanup(store.Stop)

	poller := session.NewPoller(store, 10*time.Millisecond, time.Minute, log)

	engine := worker.NewEngine(worker.EngineDeps{
		Router:    router.New(registry.New(path), completer, log),
		Resolver:  geo.NewResolver(&failingGeocoder{}, completer, 18.52, 73.85, log),
		Planner:   fetch.NewPlanner(completer, log),
		Executor:  fetch.NewExecutor(nil, log),
		Assembler: assemble.New(),
		Retriever: retrieval.NewNoOpRetriever(),
		LLM:       completer,
		Store:     store,
	}, log)

	return New(":0", engine, store, poller, 10*time.Millisecond, 30*time.Second, log), store
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Response_Synchronous(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{answer: "use drip irrigation"})

	rec := postJSON(t, srv.httpServer.Handler, "/response", QueryRequest{
		Query: "how should I water tomatoes",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var body ResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "use drip irrigation", body.Output)
	assert.Equal(t, "general", body.PromptKey)
	assert.Equal(t, []string{"general_assistant"}, body.Pipelines)
	assert.Equal(t, "none", body.GeoSource)
}

func TestServer_Response_MissingQuery(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{answer: "x"})

	rec := postJSON(t, srv.httpServer.Handler, "/response", QueryRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_QueryPollFlow(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{answer: "expect light rain tomorrow"})
	handler := srv.httpServer.Handler

	rec := postJSON(t, handler, "/query", QueryRequest{
		Query:     "will it rain",
		SessionID: "call-1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted QueryAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "call-1", accepted.SessionID)
	assert.Equal(t, "pending", accepted.Status)
	assert.Equal(t, int64(10), accepted.PollAfterMs)

	// The background worker publishes shortly; poll until completed.
	var poll PollResponse
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/poll?session_id=call-1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
		return poll.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "expect light rain tomorrow", poll.Answer)

	// Completed result was consumed; the session is gone.
	req := httptest.NewRequest(http.MethodGet, "/poll?session_id=call-1", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestServer_Query_MintsSessionID(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{answer: "ok"})

	rec := postJSON(t, srv.httpServer.Handler, "/query", QueryRequest{Query: "anything"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted QueryAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted.SessionID)
}

func TestServer_Query_DuplicateSession(t *testing.T) {
	srv, store := newTestStack(t, &fakeCompleter{answer: "ok"})

	require.NoError(t, store.Begin(context.Background(), "call-dup"))

	rec := postJSON(t, srv.httpServer.Handler, "/query", QueryRequest{
		Query:     "anything",
		SessionID: "call-dup",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DUPLICATE_SESSION", body.Code)
}

func TestServer_WorkerFailurePublishesApology(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{fail: true})
	handler := srv.httpServer.Handler

	rec := postJSON(t, handler, "/query", QueryRequest{
		Query:     "will it rain",
		SessionID: "call-fail",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var poll PollResponse
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/poll?session_id=call-fail", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
		return poll.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, worker.ApologyAnswer, poll.Answer)
}

func TestServer_Cleanup(t *testing.T) {
	srv, store := newTestStack(t, &fakeCompleter{answer: "ok"})
	handler := srv.httpServer.Handler

	require.NoError(t, store.Begin(context.Background(), "call-clean"))

	rec := postJSON(t, handler, "/cleanup", map[string]string{"session_id": "call-clean"})
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/poll?session_id=call-clean", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestServer_Poll_RequiresSessionID(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{answer: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/poll", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MethodGuards(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{answer: "ok"})
	handler := srv.httpServer.Handler

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/response"},
		{http.MethodGet, "/query"},
		{http.MethodPost, "/poll"},
		{http.MethodGet, "/cleanup"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestStack(t, &fakeCompleter{answer: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
