// internal/llm/client_test.go
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
)

func chatReply(content string) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(raw)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(&Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 2 * time.Second,
	}, logger.NewTestLogger(t))
}

func TestClient_Complete_Success(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, chatReply("the answer"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	text, err := client.Complete(context.Background(),
		"Question: {question}", map[string]string{"question": "will it rain?"})

	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "Question: will it rain?", gotBody.Messages[0].Content)
}

func TestClient_Complete_RetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatReply("recovered"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	text, err := client.Complete(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Complete_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Complete(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrCompletionFailed)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeLLMCompletionFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestClient_Complete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, chatReply("too slow"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, "hi", nil)
	assert.ErrorIs(t, err, ErrCompletionTimeout)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeLLMTimeout, stdErr.Code)
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Complete(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrCompletionFailed)
}

func TestClient_CompleteJSON(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		schema    string
		expectErr error
		expectRaw string
	}{
		{
			name:      "plain valid JSON",
			reply:     `{"pipelines": ["weather_advice"]}`,
			schema:    ClassifySchema,
			expectRaw: `{"pipelines": ["weather_advice"]}`,
		},
		{
			name:      "fenced JSON unwrapped",
			reply:     "```json\n{\"pipelines\": [\"mandi_advice\"]}\n```",
			schema:    ClassifySchema,
			expectRaw: `{"pipelines": ["mandi_advice"]}`,
		},
		{
			name:      "schema violation",
			reply:     `{"pipelines": "not-an-array"}`,
			schema:    ClassifySchema,
			expectErr: ErrInvalidJSON,
		},
		{
			name:      "not JSON at all",
			reply:     "I think the weather pipeline fits best.",
			schema:    ClassifySchema,
			expectErr: ErrInvalidJSON,
		},
		{
			name:      "coordinates with nulls",
			reply:     `{"latitude": null, "longitude": null}`,
			schema:    CoordinatesSchema,
			expectRaw: `{"latitude": null, "longitude": null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, chatReply(tt.reply))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)

			raw, err := client.CompleteJSON(context.Background(), "prompt", nil, tt.schema)

			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.expectRaw, string(raw))
		})
	}
}

func TestRender(t *testing.T) {
	out := Render("Context:\n{context}\n\nQ: {question}", map[string]string{
		"context":  "no data",
		"question": "why",
	})
	assert.Equal(t, "Context:\nno data\n\nQ: why", out)

	// Missing vars leave the placeholder untouched.
	assert.Equal(t, "{unknown}", Render("{unknown}", nil))
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, StripCodeFences(tt.in))
	}
}

func TestAnswerPrompt_FallsBackToGeneral(t *testing.T) {
	assert.Equal(t, answerPrompts["general"], AnswerPrompt("does_not_exist"))
	assert.Equal(t, answerPrompts["irrigation"], AnswerPrompt("irrigation"))
}
