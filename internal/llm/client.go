// internal/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"

	"github.com/xeipuuv/gojsonschema"
)

// Sentinels for errors.Is checks; the returned errors are standardized
// StandardError values carrying these as their cause.
var (
	ErrCompletionFailed  = errors.New(string(apperrors.ErrCodeLLMCompletionFailed))
	ErrCompletionTimeout = errors.New(string(apperrors.ErrCodeLLMTimeout))
	ErrInvalidJSON       = errors.New(string(apperrors.ErrCodeLLMInvalidJSON))
)

// Completer is the completion capability consumed by the router, the
// extraction sub-tasks, and the final answer generation.
type Completer interface {
	Complete(ctx context.Context, prompt string, vars map[string]string) (string, error)
	CompleteJSON(ctx context.Context, prompt string, vars map[string]string, schema string) (json.RawMessage, error)
}

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client calls an OpenAI-style chat-completions API.
type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	if config.MaxRetries == 0 {
		config.MaxRetries = apperrors.GetRetryCount(apperrors.ErrCodeLLMCompletionFailed)
	}
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.With(map[string]interface{}{
			"component": "llm",
		}),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete renders the prompt with vars and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string, vars map[string]string) (string, error) {
	rendered := Render(prompt, vars)

	body, _ := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: rendered}},
		Temperature: 0.1,
	})

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", apperrors.NewLLMTimeoutError(ErrCompletionTimeout)
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/v1/chat/completions", bytes.NewBuffer(body))
		if err != nil {
			return "", apperrors.NewLLMCompletionFailedError(fmt.Errorf("%w: %v", ErrCompletionFailed, err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			return "", apperrors.NewLLMTimeoutError(ErrCompletionTimeout)
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.NewLLMTimeoutError(ErrCompletionTimeout)
		}
		return "", apperrors.NewLLMCompletionFailedError(fmt.Errorf("%w: %v", ErrCompletionFailed, lastErr))
	}
	if resp == nil {
		return "", apperrors.NewLLMCompletionFailedError(fmt.Errorf("%w: no successful response after retries", ErrCompletionFailed))
	}
	defer resp.Body.Close()

	var apiResponse chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", apperrors.NewLLMCompletionFailedError(fmt.Errorf("%w: decode error: %v", ErrCompletionFailed, err))
	}
	if len(apiResponse.Choices) == 0 {
		return "", apperrors.NewLLMCompletionFailedError(fmt.Errorf("%w: empty choices", ErrCompletionFailed))
	}

	return apiResponse.Choices[0].Message.Content, nil
}

// CompleteJSON runs Complete and validates the reply against the given
// JSON schema. The reply is unwrapped from markdown code fences first;
// models add them despite instructions. A schema-invalid reply yields
// ErrInvalidJSON so callers can fall back instead of retrying.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, vars map[string]string, schema string) (json.RawMessage, error) {
	text, err := c.Complete(ctx, prompt, vars)
	if err != nil {
		return nil, err
	}

	raw := StripCodeFences(text)

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, apperrors.NewLLMInvalidJSONError(fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	if !result.Valid() {
		c.logger.Warn("schema-invalid LLM reply", map[string]interface{}{
			"errors": fmt.Sprintf("%v", result.Errors()),
		})
		return nil, apperrors.NewLLMInvalidJSONError(fmt.Errorf("%w: %v", ErrInvalidJSON, result.Errors()))
	}

	return json.RawMessage(raw), nil
}

// Render substitutes {name} placeholders in a prompt template.
func Render(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// StripCodeFences removes a surrounding markdown code fence, if present.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if idx := strings.LastIndex(t, "```"); idx >= 0 {
			t = t[:idx]
		}
	}
	return strings.TrimSpace(t)
}
