// internal/server/models.go
package server

// QueryRequest is the body shared by the synchronous and asynchronous
// query endpoints. SessionID is only honored on the asynchronous path;
// when absent, the server mints one.
type QueryRequest struct {
	Query     string   `json:"query"`
	SessionID string   `json:"session_id,omitempty"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`
	Region    string   `json:"region,omitempty"`
}

// ResponseBody is the synchronous answer payload.
type ResponseBody struct {
	Output    string   `json:"output"`
	PromptKey string   `json:"prompt_key"`
	Pipelines []string `json:"pipelines"`
	GeoSource string   `json:"geo_source"`
}

// QueryAccepted acknowledges that background processing has begun.
type QueryAccepted struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	PollAfterMs int64  `json:"poll_after_ms"`
}

// PollResponse is one polling round-trip result. RetryAfterMs is only set
// while Status is pending.
type PollResponse struct {
	SessionID    string            `json:"session_id"`
	Status       string            `json:"status"`
	Answer       string            `json:"answer,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	RetryAfterMs int64             `json:"retry_after_ms,omitempty"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
