// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/session"
	"agrivoice/internal/worker"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleResponse answers a query synchronously. The caller blocks for the
// full pipeline; telephony callers use /query and /poll instead.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return
	}

	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	answer, err := s.engine.Answer(r.Context(), worker.Query{
		Text:      req.Query,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Region:    req.Region,
	})
	if err != nil {
		s.logger.Error("synchronous answer failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to answer query", "")
		return
	}

	writeJSON(w, http.StatusOK, ResponseBody{
		Output:    answer.Text,
		PromptKey: answer.PromptKey,
		Pipelines: answer.Pipelines,
		GeoSource: answer.GeoSource,
	})
}

// handleQuery begins a session and spawns the background worker for it.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return
	}

	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if err := s.store.Begin(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrDuplicateSession) {
			dup := apperrors.NewDuplicateSessionError(sessionID)
			writeError(w, http.StatusConflict, dup.Message, string(dup.Code))
			return
		}
		s.logger.Error("session begin failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to begin session", "")
		return
	}

	go func() {
		// The worker runs past the originating request, so it gets its
		// own deadline instead of inheriting the request context.
		ctx, cancel := context.WithTimeout(context.Background(), s.workerDeadline)
		defer cancel()
		s.engine.Process(ctx, worker.Query{
			SessionID: sessionID,
			Text:      req.Query,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Region:    req.Region,
		})
	}()

	writeJSON(w, http.StatusAccepted, QueryAccepted{
		SessionID:   sessionID,
		Status:      string(session.StatusPending),
		PollAfterMs: s.interval.Milliseconds(),
	})
}

// handlePoll is one stateless round-trip of the client polling loop.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required", "")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", "")
		return
	}

	result, err := s.poller.PollOnce(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("poll failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to poll session", "")
		return
	}

	switch result.Outcome {
	case session.OutcomeWaiting:
		writeJSON(w, http.StatusOK, PollResponse{
			SessionID:    sessionID,
			Status:       string(session.StatusPending),
			RetryAfterMs: result.RetryAfter.Milliseconds(),
		})
	case session.OutcomeCompleted:
		writeJSON(w, http.StatusOK, PollResponse{
			SessionID: sessionID,
			Status:    string(session.StatusCompleted),
			Answer:    result.Answer,
			Artifacts: result.Artifacts,
		})
	case session.OutcomeTimedOut:
		writeJSON(w, http.StatusOK, PollResponse{
			SessionID: sessionID,
			Status:    "timeout",
			Answer:    result.Answer,
		})
	case session.OutcomeGone:
		writeError(w, http.StatusNotFound, "no such session", string(apperrors.ErrCodeSessionNotFound))
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", "")
		return
	}

	if err := s.store.Cleanup(r.Context(), req.SessionID); err != nil {
		s.logger.Error("cleanup failed", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to clean up session", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return req, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
