// internal/worker/history.go
package worker

import (
	"context"
	"encoding/json"
	"time"

	"agrivoice/internal/common/database"
	"agrivoice/internal/common/logger"
)

const historyTTL = 24 * time.Hour

// HistoryRecorder appends each answered turn to a per-session Redis list
// so follow-up turns and operators can read back the conversation. Best
// effort: a write failure is logged and dropped, never surfaced.
type HistoryRecorder struct {
	db     *database.RedisClient
	logger logger.Logger
}

type historyEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	At       string `json:"at"`
}

func NewHistoryRecorder(db *database.RedisClient, log logger.Logger) *HistoryRecorder {
	return &HistoryRecorder{
		db: db,
		logger: log.With(map[string]interface{}{
			"component": "history",
		}),
	}
}

func (h *HistoryRecorder) Record(ctx context.Context, sessionID, question, answer string) {
	if h.db == nil {
		return
	}

	entry := historyEntry{
		Question: question,
		Answer:   answer,
		At:       time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}

	key := "call:" + sessionID + ":history"
	if err := h.db.LPush(ctx, key, raw); err != nil {
		h.logger.Warn("history append failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}
	if err := h.db.GetClient().Expire(ctx, key, historyTTL).Err(); err != nil {
		h.logger.Warn("history expire failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}
