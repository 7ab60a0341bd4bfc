package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/chat"
	"github.com/carchat/carchat/internal/query"
	"github.com/carchat/carchat/internal/schema"
	"github.com/carchat/carchat/internal/session"
)

type turnRequest struct {
	Question string `json:"question"`
}

type turnResponse struct {
	SessionID        string   `json:"session_id"`
	Question         string   `json:"question"`
	SQL              string   `json:"sql"`
	Answer           string   `json:"answer"`
	Columns          []string `json:"columns"`
	Rows             [][]any  `json:"rows"`
	ExecutionOutcome string   `json:"execution_outcome"`
	ExecutionError   string   `json:"execution_error,omitempty"`
	HistoryLen       int      `json:"history_len"`
	DurationMS       int64    `json:"execution_duration_ms"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	tables := deps.Schema.Tables
	if tables == nil {
		tables = []schema.Table{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"text":   deps.Schema.String(),
	})
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return
	}
	s := deps.Sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": s.ID,
		"created_at": s.CreatedAt.Format(time.RFC3339Nano),
	})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   s.ID,
		"created_at":   s.CreatedAt.Format(time.RFC3339Nano),
		"last_used_at": s.LastUsed().Format(time.RFC3339Nano),
		"history":      s.History.Questions(),
	})
}

func handleEndSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return
	}
	id := r.PathValue("id")
	if !deps.Sessions.End(id) {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleTurn(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat orchestrator is not configured", false, nil)
		return
	}
	s, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}

	var req turnRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid turn request body", false, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Chat.Turn(r.Context(), s, req.Question)
	if err != nil {
		writeTurnError(w, r, s, result, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(s.ID, result))
}

func writeTurnError(w http.ResponseWriter, r *http.Request, s *session.Session, result chat.TurnResult, err error) {
	extra := map[string]any{
		"session_id":  s.ID,
		"history_len": s.History.Len(),
	}
	if result.FailedAt != "" {
		extra["stage"] = string(result.FailedAt)
	}
	if result.SQL != "" {
		extra["sql"] = result.SQL
	}

	message := apperr.UserMessage(err)
	switch apperr.KindOf(err) {
	case apperr.KindInput:
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_QUESTION", message, false, extra)
	case apperr.KindGeneration:
		writeError(r.Context(), w, http.StatusBadGateway, "SQL_GENERATION_FAILED", message, true, extra)
	case apperr.KindComposition:
		writeError(r.Context(), w, http.StatusBadGateway, "ANSWER_COMPOSITION_FAILED", message, true, extra)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "TURN_FAILED", message, false, extra)
	}
}

func newTurnResponse(sessionID string, result chat.TurnResult) turnResponse {
	columns := result.Result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := query.EncodableRows(result.Result.Rows)
	out := turnResponse{
		SessionID:        sessionID,
		Question:         result.Question,
		SQL:              result.SQL,
		Answer:           result.Answer,
		Columns:          columns,
		Rows:             rows,
		ExecutionOutcome: string(result.Result.Outcome),
		HistoryLen:       result.HistoryLen,
		DurationMS:       result.Result.Duration.Milliseconds(),
	}
	if result.Result.Failed() && result.Result.Err != nil {
		out.ExecutionError = apperr.UserMessage(result.Result.Err)
	}
	return out
}

func lookupSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return nil, false
	}
	id := r.PathValue("id")
	s, ok := deps.Sessions.Get(id)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": id})
		return nil, false
	}
	return s, true
}
