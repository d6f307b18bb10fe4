package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/script"
	"github.com/BTreeMap/CravingCompanion/internal/store"
)

// conversationHandler runs one coaching turn: POST /api/conversation.
func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TurnRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		slog.Warn("Server.conversationHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Invalid("Invalid conversation payload", err))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.conversationHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Invalid("Invalid conversation payload", err))
		return
	}

	resp, trace, err := s.turns.TurnWithTrace(r.Context(), req)
	if err != nil {
		slog.Error("Server.conversationHandler: turn failed", "session_id", req.SessionID, "stage", req.Stage, "error", err)
		msg := "Failed to generate coach response"
		if errors.Is(err, script.ErrConfiguration) {
			msg = "Script configuration error"
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(msg))
		return
	}

	event := models.TurnEvent{
		SessionID: req.SessionID,
		Stage:     resp.Stage,
		NextStage: resp.NextStage,
		Source:    resp.Source,
	}
	if trace.Called {
		event.Provider = trace.ProviderKey
		event.Model = trace.Model
	}
	if err := s.st.RecordTurn(r.Context(), event); errors.Is(err, store.ErrSessionNotFound) {
		slog.Debug("Server.conversationHandler: turn not recorded for unknown session", "session_id", req.SessionID)
	} else if err != nil {
		slog.Warn("Server.conversationHandler: failed to record turn", "session_id", req.SessionID, "error", err)
	}

	slog.Debug("Server.conversationHandler: turn complete", "session_id", req.SessionID, "stage", resp.Stage, "source", resp.Source, "messages", len(resp.Messages))
	writeJSONResponse(w, http.StatusOK, resp)
}
