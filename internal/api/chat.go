package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/chat"
)

type postMessageRequest struct {
	Message         string      `json:"message"`
	ActivePolicyIDs []uuid.UUID `json:"active_policy_ids,omitempty"`
}

// postMessage handles POST /api/v1/conversations/{id}/messages: it runs one
// chat turn and frames its events as server-sent events. Each chat event goes
// out as one SSE message with the event kind as the SSE event name; the
// response ends after the terminal event.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	err = s.chat.Stream(r.Context(), chat.Request{
		TenantID:        id.TenantID,
		UserID:          id.UserID,
		ConversationID:  convID,
		Message:         req.Message,
		ActivePolicyIDs: req.ActivePolicyIDs,
	}, func(evt chat.Event) error {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// The stream contract: a non-nil error means emit failed, i.e. the
		// client is gone. Nothing useful can be written at this point.
		s.logger.Info("chat stream ended early", "conversation_id", convID, "error", err)
	}
}
