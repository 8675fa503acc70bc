package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/dispatch"
	"github.com/brokerage-labs/atticus/internal/store"
)

type createConversationRequest struct {
	Title       *string     `json:"title,omitempty"`
	PolicyIDs   []uuid.UUID `json:"policy_ids"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

type conversationDetail struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

// messageHistoryLimit bounds the messages returned with a conversation detail.
const messageHistoryLimit = 100

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv := &store.Conversation{
		TenantID:    id.TenantID,
		UserID:      id.UserID,
		Title:       req.Title,
		PolicyIDs:   req.PolicyIDs,
		DocumentIDs: req.DocumentIDs,
	}
	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		s.logger.Error("create conversation failed", "tenant_id", id.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	summaries, err := s.store.ListConversationSummaries(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		s.logger.Error("list conversations failed", "tenant_id", id.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []store.ConversationSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id.TenantID, id.UserID, convID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("get conversation failed", "conversation_id", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	messages, err := s.store.ListMessages(r.Context(), convID, messageHistoryLimit)
	if err != nil {
		s.logger.Error("list messages failed", "conversation_id", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}

	writeJSON(w, http.StatusOK, conversationDetail{Conversation: conv, Messages: messages})
}

func (s *Server) renameConversation(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req renameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	err = s.store.RenameConversation(r.Context(), id.TenantID, id.UserID, convID, title)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("rename conversation failed", "conversation_id", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to rename conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	err = s.store.DeleteConversation(r.Context(), id.TenantID, id.UserID, convID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("delete conversation failed", "conversation_id", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	s.dispatcher.Dispatch(r.Context(), dispatch.Event{
		Kind:           dispatch.KindConversationDeleted,
		TenantID:       id.TenantID,
		ConversationID: convID,
	})

	w.WriteHeader(http.StatusNoContent)
}
