package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/anthropic"
)

const titleSystemPrompt = `Generate a short title (at most 8 words) for a conversation that starts
with the user's message. Respond with the title only — no quotes, no punctuation at the end.`

// generateTitle names an untitled conversation after its first turn.
// Best-effort: runs detached from the request, failures only logged.
func (s *Service) generateTitle(tenantID, userID, conversationID uuid.UUID, firstMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	raw, err := s.llm.Complete(ctx, titleSystemPrompt, []anthropic.Message{
		{Role: "user", Content: firstMessage},
	}, 64)
	if err != nil {
		s.logger.Warn("title generation failed", "conversation_id", conversationID, "error", err)
		return
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if title == "" {
		return
	}

	if err := s.store.RenameConversation(ctx, tenantID, userID, conversationID, title); err != nil {
		s.logger.Warn("title update failed", "conversation_id", conversationID, "error", err)
	}
}
