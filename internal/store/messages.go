package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable turn. User turns have empty citations and nil
// token counts; assistant turns carry both.
type Message struct {
	ID               uuid.UUID   `json:"id"`
	ConversationID   uuid.UUID   `json:"conversation_id"`
	Role             string      `json:"role"`
	Content          string      `json:"content"`
	CitedChunkIDs    []uuid.UUID `json:"cited_chunk_ids"`
	PromptTokens     *int        `json:"prompt_tokens,omitempty"`
	CompletionTokens *int        `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// InsertMessage appends a turn. Messages are never updated after insert.
func (s *Store) InsertMessage(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CitedChunkIDs == nil {
		m.CitedChunkIDs = []uuid.UUID{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, cited_chunk_ids, prompt_tokens, completion_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CitedChunkIDs, m.PromptTokens, m.CompletionTokens,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the last `limit` messages of a conversation in
// chronological order (limit <= 0 means all). Ordering ties on created_at
// break on id so history reconstruction is stable.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, cited_chunk_ids, prompt_tokens, completion_tokens, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id`
	args := []any{conversationID}
	if limit > 0 {
		query = `
			SELECT id, conversation_id, role, content, cited_chunk_ids, prompt_tokens, completion_tokens, created_at
			FROM (
				SELECT id, conversation_id, role, content, cited_chunk_ids, prompt_tokens, completion_tokens, created_at
				FROM messages
				WHERE conversation_id = $1
				ORDER BY created_at DESC, id DESC
				LIMIT $2
			) recent
			ORDER BY created_at, id`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CitedChunkIDs, &m.PromptTokens, &m.CompletionTokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
