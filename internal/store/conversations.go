package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Conversation is a chat thread scoped to a tenant and owning user. The
// attached policy/document sets change only through explicit attach calls
// (conversation management); the chat core reads them every turn.
type Conversation struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	UserID      uuid.UUID   `json:"user_id"`
	Title       *string     `json:"title"`
	PolicyIDs   []uuid.UUID `json:"policy_ids"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ConversationSummary is one row of the conversation list view.
type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        *string   `json:"title"`
	MessageCount int       `json:"message_count"`
	LastMessage  string    `json:"last_message"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateConversation inserts a conversation and its initial policy/document
// attachments in one transaction. The ID is assigned here if unset.
func (s *Store) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (id, tenant_id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING created_at, updated_at`,
		c.ID, c.TenantID, c.UserID, c.Title,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for i, pid := range c.PolicyIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_policies (conversation_id, policy_id, position)
			VALUES ($1, $2, $3)`,
			c.ID, pid, i,
		)
		if err != nil {
			return fmt.Errorf("attach policy: %w", err)
		}
	}
	for i, did := range c.DocumentIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_documents (conversation_id, document_id, position)
			VALUES ($1, $2, $3)`,
			c.ID, did, i,
		)
		if err != nil {
			return fmt.Errorf("attach document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetConversation fetches a conversation with its attached policy and
// document ids, in attachment order. Returns ErrNotFound outside the
// tenant/user scope.
func (s *Store) GetConversation(ctx context.Context, tenantID, userID, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND tenant_id = $2 AND user_id = $3`,
		id, tenantID, userID,
	).Scan(&c.ID, &c.TenantID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT policy_id FROM conversation_policies
		WHERE conversation_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("select conversation policies: %w", err)
	}
	c.PolicyIDs, err = scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan conversation policies: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT document_id FROM conversation_documents
		WHERE conversation_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("select conversation documents: %w", err)
	}
	c.DocumentIDs, err = scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan conversation documents: %w", err)
	}

	return &c, nil
}

// ListConversationSummaries returns the user's conversations ordered by most
// recent activity, each with its message count and a truncated last-message
// preview.
func (s *Store) ListConversationSummaries(ctx context.Context, tenantID, userID uuid.UUID) ([]ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.title, c.updated_at,
		       (SELECT count(*) FROM messages m WHERE m.conversation_id = c.id),
		       coalesce((SELECT left(m.content, 120) FROM messages m
		                 WHERE m.conversation_id = c.id
		                 ORDER BY m.created_at DESC, m.id DESC LIMIT 1), '')
		FROM conversations c
		WHERE c.tenant_id = $1 AND c.user_id = $2
		ORDER BY c.updated_at DESC`,
		tenantID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select conversation summaries: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.UpdatedAt, &cs.MessageCount, &cs.LastMessage); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// RenameConversation updates the title only.
func (s *Store) RenameConversation(ctx context.Context, tenantID, userID, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET title = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND user_id = $4`,
		title, id, tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation; messages and attachments cascade.
func (s *Store) DeleteConversation(ctx context.Context, tenantID, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversations
		WHERE id = $1 AND tenant_id = $2 AND user_id = $3`,
		id, tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchConversation bumps updated_at, keeping the list ordered by activity.
func (s *Store) TouchConversation(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
