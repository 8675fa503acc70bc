// Package bus publishes Atticus domain events over NATS for downstream
// consumers (audit, analytics, webhooks).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/brokerage-labs/atticus/internal/dispatch"
)

const (
	SubjectTurnCompleted       = "atticus.turn.completed"
	SubjectConversationDeleted = "atticus.conversation.deleted"
)

// TurnCompletedEvent is the wire payload for a finished chat turn.
type TurnCompletedEvent struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Degraded       bool   `json:"degraded"`
	InputTokens    int    `json:"input_tokens"`
	OutputTokens   int    `json:"output_tokens"`
	CompletedAt    string `json:"completed_at"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Close() {
	c.conn.Close()
}

// Handle implements dispatch.Handler, mapping dispatcher events onto NATS
// subjects. Registered for the turn and conversation lifecycle kinds in main.
func (c *Client) Handle(ctx context.Context, evt dispatch.Event) error {
	switch evt.Kind {
	case dispatch.KindTurnCompleted, dispatch.KindTurnDegraded:
		return c.Publish(SubjectTurnCompleted, TurnCompletedEvent{
			TenantID:       evt.TenantID.String(),
			ConversationID: evt.ConversationID.String(),
			MessageID:      evt.MessageID.String(),
			Degraded:       evt.Degraded,
			InputTokens:    evt.InputTokens,
			OutputTokens:   evt.OutputTokens,
			CompletedAt:    evt.At.Format(time.RFC3339),
		})
	case dispatch.KindConversationDeleted:
		return c.Publish(SubjectConversationDeleted, map[string]string{
			"tenant_id":       evt.TenantID.String(),
			"conversation_id": evt.ConversationID.String(),
			"deleted_at":      evt.At.Format(time.RFC3339),
		})
	}
	return nil
}
