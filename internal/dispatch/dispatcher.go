// Package dispatch fans out domain events to handlers registered at startup.
// The dispatcher is an explicit, injected instance — no package-level state —
// and handler resolution is a static map keyed by event kind.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind tags a domain event.
type Kind string

const (
	KindTurnCompleted       Kind = "turn.completed"
	KindTurnDegraded        Kind = "turn.degraded"
	KindConversationDeleted Kind = "conversation.deleted"
)

// Event is the payload delivered to handlers.
type Event struct {
	Kind           Kind
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	MessageID      uuid.UUID
	Degraded       bool
	InputTokens    int
	OutputTokens   int
	At             time.Time
}

// Handler receives events of the kinds it was registered for.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

type Dispatcher struct {
	handlers map[Kind][]Handler
	logger   *slog.Logger
}

// New creates an empty dispatcher. Register all handlers before serving;
// registration is not safe concurrently with Dispatch.
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.handlers[kind] = append(d.handlers[kind], h)
}

// Dispatch invokes every handler registered for the event's kind, in
// registration order. A failing handler is logged and the rest still run.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	for _, h := range d.handlers[evt.Kind] {
		if err := h.Handle(ctx, evt); err != nil {
			d.logger.Warn("event handler failed",
				"kind", evt.Kind,
				"conversation_id", evt.ConversationID,
				"error", err,
			)
		}
	}
}
