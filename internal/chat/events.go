package chat

import "github.com/google/uuid"

// EventKind discriminates the events a turn emits to its caller.
type EventKind string

const (
	// EventToken carries one generated text fragment.
	EventToken EventKind = "token"
	// EventWarning reports a non-fatal degradation; the turn continues.
	EventWarning EventKind = "warning"
	// EventError is terminal; no further events follow.
	EventError EventKind = "error"
	// EventComplete is terminal and carries the persisted assistant message.
	EventComplete EventKind = "complete"
)

// Event is one element of the per-turn event stream. A turn emits zero or
// more token/warning events followed by exactly one terminal event.
type Event struct {
	Kind          EventKind   `json:"kind"`
	Text          string      `json:"text,omitempty"`
	Message       string      `json:"message,omitempty"`
	Degraded      bool        `json:"degraded,omitempty"`
	MessageID     uuid.UUID   `json:"message_id,omitempty"`
	CitedChunkIDs []uuid.UUID `json:"cited_chunk_ids,omitempty"`
}
