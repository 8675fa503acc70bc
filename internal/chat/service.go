// Package chat orchestrates one conversational turn: validation, retrieval,
// prompt assembly, streamed generation, citation reconciliation, persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/anthropic"
	"github.com/brokerage-labs/atticus/internal/dispatch"
	"github.com/brokerage-labs/atticus/internal/policy"
	"github.com/brokerage-labs/atticus/internal/prompt"
	"github.com/brokerage-labs/atticus/internal/retrieval"
	"github.com/brokerage-labs/atticus/internal/store"
)

const systemPrompt = `You are Atticus, an assistant that answers questions about insurance policies.
Ground your answers in the policy data and document excerpts provided. When you rely on a
document excerpt, cite it inline with its page, e.g. [Source: Page 4] or [Source: Page 4-5].
If the provided material does not answer the question, say so plainly rather than guessing.
Keep answers concise and specific to the policies under discussion.`

// ConversationStore is the slice of the persistence layer the orchestrator
// writes through: exactly two message inserts and one timestamp bump per
// successful turn.
type ConversationStore interface {
	GetConversation(ctx context.Context, tenantID, userID, id uuid.UUID) (*store.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error)
	InsertMessage(ctx context.Context, m *store.Message) error
	TouchConversation(ctx context.Context, id uuid.UUID) error
	RenameConversation(ctx context.Context, tenantID, userID, id uuid.UUID, title string) error
}

// PolicyReader loads structured policy snapshots for prompt inclusion.
type PolicyReader interface {
	PolicyContexts(ctx context.Context, tenantID uuid.UUID, policyIDs []uuid.UUID) ([]policy.Context, error)
}

// Embedder turns the user message into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator streams a completion and serves short one-shot calls (titling).
type Generator interface {
	StreamChat(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (<-chan anthropic.StreamEvent, error)
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// Retriever runs the vector search (standard or balanced).
type Retriever interface {
	Search(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error)
}

// Options are the orchestration knobs, populated from config.
type Options struct {
	MaxMessageLen   int
	HistoryLimit    int
	TopK            int
	MinSimilarity   float64
	ChunksPerPolicy int
	EmbeddingDim    int
	MaxTokens       int
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
}

type Service struct {
	store      ConversationStore
	policies   PolicyReader
	embedder   Embedder
	llm        Generator
	retriever  Retriever
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	opts       Options
}

func NewService(
	st ConversationStore,
	policies PolicyReader,
	embedder Embedder,
	llm Generator,
	retriever Retriever,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
	opts Options,
) *Service {
	return &Service{
		store:      st,
		policies:   policies,
		embedder:   embedder,
		llm:        llm,
		retriever:  retriever,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
	}
}

// Request is one turn as submitted by the caller. ActivePolicyIDs, when set,
// narrows the conversation's attached policies for this turn.
type Request struct {
	TenantID        uuid.UUID
	UserID          uuid.UUID
	ConversationID  uuid.UUID
	Message         string
	ActivePolicyIDs []uuid.UUID
}

// Stream processes a turn and delivers its events through emit, in order,
// ending with exactly one terminal event (error or complete). Domain failures
// are reported as error events and return nil; a non-nil return means emit
// itself failed (caller gone) and the turn was abandoned — in that case any
// partially generated assistant text is discarded, never persisted.
func (s *Service) Stream(ctx context.Context, req Request, emit func(Event) error) error {
	msg := strings.TrimSpace(req.Message)

	// Validation happens before any write.
	if msg == "" {
		return emit(Event{Kind: EventError, Message: "message is empty"})
	}
	if s.opts.MaxMessageLen > 0 && len(msg) > s.opts.MaxMessageLen {
		return emit(Event{Kind: EventError, Message: fmt.Sprintf("message exceeds maximum length of %d characters", s.opts.MaxMessageLen)})
	}

	conv, err := s.store.GetConversation(ctx, req.TenantID, req.UserID, req.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		return emit(Event{Kind: EventError, Message: "conversation not found"})
	}
	if err != nil {
		s.logger.Error("load conversation failed", "conversation_id", req.ConversationID, "error", err)
		return emit(Event{Kind: EventError, Message: "failed to load conversation"})
	}

	// Snapshot history before appending the new user message so the turn
	// never includes itself in its own context.
	history, err := s.store.ListMessages(ctx, conv.ID, s.opts.HistoryLimit)
	if err != nil {
		s.logger.Error("load history failed", "conversation_id", conv.ID, "error", err)
		return emit(Event{Kind: EventError, Message: "failed to load conversation history"})
	}
	priorTurns := len(history)

	// The user's message is durable before generation starts, so a crash
	// later never loses their input.
	userMsg := &store.Message{ConversationID: conv.ID, Role: store.RoleUser, Content: msg}
	if err := s.store.InsertMessage(ctx, userMsg); err != nil {
		s.logger.Error("persist user message failed", "conversation_id", conv.ID, "error", err)
		return emit(Event{Kind: EventError, Message: "failed to persist message"})
	}

	scope := resolveScope(conv.PolicyIDs, req.ActivePolicyIDs)
	balanced := len(scope) > 1

	// Structured policy data is cheap and improves answers even when chunk
	// retrieval is skipped; a failure here is absorbed.
	policies, err := s.policies.PolicyContexts(ctx, req.TenantID, scope)
	if err != nil {
		s.logger.Warn("policy context load failed", "conversation_id", conv.ID, "error", err)
		policies = nil
	}

	var chunks []retrieval.Result
	degraded := false
	if retrieval.ShouldRetrieve(msg, priorTurns) {
		vec, fatal := s.embedQuery(ctx, msg)
		if fatal != "" {
			return emit(Event{Kind: EventError, Message: fatal})
		}

		chunks, err = s.searchChunks(ctx, vec, req.TenantID, scope, conv.DocumentIDs, balanced)
		if err != nil {
			// Search failure is non-fatal: degrade and answer from general
			// knowledge plus structured policy data.
			s.logger.Warn("chunk search degraded", "conversation_id", conv.ID, "error", err)
			degraded = true
			chunks = nil
			if err := emit(Event{Kind: EventWarning, Message: "document search unavailable — answering without document excerpts", Degraded: true}); err != nil {
				return err
			}
		}
	}

	promptText := prompt.Build(prompt.Input{
		Chunks:      chunks,
		Policies:    policies,
		UserMessage: msg,
		Balanced:    balanced,
		Degraded:    degraded,
	})

	messages := make([]anthropic.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, anthropic.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, anthropic.Message{Role: store.RoleUser, Content: promptText})

	text, inputTokens, outputTokens, genErr, emitErr := s.streamGeneration(ctx, messages, emit)
	if emitErr != nil {
		// Caller disconnected mid-stream: abandon the turn. The partial
		// assistant text is dropped, not persisted.
		s.logger.Info("turn abandoned by caller", "conversation_id", conv.ID, "error", emitErr)
		return emitErr
	}
	if genErr != nil {
		// Partial text is not persisted; the durable user message lets the
		// caller retry.
		s.logger.Error("generation failed", "conversation_id", conv.ID, "error", genErr)
		return emit(Event{Kind: EventError, Message: "generation failed"})
	}

	cited := extractCitations(text, chunks)

	asstMsg := &store.Message{
		ConversationID:   conv.ID,
		Role:             store.RoleAssistant,
		Content:          text,
		CitedChunkIDs:    cited,
		PromptTokens:     &inputTokens,
		CompletionTokens: &outputTokens,
	}
	if err := s.store.InsertMessage(ctx, asstMsg); err != nil {
		s.logger.Error("persist assistant message failed", "conversation_id", conv.ID, "error", err)
		return emit(Event{Kind: EventError, Message: "failed to persist response"})
	}
	if err := s.store.TouchConversation(ctx, conv.ID); err != nil {
		s.logger.Warn("touch conversation failed", "conversation_id", conv.ID, "error", err)
	}

	if conv.Title == nil && priorTurns == 0 {
		go s.generateTitle(req.TenantID, req.UserID, conv.ID, msg)
	}

	kind := dispatch.KindTurnCompleted
	if degraded {
		kind = dispatch.KindTurnDegraded
	}
	s.dispatcher.Dispatch(ctx, dispatch.Event{
		Kind:           kind,
		TenantID:       req.TenantID,
		ConversationID: conv.ID,
		MessageID:      asstMsg.ID,
		Degraded:       degraded,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
	})

	return emit(Event{
		Kind:          EventComplete,
		MessageID:     asstMsg.ID,
		CitedChunkIDs: cited,
		Degraded:      degraded,
	})
}

// embedQuery embeds the message under its own timeout and validates the
// vector's dimensionality. A non-empty return string is the fatal error
// message for the caller; embedding failure aborts the turn because without
// a vector there is nothing meaningful to search with.
func (s *Service) embedQuery(ctx context.Context, msg string) ([]float64, string) {
	ectx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ectx, msg)
	if err != nil {
		s.logger.Error("query embedding failed", "error", err)
		return nil, "failed to process question for document search"
	}
	if s.opts.EmbeddingDim > 0 && len(vec) != s.opts.EmbeddingDim {
		s.logger.Error("embedding dimension mismatch", "got", len(vec), "want", s.opts.EmbeddingDim)
		return nil, "failed to process question for document search"
	}
	return vec, ""
}

func (s *Service) searchChunks(ctx context.Context, vec []float64, tenantID uuid.UUID, policyIDs, documentIDs []uuid.UUID, balanced bool) ([]retrieval.Result, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	return s.retriever.Search(sctx, retrieval.Query{
		Vector:          vec,
		TenantID:        tenantID,
		PolicyIDs:       policyIDs,
		DocumentIDs:     documentIDs,
		TopK:            s.opts.TopK,
		MinSimilarity:   s.opts.MinSimilarity,
		Balanced:        balanced,
		ChunksPerPolicy: s.opts.ChunksPerPolicy,
	})
}

// streamGeneration drains the generation stream, forwarding each token before
// requesting the next (backpressure through emit). It returns the accumulated
// text and final usage counters, plus either a generation error or an emit
// error — never both.
func (s *Service) streamGeneration(ctx context.Context, messages []anthropic.Message, emit func(Event) error) (text string, inputTokens, outputTokens int, genErr error, emitErr error) {
	events, err := s.llm.StreamChat(ctx, systemPrompt, messages, s.opts.MaxTokens)
	if err != nil {
		return "", 0, 0, err, nil
	}

	var sb strings.Builder
	done := false
	for evt := range events {
		switch {
		case evt.Err != nil:
			genErr = evt.Err
		case evt.Done:
			done = true
			inputTokens = evt.InputTokens
			outputTokens = evt.OutputTokens
		default:
			sb.WriteString(evt.Text)
			if emitErr == nil {
				if err := emit(Event{Kind: EventToken, Text: evt.Text}); err != nil {
					emitErr = err
				}
			}
		}
	}
	if emitErr != nil {
		return "", 0, 0, nil, emitErr
	}
	if genErr != nil {
		return "", 0, 0, genErr, nil
	}
	if !done {
		return "", 0, 0, errors.New("generation stream ended without completion"), nil
	}
	return sb.String(), inputTokens, outputTokens, nil, nil
}

// resolveScope intersects the caller's active policy subset with the
// conversation's attached policies; active ids that are not attached are
// ignored. With no explicit subset, all attached policies are in scope.
func resolveScope(attached, active []uuid.UUID) []uuid.UUID {
	if len(active) == 0 {
		return attached
	}
	attachedSet := make(map[uuid.UUID]struct{}, len(attached))
	for _, id := range attached {
		attachedSet[id] = struct{}{}
	}
	var scope []uuid.UUID
	for _, id := range active {
		if _, ok := attachedSet[id]; ok {
			scope = append(scope, id)
		}
	}
	return scope
}
