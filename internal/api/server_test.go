package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/chat"
	"github.com/brokerage-labs/atticus/internal/dispatch"
	"github.com/brokerage-labs/atticus/internal/store"
)

type fakeConvStore struct {
	conv      *store.Conversation
	summaries []store.ConversationSummary
	messages  []store.Message
	created   []*store.Conversation
	deleted   []uuid.UUID
	renamed   map[uuid.UUID]string
}

func (f *fakeConvStore) CreateConversation(ctx context.Context, c *store.Conversation) error {
	c.ID = uuid.New()
	f.created = append(f.created, c)
	return nil
}

func (f *fakeConvStore) GetConversation(ctx context.Context, tenantID, userID, id uuid.UUID) (*store.Conversation, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, store.ErrNotFound
	}
	return f.conv, nil
}

func (f *fakeConvStore) ListConversationSummaries(ctx context.Context, tenantID, userID uuid.UUID) ([]store.ConversationSummary, error) {
	return f.summaries, nil
}

func (f *fakeConvStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	return f.messages, nil
}

func (f *fakeConvStore) RenameConversation(ctx context.Context, tenantID, userID, id uuid.UUID, title string) error {
	if f.conv == nil || f.conv.ID != id {
		return store.ErrNotFound
	}
	if f.renamed == nil {
		f.renamed = map[uuid.UUID]string{}
	}
	f.renamed[id] = title
	return nil
}

func (f *fakeConvStore) DeleteConversation(ctx context.Context, tenantID, userID, id uuid.UUID) error {
	if f.conv == nil || f.conv.ID != id {
		return store.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChat struct {
	events  []chat.Event
	lastReq chat.Request
}

func (f *fakeChat) Stream(ctx context.Context, req chat.Request, emit func(chat.Event) error) error {
	f.lastReq = req
	for _, evt := range f.events {
		if err := emit(evt); err != nil {
			return err
		}
	}
	return nil
}

const testToken = "test-token"

func newTestServer(st *fakeConvStore, chatSvc *fakeChat) (*Server, *dispatch.Dispatcher) {
	d := dispatch.New(slog.Default())
	return NewServer(8460, testToken, st, chatSvc, d, slog.Default()), d
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Tenant-ID", uuid.New().String())
	req.Header.Set("X-User-ID", uuid.New().String())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeConvStore{}, &fakeChat{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestBearerAuthRequired(t *testing.T) {
	srv, _ := newTestServer(&fakeConvStore{}, &fakeChat{})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", testToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestIdentityHeadersRequired(t *testing.T) {
	srv, _ := newTestServer(&fakeConvStore{}, &fakeChat{})

	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without identity headers, got %d", w.Code)
	}
}

func TestCreateConversation(t *testing.T) {
	st := &fakeConvStore{}
	srv, _ := newTestServer(st, &fakeChat{})

	pid := uuid.New()
	body, _ := json.Marshal(map[string]any{"policy_ids": []uuid.UUID{pid}})
	req := authedRequest("POST", "/api/v1/conversations", body)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(st.created) != 1 {
		t.Fatalf("expected 1 created conversation, got %d", len(st.created))
	}
	if len(st.created[0].PolicyIDs) != 1 || st.created[0].PolicyIDs[0] != pid {
		t.Errorf("policy ids not forwarded: %v", st.created[0].PolicyIDs)
	}

	var created store.Conversation
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("expected assigned conversation id in response")
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv, _ := newTestServer(&fakeConvStore{}, &fakeChat{})

	req := authedRequest("GET", "/api/v1/conversations/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetConversationWithMessages(t *testing.T) {
	convID := uuid.New()
	st := &fakeConvStore{
		conv: &store.Conversation{ID: convID},
		messages: []store.Message{
			{ID: uuid.New(), ConversationID: convID, Role: store.RoleUser, Content: "hi"},
		},
	}
	srv, _ := newTestServer(st, &fakeChat{})

	req := authedRequest("GET", "/api/v1/conversations/"+convID.String(), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var detail struct {
		ID       uuid.UUID       `json:"id"`
		Messages []store.Message `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&detail); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if detail.ID != convID {
		t.Errorf("expected conversation %s, got %s", convID, detail.ID)
	}
	if len(detail.Messages) != 1 || detail.Messages[0].Content != "hi" {
		t.Errorf("unexpected messages: %+v", detail.Messages)
	}
}

func TestRenameConversation(t *testing.T) {
	convID := uuid.New()
	st := &fakeConvStore{conv: &store.Conversation{ID: convID}}
	srv, _ := newTestServer(st, &fakeChat{})

	body, _ := json.Marshal(map[string]string{"title": "  GL questions  "})
	req := authedRequest("PATCH", "/api/v1/conversations/"+convID.String(), body)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st.renamed[convID] != "GL questions" {
		t.Errorf("expected trimmed title, got %q", st.renamed[convID])
	}
}

func TestRenameConversationEmptyTitle(t *testing.T) {
	convID := uuid.New()
	st := &fakeConvStore{conv: &store.Conversation{ID: convID}}
	srv, _ := newTestServer(st, &fakeChat{})

	body, _ := json.Marshal(map[string]string{"title": "   "})
	req := authedRequest("PATCH", "/api/v1/conversations/"+convID.String(), body)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank title, got %d", w.Code)
	}
}

func TestDeleteConversationDispatchesEvent(t *testing.T) {
	convID := uuid.New()
	st := &fakeConvStore{conv: &store.Conversation{ID: convID}}
	srv, d := newTestServer(st, &fakeChat{})

	var dispatched []dispatch.Event
	d.Register(dispatch.KindConversationDeleted, dispatch.HandlerFunc(func(ctx context.Context, evt dispatch.Event) error {
		dispatched = append(dispatched, evt)
		return nil
	}))

	req := authedRequest("DELETE", "/api/v1/conversations/"+convID.String(), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(st.deleted) != 1 || st.deleted[0] != convID {
		t.Errorf("expected delete of %s, got %v", convID, st.deleted)
	}
	if len(dispatched) != 1 || dispatched[0].ConversationID != convID {
		t.Errorf("expected one deleted event for %s, got %+v", convID, dispatched)
	}
}

func TestPostMessageStreamsSSE(t *testing.T) {
	convID := uuid.New()
	msgID := uuid.New()
	chatSvc := &fakeChat{events: []chat.Event{
		{Kind: chat.EventToken, Text: "Hello "},
		{Kind: chat.EventToken, Text: "world."},
		{Kind: chat.EventComplete, MessageID: msgID},
	}}
	srv, _ := newTestServer(&fakeConvStore{}, chatSvc)

	body, _ := json.Marshal(map[string]string{"message": "What are my limits?"})
	req := authedRequest("POST", "/api/v1/conversations/"+convID.String()+"/messages", body)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}
	if chatSvc.lastReq.ConversationID != convID {
		t.Errorf("conversation id not forwarded: %s", chatSvc.lastReq.ConversationID)
	}
	if chatSvc.lastReq.Message != "What are my limits?" {
		t.Errorf("message not forwarded: %q", chatSvc.lastReq.Message)
	}

	out := w.Body.String()
	frames := strings.Split(strings.TrimSpace(out), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("expected 3 SSE frames, got %d: %q", len(frames), out)
	}
	if !strings.HasPrefix(frames[0], "event: token\n") {
		t.Errorf("first frame not a token event: %q", frames[0])
	}
	if !strings.Contains(frames[0], `"text":"Hello "`) {
		t.Errorf("first frame payload wrong: %q", frames[0])
	}
	if !strings.HasPrefix(frames[2], "event: complete\n") {
		t.Errorf("last frame not complete: %q", frames[2])
	}
	if !strings.Contains(frames[2], msgID.String()) {
		t.Errorf("complete frame missing message id: %q", frames[2])
	}
}

func TestPostMessageInvalidBody(t *testing.T) {
	srv, _ := newTestServer(&fakeConvStore{}, &fakeChat{})

	req := authedRequest("POST", "/api/v1/conversations/"+uuid.New().String()+"/messages", []byte("{not json"))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeConvStore{}, &fakeChat{})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
