// Package api exposes the HTTP surface: conversation CRUD, the SSE chat
// endpoint, and health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/brokerage-labs/atticus/internal/chat"
	"github.com/brokerage-labs/atticus/internal/dispatch"
	"github.com/brokerage-labs/atticus/internal/store"
)

// ChatStreamer runs one conversational turn, delivering events through emit.
type ChatStreamer interface {
	Stream(ctx context.Context, req chat.Request, emit func(chat.Event) error) error
}

// ConversationStore is the persistence slice the HTTP handlers need.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c *store.Conversation) error
	GetConversation(ctx context.Context, tenantID, userID, id uuid.UUID) (*store.Conversation, error)
	ListConversationSummaries(ctx context.Context, tenantID, userID uuid.UUID) ([]store.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error)
	RenameConversation(ctx context.Context, tenantID, userID, id uuid.UUID, title string) error
	DeleteConversation(ctx context.Context, tenantID, userID, id uuid.UUID) error
}

type Server struct {
	router     *chi.Mux
	port       int
	store      ConversationStore
	chat       ChatStreamer
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewServer(port int, apiToken string, st ConversationStore, chatSvc ChatStreamer, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:     router,
		port:       port,
		store:      st,
		chat:       chatSvc,
		dispatcher: dispatcher,
		logger:     logger,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1/conversations", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Use(identityMiddleware)
		r.Post("/", s.createConversation)
		r.Get("/", s.listConversations)
		r.Get("/{id}", s.getConversation)
		r.Patch("/{id}", s.renameConversation)
		r.Delete("/{id}", s.deleteConversation)
		r.Post("/{id}/messages", s.postMessage)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry the configured token. An empty configured token disables auth, which
// is only sensible for local development.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != token {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type identityKey struct{}

// identity is the per-request tenant/user pair, taken from headers. A gateway
// in front of this service is expected to have authenticated them.
type identity struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.Header.Get("X-Tenant-ID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing or invalid X-Tenant-ID header")
			return
		}
		userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing or invalid X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity{TenantID: tenantID, UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) identity {
	id, _ := r.Context().Value(identityKey{}).(identity)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
