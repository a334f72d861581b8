// Package web exposes the chat service over HTTP: the chat turn endpoints,
// conversation listing, and health probes, behind a middleware chain that
// identifies, authenticates, and meters every request.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/auth"
	"github.com/haasonsaas/steward/internal/conversations"
	"github.com/haasonsaas/steward/internal/observability"
	"github.com/haasonsaas/steward/internal/ratelimit"
	"github.com/haasonsaas/steward/internal/validate"
	"github.com/haasonsaas/steward/pkg/models"
)

// TurnRunner drives one conversational turn and streams its events until the
// channel closes. *agent.Loop is the production implementation.
type TurnRunner interface {
	Run(ctx context.Context, identity *auth.Identity, conv *models.Conversation, userText string) (<-chan agent.TurnEvent, error)
}

// HealthPinger reports whether a downstream dependency is reachable.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

// Config wires the handler's collaborators.
type Config struct {
	// Verifier validates bearer credentials. Required.
	Verifier *auth.Verifier
	// Store persists conversations and messages. Required.
	Store conversations.Store
	// Runner executes chat turns. Required.
	Runner TurnRunner
	// TaskPinger checks task-service reachability for readiness probes.
	// Optional; readiness reports it as not configured when nil.
	TaskPinger HealthPinger
	// Limiter enforces per-user chat quotas. Optional; no limiting when nil.
	Limiter *ratelimit.Limiter
	// Metrics records request and rejection metrics. Optional.
	Metrics *observability.Metrics
	// Tracer opens a span per request. Optional.
	Tracer *observability.Tracer
	// AllowedOrigins enables CORS for the listed origins; "*" allows any.
	// Empty disables CORS handling entirely.
	AllowedOrigins []string
	// MaxMessageLen caps chat message length. Zero uses the default cap.
	MaxMessageLen int
	// Logger for request logging.
	Logger *slog.Logger
}

// Handler serves the chat API.
type Handler struct {
	config *Config
	mux    *http.ServeMux
}

// NewHandler creates the API handler. The verifier, store, and runner are
// required; everything else has a working default.
func NewHandler(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, errors.New("web: config is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("web: verifier is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("web: conversation store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("web: turn runner is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = validate.DefaultMaxMessageLen
	}

	h := &Handler{
		config: cfg,
		mux:    http.NewServeMux(),
	}
	h.setupRoutes()
	return h, nil
}

// setupRoutes configures all HTTP routes.
func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/api/chat", h.handleChat)
	h.mux.HandleFunc("/api/chat/stream", h.handleChatStream)
	h.mux.HandleFunc("/api/chat/conversations", h.handleConversationList)

	h.mux.HandleFunc("/api/health", h.handleHealth)
	h.mux.HandleFunc("/api/health/ready", h.handleReady)
	h.mux.HandleFunc("/api/health/live", h.handleLive)

	h.mux.HandleFunc("/", h.handleNotFound)
}

// ServeHTTP implements http.Handler without middleware. Use Mount for the
// full chain.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount returns the handler wrapped in the middleware chain. Outermost
// first: request ID, logging, CORS, auth, metrics. CORS sits outside auth so
// preflight requests never need credentials; metrics sit inside auth so the
// per-path series only count requests that reached a handler.
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h

	handler = MetricsMiddleware(h.config.Metrics, h.config.Tracer)(handler)
	handler = AuthMiddleware(h.config.Verifier, h.config.Logger)(handler)
	if len(h.config.AllowedOrigins) > 0 {
		handler = CORSMiddleware(h.config.AllowedOrigins)(handler)
	}
	handler = LoggingMiddleware(h.config.Logger)(handler)
	handler = RequestIDMiddleware()(handler)

	return handler
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, models.NewDomainError(models.KindNotFound, "Not found."))
}

// jsonResponse writes a 200 JSON response.
func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	h.jsonWithStatus(w, http.StatusOK, data)
}

func (h *Handler) jsonWithStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// writeError renders err in the wire error shape. The error kind picks the
// status code; unclassified errors read as internal. Messages pass through
// the sanitizer so internals cannot leak, and rate-limit errors carry a
// Retry-After header.
func writeError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	message := models.UserMessage(kind)

	if de, ok := models.AsDomainError(err); ok {
		if de.Message != "" {
			message = de.Message
		}
		if de.RetryAfter > 0 {
			seconds := int64((de.RetryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: validate.SanitizeError(message),
		Type:  string(kind),
	})
}

// parseIntParam reads an integer query parameter, falling back to defaultVal
// when absent or malformed.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
