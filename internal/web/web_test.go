package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/steward/internal/auth"
	"github.com/haasonsaas/steward/internal/conversations"
	"github.com/haasonsaas/steward/pkg/models"
)

func TestNewHandler_RequiredDeps(t *testing.T) {
	verifier := auth.NewVerifier(testSecret, "", "")
	store := conversations.NewMemoryStore()
	defer store.Close()
	runner := &scriptedRunner{}

	cases := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"missing verifier", &Config{Store: store, Runner: runner}},
		{"missing store", &Config{Verifier: verifier, Runner: runner}},
		{"missing runner", &Config{Verifier: verifier, Store: store}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewHandler(tc.cfg); err == nil {
				t.Error("NewHandler should fail")
			}
		})
	}

	if _, err := NewHandler(&Config{Verifier: verifier, Store: store, Runner: runner}); err != nil {
		t.Errorf("complete config should build: %v", err)
	}
}

func TestMount_AuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	mount := env.handler.Mount()

	rec := doJSON(t, mount, http.MethodGet, "/api/chat/conversations", "", nil)
	wantErrorBody(t, rec, http.StatusUnauthorized, models.KindAuthInvalid)

	rec = doJSON(t, mount, http.MethodPost, "/api/chat", "", map[string]any{"message": "hi"})
	wantErrorBody(t, rec, http.StatusUnauthorized, models.KindAuthInvalid)

	rec = doJSON(t, mount, http.MethodGet, "/api/chat/conversations", mintExpiredToken(t, "user-1"), nil)
	wantErrorBody(t, rec, http.StatusUnauthorized, models.KindAuthExpired)

	if env.runner.calls != 0 {
		t.Error("unauthenticated requests must never reach the orchestrator")
	}
}

func TestMount_RequestIDOnEveryResponse(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.handler.Mount(), http.MethodGet, "/api/health", "", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("responses should carry X-Request-ID")
	}

	rec = doJSON(t, env.handler.Mount(), http.MethodGet, "/api/chat/conversations", "", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("error responses should carry X-Request-ID too")
	}
}

func TestMount_UnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.handler.Mount(), http.MethodGet, "/api/widgets", mintToken(t, "user-1"), nil)
	wantErrorBody(t, rec, http.StatusNotFound, models.KindNotFound)
}

func TestMount_CORSPreflightNeedsNoCredential(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.handler.Mount().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestMount_NoCORSWithoutOrigins(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.handler.Mount(), http.MethodGet, "/api/health", "", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("CORS disabled but Allow-Origin = %q", got)
	}
}

func TestHandlerWithoutMount_FailsClosed(t *testing.T) {
	env := newTestEnv(t, nil)

	// Hitting the bare handler bypasses auth middleware; the endpoints must
	// still refuse to run without an identity.
	rec := doJSON(t, env.handler, http.MethodPost, "/api/chat", "", map[string]any{"message": "hi"})
	wantErrorBody(t, rec, http.StatusUnauthorized, models.KindAuthInvalid)

	rec = doJSON(t, env.handler, http.MethodGet, "/api/chat/conversations", "", nil)
	wantErrorBody(t, rec, http.StatusUnauthorized, models.KindAuthInvalid)

	if env.runner.calls != 0 {
		t.Error("no turn may run without an identity")
	}
}

func TestWriteError_SanitizesAndClassifies(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runner.err = models.NewDomainError(models.KindInternalError,
		"open /var/lib/steward/secrets.yaml: permission denied")

	rec := doJSON(t, env.handler.Mount(), http.MethodPost, "/api/chat", mintToken(t, "user-1"),
		map[string]any{"message": "hello"})

	body := wantErrorBody(t, rec, http.StatusInternalServerError, models.KindInternalError)
	if strings.Contains(body.Error, "/var/lib") {
		t.Errorf("path leaked into error body: %q", body.Error)
	}
}
