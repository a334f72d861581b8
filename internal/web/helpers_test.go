package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/auth"
	"github.com/haasonsaas/steward/internal/conversations"
	"github.com/haasonsaas/steward/pkg/models"
)

const testSecret = "web-test-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mintToken(t *testing.T, user string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func mintExpiredToken(t *testing.T, user string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// scriptedRunner replays a fixed event sequence and records what it was
// asked to run.
type scriptedRunner struct {
	events []agent.TurnEvent
	err    error

	gotIdentity *auth.Identity
	gotConv     *models.Conversation
	gotText     string
	calls       int
}

func (r *scriptedRunner) Run(ctx context.Context, identity *auth.Identity, conv *models.Conversation, text string) (<-chan agent.TurnEvent, error) {
	r.gotIdentity = identity
	r.gotConv = conv
	r.gotText = text
	r.calls++
	if r.err != nil {
		return nil, r.err
	}

	events := make(chan agent.TurnEvent, len(r.events)+1)
	for _, ev := range r.events {
		if ev.Kind == agent.EventMessageStart && ev.ConversationID == 0 {
			ev.ConversationID = conv.ID
		}
		events <- ev
	}
	close(events)
	return events, nil
}

func replyEvents(text string) []agent.TurnEvent {
	return []agent.TurnEvent{
		{Kind: agent.EventMessageStart},
		{Kind: agent.EventContentDelta, Content: text},
		{Kind: agent.EventMessageEnd, Content: text},
	}
}

// pingFunc adapts a function to HealthPinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// unreachableStore fails readiness pings while delegating everything else.
type unreachableStore struct {
	conversations.Store
	pingErr error
}

func (s unreachableStore) Ping(ctx context.Context) error { return s.pingErr }

type testEnv struct {
	handler *Handler
	store   *conversations.MemoryStore
	runner  *scriptedRunner
	config  *Config
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	runner := &scriptedRunner{events: replyEvents("done")}
	store := conversations.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	cfg := &Config{
		Verifier: auth.NewVerifier(testSecret, "", ""),
		Store:    store,
		Runner:   runner,
		Logger:   discardLogger(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	handler, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return &testEnv{handler: handler, store: store, runner: runner, config: cfg}
}

// doJSON performs one request against h and returns the recorder.
func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// wantErrorBody asserts the wire error shape.
func wantErrorBody(t *testing.T, rec *httptest.ResponseRecorder, status int, kind models.ErrorKind) errorBody {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body errorBody
	decodeJSON(t, rec, &body)
	if body.Type != string(kind) {
		t.Errorf("error type = %q, want %q", body.Type, kind)
	}
	if body.Error == "" {
		t.Error("error message should not be empty")
	}
	return body
}
