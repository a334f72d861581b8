package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validBody is the smallest config that passes Validate.
const validBody = `
auth:
  jwt_secret: test-secret
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-ant-test
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %q, want test-secret", cfg.Auth.JWTSecret)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-ant-test" {
		t.Errorf("anthropic api_key = %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d, want 9090", cfg.Server.MetricsPort)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.URL == "" {
		t.Error("sqlite URL default missing")
	}
	if cfg.Tasks.Timeout != 5*time.Second {
		t.Errorf("Tasks.Timeout = %s, want 5s", cfg.Tasks.Timeout)
	}
	if !cfg.RateLimitEnabled() {
		t.Error("rate limiting should default to enabled")
	}
	if cfg.Limits.PerMinute != 20 || cfg.Limits.PerHour != 100 {
		t.Errorf("limits = %d/%d, want 20/100", cfg.Limits.PerMinute, cfg.Limits.PerHour)
	}
	if cfg.Limits.MaxMessageLen != 5000 {
		t.Errorf("MaxMessageLen = %d, want 5000", cfg.Limits.MaxMessageLen)
	}
	if cfg.Chat.ContextWindow != 20 {
		t.Errorf("ContextWindow = %d, want 20", cfg.Chat.ContextWindow)
	}
	if cfg.Chat.MaxToolRounds != 8 {
		t.Errorf("MaxToolRounds = %d, want 8", cfg.Chat.MaxToolRounds)
	}
	if cfg.Chat.TurnTimeout != 2*time.Minute {
		t.Errorf("TurnTimeout = %s, want 2m", cfg.Chat.TurnTimeout)
	}
	if cfg.Observability.Tracing.ServiceName != "steward" {
		t.Errorf("ServiceName = %q, want steward", cfg.Observability.Tracing.ServiceName)
	}
	if cfg.Observability.Tracing.SamplingRate != 1.0 {
		t.Errorf("SamplingRate = %g, want 1.0", cfg.Observability.Tracing.SamplingRate)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "steward.yaml", `
server:
  host: 0.0.0.0
  extra: true
`+validBody)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("STEWARD_TEST_SECRET", "from-env")
	path := writeConfig(t, "steward.yaml", `
auth:
  jwt_secret: ${STEWARD_TEST_SECRET}
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-ant-test
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
chat:
  turn_timeout: 90s
database:
  conn_max_lifetime: 10m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chat.TurnTimeout != 90*time.Second {
		t.Errorf("TurnTimeout = %s, want 90s", cfg.Chat.TurnTimeout)
	}
	if cfg.Database.ConnMaxLifetime != 10*time.Minute {
		t.Errorf("ConnMaxLifetime = %s, want 10m", cfg.Database.ConnMaxLifetime)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "steward.json5", `
{
  // comments are fine in JSON5
  auth: { jwt_secret: "test-secret" },
  llm: {
    default_provider: "anthropic",
    providers: {
      anthropic: { api_key: "sk-ant-test" },
    },
  },
  chat: { turn_timeout: "45s" },
}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %q, want test-secret", cfg.Auth.JWTSecret)
	}
	if cfg.Chat.TurnTimeout != 45*time.Second {
		t.Errorf("TurnTimeout = %s, want 45s", cfg.Chat.TurnTimeout)
	}
}

func TestLoadJSON5RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "steward.json5", `
{
  auth: { jwt_secret: "test-secret", bogus: 1 },
  llm: {
    default_provider: "anthropic",
    providers: { anthropic: { api_key: "sk-ant-test" } },
  },
}
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field in JSON5 input")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(base, []byte(strings.TrimSpace(`
auth:
  jwt_secret: from-base
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-ant-test
server:
  http_port: 8181
`)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	main := filepath.Join(dir, "steward.yaml")
	if err := os.WriteFile(main, []byte(strings.TrimSpace(`
$include: base.yaml
server:
  http_port: 8282
`)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-base" {
		t.Errorf("JWTSecret = %q, want from-base", cfg.Auth.JWTSecret)
	}
	if cfg.Server.HTTPPort != 8282 {
		t.Errorf("HTTPPort = %d, including file should win", cfg.Server.HTTPPort)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("$include: b.yaml"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(b, []byte("$include: a.yaml"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Load(a)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, "steward.yaml", `
auth:
  jwt_secret: test-secret
llm:
  default_provider: openai
  providers:
    anthropic:
      api_key: sk-ant-test
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesProviderKey(t *testing.T) {
	path := writeConfig(t, "steward.yaml", `
auth:
  jwt_secret: test-secret
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestLoadBedrockNeedsRegionNotKey(t *testing.T) {
	path := writeConfig(t, "steward.yaml", `
auth:
  jwt_secret: test-secret
llm:
  default_provider: bedrock
  providers:
    bedrock:
      region: us-west-2
`)

	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	path = writeConfig(t, "steward.yaml", `
auth:
  jwt_secret: test-secret
llm:
  default_provider: bedrock
  providers:
    bedrock: {}
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "region") {
		t.Fatalf("expected region error, got %v", err)
	}
}

func TestLoadValidatesUnknownProvider(t *testing.T) {
	path := writeConfig(t, "steward.yaml", `
auth:
  jwt_secret: test-secret
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-ant-test
    mistral:
      api_key: whatever
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "mistral") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestLoadValidatesJWTSecret(t *testing.T) {
	path := writeConfig(t, "steward.yaml", `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-ant-test
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected jwt_secret error, got %v", err)
	}
}

func TestLoadValidatesDriver(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
database:
  driver: mysql
  url: root@/steward
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "database.driver") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestLoadValidatesPostgresURL(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
database:
  driver: postgres
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "database.url") {
		t.Fatalf("expected database.url error, got %v", err)
	}
}

func TestLoadValidatesTasksURL(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
tasks:
  base_url: "not a url"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "tasks.base_url") {
		t.Fatalf("expected tasks.base_url error, got %v", err)
	}
}

func TestLoadValidatesLimits(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
limits:
  per_minute: 50
  per_hour: 10
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "per_hour") {
		t.Fatalf("expected per_hour error, got %v", err)
	}
}

func TestLoadValidatesSamplingRate(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
observability:
  tracing:
    sampling_rate: 1.5
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "sampling_rate") {
		t.Fatalf("expected sampling_rate error, got %v", err)
	}
}

func TestLoadValidatesTracingEndpoint(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
observability:
  tracing:
    enabled: true
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}
}

func TestLoadValidatesLoggingLevel(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
logging:
  level: loud
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging.level error, got %v", err)
	}
}

func TestLoadRateLimitCanBeDisabled(t *testing.T) {
	path := writeConfig(t, "steward.yaml", validBody+`
limits:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimitEnabled() {
		t.Error("limits.enabled: false should disable rate limiting")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDefaultDoesNotValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Default() should be incomplete without secrets")
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if !strings.Contains(string(data), "jwt_secret") {
		t.Error("schema should use yaml field names")
	}
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
