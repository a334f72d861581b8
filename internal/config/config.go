// Package config loads and validates the steward service configuration.
//
// Configuration lives in a single YAML or JSON5 file. Values may reference
// environment variables with ${VAR} syntax; references are expanded before
// parsing so secrets stay out of checked-in files. A file may pull in
// fragments with $include. Unknown fields are rejected.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the steward service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	LLM           LLMConfig           `yaml:"llm"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Limits        LimitsConfig        `yaml:"limits"`
	Chat          ChatConfig          `yaml:"chat"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
	// ReadHeaderTimeout bounds how long a client may take to send request
	// headers. There is deliberately no write timeout; a write deadline
	// would cut long event streams, and turn duration is already bounded
	// by chat.turn_timeout.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

// DatabaseConfig selects and tunes the conversation store.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// URL is a DSN for postgres or a file path for sqlite.
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig holds the bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// LLMConfig selects inference backends.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures one inference backend. Which fields matter
// depends on the provider: bedrock wants region and uses ambient AWS
// credentials, everything else wants api_key.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	Region       string `yaml:"region"`
}

// TasksConfig points at the task management backend.
type TasksConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LimitsConfig tunes per-user request quotas and input bounds.
type LimitsConfig struct {
	// Enabled defaults to true when omitted.
	Enabled       *bool `yaml:"enabled"`
	PerMinute     int   `yaml:"per_minute"`
	PerHour       int   `yaml:"per_hour"`
	MaxMessageLen int   `yaml:"max_message_len"`
}

// ChatConfig tunes the orchestration loop.
type ChatConfig struct {
	// ContextWindow is how many recent messages each turn replays.
	ContextWindow int `yaml:"context_window"`
	// MaxToolRounds caps tool execution rounds within one turn.
	MaxToolRounds int           `yaml:"max_tool_rounds"`
	TurnTimeout   time.Duration `yaml:"turn_timeout"`
	// SystemPrompt replaces the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
}

// ObservabilityConfig groups tracing settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Environment    string  `yaml:"environment"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	Insecure       bool    `yaml:"insecure"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// Load reads the configuration file at path, expands environment variable
// references, resolves $include directives, applies defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	raw, err := loadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeStrict(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and nothing
// else set. It does not pass Validate: at minimum auth.jwt_secret and one
// llm provider are still required.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.URL == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.URL = "steward.db"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Tasks.BaseURL == "" {
		cfg.Tasks.BaseURL = "http://localhost:8000"
	}
	if cfg.Tasks.Timeout == 0 {
		cfg.Tasks.Timeout = 5 * time.Second
	}
	if cfg.Limits.Enabled == nil {
		enabled := true
		cfg.Limits.Enabled = &enabled
	}
	if cfg.Limits.PerMinute == 0 {
		cfg.Limits.PerMinute = 20
	}
	if cfg.Limits.PerHour == 0 {
		cfg.Limits.PerHour = 100
	}
	if cfg.Limits.MaxMessageLen == 0 {
		cfg.Limits.MaxMessageLen = 5000
	}
	if cfg.Chat.ContextWindow == 0 {
		cfg.Chat.ContextWindow = 20
	}
	if cfg.Chat.MaxToolRounds == 0 {
		cfg.Chat.MaxToolRounds = 8
	}
	if cfg.Chat.TurnTimeout == 0 {
		cfg.Chat.TurnTimeout = 2 * time.Minute
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "steward"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// knownProviders is the set of inference backends this build can construct.
var knownProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"google":    true,
	"bedrock":   true,
}

// Validate checks for values that would fail at runtime. It expects defaults
// to have been applied already.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("server.metrics_port must be between 0 and 65535, got %d", c.Server.MetricsPort)
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		return fmt.Errorf("server.metrics_port %d collides with server.http_port", c.Server.MetricsPort)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("database.url is required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	if c.Limits.PerMinute < 1 {
		return fmt.Errorf("limits.per_minute must be at least 1, got %d", c.Limits.PerMinute)
	}
	if c.Limits.PerHour < c.Limits.PerMinute {
		return fmt.Errorf("limits.per_hour %d must not be lower than limits.per_minute %d", c.Limits.PerHour, c.Limits.PerMinute)
	}
	if c.Limits.MaxMessageLen < 1 {
		return fmt.Errorf("limits.max_message_len must be at least 1, got %d", c.Limits.MaxMessageLen)
	}
	if c.Chat.ContextWindow < 1 {
		return fmt.Errorf("chat.context_window must be at least 1, got %d", c.Chat.ContextWindow)
	}
	if c.Chat.MaxToolRounds < 1 {
		return fmt.Errorf("chat.max_tool_rounds must be at least 1, got %d", c.Chat.MaxToolRounds)
	}
	if c.Chat.TurnTimeout <= 0 {
		return fmt.Errorf("chat.turn_timeout must be positive, got %s", c.Chat.TurnTimeout)
	}
	if rate := c.Observability.Tracing.SamplingRate; rate < 0 || rate > 1 {
		return fmt.Errorf("observability.tracing.sampling_rate must be between 0 and 1, got %g", rate)
	}
	if c.Observability.Tracing.Enabled && strings.TrimSpace(c.Observability.Tracing.Endpoint) == "" {
		return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateLLM() error {
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must configure at least one provider")
	}
	for name, provider := range c.LLM.Providers {
		if !knownProviders[name] {
			return fmt.Errorf("llm.providers: unknown provider %q", name)
		}
		if name == "bedrock" {
			// Bedrock authenticates with ambient AWS credentials.
			if strings.TrimSpace(provider.Region) == "" {
				return fmt.Errorf("llm.providers.bedrock: region is required")
			}
			continue
		}
		if strings.TrimSpace(provider.APIKey) == "" {
			return fmt.Errorf("llm.providers.%s: api_key is required", name)
		}
	}
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("llm.default_provider %q is not configured under llm.providers", c.LLM.DefaultProvider)
	}
	return nil
}

func (c *Config) validateTasks() error {
	base := strings.TrimSpace(c.Tasks.BaseURL)
	if base == "" {
		return fmt.Errorf("tasks.base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("tasks.base_url %q is not a valid URL", base)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("tasks.base_url %q must use http or https", base)
	}
	if c.Tasks.Timeout <= 0 {
		return fmt.Errorf("tasks.timeout must be positive, got %s", c.Tasks.Timeout)
	}
	return nil
}

// RateLimitEnabled reports whether request quotas are active, treating an
// omitted limits.enabled as true.
func (c *Config) RateLimitEnabled() bool {
	return c.Limits.Enabled == nil || *c.Limits.Enabled
}
