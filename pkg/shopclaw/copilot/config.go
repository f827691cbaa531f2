// Package copilot – config.go defines all configuration structures
// for the shopclaw assistant.
package copilot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels/instagram"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels/whatsapp"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/database"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/shopify"
)

// Config holds all assistant configuration.
type Config struct {
	// Name is the shop name used in the system prompt.
	Name string `yaml:"name"`

	// Assistant configures the conversation loop.
	Assistant AssistantConfig `yaml:"assistant"`

	// API configures the reasoning backend endpoint.
	API APIConfig `yaml:"api"`

	// Fallback configures model fallback with retry and backoff.
	Fallback FallbackConfig `yaml:"fallback"`

	// Shopify configures the catalog and invoice platform.
	Shopify shopify.Config `yaml:"shopify"`

	// Database configures the order store.
	Database database.Config `yaml:"database"`

	// Sessions configures conversation session retention.
	Sessions SessionConfig `yaml:"sessions"`

	// Gateway configures the HTTP API server.
	Gateway GatewayConfig `yaml:"gateway"`

	// Channels configures messaging channels.
	Channels ChannelsConfig `yaml:"channels"`

	// Events configures order event publishing.
	Events EventsConfig `yaml:"events"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// whatsappModeSet records whether the YAML chose a WhatsApp mode, so the
	// legacy SOCIAL_MOCK_MODE variable only applies when it did not.
	whatsappModeSet bool
}

// AssistantConfig configures the orchestration loop.
type AssistantConfig struct {
	// SystemPrompt replaces the built-in sales persona when non-empty.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxToolDepth caps tool calls per customer message (default: 5).
	MaxToolDepth int `yaml:"max_tool_depth"`

	// RunTimeoutSeconds bounds the whole run for one message (default: 120).
	RunTimeoutSeconds int `yaml:"run_timeout_seconds"`

	// LLMCallTimeoutSeconds bounds a single backend call (default: 60).
	LLMCallTimeoutSeconds int `yaml:"llm_call_timeout_seconds"`
}

// Effective returns the config with defaults applied.
func (a AssistantConfig) Effective() AssistantConfig {
	out := a
	if out.MaxToolDepth <= 0 {
		out.MaxToolDepth = DefaultMaxToolDepth
	}
	if out.RunTimeoutSeconds <= 0 {
		out.RunTimeoutSeconds = 120
	}
	if out.LLMCallTimeoutSeconds <= 0 {
		out.LLMCallTimeoutSeconds = 60
	}
	return out
}

// APIConfig configures the OpenAI-compatible backend endpoint.
type APIConfig struct {
	// BaseURL is the API base URL. The default is the Gemini
	// OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the backend. Also read from
	// GEMINI_API_KEY or the OS keyring.
	APIKey string `yaml:"api_key"`

	// Model is the primary model.
	Model string `yaml:"model"`

	// TimeoutSeconds is the HTTP client timeout (default: 120).
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Default backend settings.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel   = "gemini-2.0-flash"
)

// Effective returns the config with defaults applied.
func (a APIConfig) Effective() APIConfig {
	out := a
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	if out.Model == "" {
		out.Model = DefaultModel
	}
	if out.TimeoutSeconds <= 0 {
		out.TimeoutSeconds = 120
	}
	return out
}

// FallbackConfig configures retry and model fallback for the backend.
type FallbackConfig struct {
	// Models is the ordered list of fallback models tried after the primary.
	Models []string `yaml:"models"`

	// MaxRetries per model before moving to the next (default: 2).
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoffMs is the first retry delay (default: 1000).
	InitialBackoffMs int `yaml:"initial_backoff_ms"`

	// MaxBackoffMs caps the backoff (default: 30000).
	MaxBackoffMs int `yaml:"max_backoff_ms"`

	// RetryOnStatusCodes lists HTTP codes that trigger a retry.
	RetryOnStatusCodes []int `yaml:"retry_on_status_codes"`
}

// DefaultFallbackConfig returns the default retry policy.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		MaxRetries:         2,
		InitialBackoffMs:   1000,
		MaxBackoffMs:       30000,
		RetryOnStatusCodes: []int{429, 500, 502, 503, 504, 529},
	}
}

// Effective returns the config with defaults applied.
func (f FallbackConfig) Effective() FallbackConfig {
	def := DefaultFallbackConfig()
	out := f
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.InitialBackoffMs <= 0 {
		out.InitialBackoffMs = def.InitialBackoffMs
	}
	if out.MaxBackoffMs <= 0 {
		out.MaxBackoffMs = def.MaxBackoffMs
	}
	if len(out.RetryOnStatusCodes) == 0 {
		out.RetryOnStatusCodes = def.RetryOnStatusCodes
	}
	return out
}

// SessionConfig configures the in-memory session store.
type SessionConfig struct {
	// TTLMinutes evicts sessions idle this long (default: 1440).
	TTLMinutes int `yaml:"ttl_minutes"`

	// MaxTurns caps stored turns per session (default: 200).
	MaxTurns int `yaml:"max_turns"`

	// PruneSchedule is the cron schedule of the eviction sweep
	// (default: "@every 10m").
	PruneSchedule string `yaml:"prune_schedule"`

	// HealthSchedule is the cron schedule of the shop health probe
	// (default: "@every 5m"). "off" disables it.
	HealthSchedule string `yaml:"health_schedule"`
}

// Effective returns the config with defaults applied.
func (s SessionConfig) Effective() SessionConfig {
	out := s
	if out.TTLMinutes <= 0 {
		out.TTLMinutes = 24 * 60
	}
	if out.MaxTurns <= 0 {
		out.MaxTurns = DefaultMaxTurns
	}
	if out.PruneSchedule == "" {
		out.PruneSchedule = "@every 10m"
	}
	if out.HealthSchedule == "" {
		out.HealthSchedule = "@every 5m"
	}
	return out
}

// GatewayConfig configures the HTTP API server.
type GatewayConfig struct {
	// Address is the listen address (default: ":8000").
	Address string `yaml:"address"`

	// AdminToken protects /api/v1/admin/* with a bearer token when set.
	AdminToken string `yaml:"admin_token"`

	// CORSOrigins lists allowed origins. Empty allows all.
	CORSOrigins []string `yaml:"cors_origins"`
}

// ChannelsConfig holds configuration for all channels.
type ChannelsConfig struct {
	WhatsApp  whatsapp.Config  `yaml:"whatsapp"`
	Instagram instagram.Config `yaml:"instagram"`
}

// EventsConfig configures downstream event publishing.
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the order event producer. Publishing is off while
// Brokers is empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether a producer should be created.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "Moda Masal",
		Assistant: AssistantConfig{}.Effective(),
		API:       APIConfig{}.Effective(),
		Fallback:  DefaultFallbackConfig(),
		Shopify:   shopify.DefaultConfig(),
		Database:  database.DefaultConfig(),
		Sessions:  SessionConfig{}.Effective(),
		Gateway:   GatewayConfig{Address: ":8000"},
		Channels: ChannelsConfig{
			WhatsApp:  whatsapp.DefaultConfig(),
			Instagram: instagram.DefaultConfig(),
		},
		Events:  EventsConfig{Kafka: KafkaConfig{Topic: "shopclaw.orders"}},
		Metrics: MetricsConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	domain := strings.TrimSpace(c.Shopify.StoreDomain)
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		errs = append(errs, fmt.Errorf("shopify.store_domain must not include http:// or https:// (got %q)", domain))
	}

	switch c.Database.Effective().Backend {
	case database.BackendSQLite, database.BackendPostgreSQL:
	default:
		errs = append(errs, fmt.Errorf("database.backend must be sqlite or postgresql (got %q)", c.Database.Backend))
	}

	if err := c.Channels.WhatsApp.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Channels.Instagram.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Events.Kafka.Enabled() && c.Events.Kafka.Topic == "" {
		errs = append(errs, errors.New("events.kafka.topic is required when brokers are set"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text (got %q)", c.Logging.Format))
	}

	return errors.Join(errs...)
}
