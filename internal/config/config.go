// Package config provides configuration loading for the voice-to-SOP service.
//
// Values come from hardcoded defaults, an optional YAML file, a .env file,
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	VAPI      VAPIConfig      `koanf:"vapi"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	GHL       GHLConfig       `koanf:"ghl"`
	Google    GoogleConfig    `koanf:"google"`
	Lindy     LindyConfig     `koanf:"lindy"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Temporal  TemporalConfig  `koanf:"temporal"`
	Events    EventsConfig    `koanf:"events"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Retention RetentionConfig `koanf:"retention"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	Debug           bool     `koanf:"debug"`
	PublicURL       string   `koanf:"public_url"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// WebhookRateLimit is requests per second per client IP on /webhook/*.
	WebhookRateLimit float64 `koanf:"webhook_rate_limit"`
	WebhookBurst     int     `koanf:"webhook_burst"`
	// RedactAudit scrubs card numbers and credentials from audit payloads.
	RedactAudit bool `koanf:"redact_audit"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// VAPIConfig configures the voice platform client.
type VAPIConfig struct {
	APIKey  Secret `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// OpenAIConfig configures SOP generation.
type OpenAIConfig struct {
	APIKey      Secret  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// GHLConfig configures the CRM client.
type GHLConfig struct {
	APIKey  Secret `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// GoogleConfig configures the document store.
type GoogleConfig struct {
	CredentialsPath string `koanf:"credentials_path"`
	FolderID        string `koanf:"folder_id"`
}

// LindyConfig configures the automation relay.
type LindyConfig struct {
	WebhookURL    string `koanf:"webhook_url"`
	WebhookSecret Secret `koanf:"webhook_secret"`
}

// Enabled reports whether relay notifications should be sent.
func (l LindyConfig) Enabled() bool {
	return l.WebhookURL != ""
}

// DatabaseConfig configures persistence. An empty URL disables it for the
// HTTP server; the worker and migrate commands require it.
type DatabaseConfig struct {
	URL             string   `koanf:"url"`
	MaxOpenConns    int      `koanf:"max_open_conns"`
	ConnMaxLifetime Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig configures the call dedup guard. Empty URL disables it.
type RedisConfig struct {
	URL      string   `koanf:"url"`
	DedupTTL Duration `koanf:"dedup_ttl"`
}

// TemporalConfig configures the async task queue.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// EventsConfig configures the lifecycle event publisher.
type EventsConfig struct {
	Backend      string   `koanf:"backend"`
	NATSURL      string   `koanf:"nats_url"`
	Subject      string   `koanf:"subject"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

// Event backends.
const (
	EventsNone  = "none"
	EventsNATS  = "nats"
	EventsKafka = "kafka"
)

// PipelineConfig controls how end-of-call reports are processed.
type PipelineConfig struct {
	// Async hands end-of-call reports to the Temporal worker instead of
	// running the pipeline inside the request.
	Async         bool     `koanf:"async"`
	ClientTimeout Duration `koanf:"client_timeout"`
	// ReminderAfter schedules an SMS reminder this long after an async
	// delivery. Zero disables reminders.
	ReminderAfter Duration `koanf:"reminder_after"`
}

// RetentionConfig controls webhook log cleanup.
type RetentionConfig struct {
	Interval Duration `koanf:"interval"`
	MaxAge   Duration `koanf:"max_age"`
}

// LogConfig holds the logging knobs exposed through configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Endpoint      string  `koanf:"endpoint"`
	Protocol      string  `koanf:"protocol"`
	Insecure      bool    `koanf:"insecure"`
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	ServiceName   string  `koanf:"service_name"`
	SampleRate    float64 `koanf:"sample_rate"`
}

// Default returns configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             5000,
			ReadTimeout:      Duration(30 * time.Second),
			WriteTimeout:     Duration(120 * time.Second),
			ShutdownTimeout:  Duration(10 * time.Second),
			WebhookRateLimit: 10,
			WebhookBurst:     20,
			RedactAudit:      true,
		},
		VAPI: VAPIConfig{BaseURL: "https://api.vapi.ai"},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4-turbo-preview",
			Temperature: 0.7,
			MaxTokens:   4000,
		},
		GHL:    GHLConfig{BaseURL: "https://rest.gohighlevel.com/v1"},
		Google: GoogleConfig{CredentialsPath: "./credentials/google_credentials.json"},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Redis: RedisConfig{DedupTTL: Duration(15 * time.Minute)},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "voice-sop",
		},
		Events: EventsConfig{
			Backend:    EventsNone,
			NATSURL:    "nats://127.0.0.1:4222",
			Subject:    "voicesop.pipeline",
			KafkaTopic: "voicesop.pipeline",
		},
		Pipeline: PipelineConfig{ClientTimeout: Duration(30 * time.Second)},
		Retention: RetentionConfig{
			Interval: Duration(24 * time.Hour),
			MaxAge:   Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "voice-sop",
			SampleRate:  1.0,
		},
	}
}

// ConfigurationError reports missing or invalid configuration. It is fatal
// at startup.
type ConfigurationError struct {
	Missing  []string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "Missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return strings.Join(parts, "; ")
}

// IsConfigurationError reports whether err is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Validate checks required credentials and value ranges.
func (c *Config) Validate() error {
	ce := &ConfigurationError{}

	if !c.VAPI.APIKey.IsSet() {
		ce.Missing = append(ce.Missing, "VAPI_API_KEY")
	}
	if !c.OpenAI.APIKey.IsSet() {
		ce.Missing = append(ce.Missing, "OPENAI_API_KEY")
	}
	if !c.GHL.APIKey.IsSet() {
		ce.Missing = append(ce.Missing, "GHL_API_KEY")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		ce.Problems = append(ce.Problems, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.PublicURL != "" {
		if u, err := url.Parse(c.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			ce.Problems = append(ce.Problems, fmt.Sprintf("server.public_url is not an absolute URL: %q", c.Server.PublicURL))
		}
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		ce.Problems = append(ce.Problems, fmt.Sprintf("openai.temperature must be 0-2, got %v", c.OpenAI.Temperature))
	}
	if c.OpenAI.MaxTokens <= 0 {
		ce.Problems = append(ce.Problems, "openai.max_tokens must be > 0")
	}
	if c.Pipeline.ClientTimeout.Duration() <= 0 {
		ce.Problems = append(ce.Problems, "pipeline.client_timeout must be > 0")
	}
	switch c.Events.Backend {
	case EventsNone, "":
	case EventsNATS:
		if c.Events.NATSURL == "" {
			ce.Problems = append(ce.Problems, "events.nats_url is required for the nats backend")
		}
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			ce.Problems = append(ce.Problems, "events.kafka_brokers is required for the kafka backend")
		}
	default:
		ce.Problems = append(ce.Problems, fmt.Sprintf("events.backend must be none, nats or kafka, got %q", c.Events.Backend))
	}
	if c.Pipeline.Async && c.Temporal.HostPort == "" {
		ce.Problems = append(ce.Problems, "temporal.host_port is required when pipeline.async is enabled")
	}

	if len(ce.Missing) > 0 || len(ce.Problems) > 0 {
		return ce
	}
	return nil
}
