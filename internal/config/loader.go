// internal/config/loader.go
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

// envKeys maps the flat environment variable names used by deployments to
// koanf keys.
var envKeys = map[string]string{
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"DEBUG":                       "server.debug",
	"FLASK_DEBUG":                 "server.debug",
	"PUBLIC_URL":                  "server.public_url",
	"WEBHOOK_RATE_LIMIT":          "server.webhook_rate_limit",
	"WEBHOOK_BURST":               "server.webhook_burst",
	"REDACT_AUDIT_PAYLOADS":       "server.redact_audit",
	"SERVER_WRITE_TIMEOUT":        "server.write_timeout",
	"SERVER_SHUTDOWN_TIMEOUT":     "server.shutdown_timeout",
	"VAPI_API_KEY":                "vapi.api_key",
	"VAPI_BASE_URL":               "vapi.base_url",
	"OPENAI_API_KEY":              "openai.api_key",
	"OPENAI_BASE_URL":             "openai.base_url",
	"OPENAI_MODEL":                "openai.model",
	"OPENAI_TEMPERATURE":          "openai.temperature",
	"OPENAI_MAX_TOKENS":           "openai.max_tokens",
	"GHL_API_KEY":                 "ghl.api_key",
	"GHL_BASE_URL":                "ghl.base_url",
	"GOOGLE_CREDENTIALS_PATH":     "google.credentials_path",
	"GOOGLE_FOLDER_ID":            "google.folder_id",
	"LINDY_WEBHOOK_URL":           "lindy.webhook_url",
	"LINDY_WEBHOOK_SECRET":        "lindy.webhook_secret",
	"DATABASE_URL":                "database.url",
	"DATABASE_MAX_OPEN_CONNS":     "database.max_open_conns",
	"REDIS_URL":                   "redis.url",
	"DEDUP_TTL":                   "redis.dedup_ttl",
	"TEMPORAL_HOST":               "temporal.host_port",
	"TEMPORAL_NAMESPACE":          "temporal.namespace",
	"TEMPORAL_TASK_QUEUE":         "temporal.task_queue",
	"EVENTS_BACKEND":              "events.backend",
	"NATS_URL":                    "events.nats_url",
	"EVENTS_SUBJECT":              "events.subject",
	"KAFKA_BROKERS":               "events.kafka_brokers",
	"KAFKA_TOPIC":                 "events.kafka_topic",
	"PIPELINE_ASYNC":              "pipeline.async",
	"PIPELINE_CLIENT_TIMEOUT":     "pipeline.client_timeout",
	"PIPELINE_REMINDER_AFTER":     "pipeline.reminder_after",
	"RETENTION_INTERVAL":          "retention.interval",
	"RETENTION_MAX_AGE":           "retention.max_age",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"OTEL_ENABLE":                 "telemetry.enabled",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "telemetry.endpoint",
	"OTEL_EXPORTER_OTLP_PROTOCOL": "telemetry.protocol",
	"OTEL_EXPORTER_OTLP_INSECURE": "telemetry.insecure",
	"OTEL_SERVICE_NAME":           "telemetry.service_name",
	"OTEL_TRACES_SAMPLER_ARG":     "telemetry.sample_rate",
}

// listKeys are split on commas when read from the environment.
var listKeys = map[string]bool{
	"events.kafka_brokers": true,
}

// Options controls where Load reads from.
type Options struct {
	// File is an optional YAML config file. Missing files are ignored.
	File string
	// DotEnv files are loaded into the process environment first. Missing
	// files are ignored and existing variables are never overwritten.
	DotEnv []string
	// SkipValidation returns the config even when required keys are absent.
	// CLI commands that only talk to one upstream use it.
	SkipValidation bool
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (VAPI_API_KEY, PORT, DATABASE_URL, ...)
//  2. .env files
//  3. YAML config file
//  4. Defaults
func Load(opts Options) (*Config, error) {
	dotenv := opts.DotEnv
	if dotenv == nil {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	k := koanf.New(".")

	if opts.File != "" {
		content, err := readConfigFile(opts.File)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", opts.File, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(cfg)

	if opts.SkipValidation {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envValue maps a known environment variable to its koanf key. Unknown
// variables return an empty key and are skipped.
func envValue(name, value string) (string, interface{}) {
	key, ok := envKeys[name]
	if !ok {
		return "", nil
	}
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	if key == "server.debug" {
		b, err := strconv.ParseBool(value)
		return key, err == nil && b
	}
	return key, value
}

func normalize(cfg *Config) {
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")
	cfg.VAPI.BaseURL = strings.TrimRight(cfg.VAPI.BaseURL, "/")
	cfg.GHL.BaseURL = strings.TrimRight(cfg.GHL.BaseURL, "/")
	cfg.Events.Backend = strings.ToLower(strings.TrimSpace(cfg.Events.Backend))
	if cfg.Events.Backend == "" {
		cfg.Events.Backend = EventsNone
	}
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties rejects group/world readable files, since the
// file may carry API keys, and files over 1MB.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm&0o077 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
