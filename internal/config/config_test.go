package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("VAPI_API_KEY", "vapi-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("GHL_API_KEY", "ghl-key")
}

func noDotEnv() Options {
	return Options{DotEnv: []string{}}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(noDotEnv())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout.Duration())
	assert.Equal(t, "gpt-4-turbo-preview", cfg.OpenAI.Model)
	assert.Equal(t, 0.7, cfg.OpenAI.Temperature)
	assert.Equal(t, 4000, cfg.OpenAI.MaxTokens)
	assert.Equal(t, "https://rest.gohighlevel.com/v1", cfg.GHL.BaseURL)
	assert.Equal(t, "https://api.vapi.ai", cfg.VAPI.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.ClientTimeout.Duration())
	assert.Equal(t, 24*time.Hour, cfg.Retention.Interval.Duration())
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.MaxAge.Duration())
	assert.Equal(t, "voice-sop", cfg.Temporal.TaskQueue)
	assert.Equal(t, EventsNone, cfg.Events.Backend)
	assert.False(t, cfg.Lindy.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("FLASK_DEBUG", "true")
	t.Setenv("PUBLIC_URL", "https://sop.example.com/")
	t.Setenv("LINDY_WEBHOOK_URL", "https://lindy.example.com/hook")
	t.Setenv("LINDY_WEBHOOK_SECRET", "s3cret")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	t.Setenv("EVENTS_BACKEND", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DEDUP_TTL", "5m")
	t.Setenv("PIPELINE_ASYNC", "true")

	cfg, err := Load(noDotEnv())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "https://sop.example.com", cfg.Server.PublicURL)
	assert.True(t, cfg.Lindy.Enabled())
	assert.Equal(t, "s3cret", cfg.Lindy.WebhookSecret.Value())
	assert.Equal(t, 0.2, cfg.OpenAI.Temperature)
	assert.Equal(t, EventsKafka, cfg.Events.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.Redis.DedupTTL.Duration())
	assert.True(t, cfg.Pipeline.Async)
}

func TestLoad_MissingRequiredKeys(t *testing.T) {
	t.Setenv("VAPI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("GHL_API_KEY", "")

	_, err := Load(noDotEnv())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, "Missing required environment variables: VAPI_API_KEY, GHL_API_KEY", err.Error())
}

func TestLoad_SkipValidation(t *testing.T) {
	t.Setenv("VAPI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GHL_API_KEY", "")

	cfg, err := Load(Options{DotEnv: []string{}, SkipValidation: true})
	require.NoError(t, err)
	assert.False(t, cfg.VAPI.APIKey.IsSet())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("VAPI_API_KEY=from-dotenv\nOPENAI_API_KEY=o\nGHL_API_KEY=g\n"), 0o600))
	t.Setenv("VAPI_API_KEY", "")
	os.Unsetenv("VAPI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("GHL_API_KEY")
	t.Cleanup(func() {
		os.Unsetenv("OPENAI_API_KEY")
		os.Unsetenv("GHL_API_KEY")
	})

	cfg, err := Load(Options{DotEnv: []string{path}})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.VAPI.APIKey.Value())
}

func TestLoad_YAMLFile(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "voicesop.yaml")
	yaml := `
server:
  port: 7000
  write_timeout: 90s
google:
  folder_id: folder-123
retention:
  max_age: 168h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(Options{File: path, DotEnv: []string{}})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout.Duration())
	assert.Equal(t, "folder-123", cfg.Google.FolderID)
	assert.Equal(t, 168*time.Hour, cfg.Retention.MaxAge.Duration())

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("PORT", "7001")
		cfg, err := Load(Options{File: path, DotEnv: []string{}})
		require.NoError(t, err)
		assert.Equal(t, 7001, cfg.Server.Port)
	})

	t.Run("missing file ignored", func(t *testing.T) {
		_, err := Load(Options{File: filepath.Join(dir, "nope.yaml"), DotEnv: []string{}})
		assert.NoError(t, err)
	})

	t.Run("world readable rejected", func(t *testing.T) {
		open := filepath.Join(dir, "open.yaml")
		require.NoError(t, os.WriteFile(open, []byte(yaml), 0o644))
		require.NoError(t, os.Chmod(open, 0o644))
		_, err := Load(Options{File: open, DotEnv: []string{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"relative public url", func(c *Config) { c.Server.PublicURL = "sop.example.com" }, "server.public_url"},
		{"bad backend", func(c *Config) { c.Events.Backend = "sqs" }, "events.backend"},
		{"kafka without brokers", func(c *Config) { c.Events.Backend = EventsKafka }, "kafka_brokers"},
		{"temperature", func(c *Config) { c.OpenAI.Temperature = 3 }, "temperature"},
		{"async without temporal", func(c *Config) {
			c.Pipeline.Async = true
			c.Temporal.HostPort = ""
		}, "temporal.host_port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.VAPI.APIKey = "v"
			cfg.OpenAI.APIKey = "o"
			cfg.GHL.APIKey = "g"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSecret_NeverRendersValue(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")
	b, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "sk-live")

	assert.True(t, s.Equal("sk-live-123"))
	assert.False(t, s.Equal("sk-live-124"))
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("45s")))
	assert.Equal(t, 45*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
