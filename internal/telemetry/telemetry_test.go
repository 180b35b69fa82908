package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/voicesop/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), config.Default().Telemetry, "test", nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNew_InvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: true}, "test", nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestValidate(t *testing.T) {
	base := config.Default().Telemetry
	base.Enabled = true

	tests := []struct {
		name    string
		mutate  func(*config.TelemetryConfig)
		wantErr string
	}{
		{"defaults", func(*config.TelemetryConfig) {}, ""},
		{"disabled skips checks", func(c *config.TelemetryConfig) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"missing endpoint", func(c *config.TelemetryConfig) { c.Endpoint = "" }, "endpoint is required"},
		{"missing service", func(c *config.TelemetryConfig) { c.ServiceName = "" }, "service_name is required"},
		{"insecure remote", func(c *config.TelemetryConfig) { c.Endpoint = "otel.example.com:4317" }, "insecure connections"},
		{"secure remote", func(c *config.TelemetryConfig) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"rate too high", func(c *config.TelemetryConfig) { c.SampleRate = 1.5 }, "sample_rate"},
		{"rate negative", func(c *config.TelemetryConfig) { c.SampleRate = -0.1 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4317":        true,
		"[::1]:4317":            true,
		"::1":                   true,
		"http://localhost:4318": true,
		"collector:4317":        false,
		"otel.example.com":      false,
	}
	for endpoint, want := range tests {
		assert.Equal(t, want, isLocalEndpoint(endpoint), endpoint)
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("otel:4318"))
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Degraded: true}, tel.Health())
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	_, span := tt.Tracer("test").Start(context.Background(), "work")
	span.SetAttributes(attribute.String("call_id", "call-1"))
	span.End()

	tt.AssertSpanExists(t, "work")
	tt.AssertSpanAttribute(t, "work", "call_id", "call-1")
	assert.Nil(t, tt.SpanByName("missing"))
}
