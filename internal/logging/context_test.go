package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"
)

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_Correlation(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	ctx = WithCallID(ctx, "call_1")
	ctx = WithContactID(ctx, "contact_7")

	got := map[string]string{}
	for _, f := range ContextFields(ctx) {
		got[f.Key] = f.String
	}
	assert.Equal(t, map[string]string{
		"request.id": "req-9",
		"call_id":    "call_1",
		"contact_id": "contact_7",
	}, got)
}

func TestContextFields_Trace(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "pipeline")
	defer span.End()

	keys := map[string]bool{}
	for _, f := range ContextFields(ctx) {
		keys[f.Key] = true
	}
	assert.True(t, keys["trace_id"])
	assert.True(t, keys["span_id"])
}

func TestWithCallID_SanitizesInput(t *testing.T) {
	ctx := WithCallID(context.Background(), "")
	assert.Empty(t, CallIDFromContext(ctx))

	ctx = WithCallID(context.Background(), "\xff\xfe")
	assert.Empty(t, CallIDFromContext(ctx))

	long := strings.Repeat("a", 300)
	ctx = WithCallID(context.Background(), long)
	assert.Len(t, CallIDFromContext(ctx), maxIDLen)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "from context")
	tl.AssertLogged(t, zapcore.InfoLevel, "from context")
}
