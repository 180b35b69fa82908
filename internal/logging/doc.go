// Package logging provides structured logging for the voice-to-SOP service.
//
// The package wraps Zap with a custom Trace level, optional OpenTelemetry
// export through the otelzap bridge, secret redaction at the encoder, and
// sampling below error level.
//
// Correlation ids travel in the context:
//
//	ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
//	ctx = logging.WithCallID(ctx, event.CallID)
//	logger.Info(ctx, "sop generated", zap.Int("sop_length", len(content)))
//
// which produces
//
//	{"level":"info","ts":"...","msg":"sop generated","service":"voice-sop",
//	 "request.id":"...","call_id":"call_123","sop_length":2048}
//
// Tests use NewTestLogger and its Assert helpers.
package logging
