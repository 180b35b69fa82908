// Package telemetry sets up OpenTelemetry tracing and metrics export for
// voice-sop.
//
// Spans are created by the packages that own the work (pipeline, the
// upstream clients, the GORM plugin) against the global tracer provider;
// New installs an OTLP-backed provider when telemetry is enabled.
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Telemetry failures never stop the service. A provider that cannot be
// built leaves the instance degraded and the SDK's no-op provider in place.
//
// Tests use TestTelemetry, which records spans in memory.
package telemetry
