// Package tracing provides OpenTelemetry tracing integration.
//
// The HTTP middleware opens a server span per request and the ingestion
// pipeline opens one child span per stage (fetch, parse, convert, write).
// Spans go to whatever TracerProvider is installed with otel.SetTracerProvider;
// Setup installs an SDK provider with a ratio sampler so trace IDs are
// assigned even without an exporter. Without a provider spans are no-ops.
//
// Example usage:
//
//	func ingest(ctx context.Context) error {
//	    ctx, span := tracing.StartSpan(ctx, tracing.GetTracer(), "ingest.fetch")
//	    err := fetch(ctx)
//	    tracing.EndSpan(span, err)
//	    return err
//	}
package tracing
