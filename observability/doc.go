// Package observability wires OpenTelemetry tracing and metrics into scribe.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("scribe"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanTranscriptionRun)
//	defer span.End()
//
// Metrics:
//
//	metrics, err := observability.NewInferenceMetrics(observability.Meter("scribe"))
//	metrics.RecordRun(ctx, "transcription", "ok", elapsed)
//
// A nil *InferenceMetrics is valid and records nothing, so callers never
// need to guard instrument calls.
package observability
