package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/scribe/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Insecure       bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns defaults for a local collector.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a periodic OTLP meter provider as the global provider.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// InferenceMetrics holds the instruments for model loads, inference runs and
// HTTP requests.
type InferenceMetrics struct {
	loadDuration    metric.Float64Histogram
	loadProgress    metric.Int64Counter
	runTotal        metric.Int64Counter
	runDuration     metric.Float64Histogram
	runActive       metric.Int64UpDownCounter
	runRejected     metric.Int64Counter
	partialTotal    metric.Int64Counter
	chunkTotal      metric.Int64Counter
	chunkFailed     metric.Int64Counter
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewInferenceMetrics creates the instruments on meter.
func NewInferenceMetrics(meter metric.Meter) (*InferenceMetrics, error) {
	var (
		m   InferenceMetrics
		err error
	)
	if m.loadDuration, err = meter.Float64Histogram("scribe.model.load.duration",
		metric.WithDescription("Duration of backend model loads"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating scribe.model.load.duration histogram: %w", err)
	}
	if m.loadProgress, err = meter.Int64Counter("scribe.model.load.files",
		metric.WithDescription("Model files that finished downloading")); err != nil {
		return nil, fmt.Errorf("creating scribe.model.load.files counter: %w", err)
	}
	if m.runTotal, err = meter.Int64Counter("scribe.run.total",
		metric.WithDescription("Inference runs by pipeline and outcome")); err != nil {
		return nil, fmt.Errorf("creating scribe.run.total counter: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("scribe.run.duration",
		metric.WithDescription("Duration of inference runs"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating scribe.run.duration histogram: %w", err)
	}
	if m.runActive, err = meter.Int64UpDownCounter("scribe.run.active",
		metric.WithDescription("Inference runs currently executing")); err != nil {
		return nil, fmt.Errorf("creating scribe.run.active gauge: %w", err)
	}
	if m.runRejected, err = meter.Int64Counter("scribe.run.rejected",
		metric.WithDescription("Run requests rejected before admission")); err != nil {
		return nil, fmt.Errorf("creating scribe.run.rejected counter: %w", err)
	}
	if m.partialTotal, err = meter.Int64Counter("scribe.transcription.partials",
		metric.WithDescription("Partial transcript updates emitted")); err != nil {
		return nil, fmt.Errorf("creating scribe.transcription.partials counter: %w", err)
	}
	if m.chunkTotal, err = meter.Int64Counter("scribe.transcription.chunks",
		metric.WithDescription("Finalized audio chunks")); err != nil {
		return nil, fmt.Errorf("creating scribe.transcription.chunks counter: %w", err)
	}
	if m.chunkFailed, err = meter.Int64Counter("scribe.transcription.chunk_decode_failures",
		metric.WithDescription("Chunk boundaries whose cumulative decode failed")); err != nil {
		return nil, fmt.Errorf("creating scribe.transcription.chunk_decode_failures counter: %w", err)
	}
	if m.requestTotal, err = meter.Int64Counter("scribe.http.requests",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, fmt.Errorf("creating scribe.http.requests counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("scribe.http.duration",
		metric.WithDescription("Duration of HTTP requests"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating scribe.http.duration histogram: %w", err)
	}
	return &m, nil
}

// RecordLoad records a finished backend load.
func (m *InferenceMetrics) RecordLoad(ctx context.Context, pipeline, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.loadDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("status", status),
	))
}

// RecordFileDone counts a model file that finished downloading.
func (m *InferenceMetrics) RecordFileDone(ctx context.Context, pipeline string) {
	if m == nil {
		return
	}
	m.loadProgress.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
}

// RunStarted marks a run as active.
func (m *InferenceMetrics) RunStarted(ctx context.Context, pipeline string) {
	if m == nil {
		return
	}
	m.runActive.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
}

// RecordRun marks a run as finished and records its outcome.
func (m *InferenceMetrics) RecordRun(ctx context.Context, pipeline, status string, d time.Duration) {
	if m == nil {
		return
	}
	p := attribute.String("pipeline", pipeline)
	m.runActive.Add(ctx, -1, metric.WithAttributes(p))
	m.runTotal.Add(ctx, 1, metric.WithAttributes(p, attribute.String("status", status)))
	m.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(p))
}

// RecordRejected counts a run request rejected with reason (an error code).
func (m *InferenceMetrics) RecordRejected(ctx context.Context, pipeline, reason string) {
	if m == nil {
		return
	}
	m.runRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("reason", reason),
	))
}

// RecordPartial counts a partial transcript update.
func (m *InferenceMetrics) RecordPartial(ctx context.Context) {
	if m == nil {
		return
	}
	m.partialTotal.Add(ctx, 1)
}

// RecordChunk counts a finalized chunk.
func (m *InferenceMetrics) RecordChunk(ctx context.Context) {
	if m == nil {
		return
	}
	m.chunkTotal.Add(ctx, 1)
}

// RecordChunkDecodeFailure counts a chunk boundary that produced no text.
func (m *InferenceMetrics) RecordChunkDecodeFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.chunkFailed.Add(ctx, 1)
}

// RecordRequest records a completed HTTP request.
func (m *InferenceMetrics) RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}
