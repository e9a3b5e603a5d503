package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Resolution metrics
	ResolveRequests metric.Int64Counter
	ResolveDuration metric.Float64Histogram

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter
	CacheSize   metric.Int64Gauge

	// Upstream metrics
	UpstreamCalls    metric.Int64Counter
	UpstreamDuration metric.Float64Histogram
	BatchChunkSize   metric.Int64Histogram

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter

	// Prometheus exporter for HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance. When disabled, every recording
// method is a no-op.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	m.ResolveRequests, err = m.meter.Int64Counter(
		"resolver_requests_total",
		metric.WithDescription("Resolution requests by kind and outcome"),
	)
	if err != nil {
		return err
	}

	m.ResolveDuration, err = m.meter.Float64Histogram(
		"resolver_request_duration_seconds",
		metric.WithDescription("End-to-end resolution duration"),
	)
	if err != nil {
		return err
	}

	m.CacheHits, err = m.meter.Int64Counter(
		"resolver_cache_hits_total",
		metric.WithDescription("Cache hits"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"resolver_cache_misses_total",
		metric.WithDescription("Cache misses"),
	)
	if err != nil {
		return err
	}

	m.CacheSize, err = m.meter.Int64Gauge(
		"resolver_cache_entries",
		metric.WithDescription("Current number of cached results"),
	)
	if err != nil {
		return err
	}

	m.UpstreamCalls, err = m.meter.Int64Counter(
		"resolver_upstream_calls_total",
		metric.WithDescription("Upstream lookups by endpoint and status"),
	)
	if err != nil {
		return err
	}

	m.UpstreamDuration, err = m.meter.Float64Histogram(
		"resolver_upstream_duration_seconds",
		metric.WithDescription("Upstream lookup duration"),
	)
	if err != nil {
		return err
	}

	m.BatchChunkSize, err = m.meter.Int64Histogram(
		"resolver_batch_chunk_size",
		metric.WithDescription("Names per upstream batch request"),
	)
	if err != nil {
		return err
	}

	m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"resolver_circuit_breaker_state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return err
	}

	m.Errors, err = m.meter.Int64Counter(
		"resolver_errors_total",
		metric.WithDescription("Internal errors by type"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordResolve records one resolution request
func (m *Metrics) RecordResolve(ctx context.Context, kind string, resolved bool, duration time.Duration) {
	if m.ResolveRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("resolved", resolved),
	)
	m.ResolveRequests.Add(ctx, 1, attrs)
	m.ResolveDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m.CacheHits == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	if m.CacheMisses == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

// SetCacheSize records current cache occupancy
func (m *Metrics) SetCacheSize(ctx context.Context, size int) {
	if m.CacheSize == nil {
		return
	}
	m.CacheSize.Record(ctx, int64(size))
}

// RecordUpstreamCall records one upstream lookup
func (m *Metrics) RecordUpstreamCall(ctx context.Context, endpoint, status string, duration time.Duration) {
	if m.UpstreamCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.UpstreamCalls.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordBatchChunk records the size of one batch request
func (m *Metrics) RecordBatchChunk(ctx context.Context, size int) {
	if m.BatchChunkSize == nil {
		return
	}
	m.BatchChunkSize.Record(ctx, int64(size))
}

// SetCircuitBreakerState updates circuit breaker state gauge
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if m.CircuitBreakerState == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("service", service),
	))
}

// RecordError increments error counter
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m.Errors == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", errorType),
	))
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
