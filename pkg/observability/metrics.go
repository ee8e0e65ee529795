package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics and Prometheus integration
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	// Engine metrics
	commandsTotal     metric.Int64Counter
	connectionsActive metric.Int64UpDownCounter
	batchesTotal      metric.Int64Counter
	batchDuration     metric.Float64Histogram
	clearedOrders     metric.Int64Counter
	tradedQuantity    metric.Int64Counter
	restingOrders     metric.Float64Gauge
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Namespace      string
	Enabled        bool
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	// Create Prometheus registry
	registry := prometheus.NewRegistry()

	// Create Prometheus exporter
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	// Create resource
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create meter provider
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	// Set global meter provider
	otel.SetMeterProvider(meterProvider)

	mp := &MetricsProvider{
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(cfg.ServiceName),
		registry:      registry,
	}

	if err := mp.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return mp, nil
}

// initializeMetrics creates all engine metrics
func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	mp.commandsTotal, err = mp.meter.Int64Counter(
		"commands_total",
		metric.WithDescription("Total number of ingested order commands"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create commands_total counter: %w", err)
	}

	mp.connectionsActive, err = mp.meter.Int64UpDownCounter(
		"connections_active",
		metric.WithDescription("Number of open order-entry connections"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create connections_active counter: %w", err)
	}

	mp.batchesTotal, err = mp.meter.Int64Counter(
		"batches_total",
		metric.WithDescription("Total number of batches, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create batches_total counter: %w", err)
	}

	mp.batchDuration, err = mp.meter.Float64Histogram(
		"batch_duration_seconds",
		metric.WithDescription("Batch computation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.00001, 0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch_duration histogram: %w", err)
	}

	mp.clearedOrders, err = mp.meter.Int64Counter(
		"cleared_orders_total",
		metric.WithDescription("Total number of fully cleared orders, by side"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cleared_orders_total counter: %w", err)
	}

	mp.tradedQuantity, err = mp.meter.Int64Counter(
		"traded_quantity_total",
		metric.WithDescription("Total quantity traded across all batches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create traded_quantity_total counter: %w", err)
	}

	mp.restingOrders, err = mp.meter.Float64Gauge(
		"resting_orders",
		metric.WithDescription("Number of resting orders, by side"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create resting_orders gauge: %w", err)
	}

	return nil
}

// RecordCommand records an ingested command
func (mp *MetricsProvider) RecordCommand(ctx context.Context, op, side string) {
	if mp.commandsTotal == nil {
		return
	}

	mp.commandsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("side", side),
	))
}

// ConnectionOpened increments the active connection count
func (mp *MetricsProvider) ConnectionOpened(ctx context.Context) {
	if mp.connectionsActive == nil {
		return
	}
	mp.connectionsActive.Add(ctx, 1)
}

// ConnectionClosed decrements the active connection count
func (mp *MetricsProvider) ConnectionClosed(ctx context.Context) {
	if mp.connectionsActive == nil {
		return
	}
	mp.connectionsActive.Add(ctx, -1)
}

// RecordBatch records the outcome of one batch
func (mp *MetricsProvider) RecordBatch(ctx context.Context, outcome string, duration time.Duration, clearedBids, clearedAsks int, qty uint32) {
	if mp.batchesTotal == nil {
		return
	}

	mp.batchesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	mp.batchDuration.Record(ctx, duration.Seconds())

	if qty > 0 {
		mp.clearedOrders.Add(ctx, int64(clearedBids), metric.WithAttributes(attribute.String("side", "bid")))
		mp.clearedOrders.Add(ctx, int64(clearedAsks), metric.WithAttributes(attribute.String("side", "ask")))
		mp.tradedQuantity.Add(ctx, int64(qty))
	}
}

// UpdateRestingOrders updates the per-side resting order gauges
func (mp *MetricsProvider) UpdateRestingOrders(ctx context.Context, bids, asks int) {
	if mp.restingOrders == nil {
		return
	}

	mp.restingOrders.Record(ctx, float64(bids), metric.WithAttributes(attribute.String("side", "bid")))
	mp.restingOrders.Record(ctx, float64(asks), metric.WithAttributes(attribute.String("side", "ask")))
}

// Handler returns the Prometheus scrape handler, or nil when metrics are
// disabled
func (mp *MetricsProvider) Handler() http.Handler {
	if mp.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.meterProvider == nil {
		return nil
	}
	return mp.meterProvider.Shutdown(ctx)
}
