package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricExporter records counters, gauges and histograms by name and ships
// them over OTLP, or to an injected reader.
type MetricExporter struct {
	meterProvider    *sdkmetric.MeterProvider
	meter            metric.Meter
	resource         *resource.Resource
	reader           sdkmetric.Reader
	setGlobal        bool
	serviceName      string
	serviceNamespace string
	serviceVersion   string
	otlpEndpoint     string
	otlpGRPCEndpoint string
	environment      string
	interval         time.Duration

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

// Option is a function that configures a MetricExporter
type Option func(*MetricExporter)

// WithServiceName sets the service name
func WithServiceName(name string) Option {
	return func(mc *MetricExporter) {
		mc.serviceName = name
	}
}

func WithServiceNamespace(namespace string) Option {
	return func(mc *MetricExporter) {
		mc.serviceNamespace = namespace
	}
}

func WithServiceVersion(version string) Option {
	return func(mc *MetricExporter) {
		mc.serviceVersion = version
	}
}

// WithOTLPEndpoint sets the OTLP HTTP endpoint
func WithOTLPEndpoint(endpoint string) Option {
	return func(mc *MetricExporter) {
		mc.otlpEndpoint = endpoint
	}
}

// WithOTLPGRPCEndpoint sets the OTLP gRPC endpoint. It wins over HTTP.
func WithOTLPGRPCEndpoint(endpoint string) Option {
	return func(mc *MetricExporter) {
		mc.otlpGRPCEndpoint = endpoint
	}
}

func WithEnvironment(env string) Option {
	return func(mc *MetricExporter) {
		mc.environment = env
	}
}

// WithExportInterval sets how often the periodic reader pushes over OTLP.
func WithExportInterval(d time.Duration) Option {
	return func(mc *MetricExporter) {
		if d > 0 {
			mc.interval = d
		}
	}
}

// WithReader replaces the OTLP pipeline with r, e.g. a ManualReader in tests.
func WithReader(r sdkmetric.Reader) Option {
	return func(mc *MetricExporter) {
		mc.reader = r
	}
}

// WithGlobal controls whether the meter provider is installed as the otel
// global. Default: true.
func WithGlobal(enabled bool) Option {
	return func(mc *MetricExporter) {
		mc.setGlobal = enabled
	}
}

func defaultConfig() *MetricExporter {
	return &MetricExporter{
		setGlobal:        true,
		serviceName:      "unknown-service",
		serviceNamespace: "default",
		serviceVersion:   "1.0.0",
		otlpEndpoint:     "localhost:4318",
		environment:      "development",
		interval:         10 * time.Second,
		counters:         map[string]metric.Int64Counter{},
		gauges:           map[string]metric.Float64Gauge{},
		histograms:       map[string]metric.Float64Histogram{},
	}
}

func NewMetricExporter(opts ...Option) (*MetricExporter, error) {
	mc := defaultConfig()
	for _, opt := range opts {
		opt(mc)
	}

	if mc.reader == nil && mc.otlpGRPCEndpoint == "" && mc.otlpEndpoint == "" {
		return nil, fmt.Errorf("OTLP HTTP endpoint is required when gRPC endpoint is not configured")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(mc.serviceName),
			semconv.ServiceNamespace(mc.serviceNamespace),
			semconv.ServiceVersion(mc.serviceVersion),
			semconv.DeploymentEnvironment(mc.environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mc.reader
	if reader == nil {
		var exporter sdkmetric.Exporter
		if mc.otlpGRPCEndpoint != "" {
			exporter, err = otlpmetricgrpc.New(context.Background(),
				otlpmetricgrpc.WithEndpoint(mc.otlpGRPCEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
			}
		} else {
			exporter, err = otlpmetrichttp.New(context.Background(),
				otlpmetrichttp.WithEndpoint(mc.otlpEndpoint),
				otlpmetrichttp.WithInsecure(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
			}
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(mc.interval))
	}

	mc.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	if mc.setGlobal {
		otel.SetMeterProvider(mc.meterProvider)
	}
	mc.meter = mc.meterProvider.Meter(mc.serviceName)
	mc.resource = res
	return mc, nil
}

// Close flushes and shuts down the meter provider.
func (mc *MetricExporter) Close(ctx context.Context) error {
	return mc.meterProvider.Shutdown(ctx)
}

func (mc *MetricExporter) RecordCounter(ctx context.Context, name, description, unit string, value int64, attributes map[string]string) error {
	mc.mu.Lock()
	counter, ok := mc.counters[name]
	if !ok {
		var err error
		counter, err = mc.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
		if err != nil {
			mc.mu.Unlock()
			return fmt.Errorf("failed to create counter: %w", err)
		}
		mc.counters[name] = counter
	}
	mc.mu.Unlock()

	counter.Add(ctx, value, metric.WithAttributes(toAttributes(attributes)...))
	return nil
}

// RecordGauge sets the current value of a gauge.
func (mc *MetricExporter) RecordGauge(ctx context.Context, name, description, unit string, value float64, attributes map[string]string) error {
	mc.mu.Lock()
	gauge, ok := mc.gauges[name]
	if !ok {
		var err error
		gauge, err = mc.meter.Float64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
		if err != nil {
			mc.mu.Unlock()
			return fmt.Errorf("failed to create gauge: %w", err)
		}
		mc.gauges[name] = gauge
	}
	mc.mu.Unlock()

	gauge.Record(ctx, value, metric.WithAttributes(toAttributes(attributes)...))
	return nil
}

func (mc *MetricExporter) RecordHistogram(ctx context.Context, name, description, unit string, value float64, attributes map[string]string) error {
	mc.mu.Lock()
	histogram, ok := mc.histograms[name]
	if !ok {
		var err error
		histogram, err = mc.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
		if err != nil {
			mc.mu.Unlock()
			return fmt.Errorf("failed to create histogram: %w", err)
		}
		mc.histograms[name] = histogram
	}
	mc.mu.Unlock()

	histogram.Record(ctx, value, metric.WithAttributes(toAttributes(attributes)...))
	return nil
}

func toAttributes(attributes map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
