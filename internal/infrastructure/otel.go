package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "qfactor"
	ServiceVersion = "1.0.0"
	MeterName      = "qfactor"
)

// OTelConfig holds the OpenTelemetry setup knobs.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders holds the initialized providers and the instruments built
// from them.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns the development defaults: metrics scraped by
// Prometheus, tracing off unless debugging.
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    env,
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  false,
		SampleRatio:    1.0,
	}
}

// InitializeOTel sets up tracing and metrics per the configuration and
// installs the global providers and propagators.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	providers := &OTelProviders{Logger: logger}

	if cfg.EnableTracing {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("initialize tracing: %w", err)
		}
	}

	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "telemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("tracing", cfg.EnableTracing),
		slog.Bool("metrics", cfg.EnableMetrics))

	return providers, nil
}

func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none":
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)

	providers.Logger.InfoContext(ctx, "tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))
	return nil
}

func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := prometheus.New()
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}

		providers.PrometheusHTTP = promhttp.Handler()

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)

		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetMeterProvider(mp)

	case "none":
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	providers.Logger.InfoContext(ctx, "metrics initialized",
		slog.String("exporter", cfg.MetricExporter))
	return nil
}

// Shutdown flushes and stops the providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}
	return nil
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// EngineMetrics holds the pipeline's counters and histograms. It
// satisfies the metrics sinks the factor manager and the provider client
// accept, so one instance covers the whole batch.
type EngineMetrics struct {
	factorsComputed  metric.Int64Counter
	factorFailures   metric.Int64Counter
	rowsWritten      metric.Int64Counter
	providerRequests metric.Int64Counter
	factorDuration   metric.Float64Histogram
	batchDuration    metric.Float64Histogram
}

// NewEngineMetrics builds the pipeline instruments on the given meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	factorsComputed, err := meter.Int64Counter(
		"factors_computed_total",
		metric.WithDescription("Total number of factors computed"),
	)
	if err != nil {
		return nil, err
	}

	factorFailures, err := meter.Int64Counter(
		"factor_failures_total",
		metric.WithDescription("Total number of factor computations that failed"),
	)
	if err != nil {
		return nil, err
	}

	rowsWritten, err := meter.Int64Counter(
		"rows_written_total",
		metric.WithDescription("Total factor value rows persisted to the store"),
	)
	if err != nil {
		return nil, err
	}

	providerRequests, err := meter.Int64Counter(
		"provider_requests_total",
		metric.WithDescription("Total market data provider requests"),
	)
	if err != nil {
		return nil, err
	}

	factorDuration, err := meter.Float64Histogram(
		"factor_compute_duration_seconds",
		metric.WithDescription("Per-factor computation duration over the universe"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		"batch_duration_seconds",
		metric.WithDescription("End-to-end batch run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		factorsComputed:  factorsComputed,
		factorFailures:   factorFailures,
		rowsWritten:      rowsWritten,
		providerRequests: providerRequests,
		factorDuration:   factorDuration,
		batchDuration:    batchDuration,
	}, nil
}

// FactorComputed records one completed factor computation.
func (m *EngineMetrics) FactorComputed(ctx context.Context, factorName string, rows int, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("factor", factorName))
	m.factorsComputed.Add(ctx, 1, attrs)
	m.factorDuration.Record(ctx, seconds, attrs)
}

// FactorFailed records one failed factor computation.
func (m *EngineMetrics) FactorFailed(ctx context.Context, factorName string) {
	m.factorFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("factor", factorName)))
}

// RowsStored records factor value rows persisted for one factor.
func (m *EngineMetrics) RowsStored(ctx context.Context, factorName string, rows int) {
	m.rowsWritten.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("factor", factorName)))
}

// RequestCompleted records one provider call by outcome status.
func (m *EngineMetrics) RequestCompleted(ctx context.Context, status string) {
	m.providerRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// BatchCompleted records a whole batch run's duration.
func (m *EngineMetrics) BatchCompleted(ctx context.Context, duration time.Duration) {
	m.batchDuration.Record(ctx, duration.Seconds())
}
