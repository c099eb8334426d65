package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"qfactor/internal/factor"
)

// EngineMetrics must plug straight into the factor manager.
var _ factor.BatchMetrics = (*EngineMetrics)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testMeter returns a meter with no reader attached, so instruments can
// be exercised without touching the process-wide Prometheus registry.
func testMeter() metric.Meter {
	return sdkmetric.NewMeterProvider().Meter("test")
}

func TestDefaultOTelConfig(t *testing.T) {
	cfg := DefaultOTelConfig()

	assert.Equal(t, ServiceName, cfg.ServiceName)
	assert.Equal(t, ServiceVersion, cfg.ServiceVersion)
	assert.True(t, cfg.EnableMetrics)
	assert.False(t, cfg.EnableTracing)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}

func TestInitializeOTelDisabled(t *testing.T) {
	cfg := &OTelConfig{
		ServiceName:    "test-service",
		ServiceVersion: "v0",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
		EnableMetrics:  false,
		EnableTracing:  false,
	}

	providers, err := InitializeOTel(cfg, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.Tracer)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.Meter)
	assert.Nil(t, providers.PrometheusHTTP)

	assert.NoError(t, providers.Shutdown(context.Background()))
}

// The only test that builds the real Prometheus exporter: the exporter
// registers with the process-wide default registry, so a second instance
// in the same binary would collide at scrape time.
func TestInitializeOTelPrometheus(t *testing.T) {
	cfg := &OTelConfig{
		ServiceName:    "test-service",
		ServiceVersion: "v0",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  false,
	}

	providers, err := InitializeOTel(cfg, discardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	require.NotNil(t, providers.MeterProvider)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.PrometheusHTTP)
	assert.Nil(t, providers.TracerProvider)

	metrics, err := NewEngineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.FactorComputed(ctx, "rsi_14", 120, 0.05)
	metrics.RowsStored(ctx, "rsi_14", 120)

	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "factors_computed_total")
	assert.Contains(t, string(body), "rows_written_total")
}

func TestInitializeOTelStdoutTracing(t *testing.T) {
	cfg := &OTelConfig{
		ServiceName:    "test-service",
		ServiceVersion: "v0",
		Environment:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "none",
		EnableMetrics:  false,
		EnableTracing:  true,
		SampleRatio:    1.0,
	}

	providers, err := InitializeOTel(cfg, discardLogger())
	require.NoError(t, err)

	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.Tracer)

	_, span := providers.Tracer.Start(context.Background(), "test-batch")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestInitializeOTelRejectsUnknownExporters(t *testing.T) {
	t.Run("trace", func(t *testing.T) {
		cfg := &OTelConfig{
			ServiceName:    "test-service",
			ServiceVersion: "v0",
			TraceExporter:  "otlp",
			MetricExporter: "none",
			EnableTracing:  true,
		}
		_, err := InitializeOTel(cfg, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported trace exporter")
	})

	t.Run("metric", func(t *testing.T) {
		cfg := &OTelConfig{
			ServiceName:    "test-service",
			ServiceVersion: "v0",
			TraceExporter:  "none",
			MetricExporter: "statsd",
			EnableMetrics:  true,
		}
		_, err := InitializeOTel(cfg, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported metric exporter")
	})
}

func TestEngineMetricsRecording(t *testing.T) {
	metrics, err := NewEngineMetrics(testMeter())
	require.NoError(t, err)
	require.NotNil(t, metrics)

	// Without a reader these are no-op pipelines; the point is that every
	// method accepts its inputs without blowing up.
	ctx := context.Background()
	metrics.FactorComputed(ctx, "momentum_20", 500, 1.25)
	metrics.FactorFailed(ctx, "macd")
	metrics.RowsStored(ctx, "momentum_20", 500)
	metrics.RequestCompleted(ctx, "ok")
	metrics.RequestCompleted(ctx, "error")
	metrics.BatchCompleted(ctx, 3*time.Second)
}

func TestRuntimeCollectorCollect(t *testing.T) {
	collector, err := NewRuntimeCollector(testMeter(), time.Minute)
	require.NoError(t, err)

	stats := collector.Collect(context.Background())

	assert.Greater(t, stats.Goroutines, 0)
	assert.GreaterOrEqual(t, stats.HeapAllocMB, int64(0))
	assert.Greater(t, stats.SysMB, int64(0))
	assert.GreaterOrEqual(t, stats.UptimeSec, 0.0)
	assert.False(t, stats.Timestamp.IsZero())
}

func TestRuntimeCollectorRunStopsOnCancel(t *testing.T) {
	collector, err := NewRuntimeCollector(testMeter(), 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop on context cancellation")
	}
}
