package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a point-in-time snapshot of the process, reported by
// the diagnostics endpoint and recorded as gauges during long batch runs.
type RuntimeStats struct {
	Goroutines  int       `json:"goroutines"`
	HeapAllocMB int64     `json:"heap_alloc_mb"`
	SysMB       int64     `json:"sys_mb"`
	GCCount     uint32    `json:"gc_count"`
	UptimeSec   float64   `json:"uptime_seconds"`
	Timestamp   time.Time `json:"timestamp"`
}

// RuntimeCollector samples runtime statistics on a fixed interval.
type RuntimeCollector struct {
	goroutines metric.Int64Gauge
	heapAlloc  metric.Int64Gauge
	startTime  time.Time
	interval   time.Duration
}

// NewRuntimeCollector builds the gauges on the given meter.
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	goroutines, err := meter.Int64Gauge(
		"process_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, err
	}

	heapAlloc, err := meter.Int64Gauge(
		"process_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeCollector{
		goroutines: goroutines,
		heapAlloc:  heapAlloc,
		startTime:  time.Now(),
		interval:   interval,
	}, nil
}

// Collect samples the runtime and records the gauges.
func (c *RuntimeCollector) Collect(ctx context.Context) RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := RuntimeStats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: int64(memStats.HeapAlloc) / 1024 / 1024,
		SysMB:       int64(memStats.Sys) / 1024 / 1024,
		GCCount:     memStats.NumGC,
		UptimeSec:   time.Since(c.startTime).Seconds(),
		Timestamp:   time.Now(),
	}

	c.goroutines.Record(ctx, int64(stats.Goroutines))
	c.heapAlloc.Record(ctx, int64(memStats.HeapAlloc))
	return stats
}

// Run samples on the collector's interval until the context ends.
func (c *RuntimeCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-ctx.Done():
			return
		}
	}
}
