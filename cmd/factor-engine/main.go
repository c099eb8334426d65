// Command factor-engine computes the configured factor catalog over the
// stored stock panel and persists the results through the panel store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"qfactor/internal/config"
	"qfactor/internal/dataset"
	"qfactor/internal/factor"
	"qfactor/internal/infrastructure"
	"qfactor/internal/store"
)

func main() {
	startStr := flag.String("start", "", "start date YYYY-MM-DD (empty leaves the range open)")
	endStr := flag.String("end", "", "end date YYYY-MM-DD (empty leaves the range open)")
	kinds := flag.String("kinds", "", "comma separated factor kinds (empty runs the configured catalog)")
	extended := flag.Bool("extended", false, "add the trend and pattern families to the catalog")
	workers := flag.Int("workers", 0, "concurrent factor computations (0 uses configuration)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := infrastructure.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	dateRange, err := dataset.NewDateRange(*startStr, *endStr)
	if err != nil {
		logger.Error("invalid date range", "error", err)
		os.Exit(1)
	}

	ctx := infrastructure.ContextWithRunID(context.Background())

	var (
		batchMetrics  factor.BatchMetrics
		engineMetrics *infrastructure.EngineMetrics
	)
	if cfg.Metrics.Enabled {
		providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
		if err != nil {
			logger.Error("failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer providers.Shutdown(context.Background())

		engineMetrics, err = infrastructure.NewEngineMetrics(providers.Meter)
		if err != nil {
			logger.Error("failed to build engine metrics", "error", err)
			os.Exit(1)
		}
		batchMetrics = engineMetrics

		collector, err := infrastructure.NewRuntimeCollector(providers.Meter, 30*time.Second)
		if err != nil {
			logger.Error("failed to build runtime collector", "error", err)
			os.Exit(1)
		}
		go collector.Run(ctx)

		diagnostics := infrastructure.NewDiagnostics(cfg.Metrics.Addr, providers.PrometheusHTTP, collector, logger)
		diagnostics.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			diagnostics.Shutdown(shutdownCtx)
		}()
	}

	factors, err := buildFactors(*kinds, *extended || cfg.Calculation.Extended, cfg.Calculation.Windows)
	if err != nil {
		logger.Error("invalid factor selection", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(ctx, store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	bars, err := db.LoadStockData(ctx, dateRange)
	if err != nil {
		logger.Error("failed to load stock data", "error", err)
		os.Exit(1)
	}
	if len(bars) == 0 {
		logger.Error("no stock data in range", "start", *startStr, "end", *endStr)
		os.Exit(1)
	}

	workerCount := cfg.Calculation.Workers
	if *workers > 0 {
		workerCount = *workers
	}

	mgr := factor.NewManager(db, factor.Options{Workers: workerCount, Metrics: batchMetrics}, logger)
	if err := mgr.Register(factors...); err != nil {
		logger.Error("failed to register factors", "error", err)
		os.Exit(1)
	}

	runCtx := ctx
	if cfg.Calculation.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Calculation.Timeout)
		defer cancel()
	}

	logger.InfoContext(runCtx, "starting factor run",
		"factors", len(factors),
		"stocks", len(dataset.StockIDs(bars)),
		"bars", len(bars),
		"workers", workerCount)

	started := time.Now()
	persisted, failures, err := runBatches(runCtx, mgr, bars, cfg.Calculation.BatchSize, logger)
	if engineMetrics != nil {
		engineMetrics.BatchCompleted(runCtx, time.Since(started))
	}
	if err != nil {
		logger.Error("factor run aborted", "error", err)
		os.Exit(1)
	}

	for _, failure := range failures {
		logger.WarnContext(runCtx, "factor failed",
			"factor", failure.FactorName, "error", failure.Err)
	}
	logger.InfoContext(runCtx, "factor run complete",
		"factors", len(factors),
		"failures", len(failures),
		"elapsed", time.Since(started))

	if persisted == 0 && len(failures) > 0 {
		os.Exit(1)
	}
}

// buildFactors resolves the factor selection: an explicit kind list, or
// the configured catalog. Window overrides from configuration apply to
// both paths.
func buildFactors(kindList string, extended bool, windows map[string]int) ([]factor.Factor, error) {
	if kindList == "" {
		return factor.ConfiguredFactors(windows, extended)
	}

	var factors []factor.Factor
	for _, kind := range splitList(kindList) {
		var overrides map[string]float64
		if w, ok := windows[kind]; ok {
			overrides = map[string]float64{"window": float64(w)}
		}
		f, err := factor.New(kind, overrides)
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, nil
}

// runBatches drives the engine over the panel in stock chunks so the
// in-flight result set stays bounded on large universes. Returns the
// number of factor store operations that persisted rows.
func runBatches(ctx context.Context, mgr *factor.Manager, bars []dataset.Bar, batchSize int, logger *slog.Logger) (int, []factor.Failure, error) {
	stockIDs := dataset.StockIDs(bars)
	if batchSize <= 0 || batchSize >= len(stockIDs) {
		return runChunk(ctx, mgr, bars)
	}

	groups := dataset.GroupByStock(bars)
	var (
		persisted int
		failures  []factor.Failure
	)
	for begin := 0; begin < len(stockIDs); begin += batchSize {
		end := begin + batchSize
		if end > len(stockIDs) {
			end = len(stockIDs)
		}

		var chunk []dataset.Bar
		for _, stockID := range stockIDs[begin:end] {
			chunk = append(chunk, groups[stockID]...)
		}

		n, chunkFailures, err := runChunk(ctx, mgr, chunk)
		persisted += n
		failures = append(failures, chunkFailures...)
		if err != nil {
			return persisted, failures, err
		}
		logger.InfoContext(ctx, "batch chunk complete",
			"stocks_done", end, "stocks_total", len(stockIDs))
	}
	return persisted, failures, nil
}

func runChunk(ctx context.Context, mgr *factor.Manager, chunk []dataset.Bar) (int, []factor.Failure, error) {
	results, failures := mgr.CalculateAll(ctx, chunk)
	stored, storeFailures, err := mgr.StoreAll(ctx, results)
	failures = append(failures, storeFailures...)
	return stored, failures, err
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
