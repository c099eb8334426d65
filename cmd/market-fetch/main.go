// Command market-fetch pulls daily OHLCV bars from the market data
// provider into the panel store, one-shot or on a cron schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"qfactor/internal/config"
	"qfactor/internal/dataset"
	"qfactor/internal/infrastructure"
	"qfactor/internal/provider"
	"qfactor/internal/store"
)

func main() {
	startStr := flag.String("start", "", "start date YYYY-MM-DD (empty leaves the range open)")
	endStr := flag.String("end", "", "end date YYYY-MM-DD (empty leaves the range open)")
	stocks := flag.String("stocks", "", "comma separated stock ids (empty fetches the provider stock list)")
	schedule := flag.String("schedule", "", "cron expression for repeated pulls (empty runs once)")
	replace := flag.Bool("replace", false, "upsert bars instead of appending (for re-pulls over stored ranges)")
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

	client, err := provider.NewClient(cfg.Provider, nil, logger)
	if err != nil {
		logger.Error("failed to build provider client", "error", err)
		os.Exit(1)
	}

	mode := store.ModeAppend
	if *replace {
		mode = store.ModeReplace
	}
	stockIDs := splitList(*stocks)

	if *schedule == "" {
		if err := fetchOnce(ctx, client, db, stockIDs, dateRange, mode, logger); err != nil {
			logger.Error("market data pull failed", "error", err)
			os.Exit(1)
		}
		return
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(*schedule, func() {
		runCtx := infrastructure.ContextWithRunID(context.Background())
		if err := fetchOnce(runCtx, client, db, stockIDs, dateRange, mode, logger); err != nil {
			logger.Error("scheduled pull failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("invalid cron schedule", "error", err, "schedule", *schedule)
		os.Exit(1)
	}

	scheduler.Start()
	logger.Info("scheduler started", "schedule", *schedule)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("shutting down scheduler")
	<-scheduler.Stop().Done()
}

// fetchOnce pulls the universe once and persists the cleaned bars.
func fetchOnce(ctx context.Context, client *provider.Client, db *store.DB, stockIDs []string, dateRange dataset.DateRange, mode store.WriteMode, logger *slog.Logger) error {
	started := time.Now()

	ids := stockIDs
	if len(ids) == 0 {
		var err error
		ids, err = client.FetchStockList(ctx)
		if err != nil {
			return fmt.Errorf("fetch stock list: %w", err)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no stocks to fetch")
	}

	logger.InfoContext(ctx, "starting market data pull",
		"stocks", len(ids), "mode", mode.String())

	bars, noData, err := client.FetchUniverse(ctx, ids, dateRange)
	if err != nil {
		return err
	}

	// Provider retries can hand back overlapping rows; last write wins.
	bars = dataset.DeduplicateBars(bars)

	if len(bars) > 0 {
		if err := db.Save(ctx, store.TableDailyData, bars, mode); err != nil {
			return fmt.Errorf("persist bars: %w", err)
		}
	}

	if len(noData) > 0 {
		logger.WarnContext(ctx, "stocks without data",
			"count", len(noData), "stocks", strings.Join(noData, ","))
	}
	logger.InfoContext(ctx, "market data pull complete",
		"bars", len(bars),
		"stocks_no_data", len(noData),
		"elapsed", time.Since(started))
	return nil
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
