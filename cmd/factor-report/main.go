// Command factor-report scores persisted factors against realized
// forward returns and writes the results as CSV files, an optional
// workbook, and rows in the factor_analysis table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"qfactor/internal/analyzer"
	"qfactor/internal/config"
	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
	"qfactor/internal/infrastructure"
	"qfactor/internal/store"
)

func main() {
	factorList := flag.String("factors", "", "comma separated factor names to analyze (required)")
	period := flag.Int("period", 0, "forward return horizon in trading days (0 uses configuration)")
	numGroups := flag.Int("groups", 0, "quantile group count (0 uses configuration)")
	normalize := flag.String("normalize", "", "normalization: none, time_series or cross_section (empty uses configuration)")
	startStr := flag.String("start", "", "start date YYYY-MM-DD (empty leaves the range open)")
	endStr := flag.String("end", "", "end date YYYY-MM-DD (empty leaves the range open)")
	outDir := flag.String("out", "reports", "directory for CSV and workbook output")
	xlsx := flag.Bool("xlsx", false, "also write a combined xlsx workbook")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := infrastructure.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	factorNames := splitList(*factorList)
	if len(factorNames) == 0 {
		logger.Error("no factors selected, pass -factors")
		os.Exit(1)
	}

	dateRange, err := dataset.NewDateRange(*startStr, *endStr)
	if err != nil {
		logger.Error("invalid date range", "error", err)
		os.Exit(1)
	}

	normName := cfg.Analysis.Normalize
	if *normalize != "" {
		normName = *normalize
	}
	norm, err := analyzer.ParseNormalization(normName)
	if err != nil {
		logger.Error("invalid normalization", "error", err)
		os.Exit(1)
	}

	horizon := cfg.Analysis.ForwardPeriod
	if *period > 0 {
		horizon = *period
	}
	groupCount := cfg.Analysis.Groups
	if *numGroups > 0 {
		groupCount = *numGroups
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

	anl, err := analyzer.NewAnalyzer(db, analyzer.Options{
		Normalization: norm,
		RollingWindow: cfg.Analysis.RollingWindow,
	}, logger)
	if err != nil {
		logger.Error("failed to build analyzer", "error", err)
		os.Exit(1)
	}

	logger.InfoContext(ctx, "starting factor analysis",
		"factors", len(factorNames),
		"period", horizon,
		"groups", groupCount,
		"normalization", normName)

	var (
		summaries []dataset.AnalysisRow
		groupRows []analyzer.GroupReturn
		analyzed  []string
	)
	for _, name := range factorNames {
		summary, err := anl.AnalyzeFactor(ctx, name, horizon, dateRange)
		if err != nil {
			if qerrors.IsInsufficientData(err) {
				logger.WarnContext(ctx, "skipping factor without usable observations",
					"factor", name, "error", err)
				continue
			}
			logger.WarnContext(ctx, "factor analysis failed",
				"factor", name, "error", err)
			continue
		}
		summaries = append(summaries, summary)
		analyzed = append(analyzed, name)

		series, err := anl.AnalyzeICSeries(ctx, name, horizon, dateRange)
		if err != nil {
			logger.WarnContext(ctx, "IC series failed", "factor", name, "error", err)
		} else {
			seriesPath := filepath.Join(*outDir, fmt.Sprintf("ic_series_%s.csv", name))
			if err := analyzer.WriteICSeriesCSV(name, horizon, series, seriesPath); err != nil {
				logger.WarnContext(ctx, "failed to write IC series", "factor", name, "error", err)
			}
		}

		groups, err := anl.AnalyzeGroupReturns(ctx, name, horizon, groupCount, dateRange)
		if err != nil {
			logger.WarnContext(ctx, "group returns failed", "factor", name, "error", err)
		} else {
			groupRows = append(groupRows, groups...)
		}
	}

	if len(summaries) == 0 {
		logger.Error("no factors produced an analysis")
		os.Exit(1)
	}

	var matrix *analyzer.CorrelationMatrix
	if len(analyzed) >= 2 {
		matrix, err = anl.AnalyzeFactorCorrelation(ctx, analyzed, dateRange)
		if err != nil {
			logger.WarnContext(ctx, "factor correlation failed", "error", err)
			matrix = nil
		}
	}

	if err := anl.SaveAnalysis(ctx, summaries); err != nil {
		logger.Error("failed to persist analysis", "error", err)
		os.Exit(1)
	}

	summaryPath := filepath.Join(*outDir, "ic_summary.csv")
	if err := analyzer.WriteSummaryCSV(summaries, summaryPath); err != nil {
		logger.Error("failed to write IC summary", "error", err)
		os.Exit(1)
	}

	if len(groupRows) > 0 {
		groupPath := filepath.Join(*outDir, "group_returns.csv")
		if err := analyzer.WriteGroupReturnsCSV(groupRows, groupPath); err != nil {
			logger.Error("failed to write group returns", "error", err)
			os.Exit(1)
		}
	}

	if *xlsx {
		workbookPath := filepath.Join(*outDir, "factor_report.xlsx")
		if err := analyzer.WriteWorkbook(summaries, groupRows, matrix, workbookPath); err != nil {
			logger.Error("failed to write workbook", "error", err)
			os.Exit(1)
		}
	}

	logger.InfoContext(ctx, "factor analysis complete",
		"analyzed", len(analyzed),
		"skipped", len(factorNames)-len(analyzed),
		"output_dir", *outDir)
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
