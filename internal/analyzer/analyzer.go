// Package analyzer scores computed factors against realized forward
// returns: per-date rank IC and its summary statistics, quantile-grouped
// return curves, and inter-factor correlation. All statistics treat
// missing values as first-class and never manufacture numbers from
// undefined arithmetic.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
	"qfactor/internal/store"
)

// DefaultRollingWindow is the trailing window for time-series
// normalization when the caller does not set one.
const DefaultRollingWindow = 20

// Options tunes an Analyzer.
type Options struct {
	// Normalization is applied to every loaded factor panel before
	// scoring. Empty selects NormalizeNone.
	Normalization Normalization
	// RollingWindow sizes the time-series normalization window. Zero
	// selects DefaultRollingWindow.
	RollingWindow int
}

// Analyzer evaluates persisted factors through the Panel Store.
type Analyzer struct {
	store  store.Store
	logger *slog.Logger
	norm   Normalization
	window int
}

// NewAnalyzer validates the options and returns an Analyzer bound to the
// given store.
func NewAnalyzer(st store.Store, opts Options, logger *slog.Logger) (*Analyzer, error) {
	if st == nil {
		return nil, &qerrors.ConfigurationError{Field: "store", Message: "analyzer needs a panel store"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	norm := opts.Normalization
	if norm == "" {
		norm = NormalizeNone
	}
	switch norm {
	case NormalizeNone, NormalizeTimeSeries, NormalizeCrossSection:
	default:
		return nil, &qerrors.ConfigurationError{
			Field:   "normalization",
			Message: "unknown normalization",
			Value:   string(norm),
		}
	}

	window := opts.RollingWindow
	if window == 0 {
		window = DefaultRollingWindow
	}
	if norm == NormalizeTimeSeries && window < 2 {
		return nil, &qerrors.ConfigurationError{
			Field:   "rolling_window",
			Message: "time-series normalization window must be at least 2",
			Value:   window,
		}
	}

	return &Analyzer{store: st, logger: logger, norm: norm, window: window}, nil
}

// AnalyzeFactor loads one factor's panel and the price panel for the
// range, computes per-date rank ICs against period-session forward
// returns, and aggregates them into the summary row. An empty factor
// panel fails fast; a panel whose dates all lack joint observations is
// unavailable as an InsufficientDataError.
func (a *Analyzer) AnalyzeFactor(ctx context.Context, factorName string, period int, dateRange dataset.DateRange) (dataset.AnalysisRow, error) {
	series, err := a.icSeries(ctx, factorName, period, dateRange)
	if err != nil {
		return dataset.AnalysisRow{}, err
	}

	row, err := SummarizeIC(factorName, period, series)
	if err != nil {
		return dataset.AnalysisRow{}, err
	}

	a.logger.InfoContext(ctx, "factor analyzed",
		"factor", factorName, "period", period,
		"dates", len(series),
		"mean_ic", row.MeanIC, "ir", row.IR.String())
	return row, nil
}

// AnalyzeICSeries is AnalyzeFactor without the aggregation: the dated IC
// sequence itself, for reporting.
func (a *Analyzer) AnalyzeICSeries(ctx context.Context, factorName string, period int, dateRange dataset.DateRange) ([]dataset.Point, error) {
	return a.icSeries(ctx, factorName, period, dateRange)
}

func (a *Analyzer) icSeries(ctx context.Context, factorName string, period int, dateRange dataset.DateRange) ([]dataset.Point, error) {
	factorRows, returns, err := a.loadAligned(ctx, factorName, period, dateRange)
	if err != nil {
		return nil, err
	}
	return RankICSeries(factorRows, returns), nil
}

// AnalyzeGroupReturns buckets each date's cross-section into numGroups
// quantile groups by factor value and reports per-group mean forward
// returns. No qualifying date means the analysis is unavailable.
func (a *Analyzer) AnalyzeGroupReturns(ctx context.Context, factorName string, period, numGroups int, dateRange dataset.DateRange) ([]GroupReturn, error) {
	factorRows, returns, err := a.loadAligned(ctx, factorName, period, dateRange)
	if err != nil {
		return nil, err
	}

	rows, err := GroupReturns(factorName, period, numGroups, factorRows, returns)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &qerrors.InsufficientDataError{
			Op:   "group returns for " + factorName,
			Need: numGroups,
			Got:  0,
		}
	}

	a.logger.InfoContext(ctx, "group returns analyzed",
		"factor", factorName, "period", period, "groups", numGroups,
		"dates", len(rows)/numGroups)
	return rows, nil
}

// AnalyzeFactorCorrelation loads every named factor's panel and computes
// their pairwise Pearson correlation over listwise-joined rows.
func (a *Analyzer) AnalyzeFactorCorrelation(ctx context.Context, factorNames []string, dateRange dataset.DateRange) (*CorrelationMatrix, error) {
	if len(factorNames) < 2 {
		return nil, &qerrors.ConfigurationError{
			Field:   "factor_names",
			Message: "correlation needs at least 2 factors",
			Value:   len(factorNames),
		}
	}

	rowsByName := make(map[string][]dataset.FactorRow, len(factorNames))
	for _, name := range factorNames {
		rows, err := a.loadFactor(ctx, name, dateRange)
		if err != nil {
			return nil, err
		}
		rowsByName[name] = rows
	}

	matrix, err := Correlate(factorNames, rowsByName)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "factor correlation analyzed",
		"factors", len(factorNames), "aligned_rows", matrix.Rows)
	return matrix, nil
}

// SaveAnalysis upserts summary rows into the factor_analysis table.
func (a *Analyzer) SaveAnalysis(ctx context.Context, rows []dataset.AnalysisRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := a.store.Save(ctx, store.TableFactorAnalysis, rows, store.ModeReplace); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// loadAligned loads a factor panel (normalized per the analyzer options)
// together with forward returns computed from the same range's prices.
func (a *Analyzer) loadAligned(ctx context.Context, factorName string, period int, dateRange dataset.DateRange) ([]dataset.FactorRow, []dataset.ForwardReturn, error) {
	factorRows, err := a.loadFactor(ctx, factorName, dateRange)
	if err != nil {
		return nil, nil, err
	}

	bars, err := a.store.LoadStockData(ctx, dateRange)
	if err != nil {
		return nil, nil, err
	}
	returns, err := ForwardReturns(bars, period)
	if err != nil {
		return nil, nil, err
	}
	return factorRows, returns, nil
}

// loadFactor loads one factor's rows and applies the configured
// normalization. An empty panel means the factor name is unknown to the
// store, or the range holds no data; either way the request fails fast.
func (a *Analyzer) loadFactor(ctx context.Context, factorName string, dateRange dataset.DateRange) ([]dataset.FactorRow, error) {
	rows, err := a.store.LoadFactorData(ctx, factorName, dateRange)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &qerrors.ConfigurationError{
			Field:   "factor_name",
			Message: "no factor data in range",
			Value:   factorName,
		}
	}

	switch a.norm {
	case NormalizeTimeSeries:
		return NormalizeTS(rows, a.window)
	case NormalizeCrossSection:
		return NormalizeCS(rows)
	default:
		return rows, nil
	}
}
