// Package store implements the Panel Store: SQL-backed read and write
// access to the (stock, date)-indexed tables the pipeline shares. Reads
// are consistent snapshots; every Save call is one transaction.
package store

import (
	"context"

	"qfactor/internal/dataset"
)

// Table names of the persisted schema.
const (
	TableDailyData      = "daily_data"
	TableFactors        = "factors"
	TableFactorAnalysis = "factor_analysis"
)

// WriteMode selects how Save treats existing rows.
type WriteMode int

const (
	// ModeAppend inserts rows and fails on key conflicts.
	ModeAppend WriteMode = iota
	// ModeReplace upserts rows, replacing whole records per primary key.
	ModeReplace
)

func (m WriteMode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Store is the Panel Store contract the engine and analyzer consume. The
// core never assumes a specific storage engine beyond this interface.
type Store interface {
	// LoadStockData returns OHLCV rows inside the date range, ordered by
	// stock then date.
	LoadStockData(ctx context.Context, dateRange dataset.DateRange) ([]dataset.Bar, error)
	// LoadStockList returns the distinct stock ids present in daily_data.
	LoadStockList(ctx context.Context) ([]string, error)
	// Save writes rows to one table in a single transaction. The row slice
	// type must match the table: []dataset.Bar for daily_data,
	// []dataset.FactorRow for factors, []dataset.AnalysisRow for
	// factor_analysis.
	Save(ctx context.Context, table string, rows interface{}, mode WriteMode) error
	// LoadFactorData returns one factor's value rows inside the date
	// range, ordered by stock then date.
	LoadFactorData(ctx context.Context, factorName string, dateRange dataset.DateRange) ([]dataset.FactorRow, error)
}
