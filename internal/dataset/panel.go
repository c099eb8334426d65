package dataset

import (
	"sort"
	"time"

	qerrors "qfactor/internal/errors"
)

// GroupByStock splits a panel into per-stock series sorted by date
// ascending. Input order does not matter; output order within a stock is
// deterministic.
func GroupByStock(bars []Bar) map[string][]Bar {
	result := make(map[string][]Bar)
	for _, bar := range bars {
		result[bar.StockID] = append(result[bar.StockID], bar)
	}
	for stockID := range result {
		SortBars(result[stockID])
	}
	return result
}

// SortBars orders bars by date ascending in place.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
}

// StockIDs returns the panel's distinct stock ids in ascending order.
func StockIDs(bars []Bar) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, bar := range bars {
		if !seen[bar.StockID] {
			seen[bar.StockID] = true
			ids = append(ids, bar.StockID)
		}
	}
	sort.Strings(ids)
	return ids
}

// CheckDuplicateDates verifies a single stock's date-sorted series has one
// row per trading day. Duplicate dates are a data-integrity fault, never
// resolved silently.
func CheckDuplicateDates(stockID string, bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if bars[i].Date.Equal(bars[i-1].Date) {
			return &qerrors.DataIntegrityError{
				Op:      "check panel",
				Key:     stockID + "/" + bars[i].Date.Format(DateFormat),
				Message: "duplicate date for stock",
			}
		}
	}
	return nil
}

// DeduplicateBars keeps the last occurrence of each (stock, date) pair,
// preserving first-seen key order. This is an ingestion-edge repair for
// provider retries; inside the engine duplicates are an error instead.
func DeduplicateBars(bars []Bar) []Bar {
	type key struct {
		stockID string
		date    time.Time
	}
	index := make(map[key]int)
	var result []Bar
	for _, bar := range bars {
		k := key{stockID: bar.StockID, date: bar.Date}
		if pos, ok := index[k]; ok {
			result[pos] = bar
			continue
		}
		index[k] = len(result)
		result = append(result, bar)
	}
	return result
}

// ValidateFactorRows checks the shape of a factor-value panel before it is
// handed to storage: every row carries the expected factor name, a stock
// id and a date, and no (stock, date) pair appears twice.
func ValidateFactorRows(factorName string, rows []FactorRow) error {
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.StockID == "" {
			return &qerrors.DataIntegrityError{
				Op:      "validate factor panel",
				Message: "row without stock id",
				Value:   factorName,
			}
		}
		if row.Date.IsZero() {
			return &qerrors.DataIntegrityError{
				Op:      "validate factor panel",
				Key:     row.StockID,
				Message: "row without date",
			}
		}
		if row.FactorName != factorName {
			return &qerrors.DataIntegrityError{
				Op:      "validate factor panel",
				Key:     row.StockID + "/" + row.Date.Format(DateFormat),
				Message: "factor name mismatch",
				Value:   row.FactorName,
			}
		}
		key := row.StockID + "/" + row.Date.Format(DateFormat)
		if seen[key] {
			return &qerrors.DataIntegrityError{
				Op:      "validate factor panel",
				Key:     key,
				Message: "duplicate (stock, date) pair",
				Value:   factorName,
			}
		}
		seen[key] = true
	}
	return nil
}

// DropMissing filters out rows whose value is missing. Persistence uses
// this; in-memory results keep their missing rows.
func DropMissing(rows []FactorRow) []FactorRow {
	result := make([]FactorRow, 0, len(rows))
	for _, row := range rows {
		if row.Value.Valid {
			result = append(result, row)
		}
	}
	return result
}
