package analyzer

import (
	"fmt"
	"sort"
	"time"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// Normalization selects the preprocessing applied to a factor panel
// before scoring.
type Normalization string

const (
	// NormalizeNone scores raw factor values.
	NormalizeNone Normalization = "none"
	// NormalizeTimeSeries replaces each value with its z-score against the
	// stock's own trailing window.
	NormalizeTimeSeries Normalization = "time_series"
	// NormalizeCrossSection replaces each value with its z-score against
	// the same-date cross-section.
	NormalizeCrossSection Normalization = "cross_section"
)

// ParseNormalization maps a configuration string onto a Normalization.
func ParseNormalization(s string) (Normalization, error) {
	switch Normalization(s) {
	case NormalizeNone, NormalizeTimeSeries, NormalizeCrossSection:
		return Normalization(s), nil
	case "":
		return NormalizeNone, nil
	default:
		return "", &qerrors.ConfigurationError{
			Field:   "normalization",
			Message: fmt.Sprintf("must be one of %s, %s, %s", NormalizeNone, NormalizeTimeSeries, NormalizeCrossSection),
			Value:   s,
		}
	}
}

// NormalizeTS replaces each factor value with its z-score against a
// trailing window of the stock's own history. The first window-1 rows per
// stock are missing, as is any row whose window holds fewer than 2 valid
// values or has zero dispersion. Output is sorted by stock then date.
func NormalizeTS(rows []dataset.FactorRow, window int) ([]dataset.FactorRow, error) {
	if window < 2 {
		return nil, &qerrors.ConfigurationError{
			Field:   "window",
			Message: "normalization window must be at least 2",
			Value:   window,
		}
	}

	byStock, order, err := groupRowsByStock(rows)
	if err != nil {
		return nil, err
	}

	out := make([]dataset.FactorRow, 0, len(rows))
	for _, stockID := range order {
		series := byStock[stockID]
		for i, row := range series {
			normalized := row
			normalized.Value = dataset.Missing()
			if i >= window-1 && row.Value.Valid {
				var windowValues []float64
				for _, prev := range series[i-window+1 : i+1] {
					if prev.Value.Valid {
						windowValues = append(windowValues, prev.Value.Float64)
					}
				}
				if len(windowValues) >= 2 {
					m := mean(windowValues)
					if std := sampleStd(windowValues, m); std != 0 {
						normalized.Value = dataset.NewValue((row.Value.Float64 - m) / std)
					}
				}
			}
			out = append(out, normalized)
		}
	}
	return out, nil
}

// NormalizeCS replaces each factor value with its z-score against the
// same-date cross-section. A date with fewer than 2 valid values, or with
// zero dispersion, normalizes to all-missing. Output is sorted by stock
// then date.
func NormalizeCS(rows []dataset.FactorRow) ([]dataset.FactorRow, error) {
	byDate := make(map[string][]int)
	seen := make(map[string]bool)
	for i, row := range rows {
		key := row.StockID + "/" + dateKey(row.Date)
		if seen[key] {
			return nil, &qerrors.DataIntegrityError{
				Op:      "normalize cross-section",
				Key:     key,
				Message: "duplicate (stock, date) pair",
			}
		}
		seen[key] = true
		byDate[dateKey(row.Date)] = append(byDate[dateKey(row.Date)], i)
	}

	out := make([]dataset.FactorRow, len(rows))
	copy(out, rows)
	for _, indices := range byDate {
		var crossSection []float64
		for _, i := range indices {
			if rows[i].Value.Valid {
				crossSection = append(crossSection, rows[i].Value.Float64)
			}
		}

		m := mean(crossSection)
		std := sampleStd(crossSection, m)
		for _, i := range indices {
			out[i].Value = dataset.Missing()
			if len(crossSection) >= 2 && std != 0 && rows[i].Value.Valid {
				out[i].Value = dataset.NewValue((rows[i].Value.Float64 - m) / std)
			}
		}
	}

	sortRows(out)
	return out, nil
}

// groupRowsByStock splits factor rows into date-sorted per-stock series
// and rejects duplicate dates within a stock.
func groupRowsByStock(rows []dataset.FactorRow) (map[string][]dataset.FactorRow, []string, error) {
	byStock := make(map[string][]dataset.FactorRow)
	for _, row := range rows {
		byStock[row.StockID] = append(byStock[row.StockID], row)
	}

	order := make([]string, 0, len(byStock))
	for stockID := range byStock {
		order = append(order, stockID)
	}
	sort.Strings(order)

	for _, stockID := range order {
		series := byStock[stockID]
		sort.Slice(series, func(i, j int) bool {
			return series[i].Date.Before(series[j].Date)
		})
		for i := 1; i < len(series); i++ {
			if series[i].Date.Equal(series[i-1].Date) {
				return nil, nil, &qerrors.DataIntegrityError{
					Op:      "group factor rows",
					Key:     stockID + "/" + dateKey(series[i].Date),
					Message: "duplicate date in factor series",
				}
			}
		}
		byStock[stockID] = series
	}
	return byStock, order, nil
}

func sortRows(rows []dataset.FactorRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StockID != rows[j].StockID {
			return rows[i].StockID < rows[j].StockID
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}

// dateKey renders a date in the canonical panel form used for joins.
func dateKey(t time.Time) string {
	return t.Format(dataset.DateFormat)
}
