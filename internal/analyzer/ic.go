package analyzer

import (
	"sort"
	"time"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// RankICSeries computes the per-date information coefficient: the
// Spearman rank correlation between factor values and forward returns
// across the stocks holding both on that date. Every date present in the
// factor panel yields a point; dates with fewer than 2 joint pairs, or a
// degenerate all-tied cross-section, are missing. Points ascend by date.
func RankICSeries(factorRows []dataset.FactorRow, returns []dataset.ForwardReturn) []dataset.Point {
	factorByDate := make(map[string]map[string]float64)
	dates := make(map[string]time.Time)
	for _, row := range factorRows {
		key := dateKey(row.Date)
		if _, ok := dates[key]; !ok {
			dates[key] = row.Date
			factorByDate[key] = make(map[string]float64)
		}
		if row.Value.Valid {
			factorByDate[key][row.StockID] = row.Value.Float64
		}
	}

	returnByDate := make(map[string]map[string]float64)
	for _, record := range returns {
		if !record.Return.Valid {
			continue
		}
		key := dateKey(record.Date)
		if returnByDate[key] == nil {
			returnByDate[key] = make(map[string]float64)
		}
		returnByDate[key][record.StockID] = record.Return.Float64
	}

	keys := make([]string, 0, len(dates))
	for key := range dates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	points := make([]dataset.Point, 0, len(keys))
	for _, key := range keys {
		point := dataset.Point{Date: dates[key], Value: dataset.Missing()}

		stocks := make([]string, 0, len(factorByDate[key]))
		for stockID := range factorByDate[key] {
			if _, ok := returnByDate[key][stockID]; ok {
				stocks = append(stocks, stockID)
			}
		}
		if len(stocks) >= 2 {
			sort.Strings(stocks)
			factorValues := make([]float64, len(stocks))
			returnValues := make([]float64, len(stocks))
			for i, stockID := range stocks {
				factorValues[i] = factorByDate[key][stockID]
				returnValues[i] = returnByDate[key][stockID]
			}
			if ic, ok := spearman(factorValues, returnValues); ok {
				point.Value = dataset.NewValue(ic)
			}
		}
		points = append(points, point)
	}
	return points
}

// SummarizeIC aggregates an IC series into the persisted summary row:
// mean, population standard deviation, information ratio and the share of
// positive dates, all over valid ICs only. A series with no valid IC has
// no summary.
func SummarizeIC(factorName string, period int, series []dataset.Point) (dataset.AnalysisRow, error) {
	var valid []float64
	for _, point := range series {
		if point.Value.Valid {
			valid = append(valid, point.Value.Float64)
		}
	}
	if len(valid) == 0 {
		return dataset.AnalysisRow{}, &qerrors.InsufficientDataError{
			Op:   "summarize ic for " + factorName,
			Need: 1,
			Got:  0,
		}
	}

	m := mean(valid)
	std := populationStd(valid, m)
	positive := 0
	for _, ic := range valid {
		if ic > 0 {
			positive++
		}
	}

	row := dataset.AnalysisRow{
		FactorName:     factorName,
		Period:         period,
		MeanIC:         m,
		StdIC:          std,
		IR:             dataset.Missing(),
		PositiveICRate: float64(positive) / float64(len(valid)),
	}
	if std != 0 {
		row.IR = dataset.NewValue(m / std)
	}
	return row, nil
}
