package analyzer

import (
	"sort"
	"time"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// GroupReturn is one quantile bucket's mean forward return on one date.
// GroupIndex 0 holds the lowest factor values.
type GroupReturn struct {
	FactorName string    `json:"factor_name"`
	Period     int       `json:"period"`
	Date       time.Time `json:"date"`
	GroupIndex int       `json:"group_index"`
	MeanReturn float64   `json:"mean_return"`
	Stocks     int       `json:"stocks"`
}

// GroupReturns buckets each date's cross-section into numGroups
// contiguous quantile groups by ascending factor value and reports every
// bucket's mean forward return. Group sizes differ by at most one, with
// the larger buckets first; tied factor values keep their stock-id order.
// Dates with fewer joint pairs than groups are skipped.
func GroupReturns(factorName string, period, numGroups int, factorRows []dataset.FactorRow, returns []dataset.ForwardReturn) ([]GroupReturn, error) {
	if numGroups < 2 {
		return nil, &qerrors.ConfigurationError{
			Field:   "groups",
			Message: "grouping needs at least 2 groups",
			Value:   numGroups,
		}
	}

	type pair struct {
		factorValue   float64
		forwardReturn float64
	}

	factorByDate := make(map[string]map[string]float64)
	dates := make(map[string]time.Time)
	for _, row := range factorRows {
		if !row.Value.Valid {
			continue
		}
		key := dateKey(row.Date)
		if factorByDate[key] == nil {
			factorByDate[key] = make(map[string]float64)
			dates[key] = row.Date
		}
		factorByDate[key][row.StockID] = row.Value.Float64
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

	var out []GroupReturn
	for _, key := range keys {
		stocks := make([]string, 0, len(factorByDate[key]))
		for stockID := range factorByDate[key] {
			if _, ok := returnByDate[key][stockID]; ok {
				stocks = append(stocks, stockID)
			}
		}
		if len(stocks) < numGroups {
			continue
		}
		sort.Strings(stocks)

		pairs := make([]pair, len(stocks))
		for i, stockID := range stocks {
			pairs[i] = pair{
				factorValue:   factorByDate[key][stockID],
				forwardReturn: returnByDate[key][stockID],
			}
		}
		sort.SliceStable(pairs, func(i, j int) bool {
			return pairs[i].factorValue < pairs[j].factorValue
		})

		base := len(pairs) / numGroups
		rem := len(pairs) % numGroups
		start := 0
		for g := 0; g < numGroups; g++ {
			size := base
			if g < rem {
				size++
			}
			bucket := pairs[start : start+size]
			start += size

			var sum float64
			for _, p := range bucket {
				sum += p.forwardReturn
			}
			out = append(out, GroupReturn{
				FactorName: factorName,
				Period:     period,
				Date:       dates[key],
				GroupIndex: g,
				MeanReturn: sum / float64(size),
				Stocks:     size,
			})
		}
	}
	return out, nil
}
