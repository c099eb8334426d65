package analyzer

import (
	"sort"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// CorrelationMatrix is the pairwise correlation of factor values over
// their jointly observed (stock, date) rows. Cells are missing where the
// correlation is undefined, such as for a constant factor.
type CorrelationMatrix struct {
	Factors []string
	Cells   [][]dataset.Value
	Rows    int // aligned observations behind every cell
}

// At returns the correlation between the i-th and j-th factors.
func (m *CorrelationMatrix) At(i, j int) dataset.Value {
	return m.Cells[i][j]
}

// Correlate inner-joins the given factor panels on (stock, date), keeping
// only rows where every factor is valid, and computes the Pearson matrix
// over the aligned columns. Fewer than 2 aligned rows leaves the whole
// matrix undefined.
func Correlate(names []string, rowsByName map[string][]dataset.FactorRow) (*CorrelationMatrix, error) {
	if len(names) < 2 {
		return nil, &qerrors.ConfigurationError{
			Field:   "factor_names",
			Message: "correlation needs at least 2 factors",
			Value:   len(names),
		}
	}
	for _, name := range names {
		if _, ok := rowsByName[name]; !ok {
			return nil, &qerrors.ConfigurationError{
				Field:   "factor_names",
				Message: "no panel loaded for factor",
				Value:   name,
			}
		}
	}

	// valuesByName[name][rowKey] holds the factor's valid observations.
	valuesByName := make(map[string]map[string]float64, len(names))
	for _, name := range names {
		observations := make(map[string]float64)
		for _, row := range rowsByName[name] {
			if row.Value.Valid {
				observations[row.StockID+"/"+dateKey(row.Date)] = row.Value.Float64
			}
		}
		valuesByName[name] = observations
	}

	// Listwise join: a row survives only if every factor observed it.
	var joined []string
	for key := range valuesByName[names[0]] {
		all := true
		for _, name := range names[1:] {
			if _, ok := valuesByName[name][key]; !ok {
				all = false
				break
			}
		}
		if all {
			joined = append(joined, key)
		}
	}
	if len(joined) < 2 {
		return nil, &qerrors.InsufficientDataError{
			Op:   "correlate factors",
			Need: 2,
			Got:  len(joined),
		}
	}
	sort.Strings(joined)

	columns := make([][]float64, len(names))
	for i, name := range names {
		column := make([]float64, len(joined))
		for j, key := range joined {
			column[j] = valuesByName[name][key]
		}
		columns[i] = column
	}

	matrix := &CorrelationMatrix{
		Factors: append([]string(nil), names...),
		Cells:   make([][]dataset.Value, len(names)),
		Rows:    len(joined),
	}
	for i := range names {
		matrix.Cells[i] = make([]dataset.Value, len(names))
	}
	for i := 0; i < len(names); i++ {
		for j := i; j < len(names); j++ {
			cell := dataset.Missing()
			if r, ok := pearson(columns[i], columns[j]); ok {
				cell = dataset.NewValue(r)
			}
			matrix.Cells[i][j] = cell
			matrix.Cells[j][i] = cell
		}
	}
	return matrix, nil
}
