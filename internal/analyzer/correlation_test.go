package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

func namedRow(name, stockID string, day int, value float64) dataset.FactorRow {
	row := factorRow(stockID, day, value)
	row.FactorName = name
	return row
}

func TestCorrelatePerfectPair(t *testing.T) {
	rowsByName := map[string][]dataset.FactorRow{
		"f1": {
			namedRow("f1", "A", 0, 1),
			namedRow("f1", "B", 0, 2),
			namedRow("f1", "C", 0, 3),
		},
		"f2": {
			namedRow("f2", "A", 0, 10),
			namedRow("f2", "B", 0, 20),
			namedRow("f2", "C", 0, 30),
		},
	}

	matrix, err := Correlate([]string{"f1", "f2"}, rowsByName)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, matrix.Factors)
	assert.Equal(t, 3, matrix.Rows)

	assert.InDelta(t, 1.0, matrix.At(0, 0).Float64, 1e-9)
	assert.InDelta(t, 1.0, matrix.At(0, 1).Float64, 1e-9)
	assert.InDelta(t, 1.0, matrix.At(1, 0).Float64, 1e-9)
	assert.InDelta(t, 1.0, matrix.At(1, 1).Float64, 1e-9)
}

func TestCorrelateNegativePair(t *testing.T) {
	rowsByName := map[string][]dataset.FactorRow{
		"f1": {
			namedRow("f1", "A", 0, 1),
			namedRow("f1", "B", 0, 2),
			namedRow("f1", "C", 0, 3),
		},
		"f2": {
			namedRow("f2", "A", 0, 5),
			namedRow("f2", "B", 0, 3),
			namedRow("f2", "C", 0, 1),
		},
	}

	matrix, err := Correlate([]string{"f1", "f2"}, rowsByName)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, matrix.At(0, 1).Float64, 1e-9)
	assert.InDelta(t, matrix.At(0, 1).Float64, matrix.At(1, 0).Float64, 1e-9, "matrix stays symmetric")
}

func TestCorrelateKnownValue(t *testing.T) {
	rowsByName := map[string][]dataset.FactorRow{
		"f1": {
			namedRow("f1", "A", 0, 1),
			namedRow("f1", "B", 0, 2),
			namedRow("f1", "C", 0, 3),
		},
		"f2": {
			namedRow("f2", "A", 0, 1),
			namedRow("f2", "B", 0, 3),
			namedRow("f2", "C", 0, 2),
		},
	}

	matrix, err := Correlate([]string{"f1", "f2"}, rowsByName)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, matrix.At(0, 1).Float64, 1e-9)
}

func TestCorrelateConstantFactor(t *testing.T) {
	rowsByName := map[string][]dataset.FactorRow{
		"f1": {
			namedRow("f1", "A", 0, 1),
			namedRow("f1", "B", 0, 2),
			namedRow("f1", "C", 0, 3),
		},
		"flat": {
			namedRow("flat", "A", 0, 7),
			namedRow("flat", "B", 0, 7),
			namedRow("flat", "C", 0, 7),
		},
	}

	matrix, err := Correlate([]string{"f1", "flat"}, rowsByName)
	require.NoError(t, err)

	// A zero-variance column has no correlation with anything, itself
	// included.
	assert.True(t, matrix.At(0, 0).Valid)
	assert.False(t, matrix.At(0, 1).Valid)
	assert.False(t, matrix.At(1, 0).Valid)
	assert.False(t, matrix.At(1, 1).Valid)
}

func TestCorrelateListwiseJoin(t *testing.T) {
	rowsByName := map[string][]dataset.FactorRow{
		"f1": {
			namedRow("f1", "A", 0, 1),
			namedRow("f1", "B", 0, 2),
			namedRow("f1", "C", 0, 3),
			namedRow("f1", "A", 1, 4),
		},
		"f2": {
			namedRow("f2", "A", 0, 2),
			namedRow("f2", "B", 0, 4),
			// C and day 1 never observed by f2
		},
	}

	matrix, err := Correlate([]string{"f1", "f2"}, rowsByName)
	require.NoError(t, err)
	assert.Equal(t, 2, matrix.Rows, "only jointly observed rows align")
	assert.InDelta(t, 1.0, matrix.At(0, 1).Float64, 1e-9)
}

func TestCorrelateMissingValuesLeaveTheJoin(t *testing.T) {
	f2c := namedRow("f2", "C", 0, 9)
	f2c.Value = dataset.Missing()
	rowsByName := map[string][]dataset.FactorRow{
		"f1": {
			namedRow("f1", "A", 0, 1),
			namedRow("f1", "B", 0, 2),
			namedRow("f1", "C", 0, 3),
		},
		"f2": {
			namedRow("f2", "A", 0, 2),
			namedRow("f2", "B", 0, 4),
			f2c,
		},
	}

	matrix, err := Correlate([]string{"f1", "f2"}, rowsByName)
	require.NoError(t, err)
	assert.Equal(t, 2, matrix.Rows)
}

func TestCorrelateTooFewJointRows(t *testing.T) {
	rowsByName := map[string][]dataset.FactorRow{
		"f1": {namedRow("f1", "A", 0, 1), namedRow("f1", "B", 0, 2)},
		"f2": {namedRow("f2", "A", 0, 2)},
	}

	_, err := Correlate([]string{"f1", "f2"}, rowsByName)
	require.Error(t, err)
	assert.True(t, qerrors.IsInsufficientData(err))
}

func TestCorrelateRejectsBadInput(t *testing.T) {
	rows := map[string][]dataset.FactorRow{"f1": {namedRow("f1", "A", 0, 1)}}

	_, err := Correlate([]string{"f1"}, rows)
	require.Error(t, err)
	assert.True(t, qerrors.IsConfiguration(err))

	_, err = Correlate([]string{"f1", "ghost"}, rows)
	require.Error(t, err)
	assert.True(t, qerrors.IsConfiguration(err))
}

func TestCorrelateThreeFactors(t *testing.T) {
	rowsByName := map[string][]dataset.FactorRow{
		"a": {namedRow("a", "A", 0, 1), namedRow("a", "B", 0, 2), namedRow("a", "C", 0, 3)},
		"b": {namedRow("b", "A", 0, 2), namedRow("b", "B", 0, 4), namedRow("b", "C", 0, 6)},
		"c": {namedRow("c", "A", 0, 3), namedRow("c", "B", 0, 2), namedRow("c", "C", 0, 1)},
	}

	matrix, err := Correlate([]string{"a", "b", "c"}, rowsByName)
	require.NoError(t, err)
	require.Len(t, matrix.Cells, 3)

	assert.InDelta(t, 1.0, matrix.At(0, 1).Float64, 1e-9)
	assert.InDelta(t, -1.0, matrix.At(0, 2).Float64, 1e-9)
	assert.InDelta(t, -1.0, matrix.At(1, 2).Float64, 1e-9)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0, matrix.At(i, i).Float64, 1e-9)
	}
}
