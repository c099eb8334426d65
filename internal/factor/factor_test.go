package factor

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

func tradingDay(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// closeSeries builds a single-stock series from closes; the other columns
// stay consistent but uninteresting.
func closeSeries(closes ...float64) []dataset.Bar {
	bars := make([]dataset.Bar, len(closes))
	for i, c := range closes {
		preClose := c
		if i > 0 {
			preClose = closes[i-1]
		}
		bars[i] = dataset.Bar{
			StockID:  "TEST",
			Date:     tradingDay(i),
			Open:     c,
			High:     c * 1.02,
			Low:      c * 0.98,
			Close:    c,
			PreClose: preClose,
			Volume:   1000,
			Amount:   1000 * c,
		}
	}
	return bars
}

// volumeSeries builds a single-stock series from volumes with flat prices.
func volumeSeries(volumes ...float64) []dataset.Bar {
	bars := make([]dataset.Bar, len(volumes))
	for i, v := range volumes {
		bars[i] = dataset.Bar{
			StockID:  "TEST",
			Date:     tradingDay(i),
			Open:     10,
			High:     10.2,
			Low:      9.8,
			Close:    10,
			PreClose: 10,
			Volume:   v,
			Amount:   v * 10,
		}
	}
	return bars
}

func ohlc(i int, open, high, low, close float64) dataset.Bar {
	return dataset.Bar{
		StockID:  "TEST",
		Date:     tradingDay(i),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		PreClose: close,
		Volume:   1000,
		Amount:   1000 * close,
	}
}

// calc builds a factor and runs it over the series.
func calc(t *testing.T, kind string, overrides map[string]float64, bars []dataset.Bar) []dataset.Point {
	t.Helper()
	f, err := New(kind, overrides)
	require.NoError(t, err)
	points, err := f.Calculate(bars)
	require.NoError(t, err)
	require.Len(t, points, len(bars))
	return points
}

// assertMissingUntil asserts every point before idx is missing and the
// point at idx is not.
func assertMissingUntil(t *testing.T, points []dataset.Point, idx int) {
	t.Helper()
	for i := 0; i < idx; i++ {
		assert.True(t, points[i].Value.IsMissing(), "index %d should be missing", i)
	}
	require.Less(t, idx, len(points))
	assert.True(t, points[idx].Value.Valid, "index %d should be valid", idx)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("alpha_of_alphas", nil)
	require.Error(t, err)
	assert.True(t, qerrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "unknown factor kind")
}

func TestNewRejectsUnknownParameter(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		overrides map[string]float64
	}{
		{name: "window on plain column", kind: "close", overrides: map[string]float64{"window": 5}},
		{name: "typo", kind: "price_mean", overrides: map[string]float64{"windw": 5}},
		{name: "foreign param", kind: "rsi", overrides: map[string]float64{"risk_free": 0.02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.overrides)
			require.Error(t, err)
			assert.True(t, qerrors.IsConfiguration(err))
		})
	}
}

func TestNewParameterValidation(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		overrides map[string]float64
		wantErr   bool
	}{
		{name: "fractional window", kind: "price_mean", overrides: map[string]float64{"window": 2.5}, wantErr: true},
		{name: "zero window", kind: "price_mean", overrides: map[string]float64{"window": 0}, wantErr: true},
		{name: "negative window", kind: "price_mean", overrides: map[string]float64{"window": -3}, wantErr: true},
		{name: "deviation window below 2", kind: "rsi", overrides: map[string]float64{"window": 1}, wantErr: true},
		{name: "fast above slow", kind: "macd", overrides: map[string]float64{"fast": 30}, wantErr: true},
		{name: "zero signal", kind: "macd", overrides: map[string]float64{"signal": 0}, wantErr: true},
		{name: "fractional risk free is fine", kind: "sharpe", overrides: map[string]float64{"risk_free": 0.025}},
		{name: "window 1 offset change", kind: "momentum", overrides: map[string]float64{"window": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.overrides)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, qerrors.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCanonicalNames(t *testing.T) {
	tests := []struct {
		kind      string
		overrides map[string]float64
		want      string
	}{
		{kind: "close", want: "close"},
		{kind: "price_mean", want: "price_mean_20"},
		{kind: "momentum", overrides: map[string]float64{"window": 5}, want: "momentum_5"},
		{kind: "vol_change", want: "vol_change_1"},
		{kind: "macd", want: "macd"},
		{kind: "vol_accum", want: "vol_accum"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f, err := New(tt.kind, tt.overrides)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Name())
		})
	}
}

func TestNewNamedOverridesName(t *testing.T) {
	f, err := NewNamed("my_mean", "price_mean", map[string]float64{"window": 10})
	require.NoError(t, err)
	assert.Equal(t, "my_mean", f.Name())
	assert.Equal(t, 10, f.Window())
	assert.Equal(t, FamilyPrice, f.Family())
}

func TestDefaultFactorsCatalog(t *testing.T) {
	factors := DefaultFactors()
	require.Len(t, factors, 35)

	seen := make(map[string]bool)
	families := make(map[Family]int)
	for _, f := range factors {
		assert.False(t, seen[f.Name()], "duplicate name %s", f.Name())
		seen[f.Name()] = true
		families[f.Family()]++
	}

	assert.Equal(t, 11, families[FamilyPrice])
	assert.Equal(t, 6, families[FamilyMomentum])
	assert.Equal(t, 10, families[FamilyVolume])
	assert.Equal(t, 8, families[FamilyVolatility])

	// Reporting order starts with price and ends with volatility.
	assert.Equal(t, "close", factors[0].Name())
	assert.Equal(t, "kurtosis_20", factors[len(factors)-1].Name())
	assert.True(t, seen["momentum_20"])
	assert.True(t, seen["rsi_14"])
	assert.True(t, seen["vol_change_1"])
	assert.True(t, seen["sharpe_20"])
}

func TestExtendedFactorsCatalog(t *testing.T) {
	factors := ExtendedFactors()
	require.Len(t, factors, 11)

	families := make(map[Family]int)
	for _, f := range factors {
		families[f.Family()]++
	}
	assert.Equal(t, 6, families[FamilyTrend])
	assert.Equal(t, 5, families[FamilyPattern])
}

func TestConfiguredFactors(t *testing.T) {
	names := func(factors []Factor) []string {
		out := make([]string, len(factors))
		for i, f := range factors {
			out[i] = f.Name()
		}
		return out
	}

	t.Run("core catalog", func(t *testing.T) {
		factors, err := ConfiguredFactors(nil, false)
		require.NoError(t, err)
		assert.Len(t, factors, 35)
	})

	t.Run("with extended families", func(t *testing.T) {
		factors, err := ConfiguredFactors(nil, true)
		require.NoError(t, err)
		assert.Len(t, factors, 46)
	})

	t.Run("override replaces in place", func(t *testing.T) {
		factors, err := ConfiguredFactors(map[string]int{"price_mean": 10}, false)
		require.NoError(t, err)
		require.Len(t, factors, 35)

		got := names(factors)
		assert.NotContains(t, got, "price_mean_20")
		assert.Equal(t, "price_mean_10", got[8], "override keeps the catalog position")
	})

	t.Run("absent kind appended", func(t *testing.T) {
		factors, err := ConfiguredFactors(map[string]int{"atr": 20}, false)
		require.NoError(t, err)
		require.Len(t, factors, 36)
		assert.Equal(t, "atr_20", factors[35].Name())
	})

	t.Run("windowless kind rejected", func(t *testing.T) {
		_, err := ConfiguredFactors(map[string]int{"close": 5}, false)
		require.Error(t, err)
		assert.True(t, qerrors.IsConfiguration(err))
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := ConfiguredFactors(map[string]int{"alpha_of_alphas": 5}, false)
		require.Error(t, err)
		assert.True(t, qerrors.IsConfiguration(err))
	})
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	assert.Len(t, kinds, 46)
	assert.True(t, sort.StringsAreSorted(kinds))
	assert.Contains(t, kinds, "rsi")
	assert.Contains(t, kinds, "evening_star_pattern")
}

func TestCalculateEmptySeries(t *testing.T) {
	f, err := New("close", nil)
	require.NoError(t, err)

	points, err := f.Calculate(nil)
	require.NoError(t, err)
	assert.Nil(t, points)
}

func TestCalculateRejectsCorruptSeries(t *testing.T) {
	f, err := New("close", nil)
	require.NoError(t, err)

	t.Run("mixed stock ids", func(t *testing.T) {
		bars := closeSeries(10, 11)
		bars[1].StockID = "OTHER"
		_, err := f.Calculate(bars)
		require.Error(t, err)
		assert.True(t, qerrors.IsDataIntegrity(err))
	})

	t.Run("duplicate dates", func(t *testing.T) {
		bars := closeSeries(10, 11)
		bars[1].Date = bars[0].Date
		_, err := f.Calculate(bars)
		require.Error(t, err)
		assert.True(t, qerrors.IsDataIntegrity(err))
	})

	t.Run("descending dates", func(t *testing.T) {
		bars := closeSeries(10, 11)
		bars[0].Date, bars[1].Date = bars[1].Date, bars[0].Date
		_, err := f.Calculate(bars)
		require.Error(t, err)
		assert.True(t, qerrors.IsDataIntegrity(err))
	})
}

func TestCalculateIsDeterministic(t *testing.T) {
	bars := closeSeries(10, 11, 12, 9, 13, 8, 14, 10)
	f, err := New("volatility", map[string]float64{"window": 3})
	require.NoError(t, err)

	first, err := f.Calculate(bars)
	require.NoError(t, err)
	second, err := f.Calculate(bars)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// Every catalog factor must emit exactly one aligned point per input bar,
// whatever its warm-up behavior.
func TestCatalogOutputAlignment(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 10 + float64(i%7)
	}
	bars := closeSeries(closes...)

	all := append(DefaultFactors(), ExtendedFactors()...)
	for _, f := range all {
		t.Run(f.Name(), func(t *testing.T) {
			points, err := f.Calculate(bars)
			require.NoError(t, err)
			require.Len(t, points, len(bars))
			for i := range points {
				assert.True(t, points[i].Date.Equal(bars[i].Date))
			}
		})
	}
}
