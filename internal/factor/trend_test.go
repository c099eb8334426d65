package factor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qfactor/internal/dataset"
)

func TestMACDDif(t *testing.T) {
	points := calc(t, "macd_dif", map[string]float64{"fast": 1, "slow": 2}, closeSeries(1, 2))

	// The seeded EMA recursion is defined from the first session.
	assert.True(t, points[0].Value.Valid)
	assert.InDelta(t, 0.0, points[0].Value.Float64, 1e-9)
	// fast EMA tracks the close exactly; slow EMA is 2/3*2 + 1/3*1.
	assert.InDelta(t, 1.0/3, points[1].Value.Float64, 1e-9)
}

func TestMACDDifFlatSeries(t *testing.T) {
	points := calc(t, "macd_dif", nil, closeSeries(7, 7, 7, 7))
	for i := range points {
		assert.True(t, points[i].Value.Valid)
		assert.InDelta(t, 0.0, points[i].Value.Float64, 1e-9)
	}
}

func TestMACDDea(t *testing.T) {
	points := calc(t, "macd_dea", map[string]float64{"fast": 1, "slow": 2, "signal": 2}, closeSeries(1, 2))

	assert.InDelta(t, 0.0, points[0].Value.Float64, 1e-9)
	assert.InDelta(t, 2.0/9, points[1].Value.Float64, 1e-9)
}

func TestATR(t *testing.T) {
	bars := []dataset.Bar{
		ohlc(0, 11, 12, 10, 11),
		ohlc(1, 12, 13, 11, 12),
		ohlc(2, 11, 12, 9, 10),
	}
	points := calc(t, "atr", map[string]float64{"window": 2}, bars)

	// True ranges are [2, 2, 3]: the last session's range itself exceeds
	// both gap terms.
	assert.True(t, points[0].Value.IsMissing())
	assert.InDelta(t, 2.0, points[1].Value.Float64, 1e-9)
	assert.InDelta(t, 2.5, points[2].Value.Float64, 1e-9)
}

func TestATRUsesGapAgainstPreviousClose(t *testing.T) {
	bars := []dataset.Bar{
		ohlc(0, 10, 11, 9, 10),
		// Gapped far above the previous close: TR = high - prevClose.
		ohlc(1, 15, 16, 15, 15),
	}
	points := calc(t, "atr", map[string]float64{"window": 2}, bars)
	assert.InDelta(t, (2.0+6.0)/2, points[1].Value.Float64, 1e-9)
}

func TestCCI(t *testing.T) {
	bars := []dataset.Bar{
		ohlc(0, 11, 12, 10, 11),
		ohlc(1, 12, 13, 11, 12),
		ohlc(2, 11, 12, 9, 10),
	}
	points := calc(t, "cci", map[string]float64{"window": 2}, bars)

	// Typical prices are [11, 12, 31/3].
	assert.True(t, points[0].Value.IsMissing())
	assert.InDelta(t, 200.0/3, points[1].Value.Float64, 1e-9)
	assert.InDelta(t, -200.0/3, points[2].Value.Float64, 1e-9)
}

func TestCCIFlatWindow(t *testing.T) {
	bars := []dataset.Bar{
		ohlc(0, 10, 10, 10, 10),
		ohlc(1, 10, 10, 10, 10),
	}
	points := calc(t, "cci", map[string]float64{"window": 2}, bars)
	assert.True(t, points[1].Value.IsMissing())
}

func TestADXTrendingMarket(t *testing.T) {
	bars := make([]dataset.Bar, 6)
	for i := range bars {
		base := 10 + float64(i)
		bars[i] = ohlc(i, base, base, base-1, base-0.5)
	}
	points := calc(t, "adx", map[string]float64{"window": 2}, bars)

	// A one-directional market pins DX, and so ADX, at 100. The first
	// defined index is 2*window-1.
	assertMissingUntil(t, points, 3)
	for i := 3; i < len(points); i++ {
		assert.InDelta(t, 100.0, points[i].Value.Float64, 1e-9)
	}
}

func TestDMA(t *testing.T) {
	points := calc(t, "dma", map[string]float64{"fast": 1, "slow": 2}, closeSeries(1, 2, 3))

	assert.True(t, points[0].Value.IsMissing())
	assert.InDelta(t, 0.5, points[1].Value.Float64, 1e-9)
	assert.InDelta(t, 0.5, points[2].Value.Float64, 1e-9)
}
