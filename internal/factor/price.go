package factor

import (
	"qfactor/internal/dataset"
)

// buildColumn emits a raw panel column unchanged (close, high, low, open,
// volume, amount).
func buildColumn(get func(dataset.Bar) float64) func(params) computeFunc {
	return func(params) computeFunc {
		return func(bars []dataset.Bar) []dataset.Point {
			points := newPoints(bars)
			for i, bar := range bars {
				points[i].Value = dataset.NewValue(get(bar))
			}
			return points
		}
	}
}

// buildAvgPrice is the session's (open+high+low+close)/4.
func buildAvgPrice(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			points[i].Value = dataset.NewValue((bar.Open + bar.High + bar.Low + bar.Close) / 4)
		}
		return points
	}
}

// buildVWAP is amount/volume. Suspended sessions trade no volume and have
// no average price.
func buildVWAP(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			if bar.Volume == 0 {
				continue
			}
			points[i].Value = dataset.NewValue(bar.Amount / bar.Volume)
		}
		return points
	}
}

func buildCloseOpenRatio(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			if bar.Open == 0 {
				continue
			}
			points[i].Value = dataset.NewValue(bar.Close / bar.Open)
		}
		return points
	}
}

func buildOpenCloseChange(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			if bar.Close == 0 {
				continue
			}
			points[i].Value = dataset.NewValue((bar.Open - bar.Close) / bar.Close)
		}
		return points
	}
}

// buildPriceMean is the rolling mean of close over the window.
func buildPriceMean(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		closes := column(bars, closeOf)
		for i := window - 1; i < len(closes); i++ {
			windowData := closes[i-window+1 : i+1]
			points[i].Value = dataset.NewValue(calculateMean(windowData))
		}
		return points
	}
}

// buildPriceRank is the percentile rank of the latest close within its
// trailing window, average ranks on ties.
func buildPriceRank(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		closes := column(bars, closeOf)
		for i := window - 1; i < len(closes); i++ {
			windowData := closes[i-window+1 : i+1]
			points[i].Value = dataset.NewValue(percentileRank(windowData))
		}
		return points
	}
}

// buildPriceDecay is a linearly weighted rolling mean of close, weights
// rising toward the most recent session.
func buildPriceDecay(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		closes := column(bars, closeOf)
		weightSum := float64(window*(window+1)) / 2
		for i := window - 1; i < len(closes); i++ {
			windowData := closes[i-window+1 : i+1]
			var weighted float64
			for j, v := range windowData {
				weighted += v * float64(j+1)
			}
			points[i].Value = dataset.NewValue(weighted / weightSum)
		}
		return points
	}
}
