package factor

import (
	"qfactor/internal/dataset"
)

// buildOffsetChange is the W-session percentage change of one column:
// v[i]/v[i-W] - 1. Offset semantics, so the first W dates are missing, and
// a zero base has no defined change.
func buildOffsetChange(get func(dataset.Bar) float64) func(params) computeFunc {
	return func(p params) computeFunc {
		window := p.window()
		return func(bars []dataset.Bar) []dataset.Point {
			points := newPoints(bars)
			values := column(bars, get)
			for i := window; i < len(values); i++ {
				base := values[i-window]
				if base == 0 {
					continue
				}
				points[i].Value = dataset.NewValue(values[i]/base - 1)
			}
			return points
		}
	}
}

// buildVolRank is the percentile rank of the latest volume within its
// trailing window.
func buildVolRank(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		volumes := column(bars, volumeOf)
		for i := window - 1; i < len(volumes); i++ {
			windowData := volumes[i-window+1 : i+1]
			points[i].Value = dataset.NewValue(percentileRank(windowData))
		}
		return points
	}
}

func buildVolMean(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		volumes := column(bars, volumeOf)
		for i := window - 1; i < len(volumes); i++ {
			windowData := volumes[i-window+1 : i+1]
			points[i].Value = dataset.NewValue(calculateMean(windowData))
		}
		return points
	}
}

func buildVolStd(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		volumes := column(bars, volumeOf)
		for i := window - 1; i < len(volumes); i++ {
			windowData := volumes[i-window+1 : i+1]
			mean := calculateMean(windowData)
			points[i].Value = dataset.NewValue(calculateSampleStd(windowData, mean))
		}
		return points
	}
}

// buildVolToMean relates today's volume to its trailing mean. A zero mean
// means the whole window was untraded; the ratio is undefined there.
func buildVolToMean(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		volumes := column(bars, volumeOf)
		for i := window - 1; i < len(volumes); i++ {
			windowData := volumes[i-window+1 : i+1]
			mean := calculateMean(windowData)
			if mean == 0 {
				continue
			}
			points[i].Value = dataset.NewValue(volumes[i] / mean)
		}
		return points
	}
}

// buildVolAmp is the window's (max-min)/min volume amplitude.
func buildVolAmp(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		volumes := column(bars, volumeOf)
		for i := window - 1; i < len(volumes); i++ {
			windowData := volumes[i-window+1 : i+1]
			min, max := windowData[0], windowData[0]
			for _, v := range windowData[1:] {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
			if min == 0 {
				continue
			}
			points[i].Value = dataset.NewValue((max - min) / min)
		}
		return points
	}
}

// buildVolAccum is cumulative volume from the start of the supplied
// series. The accumulator resets only at series start, so per-stock
// computation can never leak across stocks.
func buildVolAccum(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		var accum float64
		for i, bar := range bars {
			accum += bar.Volume
			points[i].Value = dataset.NewValue(accum)
		}
		return points
	}
}
