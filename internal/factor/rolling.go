package factor

import (
	"math"

	"qfactor/internal/dataset"
)

// newPoints allocates an all-missing point series aligned to bars. Kernels
// fill in the values they can compute; warm-up dates stay missing.
func newPoints(bars []dataset.Bar) []dataset.Point {
	points := make([]dataset.Point, len(bars))
	for i, bar := range bars {
		points[i].Date = bar.Date
	}
	return points
}

// column extracts one float column from a series.
func column(bars []dataset.Bar, get func(dataset.Bar) float64) []float64 {
	values := make([]float64, len(bars))
	for i, bar := range bars {
		values[i] = get(bar)
	}
	return values
}

func closeOf(b dataset.Bar) float64  { return b.Close }
func openOf(b dataset.Bar) float64   { return b.Open }
func highOf(b dataset.Bar) float64   { return b.High }
func lowOf(b dataset.Bar) float64    { return b.Low }
func volumeOf(b dataset.Bar) float64 { return b.Volume }
func amountOf(b dataset.Bar) float64 { return b.Amount }

func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateSampleStd is the n-1 standard deviation around a precomputed
// mean. Windows shorter than 2 have no sample deviation and yield 0.
func calculateSampleStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// calculatePopulationStd is the n-denominator standard deviation used by
// the higher-moment factors.
func calculatePopulationStd(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// calculateEMA is the adjust-free exponential moving average recursion,
// alpha = 2/(span+1), seeded with the first observation.
func calculateEMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// percentileRank is the average-tie percentile rank of the window's last
// element within the window, matching rank(pct=true) of the final row.
func percentileRank(window []float64) float64 {
	last := window[len(window)-1]
	var less, equal int
	for _, v := range window {
		switch {
		case v < last:
			less++
		case v == last:
			equal++
		}
	}
	avgRank := float64(less) + float64(equal+1)/2
	return avgRank / float64(len(window))
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// returnsFromCloses derives single-session returns from consecutive
// closes: element i is the return realized at price index i+1. Entries
// with a non-positive base close are NaN and poison any window containing
// them (the window result becomes missing, never a fabricated number).
func returnsFromCloses(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	rets := make([]float64, len(closes)-1)
	for i := 0; i < len(closes)-1; i++ {
		if closes[i] <= 0 {
			rets[i] = math.NaN()
			continue
		}
		rets[i] = closes[i+1]/closes[i] - 1
	}
	return rets
}

// returnWindow selects the W returns realized up to and including price
// index i, or nil when the window is unfilled or contains an undefined
// return.
func returnWindow(rets []float64, priceIndex, window int) []float64 {
	// rets[j] is realized at price index j+1
	if priceIndex < window {
		return nil
	}
	w := rets[priceIndex-window : priceIndex]
	if !allFinite(w) {
		return nil
	}
	return w
}
