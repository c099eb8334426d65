package factor

import (
	"math"

	"qfactor/internal/dataset"
)

// buildMACDDif is the fast/slow EMA spread (DIF line). The adjust-free
// EMA recursion is defined from the first observation, so the series has
// no warm-up missing prefix.
func buildMACDDif(p params) computeFunc {
	fast := p.intOf("fast")
	slow := p.intOf("slow")
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		closes := column(bars, closeOf)
		fastEMA := calculateEMA(closes, fast)
		slowEMA := calculateEMA(closes, slow)
		for i := range points {
			points[i].Value = dataset.NewValue(fastEMA[i] - slowEMA[i])
		}
		return points
	}
}

// buildMACDDea is the signal line: the EMA of the DIF spread.
func buildMACDDea(p params) computeFunc {
	fast := p.intOf("fast")
	slow := p.intOf("slow")
	signal := p.intOf("signal")
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		closes := column(bars, closeOf)
		fastEMA := calculateEMA(closes, fast)
		slowEMA := calculateEMA(closes, slow)
		dif := make([]float64, len(closes))
		for i := range closes {
			dif[i] = fastEMA[i] - slowEMA[i]
		}
		dea := calculateEMA(dif, signal)
		for i := range points {
			points[i].Value = dataset.NewValue(dea[i])
		}
		return points
	}
}

// trueRanges computes the true-range series: max of the session range and
// the gaps against the previous close. The first session has no previous
// close and falls back to its own range.
func trueRanges(bars []dataset.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, bar := range bars {
		if i == 0 {
			tr[i] = bar.High - bar.Low
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(bar.High-bar.Low,
			math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
	}
	return tr
}

// buildATR is the rolling mean of true range (the simple-average ATR
// variant).
func buildATR(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		tr := trueRanges(bars)
		for i := window - 1; i < len(tr); i++ {
			windowData := tr[i-window+1 : i+1]
			points[i].Value = dataset.NewValue(calculateMean(windowData))
		}
		return points
	}
}

// buildCCI is the commodity channel index over typical price: the current
// deviation from the window mean, scaled by 0.015 times the window's mean
// absolute deviation. A flat window has no deviation to scale by.
func buildCCI(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		tp := make([]float64, len(bars))
		for i, bar := range bars {
			tp[i] = (bar.High + bar.Low + bar.Close) / 3
		}
		for i := window - 1; i < len(tp); i++ {
			windowData := tp[i-window+1 : i+1]
			mean := calculateMean(windowData)
			var absDev float64
			for _, v := range windowData {
				absDev += math.Abs(v - mean)
			}
			absDev /= float64(len(windowData))
			if absDev == 0 {
				continue
			}
			points[i].Value = dataset.NewValue((tp[i] - mean) / (0.015 * absDev))
		}
		return points
	}
}

// buildADX is the average directional index with simple-average smoothing:
// directional movements against true range give the two DIs, their
// normalized spread is DX, and ADX is the rolling mean of DX. The first
// defined value lands at index 2W-1.
func buildADX(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		n := len(bars)
		if n < 2 {
			return points
		}
		tr := trueRanges(bars)

		plusDM := make([]float64, n)
		minusDM := make([]float64, n)
		for i := 1; i < n; i++ {
			upMove := bars[i].High - bars[i-1].High
			downMove := bars[i-1].Low - bars[i].Low
			if upMove > downMove && upMove > 0 {
				plusDM[i] = upMove
			}
			if downMove > upMove && downMove > 0 {
				minusDM[i] = downMove
			}
		}

		// dx[i] is defined once a full DM window (which excludes index 0)
		// and a nonzero ATR are available.
		dx := make([]float64, n)
		dxDefined := make([]bool, n)
		for i := window; i < n; i++ {
			atr := calculateMean(tr[i-window+1 : i+1])
			if atr == 0 {
				continue
			}
			plusDI := 100 * calculateMean(plusDM[i-window+1:i+1]) / atr
			minusDI := 100 * calculateMean(minusDM[i-window+1:i+1]) / atr
			if plusDI+minusDI == 0 {
				continue
			}
			dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
			dxDefined[i] = true
		}

		for i := 2*window - 1; i < n; i++ {
			defined := true
			for j := i - window + 1; j <= i; j++ {
				if !dxDefined[j] {
					defined = false
					break
				}
			}
			if !defined {
				continue
			}
			points[i].Value = dataset.NewValue(calculateMean(dx[i-window+1 : i+1]))
		}
		return points
	}
}

// buildDMA is the spread between a fast and a slow moving average of
// close.
func buildDMA(p params) computeFunc {
	fast := p.intOf("fast")
	slow := p.intOf("slow")
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		closes := column(bars, closeOf)
		for i := slow - 1; i < len(closes); i++ {
			fastMean := calculateMean(closes[i-fast+1 : i+1])
			slowMean := calculateMean(closes[i-slow+1 : i+1])
			points[i].Value = dataset.NewValue(fastMean - slowMean)
		}
		return points
	}
}
