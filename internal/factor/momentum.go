package factor

import (
	talib "github.com/markcheno/go-talib"

	"qfactor/internal/dataset"
)

// fillFromLookback copies an indicator series into points from the first
// index the indicator is defined at. The zero-filled warm-up prefix the
// indicator library emits must never be mistaken for data, so everything
// before the lookback stays missing, and non-finite outputs (flat-window
// divisions inside the indicator) collapse to missing via NewValue.
func fillFromLookback(points []dataset.Point, values []float64, lookback int) {
	for i := lookback; i < len(values); i++ {
		points[i].Value = dataset.NewValue(values[i])
	}
}

// buildRSI is Wilder's relative strength index over close.
func buildRSI(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		if len(bars) <= window {
			return points
		}
		rsi := talib.Rsi(column(bars, closeOf), window)
		fillFromLookback(points, rsi, window)
		return points
	}
}

// buildMACD is twice the MACD histogram (the fast/slow EMA spread minus
// its signal line), the conventional bar value.
func buildMACD(p params) computeFunc {
	fast := p.intOf("fast")
	slow := p.intOf("slow")
	signal := p.intOf("signal")
	lookback := slow - 1 + signal - 1
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		if len(bars) <= lookback {
			return points
		}
		_, _, hist := talib.Macd(column(bars, closeOf), fast, slow, signal)
		for i := lookback; i < len(hist); i++ {
			points[i].Value = dataset.NewValue(2 * hist[i])
		}
		return points
	}
}

// buildWilliamsR is Williams %R over the trailing window, in [-100, 0].
func buildWilliamsR(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		if len(bars) < window {
			return points
		}
		wr := talib.WillR(column(bars, highOf), column(bars, lowOf), column(bars, closeOf), window)
		fillFromLookback(points, wr, window-1)
		return points
	}
}

// buildStoch is the raw stochastic %K (fast D period 1 leaves it
// unsmoothed).
func buildStoch(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		if len(bars) < window {
			return points
		}
		fastK, _ := talib.StochF(column(bars, highOf), column(bars, lowOf), column(bars, closeOf),
			window, 1, talib.SMA)
		fillFromLookback(points, fastK, window-1)
		return points
	}
}

// buildROC is the W-session rate of change of close on the percent scale.
func buildROC(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		if len(bars) <= window {
			return points
		}
		roc := talib.Roc(column(bars, closeOf), window)
		fillFromLookback(points, roc, window)
		return points
	}
}
