package factor

import (
	"math"

	"qfactor/internal/dataset"
)

const (
	// TradingDaysPerYear annualizes daily return statistics.
	TradingDaysPerYear = 252
	// DefaultRiskFree is the annualized risk-free rate used by the Sharpe
	// factor unless overridden.
	DefaultRiskFree = 0.03
)

// buildDailyReturn is the single-session return against the stored
// previous close.
func buildDailyReturn(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			points[i].Value = bar.DailyReturn()
		}
		return points
	}
}

// buildDailyAmplitude is the session's (high-low)/close swing.
func buildDailyAmplitude(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			if bar.Close == 0 {
				continue
			}
			points[i].Value = dataset.NewValue((bar.High - bar.Low) / bar.Close)
		}
		return points
	}
}

// buildVolatility is the annualized sample standard deviation of the
// trailing W consecutive-close returns. The first return does not exist,
// so the first non-missing value lands at price index W.
func buildVolatility(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		rets := returnsFromCloses(column(bars, closeOf))
		for i := window; i < len(bars); i++ {
			w := returnWindow(rets, i, window)
			if w == nil {
				continue
			}
			std := calculateSampleStd(w, calculateMean(w))
			points[i].Value = dataset.NewValue(std * math.Sqrt(TradingDaysPerYear))
		}
		return points
	}
}

// buildDownsideRisk is the annualized root mean square of the window's
// negative returns. A window with no losses has zero downside risk.
func buildDownsideRisk(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		rets := returnsFromCloses(column(bars, closeOf))
		for i := window; i < len(bars); i++ {
			w := returnWindow(rets, i, window)
			if w == nil {
				continue
			}
			var sumSquares float64
			var count int
			for _, r := range w {
				if r < 0 {
					sumSquares += r * r
					count++
				}
			}
			if count == 0 {
				points[i].Value = dataset.NewValue(0)
				continue
			}
			risk := math.Sqrt(sumSquares/float64(count)) * math.Sqrt(TradingDaysPerYear)
			points[i].Value = dataset.NewValue(risk)
		}
		return points
	}
}

// buildMaxDrawdown is the deepest peak-to-trough loss within the close
// window, always <= 0.
func buildMaxDrawdown(p params) computeFunc {
	window := p.window()
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		closes := column(bars, closeOf)
		for i := window - 1; i < len(closes); i++ {
			windowData := closes[i-window+1 : i+1]
			runningMax := windowData[0]
			worst := 0.0
			defined := runningMax > 0
			for _, c := range windowData {
				if c > runningMax {
					runningMax = c
				}
				if runningMax <= 0 {
					defined = false
					break
				}
				if dd := (c - runningMax) / runningMax; dd < worst {
					worst = dd
				}
			}
			if !defined {
				continue
			}
			points[i].Value = dataset.NewValue(worst)
		}
		return points
	}
}

// buildSharpe is the annualized excess return over annualized volatility
// for the trailing return window. Zero variance leaves the ratio
// undefined.
func buildSharpe(p params) computeFunc {
	window := p.window()
	riskFree := p["risk_free"]
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		rets := returnsFromCloses(column(bars, closeOf))
		for i := window; i < len(bars); i++ {
			w := returnWindow(rets, i, window)
			if w == nil {
				continue
			}
			mean := calculateMean(w)
			std := calculateSampleStd(w, mean)
			if std == 0 {
				continue
			}
			sharpe := (mean*TradingDaysPerYear - riskFree) / (std * math.Sqrt(TradingDaysPerYear))
			points[i].Value = dataset.NewValue(sharpe)
		}
		return points
	}
}

// buildMoment builds the standardized population moment factors: order 3
// is skewness, order 4 is excess kurtosis.
func buildMoment(order int) func(params) computeFunc {
	return func(p params) computeFunc {
		window := p.window()
		return func(bars []dataset.Bar) []dataset.Point {
			points := newPoints(bars)
			rets := returnsFromCloses(column(bars, closeOf))
			for i := window; i < len(bars); i++ {
				w := returnWindow(rets, i, window)
				if w == nil {
					continue
				}
				mean := calculateMean(w)
				std := calculatePopulationStd(w, mean)
				if std == 0 {
					continue
				}
				var sum float64
				for _, r := range w {
					sum += math.Pow((r-mean)/std, float64(order))
				}
				moment := sum / float64(len(w))
				if order == 4 {
					moment -= 3
				}
				points[i].Value = dataset.NewValue(moment)
			}
			return points
		}
	}
}
