package factor

import (
	"math"

	"qfactor/internal/dataset"
)

// Candlestick pattern factors emit signal values: 1 (or -1 for bearish
// gaps) when the pattern forms, 0 otherwise. Sessions without enough
// history to test the pattern are 0, not missing, matching the signal
// convention of the rest of the pattern family.

// buildGapPattern flags opening gaps: +1 above the previous high, -1
// below the previous low.
func buildGapPattern(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			signal := 0.0
			if i > 0 {
				switch {
				case bar.Open > bars[i-1].High:
					signal = 1
				case bar.Open < bars[i-1].Low:
					signal = -1
				}
			}
			points[i].Value = dataset.NewValue(signal)
		}
		return points
	}
}

// buildHammerPattern flags hammers: a small body in the top 40% of the
// session range with a lower shadow at least twice the body.
func buildHammerPattern(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			body := math.Abs(bar.Close - bar.Open)
			bodyTop := math.Max(bar.Open, bar.Close)
			bodyBottom := math.Min(bar.Open, bar.Close)
			upperShadow := bar.High - bodyTop
			lowerShadow := bodyBottom - bar.Low

			signal := 0.0
			if bodyBottom > bar.Low+(bar.High-bar.Low)*0.6 &&
				lowerShadow > body*2 &&
				upperShadow < body {
				signal = 1
			}
			points[i].Value = dataset.NewValue(signal)
		}
		return points
	}
}

// buildShootingStarPattern is the hammer's mirror: a small body in the
// bottom 40% of the range with a long upper shadow.
func buildShootingStarPattern(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			body := math.Abs(bar.Close - bar.Open)
			bodyTop := math.Max(bar.Open, bar.Close)
			bodyBottom := math.Min(bar.Open, bar.Close)
			upperShadow := bar.High - bodyTop
			lowerShadow := bodyBottom - bar.Low

			signal := 0.0
			if bodyTop < bar.High-(bar.High-bar.Low)*0.6 &&
				upperShadow > body*2 &&
				lowerShadow < body {
				signal = 1
			}
			points[i].Value = dataset.NewValue(signal)
		}
		return points
	}
}

// buildMorningStarPattern flags the three-session bullish reversal: a
// bearish candle, then a doji-sized body gapping clear of it, then a
// bullish candle closing above the first session's close.
func buildMorningStarPattern(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			signal := 0.0
			if i >= 2 {
				first, middle := bars[i-2], bars[i-1]
				middleBody := math.Abs(middle.Close - middle.Open)
				middleRange := middle.High - middle.Low
				if first.Close < first.Open &&
					middleBody < middleRange*0.1 &&
					bar.Close > bar.Open &&
					bar.Close > first.Close &&
					middle.Low > first.High {
					signal = 1
				}
			}
			points[i].Value = dataset.NewValue(signal)
		}
		return points
	}
}

// buildEveningStarPattern is the bearish mirror of the morning star.
func buildEveningStarPattern(params) computeFunc {
	return func(bars []dataset.Bar) []dataset.Point {
		points := newPoints(bars)
		for i, bar := range bars {
			signal := 0.0
			if i >= 2 {
				first, middle := bars[i-2], bars[i-1]
				middleBody := math.Abs(middle.Close - middle.Open)
				middleRange := middle.High - middle.Low
				if first.Close > first.Open &&
					middleBody < middleRange*0.1 &&
					bar.Close < bar.Open &&
					bar.Close < first.Close &&
					middle.High < first.Low {
					signal = 1
				}
			}
			points[i].Value = dataset.NewValue(signal)
		}
		return points
	}
}
