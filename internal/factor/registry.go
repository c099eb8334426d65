package factor

import (
	qerrors "qfactor/internal/errors"
)

// checkMinWindow requires a window large enough for a sample deviation.
func checkMinWindow(p params) error {
	if p.window() < 2 {
		return &qerrors.ConfigurationError{
			Field:   "window",
			Message: "window must be at least 2 for deviation-based factors",
			Value:   p["window"],
		}
	}
	return nil
}

// checkFastSlow requires a positive fast period strictly below the slow
// one.
func checkFastSlow(p params) error {
	if p.intOf("fast") <= 0 {
		return &qerrors.ConfigurationError{
			Field:   "fast",
			Message: "fast period must be positive",
			Value:   p["fast"],
		}
	}
	if p.intOf("fast") >= p.intOf("slow") {
		return &qerrors.ConfigurationError{
			Field:   "fast",
			Message: "fast period must be below the slow period",
			Value:   p["fast"],
		}
	}
	if signal, ok := p["signal"]; ok && int(signal) <= 0 {
		return &qerrors.ConfigurationError{
			Field:   "signal",
			Message: "signal period must be positive",
			Value:   signal,
		}
	}
	return nil
}

// registry maps every catalog kind to its variant description. Canonical
// names derive from the kind plus the window for windowed variants, so
// the defaults here produce the standard catalog names (price_mean_20,
// rsi_14, vol_change_1, ...).
var registry = map[string]variant{
	// price family
	"close":             {family: FamilyPrice, defaults: map[string]float64{}, build: buildColumn(closeOf)},
	"high":              {family: FamilyPrice, defaults: map[string]float64{}, build: buildColumn(highOf)},
	"low":               {family: FamilyPrice, defaults: map[string]float64{}, build: buildColumn(lowOf)},
	"open":              {family: FamilyPrice, defaults: map[string]float64{}, build: buildColumn(openOf)},
	"avg_price":         {family: FamilyPrice, defaults: map[string]float64{}, build: buildAvgPrice},
	"vwap":              {family: FamilyPrice, defaults: map[string]float64{}, build: buildVWAP},
	"close_open_ratio":  {family: FamilyPrice, defaults: map[string]float64{}, build: buildCloseOpenRatio},
	"open_close_change": {family: FamilyPrice, defaults: map[string]float64{}, build: buildOpenCloseChange},
	"price_mean":        {family: FamilyPrice, defaults: map[string]float64{"window": 20}, windowed: true, build: buildPriceMean},
	"price_rank":        {family: FamilyPrice, defaults: map[string]float64{"window": 20}, windowed: true, build: buildPriceRank},
	"price_decay":       {family: FamilyPrice, defaults: map[string]float64{"window": 20}, windowed: true, build: buildPriceDecay},

	// momentum family
	"momentum": {family: FamilyMomentum, defaults: map[string]float64{"window": 20}, windowed: true, build: buildOffsetChange(closeOf)},
	"rsi":      {family: FamilyMomentum, defaults: map[string]float64{"window": 14}, windowed: true, check: checkMinWindow, build: buildRSI},
	"macd":     {family: FamilyMomentum, defaults: map[string]float64{"fast": 12, "slow": 26, "signal": 9}, check: checkFastSlow, build: buildMACD},
	"wr":       {family: FamilyMomentum, defaults: map[string]float64{"window": 14}, windowed: true, build: buildWilliamsR},
	"stoch":    {family: FamilyMomentum, defaults: map[string]float64{"window": 14}, windowed: true, build: buildStoch},
	"roc":      {family: FamilyMomentum, defaults: map[string]float64{"window": 20}, windowed: true, build: buildROC},

	// volume family
	"volume":      {family: FamilyVolume, defaults: map[string]float64{}, build: buildColumn(volumeOf)},
	"amount":      {family: FamilyVolume, defaults: map[string]float64{}, build: buildColumn(amountOf)},
	"vol_change":  {family: FamilyVolume, defaults: map[string]float64{"window": 1}, windowed: true, build: buildOffsetChange(volumeOf)},
	"amt_change":  {family: FamilyVolume, defaults: map[string]float64{"window": 1}, windowed: true, build: buildOffsetChange(amountOf)},
	"vol_rank":    {family: FamilyVolume, defaults: map[string]float64{"window": 20}, windowed: true, build: buildVolRank},
	"vol_mean":    {family: FamilyVolume, defaults: map[string]float64{"window": 20}, windowed: true, build: buildVolMean},
	"vol_std":     {family: FamilyVolume, defaults: map[string]float64{"window": 20}, windowed: true, check: checkMinWindow, build: buildVolStd},
	"vol_to_mean": {family: FamilyVolume, defaults: map[string]float64{"window": 20}, windowed: true, build: buildVolToMean},
	"vol_amp":     {family: FamilyVolume, defaults: map[string]float64{"window": 20}, windowed: true, build: buildVolAmp},
	"vol_accum":   {family: FamilyVolume, defaults: map[string]float64{}, build: buildVolAccum},

	// volatility family
	"daily_return":    {family: FamilyVolatility, defaults: map[string]float64{}, build: buildDailyReturn},
	"daily_amplitude": {family: FamilyVolatility, defaults: map[string]float64{}, build: buildDailyAmplitude},
	"volatility":      {family: FamilyVolatility, defaults: map[string]float64{"window": 20}, windowed: true, check: checkMinWindow, build: buildVolatility},
	"downside_risk":   {family: FamilyVolatility, defaults: map[string]float64{"window": 20}, windowed: true, build: buildDownsideRisk},
	"max_drawdown":    {family: FamilyVolatility, defaults: map[string]float64{"window": 20}, windowed: true, build: buildMaxDrawdown},
	"sharpe":          {family: FamilyVolatility, defaults: map[string]float64{"window": 20, "risk_free": DefaultRiskFree}, windowed: true, check: checkMinWindow, build: buildSharpe},
	"skew":            {family: FamilyVolatility, defaults: map[string]float64{"window": 20}, windowed: true, check: checkMinWindow, build: buildMoment(3)},
	"kurtosis":        {family: FamilyVolatility, defaults: map[string]float64{"window": 20}, windowed: true, check: checkMinWindow, build: buildMoment(4)},

	// trend family (extended set)
	"macd_dif": {family: FamilyTrend, defaults: map[string]float64{"fast": 12, "slow": 26}, check: checkFastSlow, build: buildMACDDif},
	"macd_dea": {family: FamilyTrend, defaults: map[string]float64{"fast": 12, "slow": 26, "signal": 9}, check: checkFastSlow, build: buildMACDDea},
	"atr":      {family: FamilyTrend, defaults: map[string]float64{"window": 14}, windowed: true, build: buildATR},
	"cci":      {family: FamilyTrend, defaults: map[string]float64{"window": 14}, windowed: true, build: buildCCI},
	"adx":      {family: FamilyTrend, defaults: map[string]float64{"window": 14}, windowed: true, build: buildADX},
	"dma":      {family: FamilyTrend, defaults: map[string]float64{"fast": 10, "slow": 50}, check: checkFastSlow, build: buildDMA},

	// candlestick pattern family (extended set)
	"gap_pattern":           {family: FamilyPattern, defaults: map[string]float64{}, build: buildGapPattern},
	"hammer_pattern":        {family: FamilyPattern, defaults: map[string]float64{}, build: buildHammerPattern},
	"shooting_star_pattern": {family: FamilyPattern, defaults: map[string]float64{}, build: buildShootingStarPattern},
	"morning_star_pattern":  {family: FamilyPattern, defaults: map[string]float64{}, build: buildMorningStarPattern},
	"evening_star_pattern":  {family: FamilyPattern, defaults: map[string]float64{}, build: buildEveningStarPattern},
}
