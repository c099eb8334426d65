// Package factor implements the factor computation engine: a registry of
// windowed transforms from a single stock's OHLCV series to dated factor
// values, and a manager that drives batch computation across the stock
// universe with per-factor failure isolation.
package factor

import (
	"fmt"
	"math"
	"sort"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// Family groups catalog variants by the columns they consume and the
// window accounting they follow.
type Family string

const (
	FamilyPrice      Family = "price"
	FamilyMomentum   Family = "momentum"
	FamilyVolume     Family = "volume"
	FamilyVolatility Family = "volatility"
	FamilyTrend      Family = "trend"
	FamilyPattern    Family = "pattern"
)

// Factor is the computation unit: a pure, deterministic transform from one
// stock's date-ascending OHLCV series to a dated value sequence. The output
// has exactly one point per input bar; warm-up dates carry missing values.
type Factor interface {
	Name() string
	Family() Family
	Window() int
	Calculate(bars []dataset.Bar) ([]dataset.Point, error)
}

// params is a variant's merged parameter set.
type params map[string]float64

// periodParams are the parameters that count sessions and must be whole
// numbers.
var periodParams = []string{"window", "fast", "slow", "signal"}

func (p params) window() int {
	return int(p["window"])
}

func (p params) intOf(key string) int {
	return int(p[key])
}

// computeFunc is a variant kernel. Input is a validated single-stock,
// date-ascending series; output length equals input length.
type computeFunc func(bars []dataset.Bar) []dataset.Point

// variant describes one registered factor kind.
type variant struct {
	family   Family
	defaults map[string]float64
	windowed bool // canonical name carries a _<window> suffix
	check    func(p params) error
	build    func(p params) computeFunc
}

type factorImpl struct {
	name    string
	kind    string
	family  Family
	window  int
	compute computeFunc
}

func (f *factorImpl) Name() string   { return f.name }
func (f *factorImpl) Family() Family { return f.family }
func (f *factorImpl) Window() int    { return f.window }

func (f *factorImpl) Calculate(bars []dataset.Bar) ([]dataset.Point, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	if err := validateSeries(bars); err != nil {
		return nil, fmt.Errorf("calculate %s: %w", f.name, err)
	}
	return f.compute(bars), nil
}

// validateSeries checks the single-stock contract: one stock id, dates
// strictly ascending (which also excludes duplicates).
func validateSeries(bars []dataset.Bar) error {
	stockID := bars[0].StockID
	for i, bar := range bars {
		if bar.StockID != stockID {
			return &qerrors.DataIntegrityError{
				Op:      "validate series",
				Key:     bar.StockID,
				Message: "mixed stock ids in one series",
				Value:   stockID,
			}
		}
		if i > 0 && !bars[i-1].Date.Before(bar.Date) {
			return &qerrors.DataIntegrityError{
				Op:      "validate series",
				Key:     stockID + "/" + bar.Date.Format(dataset.DateFormat),
				Message: "dates not strictly ascending",
			}
		}
	}
	return nil
}

// New constructs a catalog factor by kind with parameter overrides, using
// the canonical name (kind plus window suffix for windowed variants).
// Unknown kinds and unrecognized or invalid parameters are configuration
// errors; nothing is silently ignored.
func New(kind string, overrides map[string]float64) (Factor, error) {
	return NewNamed("", kind, overrides)
}

// NewNamed is New with an explicit factor name overriding the canonical
// one.
func NewNamed(name, kind string, overrides map[string]float64) (Factor, error) {
	v, ok := registry[kind]
	if !ok {
		return nil, &qerrors.ConfigurationError{
			Field:   "kind",
			Message: "unknown factor kind",
			Value:   kind,
		}
	}

	merged := make(params, len(v.defaults))
	for key, val := range v.defaults {
		merged[key] = val
	}
	for key, val := range overrides {
		if _, known := v.defaults[key]; !known {
			return nil, &qerrors.ConfigurationError{
				Field:   key,
				Message: fmt.Sprintf("unrecognized parameter for factor kind %q", kind),
				Value:   val,
			}
		}
		merged[key] = val
	}

	for _, key := range periodParams {
		val, ok := merged[key]
		if !ok {
			continue
		}
		if val != math.Trunc(val) {
			return nil, &qerrors.ConfigurationError{
				Field:   key,
				Message: "period parameter must be a whole number",
				Value:   val,
			}
		}
	}
	if v.windowed && merged.window() <= 0 {
		return nil, &qerrors.ConfigurationError{
			Field:   "window",
			Message: "window must be positive",
			Value:   merged["window"],
		}
	}
	if v.check != nil {
		if err := v.check(merged); err != nil {
			return nil, err
		}
	}

	if name == "" {
		name = kind
		if v.windowed {
			name = fmt.Sprintf("%s_%d", kind, merged.window())
		}
	}

	return &factorImpl{
		name:    name,
		kind:    kind,
		family:  v.family,
		window:  merged.window(),
		compute: v.build(merged),
	}, nil
}

// Kinds lists every registered variant kind in ascending order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// mustNew builds a default-parameter factor for the catalog sets. The
// registry owns every kind it is called with, so failure is a programming
// error.
func mustNew(kind string, overrides map[string]float64) Factor {
	f, err := New(kind, overrides)
	if err != nil {
		panic(fmt.Sprintf("catalog factor %s: %v", kind, err))
	}
	return f
}

// DefaultFactors returns the core catalog with default parameters, in the
// deterministic order results are reported in: price, momentum, volume,
// volatility.
func DefaultFactors() []Factor {
	return []Factor{
		mustNew("close", nil),
		mustNew("high", nil),
		mustNew("low", nil),
		mustNew("open", nil),
		mustNew("avg_price", nil),
		mustNew("vwap", nil),
		mustNew("close_open_ratio", nil),
		mustNew("open_close_change", nil),
		mustNew("price_mean", nil),
		mustNew("price_rank", nil),
		mustNew("price_decay", nil),
		mustNew("momentum", nil),
		mustNew("rsi", nil),
		mustNew("macd", nil),
		mustNew("wr", nil),
		mustNew("stoch", nil),
		mustNew("roc", nil),
		mustNew("volume", nil),
		mustNew("amount", nil),
		mustNew("vol_change", nil),
		mustNew("amt_change", nil),
		mustNew("vol_rank", nil),
		mustNew("vol_mean", nil),
		mustNew("vol_std", nil),
		mustNew("vol_to_mean", nil),
		mustNew("vol_amp", nil),
		mustNew("vol_accum", nil),
		mustNew("daily_return", nil),
		mustNew("daily_amplitude", nil),
		mustNew("volatility", nil),
		mustNew("downside_risk", nil),
		mustNew("max_drawdown", nil),
		mustNew("sharpe", nil),
		mustNew("skew", nil),
		mustNew("kurtosis", nil),
	}
}

// ExtendedFactors returns the trend and candlestick-pattern families with
// default parameters.
func ExtendedFactors() []Factor {
	return []Factor{
		mustNew("macd_dif", nil),
		mustNew("macd_dea", nil),
		mustNew("atr", nil),
		mustNew("cci", nil),
		mustNew("adx", nil),
		mustNew("dma", nil),
		mustNew("gap_pattern", nil),
		mustNew("hammer_pattern", nil),
		mustNew("shooting_star_pattern", nil),
		mustNew("morning_star_pattern", nil),
		mustNew("evening_star_pattern", nil),
	}
}

// ConfiguredFactors returns the default catalog, plus the extended
// families when extended is set, with per-kind window overrides applied.
// An override replaces the kind's default variant in place; a kind whose
// default variant is not in the catalog is appended after it. Overriding
// a kind that takes no window is a configuration error.
func ConfiguredFactors(windows map[string]int, extended bool) ([]Factor, error) {
	factors := DefaultFactors()
	if extended {
		factors = append(factors, ExtendedFactors()...)
	}
	if len(windows) == 0 {
		return factors, nil
	}

	kinds := make([]string, 0, len(windows))
	for kind := range windows {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	replacements := make(map[string]Factor, len(kinds))
	var extras []Factor
	for _, kind := range kinds {
		def, err := New(kind, nil)
		if err != nil {
			return nil, err
		}
		override, err := New(kind, map[string]float64{"window": float64(windows[kind])})
		if err != nil {
			return nil, err
		}
		replacements[def.Name()] = override
	}

	out := make([]Factor, 0, len(factors))
	for _, f := range factors {
		if override, ok := replacements[f.Name()]; ok {
			out = append(out, override)
			delete(replacements, f.Name())
			continue
		}
		out = append(out, f)
	}
	for _, kind := range kinds {
		def, _ := New(kind, nil)
		if override, ok := replacements[def.Name()]; ok {
			extras = append(extras, override)
		}
	}
	return append(out, extras...), nil
}
