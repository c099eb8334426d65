// Package dataset defines the panel data model shared by the factor engine,
// the analyzer and the storage layer: daily OHLCV bars keyed by
// (stock, date), explicit optional values, and the row types persisted to
// the factors and factor_analysis tables.
package dataset

import (
	"fmt"
	"math"
	"time"
)

// DateFormat is the canonical date layout used in storage and reports.
const DateFormat = "2006-01-02"

// Bar is one stock's OHLCV observation for a single trading day.
// Dates are trading days only; the panel carries no rows for non-trading
// days and no gap filling is performed.
type Bar struct {
	StockID  string    `json:"stock_id"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	PreClose float64   `json:"pre_close"`
	Volume   float64   `json:"volume"`
	Amount   float64   `json:"amount"`
}

// IsValid reports whether the bar carries a usable observation.
// Suspended sessions keep zero volume but must still carry prices.
func (b Bar) IsValid() bool {
	if b.StockID == "" || b.Date.IsZero() {
		return false
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	if b.High < b.Low || b.Volume < 0 || b.Amount < 0 {
		return false
	}
	return true
}

// DailyReturn is the single-session return against the stored previous
// close. Missing when pre_close is absent or zero.
func (b Bar) DailyReturn() Value {
	if b.PreClose <= 0 {
		return Missing()
	}
	return NewValue(b.Close/b.PreClose - 1)
}

// Value is an explicit optional float. A missing value is Valid == false;
// NaN and Inf never travel through the pipeline as data.
type Value struct {
	Float64 float64 `json:"value"`
	Valid   bool    `json:"valid"`
}

// NewValue wraps v as a present value. Non-finite inputs collapse to
// missing so that intermediate float arithmetic cannot leak sentinels.
func NewValue(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{Float64: v, Valid: true}
}

// Missing returns the absent value.
func Missing() Value {
	return Value{}
}

// IsMissing reports whether the value is absent.
func (v Value) IsMissing() bool {
	return !v.Valid
}

func (v Value) String() string {
	if !v.Valid {
		return "missing"
	}
	return fmt.Sprintf("%g", v.Float64)
}

// Point is a dated factor value for a single stock, the unit a Factor
// emits. Points are ordered by date ascending, one per input bar.
type Point struct {
	Date  time.Time `json:"date"`
	Value Value     `json:"value"`
}

// FactorRow is one (stock, date, factor) cell of the factor-value panel.
// Rows with missing values exist in memory but are dropped at persistence.
type FactorRow struct {
	StockID    string    `json:"stock_id"`
	Date       time.Time `json:"date"`
	FactorName string    `json:"factor_name"`
	Value      Value     `json:"value"`
}

// ForwardReturn is the realized return P trading sessions ahead of Date,
// row-offset within the stock's own calendar. The last P rows of each
// stock's series are present with a missing return.
type ForwardReturn struct {
	StockID string    `json:"stock_id"`
	Date    time.Time `json:"date"`
	Period  int       `json:"period"`
	Return  Value     `json:"return"`
}

// AnalysisRow is one persisted factor_analysis record: the IC summary for
// a (factor, period) pair. IR is missing when the IC series has zero
// spread; the other statistics are always defined on an emitted row.
type AnalysisRow struct {
	FactorName     string  `json:"factor_name"`
	Period         int     `json:"period"`
	MeanIC         float64 `json:"mean_ic"`
	StdIC          float64 `json:"std_ic"`
	IR             Value   `json:"ir"`
	PositiveICRate float64 `json:"positive_ic_rate"`
}

// DateRange is an inclusive [Start, End] span of trading dates. A zero
// Start or End leaves that side unbounded.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds an inclusive range from canonical date strings.
// Empty strings leave the corresponding side open.
func NewDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if start != "" {
		r.Start, err = time.Parse(DateFormat, start)
		if err != nil {
			return DateRange{}, fmt.Errorf("parse start date: %w", err)
		}
	}
	if end != "" {
		r.End, err = time.Parse(DateFormat, end)
		if err != nil {
			return DateRange{}, fmt.Errorf("parse end date: %w", err)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("date range end %s before start %s",
			r.End.Format(DateFormat), r.Start.Format(DateFormat))
	}
	return r, nil
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}

// IsZero reports whether both sides are unbounded.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}
