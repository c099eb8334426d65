package analyzer

import (
	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// ForwardReturns computes the realized return over the next period
// sessions for every (stock, date) in the panel. The offset is by row in
// each stock's date-sorted series, so a period of P means P trading
// sessions ahead whatever the calendar gaps look like. Every input row
// yields an output record; the last P rows of each stock, and rows with a
// non-positive base close, carry a missing return. Nothing dated after
// the offset row ever enters the computation.
func ForwardReturns(bars []dataset.Bar, period int) ([]dataset.ForwardReturn, error) {
	if period <= 0 {
		return nil, &qerrors.ConfigurationError{
			Field:   "period",
			Message: "forward period must be positive",
			Value:   period,
		}
	}

	groups := dataset.GroupByStock(bars)
	out := make([]dataset.ForwardReturn, 0, len(bars))
	for _, stockID := range dataset.StockIDs(bars) {
		series := groups[stockID]
		if err := dataset.CheckDuplicateDates(stockID, series); err != nil {
			return nil, err
		}

		for i, bar := range series {
			record := dataset.ForwardReturn{
				StockID: stockID,
				Date:    bar.Date,
				Period:  period,
				Return:  dataset.Missing(),
			}
			if i+period < len(series) && bar.Close > 0 {
				record.Return = dataset.NewValue(series[i+period].Close/bar.Close - 1)
			}
			out = append(out, record)
		}
	}
	return out, nil
}
