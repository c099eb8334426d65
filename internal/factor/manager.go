package factor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
	"qfactor/internal/store"
)

// DefaultWorkers bounds concurrent factor computations when the caller
// does not set a limit.
const DefaultWorkers = 4

// BatchMetrics receives engine counters. The infrastructure package
// provides the OpenTelemetry implementation; a nil sink disables metrics.
type BatchMetrics interface {
	FactorComputed(ctx context.Context, factorName string, rows int, seconds float64)
	FactorFailed(ctx context.Context, factorName string)
	RowsStored(ctx context.Context, factorName string, rows int)
}

// Failure records one factor that could not be computed or validated.
// Sibling factors are unaffected.
type Failure struct {
	FactorName string
	Err        error
}

// Options tunes a Manager beyond its required collaborators.
type Options struct {
	// Workers caps concurrent factor computations. Zero or negative
	// selects DefaultWorkers.
	Workers int
	// Metrics is the optional engine counter sink.
	Metrics BatchMetrics
}

// Manager runs an ordered collection of factors over the stock panel and
// persists the results through the Panel Store. Registration order is
// preserved everywhere results are emitted.
type Manager struct {
	store   store.Store
	logger  *slog.Logger
	workers int
	metrics BatchMetrics

	factors []Factor
	names   map[string]struct{}
}

// NewManager returns a Manager bound to the given store. The store may be
// nil for compute-only use; StoreAll then fails.
func NewManager(st store.Store, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Manager{
		store:   st,
		logger:  logger,
		workers: workers,
		metrics: opts.Metrics,
		names:   make(map[string]struct{}),
	}
}

// Register appends factors to the collection. Names must be unique across
// the manager; a duplicate rejects the whole call before any mutation.
func (m *Manager) Register(factors ...Factor) error {
	for _, f := range factors {
		if f == nil {
			return &qerrors.ConfigurationError{Field: "factor", Message: "nil factor"}
		}
		if _, exists := m.names[f.Name()]; exists {
			return &qerrors.ConfigurationError{
				Field:   "factor",
				Message: "duplicate factor name",
				Value:   f.Name(),
			}
		}
	}
	for _, f := range factors {
		m.names[f.Name()] = struct{}{}
		m.factors = append(m.factors, f)
	}
	return nil
}

// Factors returns the registered factors in registration order.
func (m *Manager) Factors() []Factor {
	out := make([]Factor, len(m.factors))
	copy(out, m.factors)
	return out
}

// CalculateAll computes every registered factor over the panel. Results
// are keyed by factor name; factors that fail land in the failures list
// while the rest complete normally. Stocks whose series carry duplicate
// dates are logged and excluded from the batch before any factor runs.
func (m *Manager) CalculateAll(ctx context.Context, bars []dataset.Bar) (map[string][]dataset.FactorRow, []Failure) {
	groups := dataset.GroupByStock(bars)
	stockIDs := make([]string, 0, len(groups))
	for _, stockID := range dataset.StockIDs(bars) {
		if err := dataset.CheckDuplicateDates(stockID, groups[stockID]); err != nil {
			m.logger.WarnContext(ctx, "excluding stock with corrupt series",
				"stock_id", stockID, "error", err)
			continue
		}
		stockIDs = append(stockIDs, stockID)
	}

	m.logger.InfoContext(ctx, "starting factor batch",
		"factors", len(m.factors), "stocks", len(stockIDs), "workers", m.workers)

	rowsByFactor := make([][]dataset.FactorRow, len(m.factors))
	errsByFactor := make([]error, len(m.factors))

	g := new(errgroup.Group)
	g.SetLimit(m.workers)
	for i, f := range m.factors {
		i, f := i, f
		g.Go(func() error {
			started := time.Now()
			rows, err := m.calculateFactor(ctx, f, groups, stockIDs)
			if err != nil {
				errsByFactor[i] = err
				if m.metrics != nil {
					m.metrics.FactorFailed(ctx, f.Name())
				}
				return nil
			}
			rowsByFactor[i] = rows
			if m.metrics != nil {
				m.metrics.FactorComputed(ctx, f.Name(), len(rows), time.Since(started).Seconds())
			}
			return nil
		})
	}
	g.Wait()

	results := make(map[string][]dataset.FactorRow, len(m.factors))
	var failures []Failure
	for i, f := range m.factors {
		if err := errsByFactor[i]; err != nil {
			m.logger.WarnContext(ctx, "factor calculation failed",
				"factor", f.Name(), "error", err)
			failures = append(failures, Failure{FactorName: f.Name(), Err: err})
			continue
		}
		results[f.Name()] = rowsByFactor[i]
	}

	m.logger.InfoContext(ctx, "factor batch complete",
		"succeeded", len(results), "failed", len(failures))
	return results, failures
}

// calculateFactor runs one factor across every stock series. A panicking
// kernel fails its factor, never the batch.
func (m *Manager) calculateFactor(ctx context.Context, f Factor, groups map[string][]dataset.Bar, stockIDs []string) (rows []dataset.FactorRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("calculate %s: panic: %v", f.Name(), r)
		}
	}()

	for _, stockID := range stockIDs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		points, err := f.Calculate(groups[stockID])
		if err != nil {
			return nil, fmt.Errorf("calculate %s for %s: %w", f.Name(), stockID, err)
		}
		for _, pt := range points {
			rows = append(rows, dataset.FactorRow{
				StockID:    stockID,
				Date:       pt.Date,
				FactorName: f.Name(),
				Value:      pt.Value,
			})
		}
	}
	return rows, nil
}

// StoreAll persists computed results factor by factor, in registration
// order, each under a single writer. Validation failures are reported and
// skipped; a storage failure stops the run, leaving factors already
// written in place. It returns the number of factors stored.
func (m *Manager) StoreAll(ctx context.Context, results map[string][]dataset.FactorRow) (int, []Failure, error) {
	if m.store == nil {
		return 0, nil, &qerrors.StorageError{Op: "store factors", Err: fmt.Errorf("no store configured")}
	}

	stored := 0
	var failures []Failure
	for _, f := range m.factors {
		rows, ok := results[f.Name()]
		if !ok {
			continue
		}
		if err := dataset.ValidateFactorRows(f.Name(), rows); err != nil {
			m.logger.WarnContext(ctx, "factor rows failed validation",
				"factor", f.Name(), "error", err)
			failures = append(failures, Failure{FactorName: f.Name(), Err: err})
			continue
		}

		rows = dataset.DropMissing(rows)
		if len(rows) == 0 {
			m.logger.DebugContext(ctx, "no persistable rows", "factor", f.Name())
			continue
		}

		if err := m.store.Save(ctx, store.TableFactors, rows, store.ModeReplace); err != nil {
			return stored, failures, fmt.Errorf("store factor %s: %w", f.Name(), err)
		}
		stored++
		if m.metrics != nil {
			m.metrics.RowsStored(ctx, f.Name(), len(rows))
		}
		m.logger.DebugContext(ctx, "factor stored", "factor", f.Name(), "rows", len(rows))
	}
	return stored, failures, nil
}
