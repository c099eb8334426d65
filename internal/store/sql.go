package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// Supported database/sql driver names. The driver must be linked into the
// binary by the importing command.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds the connection settings for a SQL-backed store.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is a SQL implementation of Store. It is safe for concurrent use; the
// underlying pool serializes writers as needed.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, &qerrors.ConfigurationError{
			Field:   "database.driver",
			Message: "unsupported driver",
			Value:   cfg.Driver,
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, &qerrors.StorageError{Op: "open", Err: err}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &qerrors.StorageError{Op: "ping", Err: err}
	}

	return &DB{DB: db, driver: cfg.Driver}, nil
}

// The DDL sticks to column types both dialects accept. Dates are stored
// as TEXT in YYYY-MM-DD form so scans behave identically across drivers.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS daily_data (
		stock_id  TEXT NOT NULL,
		date      TEXT NOT NULL,
		open      DOUBLE PRECISION NOT NULL,
		high      DOUBLE PRECISION NOT NULL,
		low       DOUBLE PRECISION NOT NULL,
		close     DOUBLE PRECISION NOT NULL,
		pre_close DOUBLE PRECISION NOT NULL,
		volume    DOUBLE PRECISION NOT NULL,
		amount    DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (stock_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS factors (
		stock_id    TEXT NOT NULL,
		date        TEXT NOT NULL,
		factor_name TEXT NOT NULL,
		value       DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (stock_id, date, factor_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_factors_name_date ON factors (factor_name, date)`,
	`CREATE TABLE IF NOT EXISTS factor_analysis (
		factor_name      TEXT NOT NULL,
		period           INTEGER NOT NULL,
		mean_ic          DOUBLE PRECISION NOT NULL,
		std_ic           DOUBLE PRECISION NOT NULL,
		ir               DOUBLE PRECISION,
		positive_ic_rate DOUBLE PRECISION NOT NULL,
		updated_at       TEXT NOT NULL,
		PRIMARY KEY (factor_name, period)
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &qerrors.StorageError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

// rebind rewrites ? placeholders into the driver's native form. SQLite
// takes them as-is; Postgres wants $1..$n.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save implements Store. The whole call commits or rolls back as one
// transaction, so a failed write never leaves a table half-updated.
func (db *DB) Save(ctx context.Context, table string, rows interface{}, mode WriteMode) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &qerrors.StorageError{Op: "begin", Table: table, Err: err}
	}
	defer tx.Rollback()

	switch table {
	case TableDailyData:
		bars, ok := rows.([]dataset.Bar)
		if !ok {
			return &qerrors.StorageError{Op: "save", Table: table, Err: fmt.Errorf("unsupported row type %T", rows)}
		}
		err = db.saveBars(ctx, tx, bars, mode)
	case TableFactors:
		factorRows, ok := rows.([]dataset.FactorRow)
		if !ok {
			return &qerrors.StorageError{Op: "save", Table: table, Err: fmt.Errorf("unsupported row type %T", rows)}
		}
		err = db.saveFactorRows(ctx, tx, factorRows, mode)
	case TableFactorAnalysis:
		analysisRows, ok := rows.([]dataset.AnalysisRow)
		if !ok {
			return &qerrors.StorageError{Op: "save", Table: table, Err: fmt.Errorf("unsupported row type %T", rows)}
		}
		err = db.saveAnalysisRows(ctx, tx, analysisRows, mode)
	default:
		return &qerrors.StorageError{Op: "save", Table: table, Err: fmt.Errorf("unknown table")}
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &qerrors.StorageError{Op: "commit", Table: table, Err: err}
	}
	return nil
}

func (db *DB) saveBars(ctx context.Context, tx *sql.Tx, bars []dataset.Bar, mode WriteMode) error {
	query := `INSERT INTO daily_data (stock_id, date, open, high, low, close, pre_close, volume, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if mode == ModeReplace {
		query += ` ON CONFLICT (stock_id, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, pre_close = excluded.pre_close,
			volume = excluded.volume, amount = excluded.amount`
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(query))
	if err != nil {
		return &qerrors.StorageError{Op: "prepare", Table: TableDailyData, Err: err}
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err := stmt.ExecContext(ctx,
			bar.StockID, bar.Date.Format(dataset.DateFormat),
			bar.Open, bar.High, bar.Low, bar.Close, bar.PreClose,
			bar.Volume, bar.Amount)
		if err != nil {
			return &qerrors.StorageError{Op: "insert", Table: TableDailyData, Err: err}
		}
	}
	return nil
}

func (db *DB) saveFactorRows(ctx context.Context, tx *sql.Tx, rows []dataset.FactorRow, mode WriteMode) error {
	query := `INSERT INTO factors (stock_id, date, factor_name, value) VALUES (?, ?, ?, ?)`
	if mode == ModeReplace {
		query += ` ON CONFLICT (stock_id, date, factor_name) DO UPDATE SET value = excluded.value`
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(query))
	if err != nil {
		return &qerrors.StorageError{Op: "prepare", Table: TableFactors, Err: err}
	}
	defer stmt.Close()

	for _, row := range rows {
		if row.Value.IsMissing() {
			// Missing values are an engine-side concept and never persist.
			continue
		}
		_, err := stmt.ExecContext(ctx,
			row.StockID, row.Date.Format(dataset.DateFormat),
			row.FactorName, row.Value.Float64)
		if err != nil {
			return &qerrors.StorageError{Op: "insert", Table: TableFactors, Err: err}
		}
	}
	return nil
}

func (db *DB) saveAnalysisRows(ctx context.Context, tx *sql.Tx, rows []dataset.AnalysisRow, mode WriteMode) error {
	query := `INSERT INTO factor_analysis (factor_name, period, mean_ic, std_ic, ir, positive_ic_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if mode == ModeReplace {
		query += ` ON CONFLICT (factor_name, period) DO UPDATE SET
			mean_ic = excluded.mean_ic, std_ic = excluded.std_ic, ir = excluded.ir,
			positive_ic_rate = excluded.positive_ic_rate, updated_at = excluded.updated_at`
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(query))
	if err != nil {
		return &qerrors.StorageError{Op: "prepare", Table: TableFactorAnalysis, Err: err}
	}
	defer stmt.Close()

	updatedAt := time.Now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		// An undefined IR stores as NULL, never as a number.
		ir := sql.NullFloat64{Float64: row.IR.Float64, Valid: row.IR.Valid}
		_, err := stmt.ExecContext(ctx,
			row.FactorName, row.Period,
			row.MeanIC, row.StdIC, ir, row.PositiveICRate,
			updatedAt)
		if err != nil {
			return &qerrors.StorageError{Op: "insert", Table: TableFactorAnalysis, Err: err}
		}
	}
	return nil
}

// LoadStockData implements Store.
func (db *DB) LoadStockData(ctx context.Context, dateRange dataset.DateRange) ([]dataset.Bar, error) {
	query := `SELECT stock_id, date, open, high, low, close, pre_close, volume, amount FROM daily_data`
	where, args := dateRangeClause(dateRange, nil)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY stock_id, date"

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, &qerrors.StorageError{Op: "query", Table: TableDailyData, Err: err}
	}
	defer rows.Close()

	var bars []dataset.Bar
	for rows.Next() {
		var bar dataset.Bar
		var date string
		err := rows.Scan(&bar.StockID, &date, &bar.Open, &bar.High, &bar.Low,
			&bar.Close, &bar.PreClose, &bar.Volume, &bar.Amount)
		if err != nil {
			return nil, &qerrors.StorageError{Op: "scan", Table: TableDailyData, Err: err}
		}
		bar.Date, err = time.Parse(dataset.DateFormat, date)
		if err != nil {
			return nil, &qerrors.StorageError{Op: "scan", Table: TableDailyData, Err: fmt.Errorf("parse date %q: %w", date, err)}
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, &qerrors.StorageError{Op: "query", Table: TableDailyData, Err: err}
	}
	return bars, nil
}

// LoadStockList implements Store.
func (db *DB) LoadStockList(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT stock_id FROM daily_data ORDER BY stock_id`)
	if err != nil {
		return nil, &qerrors.StorageError{Op: "query", Table: TableDailyData, Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &qerrors.StorageError{Op: "scan", Table: TableDailyData, Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &qerrors.StorageError{Op: "query", Table: TableDailyData, Err: err}
	}
	return ids, nil
}

// LoadFactorData implements Store.
func (db *DB) LoadFactorData(ctx context.Context, factorName string, dateRange dataset.DateRange) ([]dataset.FactorRow, error) {
	query := `SELECT stock_id, date, value FROM factors WHERE factor_name = ?`
	args := []interface{}{factorName}
	if where, rangeArgs := dateRangeClause(dateRange, nil); where != "" {
		query += " AND " + where
		args = append(args, rangeArgs...)
	}
	query += " ORDER BY stock_id, date"

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, &qerrors.StorageError{Op: "query", Table: TableFactors, Err: err}
	}
	defer rows.Close()

	var out []dataset.FactorRow
	for rows.Next() {
		var row dataset.FactorRow
		var date string
		var value float64
		if err := rows.Scan(&row.StockID, &date, &value); err != nil {
			return nil, &qerrors.StorageError{Op: "scan", Table: TableFactors, Err: err}
		}
		row.Date, err = time.Parse(dataset.DateFormat, date)
		if err != nil {
			return nil, &qerrors.StorageError{Op: "scan", Table: TableFactors, Err: fmt.Errorf("parse date %q: %w", date, err)}
		}
		row.FactorName = factorName
		row.Value = dataset.NewValue(value)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &qerrors.StorageError{Op: "query", Table: TableFactors, Err: err}
	}
	return out, nil
}

// dateRangeClause renders the optional date bounds as SQL and appends the
// bound values to args. Dates compare correctly as text in YYYY-MM-DD form.
func dateRangeClause(dateRange dataset.DateRange, args []interface{}) (string, []interface{}) {
	var parts []string
	if !dateRange.Start.IsZero() {
		parts = append(parts, "date >= ?")
		args = append(args, dateRange.Start.Format(dataset.DateFormat))
	}
	if !dateRange.End.IsZero() {
		parts = append(parts, "date <= ?")
		args = append(args, dateRange.End.Format(dataset.DateFormat))
	}
	return strings.Join(parts, " AND "), args
}
