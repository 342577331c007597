package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"strategylab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id                TEXT PRIMARY KEY,
	strategy_id       TEXT NOT NULL,
	ticker            TEXT NOT NULL,
	short_period      INTEGER NOT NULL,
	long_period       INTEGER NOT NULL,
	start_date        TEXT NOT NULL,
	end_date          TEXT NOT NULL,
	initial_capital   REAL NOT NULL,
	final_capital     REAL NOT NULL,
	total_return      REAL NOT NULL,
	annualized_return REAL NOT NULL,
	sharpe_ratio      REAL,
	max_drawdown      REAL NOT NULL,
	total_trades      INTEGER NOT NULL,
	metrics_json      TEXT NOT NULL,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_lookup
	ON backtest_results (ticker, strategy_id, created_at);
CREATE TABLE IF NOT EXISTS backtest_trades (
	result_id           TEXT NOT NULL REFERENCES backtest_results (id),
	seq                 INTEGER NOT NULL,
	direction           TEXT NOT NULL,
	entry_date          TEXT NOT NULL,
	exit_date           TEXT NOT NULL,
	entry_price         REAL NOT NULL,
	exit_price          REAL NOT NULL,
	quantity            INTEGER NOT NULL,
	pnl                 REAL NOT NULL,
	pnl_percentage      REAL NOT NULL,
	holding_period_days REAL NOT NULL,
	PRIMARY KEY (result_id, seq)
);`

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// archive tables if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection also keeps ":memory:"
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult archives the result header, its metrics and its trade ledger in
// one transaction. Undefined ratios are stored as NULL.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *domain.BacktestResult) (string, error) {
	if r == nil || r.StrategyID == "" || r.Ticker == "" {
		return "", fmt.Errorf("%w: result needs strategy id and ticker", ErrInvalidInput)
	}
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return "", fmt.Errorf("encoding metrics: %w", err)
	}

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_results (
			id, strategy_id, ticker, short_period, long_period, start_date, end_date,
			initial_capital, final_capital, total_return, annualized_return,
			sharpe_ratio, max_drawdown, total_trades, metrics_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.StrategyID, strings.ToUpper(r.Ticker), r.Params.ShortPeriod, r.Params.LongPeriod,
		formatTime(r.StartDate), formatTime(r.EndDate),
		r.InitialCapital, r.FinalCapital, r.TotalReturn, r.AnnualizedReturn,
		nullableRatio(r.Metrics.SharpeRatio), r.Metrics.MaxDrawdown, r.Metrics.TotalTrades,
		string(metrics), formatTime(s.now()),
	)
	if err != nil {
		return "", fmt.Errorf("inserting result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (
			result_id, seq, direction, entry_date, exit_date, entry_price, exit_price,
			quantity, pnl, pnl_percentage, holding_period_days
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, t := range r.Trades {
		if _, err := stmt.ExecContext(ctx,
			id, i, string(t.Direction), formatTime(t.EntryDate), formatTime(t.ExitDate),
			t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, t.PnLPercentage, t.HoldingPeriodDays,
		); err != nil {
			return "", fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

const selectSummary = `
	SELECT id, strategy_id, ticker, short_period, long_period, start_date, end_date,
		initial_capital, final_capital, total_return, annualized_return, metrics_json, created_at
	FROM backtest_results`

// GetResult retrieves a summary by id.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*ResultSummary, error) {
	row := s.db.QueryRowContext(ctx, selectSummary+` WHERE id = ?`, id)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// ListResults returns summaries matching filter, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]ResultSummary, error) {
	var (
		where []string
		args  []any
	)
	if filter.StrategyID != "" {
		where = append(where, "strategy_id = ?")
		args = append(args, filter.StrategyID)
	}
	if filter.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, strings.ToUpper(filter.Ticker))
	}

	query := selectSummary
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// ListTrades returns the archived ledger of result id.
func (s *SQLiteStore) ListTrades(ctx context.Context, id string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, entry_date, exit_date, entry_price, exit_price,
			quantity, pnl, pnl_percentage, holding_period_days
		FROM backtest_trades WHERE result_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t           domain.Trade
			dir         string
			entry, exit string
		)
		if err := rows.Scan(&dir, &entry, &exit, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.PnL, &t.PnLPercentage, &t.HoldingPeriodDays); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(dir)
		if t.EntryDate, err = parseTime(entry); err != nil {
			return nil, err
		}
		if t.ExitDate, err = parseTime(exit); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (*ResultSummary, error) {
	var (
		sum                 ResultSummary
		start, end, created string
		metrics             string
	)
	if err := row.Scan(&sum.ID, &sum.StrategyID, &sum.Ticker,
		&sum.Params.ShortPeriod, &sum.Params.LongPeriod, &start, &end,
		&sum.InitialCapital, &sum.FinalCapital, &sum.TotalReturn, &sum.AnnualizedReturn,
		&metrics, &created); err != nil {
		return nil, err
	}

	var err error
	if sum.StartDate, err = parseTime(start); err != nil {
		return nil, err
	}
	if sum.EndDate, err = parseTime(end); err != nil {
		return nil, err
	}
	if sum.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metrics), &sum.Metrics); err != nil {
		return nil, fmt.Errorf("decoding metrics of %s: %w", sum.ID, err)
	}
	return &sum, nil
}

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullableRatio(r domain.Ratio) sql.NullFloat64 {
	return sql.NullFloat64{Float64: r.Float(), Valid: r.Defined()}
}
