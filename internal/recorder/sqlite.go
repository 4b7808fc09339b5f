package recorder

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"TradeSentinel/internal/model"
)

var (
	_ Recorder = (*SQLiteRecorder)(nil)
	_ Recorder = (*NoopRecorder)(nil)
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the API read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id            TEXT PRIMARY KEY,
			created_at    INTEGER NOT NULL,
			source        TEXT,
			symbol        TEXT,
			policy        TEXT,
			params        TEXT,
			bars          INTEGER,
			from_ts       INTEGER,
			to_ts         INTEGER,
			total_trades  INTEGER,
			win_rate      REAL,
			total_return  REAL,
			max_drawdown  REAL,
			final_equity  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON backtest_runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS trades (
			run_id      TEXT NOT NULL REFERENCES backtest_runs(id),
			seq         INTEGER NOT NULL,
			opened_at   INTEGER,
			closed_at   INTEGER,
			entry_price REAL,
			exit_price  REAL,
			quantity    REAL,
			pnl_ratio   REAL,
			exit_reason TEXT,
			PRIMARY KEY (run_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS grid_searches (
			id             TEXT PRIMARY KEY,
			created_at     INTEGER NOT NULL,
			symbol         TEXT,
			policy         TEXT,
			total          INTEGER,
			evaluated      INTEGER,
			skipped        INTEGER,
			failed         INTEGER,
			best_index     INTEGER,
			best_params    TEXT,
			best_equity    REAL,
			best_return    REAL,
			best_drawdown  REAL,
			elapsed_ms     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grid_created ON grid_searches(created_at)`,

		`CREATE TABLE IF NOT EXISTS live_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			symbol     TEXT,
			kind       TEXT,
			price      REAL,
			quantity   REAL,
			reason     TEXT,
			pnl_ratio  REAL,
			advice     TEXT,
			order_id   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_live_ts ON live_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(rec *RunRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := rec.Summary
	if _, err := tx.Exec(`INSERT INTO backtest_runs
		(id, created_at, source, symbol, policy, params, bars, from_ts, to_ts,
		 total_trades, win_rate, total_return, max_drawdown, final_equity)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, created.UnixMilli(), rec.Source, rec.Symbol, string(rec.Policy), string(params),
		rec.Bars, rec.From.UnixMilli(), rec.To.UnixMilli(),
		s.TotalTrades, s.WinRate, s.TotalReturn, s.MaxDrawdown, s.FinalEquity,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, tr := range rec.Trades {
		if _, err := tx.Exec(`INSERT INTO trades
			(run_id, seq, opened_at, closed_at, entry_price, exit_price, quantity, pnl_ratio, exit_reason)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			rec.ID, i, tr.OpenedAt.UnixMilli(), tr.ClosedAt.UnixMilli(),
			tr.EntryPrice, tr.ExitPrice, tr.Quantity, tr.PnLRatio, string(tr.ExitReason),
		); err != nil {
			return fmt.Errorf("insert trade %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordGridSearch(rec *GridSearchRecord) error {
	params, err := json.Marshal(rec.BestParams)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO grid_searches
		(id, created_at, symbol, policy, total, evaluated, skipped, failed,
		 best_index, best_params, best_equity, best_return, best_drawdown, elapsed_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, created.UnixMilli(), rec.Symbol, string(rec.Policy),
		rec.Total, rec.Evaluated, rec.Skipped, rec.Failed,
		rec.BestIndex, string(params),
		rec.BestSummary.FinalEquity, rec.BestSummary.TotalReturn, rec.BestSummary.MaxDrawdown,
		rec.Elapsed.Milliseconds(),
	)
	return err
}

func (r *SQLiteRecorder) RecordLiveEvent(evt *LiveEvent) error {
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO live_events
		(timestamp, symbol, kind, price, quantity, reason, pnl_ratio, advice, order_id)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		at.Unix(), evt.Symbol, evt.Kind, evt.Price, evt.Quantity,
		evt.Reason, evt.PnLRatio, evt.Advice, evt.OrderID,
	)
	return err
}

// GetRun loads a run and its trades.
func (r *SQLiteRecorder) GetRun(id string) (*RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		rec                   RunRecord
		policy, params        string
		created, fromTS, toTS int64
	)
	err := r.db.QueryRow(`SELECT id, created_at, source, symbol, policy, params, bars, from_ts, to_ts,
		total_trades, win_rate, total_return, max_drawdown, final_equity
		FROM backtest_runs WHERE id = ?`, id).Scan(
		&rec.ID, &created, &rec.Source, &rec.Symbol, &policy, &params, &rec.Bars, &fromTS, &toTS,
		&rec.Summary.TotalTrades, &rec.Summary.WinRate, &rec.Summary.TotalReturn,
		&rec.Summary.MaxDrawdown, &rec.Summary.FinalEquity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	rec.Policy = model.Policy(policy)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.From = time.UnixMilli(fromTS).UTC()
	rec.To = time.UnixMilli(toTS).UTC()
	if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	rows, err := r.db.Query(`SELECT opened_at, closed_at, entry_price, exit_price, quantity, pnl_ratio, exit_reason
		FROM trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tr             model.TradeRecord
			opened, closed int64
			reason         string
		)
		if err := rows.Scan(&opened, &closed, &tr.EntryPrice, &tr.ExitPrice, &tr.Quantity, &tr.PnLRatio, &reason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		tr.OpenedAt = time.UnixMilli(opened).UTC()
		tr.ClosedAt = time.UnixMilli(closed).UTC()
		tr.ExitReason = model.ExitReason(reason)
		rec.Trades = append(rec.Trades, tr)
	}
	return &rec, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
