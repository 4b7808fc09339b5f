package recorder

import (
	"errors"
	"time"

	"TradeSentinel/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunRecord is one completed backtest.
type RunRecord struct {
	ID        string                   `json:"id"`
	Source    string                   `json:"source"` // "cli", "api", "optimizer"
	Symbol    string                   `json:"symbol"`
	Policy    model.Policy             `json:"policy"`
	Params    model.ParameterSet       `json:"params"`
	Summary   model.PerformanceSummary `json:"summary"`
	Trades    []model.TradeRecord      `json:"trades"`
	Bars      int                      `json:"bars"`
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	CreatedAt time.Time                `json:"created_at"`
}

// GridSearchRecord summarises one optimizer run.
type GridSearchRecord struct {
	ID          string                   `json:"id"`
	Symbol      string                   `json:"symbol"`
	Policy      model.Policy             `json:"policy"`
	Total       int                      `json:"total"`
	Evaluated   int                      `json:"evaluated"`
	Skipped     int                      `json:"skipped"`
	Failed      int                      `json:"failed"`
	BestIndex   int                      `json:"best_index"`
	BestParams  model.ParameterSet       `json:"best_params"`
	BestSummary model.PerformanceSummary `json:"best_summary"`
	Elapsed     time.Duration            `json:"elapsed"`
	CreatedAt   time.Time                `json:"created_at"`
}

// LiveEvent records a position transition taken by the live runner.
type LiveEvent struct {
	Symbol   string    `json:"symbol"`
	Kind     string    `json:"kind"` // "open" or "close"
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Reason   string    `json:"reason"`
	PnLRatio float64   `json:"pnl_ratio"`
	Advice   string    `json:"advice"`
	OrderID  string    `json:"order_id"`
	At       time.Time `json:"at"`
}

// Recorder persists run history for later analysis.
type Recorder interface {
	RecordRun(rec *RunRecord) error
	RecordGridSearch(rec *GridSearchRecord) error
	RecordLiveEvent(evt *LiveEvent) error
	GetRun(id string) (*RunRecord, error)
	Close() error
}
