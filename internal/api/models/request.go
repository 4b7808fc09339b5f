package models

import (
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/optimizer"
)

// DataSpec selects the bars of a request. Exactly one of Bars, File or
// Source is used, in that order of precedence.
type DataSpec struct {
	Bars     []model.Bar `json:"bars,omitempty"`
	File     string      `json:"file,omitempty"`   // name inside the server's data directory
	Source   string      `json:"source,omitempty"` // "upbit", "yahoo", "mock"
	Symbol   string      `json:"symbol,omitempty"`
	Interval string      `json:"interval,omitempty"`
	Count    int         `json:"count,omitempty"`
}

// BacktestRequest represents the request body for running a backtest
type BacktestRequest struct {
	Data    DataSpec            `json:"data"`
	Policy  string              `json:"policy,omitempty"`
	Params  *model.ParameterSet `json:"params,omitempty"`
	Options BacktestOptions     `json:"options,omitempty"`
}

// BacktestOptions contains optional backtest parameters
type BacktestOptions struct {
	IncludeTrades bool `json:"include_trades,omitempty"`
	IncludeEquity bool `json:"include_equity,omitempty"`
}

// OptimizeRequest represents the request body for a grid search
type OptimizeRequest struct {
	Data    DataSpec            `json:"data"`
	Policy  string              `json:"policy,omitempty"`
	Params  *model.ParameterSet `json:"params,omitempty"` // grid base
	Grid    *optimizer.Grid     `json:"grid,omitempty"`
	Workers int                 `json:"workers,omitempty"`
	TopN    int                 `json:"top_n,omitempty"`
}
