package model

import "time"

// EquityPoint is one entry of the equity curve.
type EquityPoint struct {
	Time     time.Time     `json:"time"`
	Close    float64       `json:"close"`
	Equity   float64       `json:"equity"`
	Peak     float64       `json:"peak"`
	Drawdown float64       `json:"drawdown"`
	State    PositionState `json:"state"`
}

// BacktestResult is the outcome of one simulator run.
type BacktestResult struct {
	InitialCash  float64       `json:"initial_cash"`
	FinalCash    float64       `json:"final_cash"`
	FinalEquity  float64       `json:"final_equity"`
	Trades       []TradeRecord `json:"trades"`
	EquityCurve  []EquityPoint `json:"equity_curve,omitempty"`
	OpenPosition *Position     `json:"open_position,omitempty"`
}

// Equities returns the plain equity values of the curve.
func (r *BacktestResult) Equities() []float64 {
	out := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		out[i] = p.Equity
	}
	return out
}

// PerformanceSummary holds statistics derived from a BacktestResult.
type PerformanceSummary struct {
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
	FinalEquity float64 `json:"final_equity"`
}

// GridSearchResult is one evaluated grid combination.
type GridSearchResult struct {
	Index   int                `json:"index"`
	Params  ParameterSet       `json:"params"`
	Result  *BacktestResult    `json:"result,omitempty"`
	Summary PerformanceSummary `json:"summary"`
}
