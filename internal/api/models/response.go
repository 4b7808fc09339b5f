package models

import (
	"time"

	"TradeSentinel/internal/model"
)

// BacktestResponse represents the response from a backtest run
type BacktestResponse struct {
	ID      string                   `json:"id,omitempty"`
	Symbol  string                   `json:"symbol,omitempty"`
	Policy  model.Policy             `json:"policy"`
	Params  model.ParameterSet       `json:"params"`
	Summary model.PerformanceSummary `json:"summary"`
	Window  TimeWindow               `json:"window"`
	Bars    int                      `json:"bars"`
	Open    *model.Position          `json:"open_position,omitempty"`
	Trades  []model.TradeRecord      `json:"trades,omitempty"`
	Equity  []model.EquityPoint      `json:"equity,omitempty"`
}

// TimeWindow represents a time range
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// OptimizeResponse wraps a grid-search report
type OptimizeResponse struct {
	ID        string                   `json:"id"`
	Symbol    string                   `json:"symbol,omitempty"`
	Policy    model.Policy             `json:"policy"`
	Best      model.GridSearchResult   `json:"best"`
	Top       []model.GridSearchResult `json:"top"`
	Total     int                      `json:"total"`
	Evaluated int                      `json:"evaluated"`
	Skipped   int                      `json:"skipped"`
	Failures  []Failure                `json:"failures,omitempty"`
	ElapsedMS int64                    `json:"elapsed_ms"`
}

// Failure is one grid combination that could not be evaluated
type Failure struct {
	Index  int                `json:"index"`
	Params model.ParameterSet `json:"params"`
	Error  string             `json:"error"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewError builds an ErrorResponse.
func NewError(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}
