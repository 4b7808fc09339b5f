package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"TradeSentinel/internal/analysis"
	"TradeSentinel/internal/api/models"
	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/recorder"
	"TradeSentinel/internal/strategy"
)

// BacktestHandler handles backtest-related requests
type BacktestHandler struct {
	env *Env
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(env *Env) *BacktestHandler {
	return &BacktestHandler{env: env}
}

// RunBacktest handles POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("INVALID_REQUEST", err))
		return
	}

	s, err := h.env.resolve(req.Policy)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Params != nil {
		s.params = *req.Params
	}
	if err := checkParams(s.policy, s.params); err != nil {
		respondError(c, err)
		return
	}

	symbol, bars, err := h.env.loadBars(c.Request.Context(), req.Data)
	if err != nil {
		respondError(c, err)
		return
	}

	scorer, err := strategy.New(s.policy, s.params)
	if err != nil {
		respondError(c, badRequest("INVALID_POLICY", err))
		return
	}
	engine := backtest.New(s.engine, backtest.WithLogger(h.env.Logger))
	result, err := engine.Run(bars, s.params, scorer)
	if err != nil {
		respondError(c, badRequest("BACKTEST_ERROR", err))
		return
	}
	summary := analysis.Summarize(result, s.basis)

	resp := models.BacktestResponse{
		ID:      uuid.NewString(),
		Symbol:  symbol,
		Policy:  s.policy,
		Params:  s.params,
		Summary: summary,
		Window:  models.TimeWindow{Start: bars[0].Time, End: bars[len(bars)-1].Time},
		Bars:    len(bars),
		Open:    result.OpenPosition,
	}
	if req.Options.IncludeTrades {
		resp.Trades = result.Trades
	}
	if req.Options.IncludeEquity {
		resp.Equity = result.EquityCurve
	}

	if err := h.env.Recorder.RecordRun(&recorder.RunRecord{
		ID:        resp.ID,
		Source:    "api",
		Symbol:    symbol,
		Policy:    s.policy,
		Params:    s.params,
		Summary:   summary,
		Trades:    result.Trades,
		Bars:      len(bars),
		From:      resp.Window.Start,
		To:        resp.Window.End,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		h.env.Logger.Error("record run", zap.String("id", resp.ID), zap.Error(err))
		resp.ID = ""
	}

	c.JSON(http.StatusOK, resp)
}
