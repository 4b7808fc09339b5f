package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"TradeSentinel/internal/api/models"
	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/optimizer"
	"TradeSentinel/internal/recorder"
)

// OptimizeHandler runs grid searches.
type OptimizeHandler struct {
	env *Env
}

func NewOptimizeHandler(env *Env) *OptimizeHandler {
	return &OptimizeHandler{env: env}
}

// RunOptimize handles POST /api/v1/optimize
func (h *OptimizeHandler) RunOptimize(c *gin.Context) {
	var req models.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("INVALID_REQUEST", err))
		return
	}

	s, err := h.env.resolve(req.Policy)
	if err != nil {
		respondError(c, err)
		return
	}
	grid := s.grid
	if req.Grid != nil {
		grid = *req.Grid
	}
	grid.Base = s.params
	if req.Params != nil {
		grid.Base = *req.Params
	}
	if _, err := grid.Size(); err != nil {
		respondError(c, badRequest("INVALID_GRID", err))
		return
	}

	symbol, bars, err := h.env.loadBars(c.Request.Context(), req.Data)
	if err != nil {
		respondError(c, err)
		return
	}

	settings := optimizer.Settings{
		Policy:  s.policy,
		Workers: h.env.Config.Optimizer.Workers,
		Basis:   s.basis,
		TopN:    h.env.Config.Optimizer.TopN,
	}
	if req.Workers > 0 {
		settings.Workers = req.Workers
	}
	if req.TopN > 0 {
		settings.TopN = req.TopN
	}
	opt := optimizer.New(backtest.New(s.engine), settings, optimizer.WithLogger(h.env.Logger))
	rep, err := opt.Run(c.Request.Context(), bars, grid)
	switch {
	case errors.Is(err, optimizer.ErrNoFeasibleParameters), errors.Is(err, optimizer.ErrNoSuccessfulRuns):
		respondError(c, &apiError{status: http.StatusUnprocessableEntity, code: "NO_RESULT", err: err})
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(c, &apiError{status: http.StatusServiceUnavailable, code: "CANCELLED", err: err})
		return
	case err != nil:
		respondError(c, badRequest("OPTIMIZE_ERROR", err))
		return
	}

	if err := h.env.Recorder.RecordGridSearch(&recorder.GridSearchRecord{
		ID:          rep.ID,
		Symbol:      symbol,
		Policy:      rep.Policy,
		Total:       rep.Total,
		Evaluated:   rep.Evaluated,
		Skipped:     rep.Skipped,
		Failed:      len(rep.Failures),
		BestIndex:   rep.Best.Index,
		BestParams:  rep.Best.Params,
		BestSummary: rep.Best.Summary,
		Elapsed:     rep.Elapsed,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		h.env.Logger.Error("record grid search", zap.String("id", rep.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, toOptimizeResponse(symbol, rep))
}

func toOptimizeResponse(symbol string, rep *optimizer.Report) models.OptimizeResponse {
	resp := models.OptimizeResponse{
		ID:        rep.ID,
		Symbol:    symbol,
		Policy:    rep.Policy,
		Best:      rep.Best,
		Top:       rep.Top,
		Total:     rep.Total,
		Evaluated: rep.Evaluated,
		Skipped:   rep.Skipped,
		ElapsedMS: rep.Elapsed.Milliseconds(),
	}
	resp.Best.Result = nil
	for _, f := range rep.Failures {
		resp.Failures = append(resp.Failures, models.Failure{Index: f.Index, Params: f.Params, Error: f.Err})
	}
	return resp
}
