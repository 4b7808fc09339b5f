package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"TradeSentinel/internal/analysis"
	"TradeSentinel/internal/api/models"
	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/data"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/optimizer"
	"TradeSentinel/internal/recorder"
)

// Env carries what the handlers share.
type Env struct {
	Config   *config.Config
	Recorder recorder.Recorder
	Logger   *zap.Logger
	// NewFetcher resolves a market data source by name.
	NewFetcher func(source string) (collector.Fetcher, error)
}

// NewEnv fills in defaults for the optional fields.
func NewEnv(cfg *config.Config, rec recorder.Recorder, logger *zap.Logger) *Env {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		Config:   cfg,
		Recorder: rec,
		Logger:   logger,
		NewFetcher: func(source string) (collector.Fetcher, error) {
			return collector.New(source, cfg.Proxy)
		},
	}
}

// apiError carries the HTTP status and code of a failed step.
type apiError struct {
	status int
	code   string
	err    error
}

func (e *apiError) Error() string { return e.err.Error() }
func (e *apiError) Unwrap() error { return e.err }

func badRequest(code string, err error) error {
	return &apiError{status: http.StatusBadRequest, code: code, err: err}
}

// respondError writes err as an ErrorResponse.
func respondError(c *gin.Context, err error) {
	var ae *apiError
	if !errors.As(err, &ae) {
		ae = &apiError{status: http.StatusInternalServerError, code: "INTERNAL_ERROR", err: err}
	}
	resp := models.NewError(ae.code, ae.err.Error())
	var be *model.BarError
	if errors.As(err, &be) {
		resp.Error.Details = map[string]interface{}{"bar_index": be.Index, "bar_time": be.Time}
	}
	_ = c.Error(err)
	c.JSON(ae.status, resp)
}

// setup is the resolved run configuration of one request.
type setup struct {
	policy model.Policy
	params model.ParameterSet
	engine backtest.Config
	basis  analysis.ReturnBasis
	grid   optimizer.Grid
}

// resolve uses the server config for its own policy and the reference
// defaults for the other one.
func (e *Env) resolve(policyName string) (setup, error) {
	policy := e.Config.Policy()
	if policyName != "" {
		p, err := model.ParsePolicy(policyName)
		if err != nil {
			return setup{}, badRequest("INVALID_POLICY", err)
		}
		policy = p
	}
	if policy == e.Config.Policy() {
		return setup{
			policy: policy,
			params: e.Config.Params,
			engine: e.Config.EngineConfig(),
			basis:  analysis.ReturnBasis(e.Config.Backtest.ReturnBasis),
			grid:   e.Config.SearchGrid(),
		}, nil
	}
	return setup{
		policy: policy,
		params: model.DefaultParameterSet(policy),
		engine: backtest.DefaultConfig(policy),
		basis:  analysis.DefaultReturnBasis(policy),
		grid:   optimizer.DefaultGrid(policy),
	}, nil
}

func checkParams(policy model.Policy, ps model.ParameterSet) error {
	if policy == model.PolicyWeighted && !ps.Weights.SumsToOne(model.WeightTolerance) {
		return badRequest("INVALID_PARAMS", fmt.Errorf("weights must sum to 1, got %v", ps.Weights.Sum()))
	}
	if !(ps.StopLoss > 0 && ps.TakeProfit > 0) {
		return badRequest("INVALID_PARAMS", fmt.Errorf("stop_loss and take_profit must be positive"))
	}
	return nil
}

// loadBars resolves a DataSpec into validated bars and a symbol label.
func (e *Env) loadBars(ctx context.Context, spec models.DataSpec) (string, []model.Bar, error) {
	symbol := spec.Symbol
	switch {
	case len(spec.Bars) > 0:
		if err := model.ValidateBars(spec.Bars); err != nil {
			return "", nil, badRequest("INVALID_DATA", err)
		}
		return symbol, spec.Bars, nil

	case spec.File != "":
		dir := e.Config.Server.DataDir
		if dir == "" {
			return "", nil, badRequest("INVALID_DATA", errors.New("file data is disabled on this server"))
		}
		// Only plain names inside the data directory are served.
		path := filepath.Join(dir, filepath.Base(spec.File))
		bars, err := data.Load(path)
		if err != nil {
			return "", nil, badRequest("INVALID_DATA", err)
		}
		if symbol == "" {
			symbol = filepath.Base(spec.File)
		}
		return symbol, bars, nil

	case spec.Source != "":
		fetcher, err := e.NewFetcher(spec.Source)
		if err != nil {
			return "", nil, badRequest("INVALID_DATA", err)
		}
		if symbol == "" {
			symbol = e.Config.Data.Symbol
		}
		interval, count := spec.Interval, spec.Count
		if interval == "" {
			interval = e.Config.Data.Interval
		}
		if count <= 0 {
			count = e.Config.Data.Count
		}
		series, err := collector.NewCollector(fetcher, symbol, interval, count, e.Logger).Collect(ctx)
		if err != nil {
			return "", nil, &apiError{status: http.StatusBadGateway, code: "DATA_FETCH_ERROR", err: err}
		}
		return series.Symbol, series.Bars, nil
	}
	return "", nil, badRequest("INVALID_DATA", errors.New("one of data.bars, data.file or data.source is required"))
}
