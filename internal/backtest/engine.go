package backtest

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/strategy"
)

// Config holds the run settings that are not part of a ParameterSet.
type Config struct {
	InitialCash    float64            `json:"initial_cash" yaml:"initial_cash"`
	FeeRate        float64            `json:"fee_rate" yaml:"fee_rate"`
	RiskMode       position.RiskMode  `json:"risk_mode" yaml:"risk_mode"`
	DeployFraction float64            `json:"deploy_fraction" yaml:"deploy_fraction"`
	Indicators     calculator.Options `json:"indicators" yaml:"indicators"`
}

// DefaultConfig returns the settings each policy was designed with.
func DefaultConfig(policy model.Policy) Config {
	cfg := Config{
		InitialCash:    1_000_000,
		FeeRate:        0.001,
		RiskMode:       position.RiskATR,
		DeployFraction: 1,
		Indicators:     calculator.DefaultOptions(policy),
	}
	if policy == model.PolicyRule {
		cfg.FeeRate = 0.0005
		cfg.RiskMode = position.RiskPercent
	}
	return cfg
}

func (c Config) risk(params model.ParameterSet) position.Config {
	return position.Config{
		Mode:           c.RiskMode,
		StopLoss:       params.StopLoss,
		TakeProfit:     params.TakeProfit,
		FeeRate:        c.FeeRate,
		DeployFraction: c.DeployFraction,
	}
}

// EventSink receives every position transition of a run, in order.
type EventSink func(model.Transition)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-trade debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventSink forwards transitions to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// Engine is the backtest simulator. It holds no per-run state and may be
// shared by concurrent runs as long as its sink is safe for that.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	sink   EventSink
}

func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Run validates the bars, computes indicators for params and simulates.
func (e *Engine) Run(bars []model.Bar, params model.ParameterSet, scorer strategy.Scorer) (*model.BacktestResult, error) {
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("validate bars: %w", err)
	}
	frames, err := calculator.Compute(bars, params.Periods, e.cfg.Indicators)
	if err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}
	return e.simulate(bars, frames, params, scorer)
}

// RunFrames simulates over precomputed, index-aligned indicator frames.
func (e *Engine) RunFrames(bars []model.Bar, frames []model.IndicatorFrame, params model.ParameterSet, scorer strategy.Scorer) (*model.BacktestResult, error) {
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("validate bars: %w", err)
	}
	return e.simulate(bars, frames, params, scorer)
}

func (e *Engine) simulate(bars []model.Bar, frames []model.IndicatorFrame, params model.ParameterSet, scorer strategy.Scorer) (*model.BacktestResult, error) {
	if scorer == nil {
		return nil, errors.New("scorer is nil")
	}
	if len(frames) != len(bars) {
		return nil, fmt.Errorf("have %d frames for %d bars", len(frames), len(bars))
	}
	pm, err := position.NewManager(e.cfg.risk(params), e.cfg.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}

	curve := make([]model.EquityPoint, 0, len(bars))
	peak := 0.0
	for i, bar := range bars {
		state := pm.State()
		equity := pm.Equity(bar.Close)
		if equity > peak {
			peak = equity
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - equity) / peak
		}

		sig := scorer.Decide(strategy.Input{Bar: bar, Frame: frames[i], Open: state == model.StateOpen})
		if tr, ok := pm.Step(bar, frames[i], sig); ok {
			e.logger.Debug("position transition",
				zap.Int("bar", i),
				zap.String("kind", string(tr.Kind)),
				zap.String("reason", string(tr.Reason)),
				zap.Float64("price", tr.Price),
				zap.Float64("quantity", tr.Quantity),
			)
			if e.sink != nil {
				e.sink(tr)
			}
		}

		curve = append(curve, model.EquityPoint{
			Time:     bar.Time,
			Close:    bar.Close,
			Equity:   equity,
			Peak:     peak,
			Drawdown: drawdown,
			State:    state,
		})
	}

	last := bars[len(bars)-1]
	res := &model.BacktestResult{
		InitialCash: e.cfg.InitialCash,
		FinalCash:   pm.Cash(),
		FinalEquity: pm.Equity(last.Close),
		Trades:      pm.Trades(),
		EquityCurve: curve,
	}
	if p, open := pm.Position(); open {
		res.OpenPosition = &p
	}
	return res, nil
}
