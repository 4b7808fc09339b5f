package model

import (
	"fmt"
	"math"
)

// WeightTolerance is the allowed deviation of a weight sum from 1.0.
const WeightTolerance = 1e-9

// Policy selects the signal scoring variant of a run.
type Policy string

const (
	PolicyWeighted Policy = "weighted"
	PolicyRule     Policy = "rule"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyWeighted, PolicyRule:
		return Policy(s), nil
	case "":
		return PolicyWeighted, nil
	}
	return "", fmt.Errorf("unknown policy %q", s)
}

// Periods holds indicator lookback settings.
type Periods struct {
	EMAShort   int     `json:"ema_short" yaml:"ema_short"`
	EMALong    int     `json:"ema_long" yaml:"ema_long"`
	RSI        int     `json:"rsi" yaml:"rsi"`
	BB         int     `json:"bb" yaml:"bb"`
	BBStdDev   float64 `json:"bb_std_dev" yaml:"bb_std_dev"`
	MACDFast   int     `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow   int     `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal int     `json:"macd_signal" yaml:"macd_signal"`
	ATR        int     `json:"atr" yaml:"atr"`
}

// Longest returns the largest lookback among the periods.
func (p Periods) Longest() int {
	longest := 0
	for _, v := range []int{p.EMAShort, p.EMALong, p.RSI + 1, p.BB, p.MACDSlow + p.MACDSignal, p.ATR} {
		if v > longest {
			longest = v
		}
	}
	return longest
}

// Weights are the per-factor weights of the weighted-score policy.
type Weights struct {
	EMA  float64 `json:"ema" yaml:"ema"`
	RSI  float64 `json:"rsi" yaml:"rsi"`
	BB   float64 `json:"bb" yaml:"bb"`
	MACD float64 `json:"macd" yaml:"macd"`
}

func (w Weights) Sum() float64 {
	return w.EMA + w.RSI + w.BB + w.MACD
}

// SumsToOne reports whether the weights add up to 1.0 within tol.
func (w Weights) SumsToOne(tol float64) bool {
	return math.Abs(w.Sum()-1.0) <= tol
}

// ParameterSet is the complete, explicit configuration of one backtest run.
type ParameterSet struct {
	Periods       Periods `json:"periods" yaml:"periods"`
	Weights       Weights `json:"weights" yaml:"weights"`
	BuyThreshold  float64 `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold float64 `json:"sell_threshold" yaml:"sell_threshold"`
	StopLoss      float64 `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit    float64 `json:"take_profit" yaml:"take_profit"`
	RSIOversold   float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
}

// DefaultParameterSet returns the reference parameters for a policy.
func DefaultParameterSet(policy Policy) ParameterSet {
	ps := ParameterSet{
		Periods: Periods{
			EMAShort: 12, EMALong: 26, RSI: 14,
			BB: 20, BBStdDev: 2.0,
			MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
			ATR: 14,
		},
		Weights:       Weights{EMA: 0.3, RSI: 0.2, BB: 0.2, MACD: 0.3},
		BuyThreshold:  0.3,
		SellThreshold: -0.3,
		StopLoss:      1.5,
		TakeProfit:    3.0,
		RSIOversold:   30,
		RSIOverbought: 70,
	}
	if policy == PolicyRule {
		ps.Periods.EMAShort = 15
		ps.Periods.EMALong = 20
		ps.StopLoss = 0.1
		ps.TakeProfit = 0.2
	}
	return ps
}

func (p ParameterSet) String() string {
	return fmt.Sprintf("ema=%d/%d rsi=%d bb=%d/%.1f macd=%d/%d/%d atr=%d w=%.2f/%.2f/%.2f/%.2f buy=%.2f sell=%.2f sl=%.3f tp=%.3f",
		p.Periods.EMAShort, p.Periods.EMALong, p.Periods.RSI, p.Periods.BB, p.Periods.BBStdDev,
		p.Periods.MACDFast, p.Periods.MACDSlow, p.Periods.MACDSignal, p.Periods.ATR,
		p.Weights.EMA, p.Weights.RSI, p.Weights.BB, p.Weights.MACD,
		p.BuyThreshold, p.SellThreshold, p.StopLoss, p.TakeProfit)
}
