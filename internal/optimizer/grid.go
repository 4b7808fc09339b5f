package optimizer

import (
	"fmt"

	"TradeSentinel/internal/model"
)

// MaxCombinations bounds the size of a single grid.
const MaxCombinations = 1 << 24

// Grid lists candidate values per parameter. An empty list keeps the Base
// value for that parameter.
type Grid struct {
	Base model.ParameterSet `json:"base" yaml:"base"`

	EMAShort   []int     `json:"ema_short,omitempty" yaml:"ema_short"`
	EMALong    []int     `json:"ema_long,omitempty" yaml:"ema_long"`
	RSI        []int     `json:"rsi,omitempty" yaml:"rsi"`
	BB         []int     `json:"bb,omitempty" yaml:"bb"`
	BBStdDev   []float64 `json:"bb_std_dev,omitempty" yaml:"bb_std_dev"`
	MACDFast   []int     `json:"macd_fast,omitempty" yaml:"macd_fast"`
	MACDSlow   []int     `json:"macd_slow,omitempty" yaml:"macd_slow"`
	MACDSignal []int     `json:"macd_signal,omitempty" yaml:"macd_signal"`
	ATR        []int     `json:"atr,omitempty" yaml:"atr"`

	WeightEMA  []float64 `json:"weight_ema,omitempty" yaml:"weight_ema"`
	WeightRSI  []float64 `json:"weight_rsi,omitempty" yaml:"weight_rsi"`
	WeightBB   []float64 `json:"weight_bb,omitempty" yaml:"weight_bb"`
	WeightMACD []float64 `json:"weight_macd,omitempty" yaml:"weight_macd"`

	BuyThreshold  []float64 `json:"buy_threshold,omitempty" yaml:"buy_threshold"`
	SellThreshold []float64 `json:"sell_threshold,omitempty" yaml:"sell_threshold"`
	StopLoss      []float64 `json:"stop_loss,omitempty" yaml:"stop_loss"`
	TakeProfit    []float64 `json:"take_profit,omitempty" yaml:"take_profit"`
}

// DefaultGrid returns the reference candidate lists of a policy.
func DefaultGrid(policy model.Policy) Grid {
	if policy == model.PolicyRule {
		return Grid{
			Base:       model.DefaultParameterSet(policy),
			EMAShort:   []int{10, 15},
			EMALong:    []int{20, 30},
			RSI:        []int{14, 21},
			BB:         []int{10, 20},
			StopLoss:   []float64{0.01, 0.1},
			TakeProfit: []float64{0.02, 0.2},
		}
	}
	return Grid{
		Base:          model.DefaultParameterSet(policy),
		WeightEMA:     []float64{0.2, 0.3, 0.4},
		WeightRSI:     []float64{0.1, 0.2, 0.3},
		WeightBB:      []float64{0.2, 0.3, 0.4},
		WeightMACD:    []float64{0.2, 0.3, 0.4},
		BuyThreshold:  []float64{0.2, 0.3, 0.4},
		SellThreshold: []float64{-0.2, -0.3, -0.4},
		StopLoss:      []float64{1.0, 1.5, 2.0},
		TakeProfit:    []float64{2.0, 3.0, 4.0},
	}
}

type axis struct {
	name string
	n    int
	set  func(ps *model.ParameterSet, i int)
}

func intAxis(name string, vals []int, field func(*model.ParameterSet) *int) axis {
	return axis{name: name, n: len(vals), set: func(ps *model.ParameterSet, i int) { *field(ps) = vals[i] }}
}

func floatAxis(name string, vals []float64, field func(*model.ParameterSet) *float64) axis {
	return axis{name: name, n: len(vals), set: func(ps *model.ParameterSet, i int) { *field(ps) = vals[i] }}
}

// axes lists the non-empty axes in enumeration order; the last one varies fastest.
func (g Grid) axes() []axis {
	all := []axis{
		intAxis("ema_short", g.EMAShort, func(p *model.ParameterSet) *int { return &p.Periods.EMAShort }),
		intAxis("ema_long", g.EMALong, func(p *model.ParameterSet) *int { return &p.Periods.EMALong }),
		intAxis("rsi", g.RSI, func(p *model.ParameterSet) *int { return &p.Periods.RSI }),
		intAxis("bb", g.BB, func(p *model.ParameterSet) *int { return &p.Periods.BB }),
		floatAxis("bb_std_dev", g.BBStdDev, func(p *model.ParameterSet) *float64 { return &p.Periods.BBStdDev }),
		intAxis("macd_fast", g.MACDFast, func(p *model.ParameterSet) *int { return &p.Periods.MACDFast }),
		intAxis("macd_slow", g.MACDSlow, func(p *model.ParameterSet) *int { return &p.Periods.MACDSlow }),
		intAxis("macd_signal", g.MACDSignal, func(p *model.ParameterSet) *int { return &p.Periods.MACDSignal }),
		intAxis("atr", g.ATR, func(p *model.ParameterSet) *int { return &p.Periods.ATR }),
		floatAxis("weight_ema", g.WeightEMA, func(p *model.ParameterSet) *float64 { return &p.Weights.EMA }),
		floatAxis("weight_rsi", g.WeightRSI, func(p *model.ParameterSet) *float64 { return &p.Weights.RSI }),
		floatAxis("weight_bb", g.WeightBB, func(p *model.ParameterSet) *float64 { return &p.Weights.BB }),
		floatAxis("weight_macd", g.WeightMACD, func(p *model.ParameterSet) *float64 { return &p.Weights.MACD }),
		floatAxis("buy_threshold", g.BuyThreshold, func(p *model.ParameterSet) *float64 { return &p.BuyThreshold }),
		floatAxis("sell_threshold", g.SellThreshold, func(p *model.ParameterSet) *float64 { return &p.SellThreshold }),
		floatAxis("stop_loss", g.StopLoss, func(p *model.ParameterSet) *float64 { return &p.StopLoss }),
		floatAxis("take_profit", g.TakeProfit, func(p *model.ParameterSet) *float64 { return &p.TakeProfit }),
	}
	out := all[:0]
	for _, a := range all {
		if a.n > 0 {
			out = append(out, a)
		}
	}
	return out
}

// Axes names the parameters the grid varies, in enumeration order.
func (g Grid) Axes() []string {
	axes := g.axes()
	names := make([]string, len(axes))
	for i, a := range axes {
		names[i] = a.name
	}
	return names
}

// Size returns the number of combinations in the Cartesian product.
func (g Grid) Size() (int, error) {
	size := 1
	for _, a := range g.axes() {
		if size > MaxCombinations/a.n {
			return 0, fmt.Errorf("grid exceeds %d combinations at axis %s", MaxCombinations, a.name)
		}
		size *= a.n
	}
	return size, nil
}

// At decodes an enumeration index into its ParameterSet.
func (g Grid) At(index int) model.ParameterSet {
	ps := g.Base
	axes := g.axes()
	for k := len(axes) - 1; k >= 0; k-- {
		a := axes[k]
		a.set(&ps, index%a.n)
		index /= a.n
	}
	return ps
}
