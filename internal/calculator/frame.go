package calculator

import (
	"fmt"

	"TradeSentinel/internal/model"
)

// Options holds the conventions that differ between strategy variants.
type Options struct {
	Seed SeedMode  `json:"ema_seed" yaml:"ema_seed"`
	RSI  RSIMethod `json:"rsi_method" yaml:"rsi_method"`
}

// DefaultOptions returns the conventions used by a policy.
func DefaultOptions(policy model.Policy) Options {
	if policy == model.PolicyRule {
		return Options{Seed: SeedFirst, RSI: RSISimple}
	}
	return Options{Seed: SeedSMA, RSI: RSISimple}
}

// Compute derives one IndicatorFrame per bar. The bars are only read.
func Compute(bars []model.Bar, p model.Periods, opts Options) ([]model.IndicatorFrame, error) {
	closes := model.Closes(bars)

	emaShort, err := EMA(closes, p.EMAShort, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("ema short: %w", err)
	}
	emaLong, err := EMA(closes, p.EMALong, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("ema long: %w", err)
	}
	rsi, err := RSI(closes, p.RSI, opts.RSI)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	bands, err := Bollinger(closes, p.BB, p.BBStdDev)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	macd, signal, err := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	atr, err := ATR(bars, p.ATR)
	if err != nil {
		return nil, fmt.Errorf("atr: %w", err)
	}

	frames := make([]model.IndicatorFrame, len(bars))
	for i := range bars {
		frames[i] = model.IndicatorFrame{
			EMAShort:   emaShort[i],
			EMALong:    emaLong[i],
			RSI:        rsi[i],
			BBUpper:    bands.Upper[i],
			BBMiddle:   bands.Middle[i],
			BBLower:    bands.Lower[i],
			MACD:       macd[i],
			MACDSignal: signal[i],
			ATR:        atr[i],
		}
	}
	return frames, nil
}
