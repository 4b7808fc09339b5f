package strategy

import (
	"fmt"

	"TradeSentinel/internal/model"
)

// scoreEMACross: short EMA above long EMA is bullish.
func scoreEMACross(f model.IndicatorFrame, weight float64) model.FactorScore {
	var raw float64
	switch {
	case f.EMAShort > f.EMALong:
		raw = 1
	case f.EMAShort < f.EMALong:
		raw = -1
	}
	return model.FactorScore{
		Name:       "ema_cross",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("ema %.2f / %.2f", f.EMAShort, f.EMALong),
	}
}

// scoreRSIExtremes: oversold is bullish, overbought is bearish.
func scoreRSIExtremes(f model.IndicatorFrame, weight, oversold, overbought float64) model.FactorScore {
	var raw float64
	switch {
	case f.RSI < oversold:
		raw = 1
	case f.RSI > overbought:
		raw = -1
	}
	return model.FactorScore{
		Name:       "rsi_extremes",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("rsi=%.1f", f.RSI),
	}
}

// scoreBollingerBreach: a close below the lower band is bullish, above the
// upper band bearish.
func scoreBollingerBreach(f model.IndicatorFrame, close, weight float64) model.FactorScore {
	var raw float64
	switch {
	case close < f.BBLower:
		raw = 1
	case close > f.BBUpper:
		raw = -1
	}
	return model.FactorScore{
		Name:       "bollinger_breach",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("close %.2f in [%.2f, %.2f]", close, f.BBLower, f.BBUpper),
	}
}

// scoreMACDCross: MACD line above its signal line is bullish.
func scoreMACDCross(f model.IndicatorFrame, weight float64) model.FactorScore {
	var raw float64
	switch {
	case f.MACD > f.MACDSignal:
		raw = 1
	case f.MACD < f.MACDSignal:
		raw = -1
	}
	return model.FactorScore{
		Name:       "macd_cross",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("macd %.4f / %.4f", f.MACD, f.MACDSignal),
	}
}

// condition is a pass/fail factor of the rule-conjunction policy.
func condition(name string, ok bool, commentary string) model.FactorScore {
	raw := 0.0
	if ok {
		raw = 1
	}
	return model.FactorScore{Name: name, RawScore: raw, Weight: 1, Weighted: raw, Commentary: commentary}
}
