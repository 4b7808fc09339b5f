package model

import "math"

// Field identifies one value of an IndicatorFrame.
type Field int

const (
	FieldEMAShort Field = iota
	FieldEMALong
	FieldRSI
	FieldBBUpper
	FieldBBMiddle
	FieldBBLower
	FieldMACD
	FieldMACDSignal
	FieldATR
)

var fieldNames = [...]string{"ema_short", "ema_long", "rsi", "bb_upper", "bb_middle", "bb_lower", "macd", "macd_signal", "atr"}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return "unknown"
	}
	return fieldNames[f]
}

// IndicatorFrame holds the derived values for one bar. NaN means warm-up,
// so frames are not JSON encoded.
type IndicatorFrame struct {
	EMAShort   float64
	EMALong    float64
	RSI        float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	MACD       float64
	MACDSignal float64
	ATR        float64
}

// EmptyFrame returns a frame with every field undefined.
func EmptyFrame() IndicatorFrame {
	nan := math.NaN()
	return IndicatorFrame{nan, nan, nan, nan, nan, nan, nan, nan, nan}
}

// Value returns the value of a single field.
func (f IndicatorFrame) Value(field Field) float64 {
	switch field {
	case FieldEMAShort:
		return f.EMAShort
	case FieldEMALong:
		return f.EMALong
	case FieldRSI:
		return f.RSI
	case FieldBBUpper:
		return f.BBUpper
	case FieldBBMiddle:
		return f.BBMiddle
	case FieldBBLower:
		return f.BBLower
	case FieldMACD:
		return f.MACD
	case FieldMACDSignal:
		return f.MACDSignal
	case FieldATR:
		return f.ATR
	}
	return math.NaN()
}

// Ready reports whether every listed field is defined.
func (f IndicatorFrame) Ready(fields ...Field) bool {
	for _, field := range fields {
		if math.IsNaN(f.Value(field)) {
			return false
		}
	}
	return true
}
