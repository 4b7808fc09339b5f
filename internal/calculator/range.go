package calculator

import (
	"math"

	"TradeSentinel/internal/model"
)

// TrueRange returns the true range of every bar. The first bar has no
// previous close and uses high minus low.
func TrueRange(bars []model.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		r := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			r = math.Max(r, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		tr[i] = r
	}
	return tr
}

// ATR computes the rolling mean of the true range.
func ATR(bars []model.Bar, period int) ([]float64, error) {
	return SMA(TrueRange(bars), period)
}

// HighLow scans the most recent lookback bars and returns the high and low.
func HighLow(bars []model.Bar, lookback int) (high, low float64) {
	n := len(bars)
	start := n - lookback
	if start < 0 || lookback <= 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low
}
