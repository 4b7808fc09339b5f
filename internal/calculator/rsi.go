package calculator

import "fmt"

// RSIMethod selects how gains and losses are averaged.
type RSIMethod string

const (
	// RSISimple averages the last period deltas with a plain rolling mean.
	RSISimple RSIMethod = "simple"
	// RSIWilder seeds with the simple mean and then applies Wilder smoothing.
	RSIWilder RSIMethod = "wilder"
)

// ParseRSIMethod maps a config string to an RSIMethod.
func ParseRSIMethod(s string) (RSIMethod, error) {
	switch RSIMethod(s) {
	case RSISimple, RSIWilder:
		return RSIMethod(s), nil
	}
	return "", fmt.Errorf("unknown rsi method %q", s)
}

// RSI computes the relative strength index for every close. The value at
// index i needs period deltas, so indices below period are NaN.
// A window with gains and no losses yields 100; a window with no movement
// at all yields the neutral 50.
func RSI(closes []float64, period int, method RSIMethod) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	if method != RSISimple && method != RSIWilder {
		return nil, fmt.Errorf("unknown rsi method %q", method)
	}
	out := nanSeries(len(closes))
	if len(closes) < period+1 {
		return out, nil
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		switch method {
		case RSIWilder:
			avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		default:
			// Re-summed per window so the result does not drift.
			avgGain, avgLoss = 0, 0
			for j := i - period + 1; j <= i; j++ {
				avgGain += gains[j]
				avgLoss += losses[j]
			}
			avgGain /= float64(period)
			avgLoss /= float64(period)
		}
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}
