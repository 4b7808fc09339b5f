package calculator

import (
	"errors"
	"fmt"
	"math"
)

var errPeriod = errors.New("period must be positive")

// SeedMode selects how an EMA is started.
type SeedMode string

const (
	// SeedFirst starts the recursion at the first defined value.
	SeedFirst SeedMode = "first"
	// SeedSMA starts the recursion at the simple mean of the first period values.
	SeedSMA SeedMode = "sma"
)

// ParseSeedMode maps a config string to a SeedMode.
func ParseSeedMode(s string) (SeedMode, error) {
	switch SeedMode(s) {
	case SeedFirst, SeedSMA:
		return SeedMode(s), nil
	}
	return "", fmt.Errorf("unknown ema seed %q", s)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the rolling simple moving average. Values before the window
// fills are NaN.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	out := nanSeries(len(values))
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(period)
	}
	return out, nil
}

// EMA computes an exponential moving average with smoothing 2/(period+1).
// Leading NaNs in values are skipped, so EMA can be applied to another
// indicator's output.
func EMA(values []float64, period int, seed SeedMode) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	out := nanSeries(len(values))

	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if start == len(values) {
		return out, nil
	}

	alpha := 2.0 / float64(period+1)
	switch seed {
	case SeedFirst:
		out[start] = values[start]
	case SeedSMA:
		if len(values)-start < period {
			return out, nil
		}
		sum := 0.0
		for j := start; j < start+period; j++ {
			sum += values[j]
		}
		start += period - 1
		out[start] = sum / float64(period)
	default:
		return nil, fmt.Errorf("unknown ema seed %q", seed)
	}

	for i := start + 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out, nil
}
