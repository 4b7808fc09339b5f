package calculator

import (
	"fmt"
	"math"
)

// MACD computes the MACD line (EMA fast minus EMA slow) and its signal line.
// Both EMAs and the signal line use the same seed convention.
func MACD(closes []float64, fast, slow, signal int, seed SeedMode) (line, sig []float64, err error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, nil, fmt.Errorf("macd %d/%d/%d: %w", fast, slow, signal, errPeriod)
	}
	emaFast, err := EMA(closes, fast, seed)
	if err != nil {
		return nil, nil, err
	}
	emaSlow, err := EMA(closes, slow, seed)
	if err != nil {
		return nil, nil, err
	}
	line = nanSeries(len(closes))
	for i := range closes {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			continue
		}
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig, err = EMA(line, signal, seed)
	if err != nil {
		return nil, nil, err
	}
	return line, sig, nil
}
