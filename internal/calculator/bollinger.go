package calculator

import (
	"errors"
	"math"
)

// Bands holds the three Bollinger series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes rolling mean ± k population standard deviations.
func Bollinger(closes []float64, period int, k float64) (Bands, error) {
	if period <= 0 {
		return Bands{}, errPeriod
	}
	if k <= 0 || math.IsNaN(k) {
		return Bands{}, errors.New("band width must be positive")
	}
	middle, err := SMA(closes, period)
	if err != nil {
		return Bands{}, err
	}
	b := Bands{
		Upper:  nanSeries(len(closes)),
		Middle: middle,
		Lower:  nanSeries(len(closes)),
	}
	for i := period - 1; i < len(closes); i++ {
		mean := middle[i]
		sq := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			sq += d * d
		}
		std := math.Sqrt(sq / float64(period))
		b.Upper[i] = mean + k*std
		b.Lower[i] = mean - k*std
	}
	return b, nil
}
