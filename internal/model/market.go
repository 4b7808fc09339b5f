package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Bar represents a single candlestick bar.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries holds raw price data for one symbol.
type PriceSeries struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Bars      []Bar     `json:"bars"`
	FetchedAt time.Time `json:"fetched_at"`
}

var (
	ErrNoBars             = errors.New("no bars")
	ErrNonMonotonic       = errors.New("timestamps not strictly increasing")
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	ErrMalformedBar       = errors.New("malformed bar")
)

// BarError reports which bar failed validation.
type BarError struct {
	Index int
	Time  time.Time
	Err   error
}

func (e *BarError) Error() string {
	return fmt.Sprintf("bar %d (%s): %v", e.Index, e.Time.Format(time.RFC3339), e.Err)
}

func (e *BarError) Unwrap() error { return e.Err }

// ValidateBars checks ordering and price sanity. It never reorders or
// deduplicates the input.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return ErrNoBars
	}
	for i, b := range bars {
		if err := checkPrices(b); err != nil {
			return &BarError{Index: i, Time: b.Time, Err: err}
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1].Time
		switch {
		case b.Time.Equal(prev):
			return &BarError{Index: i, Time: b.Time, Err: ErrDuplicateTimestamp}
		case b.Time.Before(prev):
			return &BarError{Index: i, Time: b.Time, Err: ErrNonMonotonic}
		}
	}
	return nil
}

func checkPrices(b Bar) error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrMalformedBar)
		}
	}
	if b.Close <= 0 {
		return fmt.Errorf("%w: close %.8g must be positive", ErrMalformedBar, b.Close)
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %.8g below low %.8g", ErrMalformedBar, b.High, b.Low)
	}
	return nil
}

// Closes extracts the close prices into a new slice.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
