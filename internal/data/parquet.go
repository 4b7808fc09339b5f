package data

import (
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"TradeSentinel/internal/model"
)

// BarRecord is the Parquet schema for OHLCV bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func toRecords(symbol string, bars []model.Bar) []BarRecord {
	out := make([]BarRecord, len(bars))
	for i, b := range bars {
		out[i] = BarRecord{
			Symbol:    symbol,
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return out
}

func fromRecords(records []BarRecord) []model.Bar {
	out := make([]model.Bar, len(records))
	for i, r := range records {
		out[i] = model.Bar{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out
}

// WriteParquet stores bars at path, creating parent directories.
func WriteParquet(path, symbol string, bars []model.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, toRecords(symbol, bars))
}

// LoadParquet reads bars written by WriteParquet. Row order is preserved.
func LoadParquet(path string) ([]model.Bar, error) {
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, model.ErrNoBars
	}
	return fromRecords(rows), nil
}
