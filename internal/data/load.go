// Package data loads and stores historical bars as CSV, JSON or Parquet.
package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"TradeSentinel/internal/model"
)

// Format names a file encoding for bars.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unsupported bar file %q", path)
}

// Load reads bars from path and validates their ordering.
func Load(path string) ([]model.Bar, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	var bars []model.Bar
	switch format {
	case FormatCSV:
		bars, err = LoadCSV(path)
	case FormatJSON:
		bars, err = LoadJSON(path)
	case FormatParquet:
		bars, err = LoadParquet(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return bars, nil
}

// Save writes a series to path in the format implied by its extension.
func Save(path string, series model.PriceSeries) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if format == FormatParquet {
		return WriteParquet(path, series.Symbol, series.Bars)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if format == FormatJSON {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(series); err != nil {
			return err
		}
	} else if err := EncodeCSV(f, series.Bars); err != nil {
		return err
	}
	return f.Close()
}

// LoadJSON accepts either a bare array of bars or a PriceSeries object.
func LoadJSON(path string) ([]model.Bar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var bars []model.Bar
		if err := json.Unmarshal(raw, &bars); err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, model.ErrNoBars
		}
		return bars, nil
	}
	var series model.PriceSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, err
	}
	if len(series.Bars) == 0 {
		return nil, model.ErrNoBars
	}
	return series.Bars, nil
}
