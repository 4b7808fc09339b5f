package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"TradeSentinel/internal/model"
)

var timeColumns = []string{"time", "timestamp", "date", "datetime", "candle_date_time_utc"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02 15:04",
	"20060102150405",
	"20060102",
}

// columns maps header names to field positions. Volume is optional.
type columns struct {
	time, open, high, low, close, volume int
}

func parseHeader(header []string) (columns, error) {
	c := columns{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch name {
		case "open", "opening_price":
			c.open = i
		case "high", "high_price":
			c.high = i
		case "low", "low_price":
			c.low = i
		case "close", "trade_price":
			c.close = i
		case "volume", "candle_acc_trade_volume":
			c.volume = i
		default:
			for _, tc := range timeColumns {
				if name == tc && c.time < 0 {
					c.time = i
				}
			}
		}
	}
	var missing []string
	for _, req := range []struct {
		name string
		idx  int
	}{{"time", c.time}, {"open", c.open}, {"high", c.high}, {"low", c.low}, {"close", c.close}} {
		if req.idx < 0 {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("csv header missing columns %v", missing)
	}
	return c, nil
}

// ParseTime accepts the layouts found in exported candle files and unix
// seconds or milliseconds. Times without a zone are read as UTC. Compact
// dates such as 20240101 match a layout before the unix fallback.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// ReadCSV decodes bars from r. UTF-8 and UTF-16 input with a byte order mark
// are both accepted. Row order is preserved.
func ReadCSV(r io.Reader) ([]model.Bar, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, model.ErrNoBars
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		bar, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, model.ErrNoBars
	}
	return bars, nil
}

func parseRow(rec []string, c columns) (model.Bar, error) {
	field := func(idx int) (string, error) {
		if idx >= len(rec) {
			return "", fmt.Errorf("row has %d fields, need column %d", len(rec), idx+1)
		}
		return strings.TrimSpace(rec[idx]), nil
	}
	num := func(idx int, name string) (float64, error) {
		s, err := field(idx)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}

	var bar model.Bar
	ts, err := field(c.time)
	if err != nil {
		return bar, err
	}
	if bar.Time, err = ParseTime(ts); err != nil {
		return bar, err
	}
	if bar.Open, err = num(c.open, "open"); err != nil {
		return bar, err
	}
	if bar.High, err = num(c.high, "high"); err != nil {
		return bar, err
	}
	if bar.Low, err = num(c.low, "low"); err != nil {
		return bar, err
	}
	if bar.Close, err = num(c.close, "close"); err != nil {
		return bar, err
	}
	if c.volume >= 0 {
		if bar.Volume, err = num(c.volume, "volume"); err != nil {
			return bar, err
		}
	}
	return bar, nil
}

// LoadCSV reads bars from a CSV file.
func LoadCSV(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// EncodeCSV writes bars with a time,open,high,low,close,volume header.
func EncodeCSV(w io.Writer, bars []model.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			b.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
