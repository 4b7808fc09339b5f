package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"TradeSentinel/internal/model"
)

// WriteTradesCSV writes one row per completed trade.
func WriteTradesCSV(path string, trades []model.TradeRecord) error {
	return writeFile(path, func(w io.Writer) error { return EncodeTradesCSV(w, trades) })
}

// WriteEquityCSV writes the equity curve.
func WriteEquityCSV(path string, curve []model.EquityPoint) error {
	return writeFile(path, func(w io.Writer) error { return EncodeEquityCSV(w, curve) })
}

func EncodeTradesCSV(out io.Writer, trades []model.TradeRecord) error {
	w := csv.NewWriter(out)
	header := []string{"index", "opened_at", "closed_at", "entry_price", "exit_price", "quantity", "pnl_ratio", "exit_reason"}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, tr := range trades {
		row := []string{
			strconv.Itoa(i),
			fmtTime(tr.OpenedAt),
			fmtTime(tr.ClosedAt),
			fmtFloat(tr.EntryPrice),
			fmtFloat(tr.ExitPrice),
			fmtFloat(tr.Quantity),
			fmtFloat(tr.PnLRatio),
			string(tr.ExitReason),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func EncodeEquityCSV(out io.Writer, curve []model.EquityPoint) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"time", "close", "equity", "peak", "drawdown", "state"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			fmtTime(p.Time),
			fmtFloat(p.Close),
			fmtFloat(p.Equity),
			fmtFloat(p.Peak),
			fmtFloat(p.Drawdown),
			string(p.State),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeFile(path string, encode func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
