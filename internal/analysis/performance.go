package analysis

import (
	"fmt"

	"TradeSentinel/internal/model"
)

// ReturnBasis selects how total return is measured.
type ReturnBasis string

const (
	// ReturnTrades sums the per-trade pnl ratios.
	ReturnTrades ReturnBasis = "trades"
	// ReturnEquity compares final equity with the initial cash.
	ReturnEquity ReturnBasis = "equity"
)

// ParseReturnBasis maps a config string to a ReturnBasis.
func ParseReturnBasis(s string) (ReturnBasis, error) {
	switch ReturnBasis(s) {
	case ReturnTrades, ReturnEquity:
		return ReturnBasis(s), nil
	}
	return "", fmt.Errorf("unknown return basis %q", s)
}

// DefaultReturnBasis returns the basis each policy reports with.
func DefaultReturnBasis(policy model.Policy) ReturnBasis {
	if policy == model.PolicyRule {
		return ReturnEquity
	}
	return ReturnTrades
}

// Summarize reduces a result to its headline statistics. Percentages are
// expressed in 0-100.
func Summarize(res *model.BacktestResult, basis ReturnBasis) model.PerformanceSummary {
	if res == nil {
		return model.PerformanceSummary{}
	}
	s := model.PerformanceSummary{
		TotalTrades: len(res.Trades),
		FinalEquity: res.FinalEquity,
		MaxDrawdown: MaxDrawdown(res.Equities()),
	}

	wins := 0
	pnlSum := 0.0
	for _, tr := range res.Trades {
		if tr.PnLRatio > 0 {
			wins++
		}
		pnlSum += tr.PnLRatio
	}
	if s.TotalTrades > 0 {
		s.WinRate = 100 * float64(wins) / float64(s.TotalTrades)
	}

	switch basis {
	case ReturnEquity:
		if res.InitialCash > 0 {
			s.TotalReturn = 100 * (res.FinalEquity - res.InitialCash) / res.InitialCash
		}
	default:
		s.TotalReturn = 100 * pnlSum
	}
	return s
}

// MaxDrawdown returns the largest peak-to-trough decline of the curve as a
// percentage of the running peak. Empty or non-decreasing curves give 0.
func MaxDrawdown(equity []float64) float64 {
	peak := 0.0
	worst := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > worst {
			worst = dd
		}
	}
	return 100 * worst
}
