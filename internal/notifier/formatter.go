package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"TradeSentinel/internal/model"
	"TradeSentinel/internal/optimizer"
	"TradeSentinel/internal/position"
)

// FormatSummary formats a backtest summary into a Telegram message.
func FormatSummary(symbol string, policy model.Policy, params model.ParameterSet, s model.PerformanceSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Backtest</b> | %s | %s\n\n", html.EscapeString(symbol), policy)
	fmt.Fprintf(&b, "Trades: %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "Win rate: %.2f%%\n", s.WinRate)
	fmt.Fprintf(&b, "Total return: %+.2f%%\n", s.TotalReturn)
	fmt.Fprintf(&b, "Max drawdown: %.2f%%\n", s.MaxDrawdown)
	fmt.Fprintf(&b, "Final equity: %.0f\n\n", s.FinalEquity)
	fmt.Fprintf(&b, "<code>%s</code>\n", html.EscapeString(params.String()))
	return b.String()
}

// FormatGridReport formats an optimizer report.
func FormatGridReport(symbol string, rep *optimizer.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 <b>Grid search</b> | %s | %s\n\n", html.EscapeString(symbol), rep.Policy)
	fmt.Fprintf(&b, "Combinations: %d (evaluated %d, skipped %d, failed %d)\n",
		rep.Total, rep.Evaluated, rep.Skipped, len(rep.Failures))
	fmt.Fprintf(&b, "Elapsed: %s\n\n", rep.Elapsed.Round(time.Millisecond))

	best := rep.Best
	b.WriteString("🏆 <b>Best</b>\n")
	fmt.Fprintf(&b, "  #%d final %.0f | return %+.2f%% | mdd %.2f%% | trades %d\n",
		best.Index, best.Summary.FinalEquity, best.Summary.TotalReturn, best.Summary.MaxDrawdown, best.Summary.TotalTrades)
	fmt.Fprintf(&b, "  <code>%s</code>\n", html.EscapeString(best.Params.String()))

	if len(rep.Top) > 1 {
		b.WriteString("\n<b>Runners-up</b>\n")
		for _, r := range rep.Top[1:] {
			fmt.Fprintf(&b, "  #%d final %.0f | return %+.2f%%\n", r.Index, r.Summary.FinalEquity, r.Summary.TotalReturn)
		}
	}
	return b.String()
}

// FormatTransition formats a live position change.
func FormatTransition(symbol string, tr model.Transition, advice string) string {
	var b strings.Builder
	switch tr.Kind {
	case model.TransitionOpen:
		fmt.Fprintf(&b, "🟢 <b>BUY</b> %s @ %.0f\n", html.EscapeString(symbol), tr.Price)
		fmt.Fprintf(&b, "Quantity: %.8f\n", tr.Quantity)
	default:
		icon := "🔴"
		if tr.Trade != nil && tr.Trade.PnLRatio > 0 {
			icon = "💰"
		}
		fmt.Fprintf(&b, "%s <b>SELL</b> %s @ %.0f (%s)\n", icon, html.EscapeString(symbol), tr.Price, tr.Reason)
		if tr.Trade != nil {
			fmt.Fprintf(&b, "Entry %.0f → exit %.0f, pnl %+.2f%%\n",
				tr.Trade.EntryPrice, tr.Trade.ExitPrice, 100*tr.Trade.PnLRatio)
		}
	}
	if advice != "" {
		fmt.Fprintf(&b, "Advisor: %s\n", html.EscapeString(advice))
	}
	fmt.Fprintf(&b, "Time: %s", tr.Time.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

// StatusView is the data shown by the status report.
type StatusView struct {
	Symbol   string
	Price    float64
	High     float64
	Low      float64
	Lookback int
	Snapshot position.Snapshot
	Frame    model.IndicatorFrame
	Signal   model.Signal
}

// FormatStatus formats the live runner's state.
func FormatStatus(v StatusView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 <b>Status</b> | %s\n\n", html.EscapeString(v.Symbol))
	fmt.Fprintf(&b, "Price: %.0f\n", v.Price)
	if v.Lookback > 0 {
		fmt.Fprintf(&b, "Range (%d bars): %.0f – %.0f\n", v.Lookback, v.Low, v.High)
	}
	if v.Frame.Ready(model.FieldRSI) {
		fmt.Fprintf(&b, "RSI: %.1f\n", v.Frame.RSI)
	}
	if v.Frame.Ready(model.FieldEMAShort, model.FieldEMALong) {
		fmt.Fprintf(&b, "EMA: %.0f / %.0f\n", v.Frame.EMAShort, v.Frame.EMALong)
	}
	fmt.Fprintf(&b, "Signal: %s (%+.3f)\n\n", v.Signal.Action, v.Signal.Score)
	b.WriteString(FormatPosition(v.Snapshot, v.Price))
	return b.String()
}

// FormatPosition formats the persisted position.
func FormatPosition(s position.Snapshot, price float64) string {
	var b strings.Builder
	if s.Position == nil {
		fmt.Fprintf(&b, "Position: flat\nCash: %.0f\n", s.Cash)
		return b.String()
	}
	p := s.Position
	fmt.Fprintf(&b, "Position: open since %s\n", p.OpenedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Entry: %.0f | Qty: %.8f\n", p.EntryPrice, p.Quantity)
	fmt.Fprintf(&b, "Stop: %.0f | Take: %.0f\n", p.StopPrice, p.TakePrice)
	if price > 0 && p.EntryPrice > 0 {
		fmt.Fprintf(&b, "Unrealised: %+.2f%%\n", 100*(price-p.EntryPrice)/p.EntryPrice)
	}
	return b.String()
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "<b>Commands</b>\n" +
		"/status - price, indicators and position\n" +
		"/position - persisted position only\n" +
		"/help - this message"
}
