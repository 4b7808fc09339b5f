package backtest

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/strategy"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func makeBars(closes []float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Time:  t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:  c,
			High:  c * 1.001,
			Low:   c * 0.999,
			Close: c,
		}
	}
	return bars
}

func waveBars(n int) []model.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 15*math.Sin(float64(i)/7) + 5*math.Sin(float64(i)/2.3)
	}
	return makeBars(closes)
}

// neutralFrame is fully warmed up but triggers nothing.
func neutralFrame() model.IndicatorFrame {
	return model.IndicatorFrame{
		EMAShort: 100, EMALong: 100, RSI: 50,
		BBUpper: 200, BBMiddle: 100, BBLower: 10,
		MACD: 0, MACDSignal: 0, ATR: 1,
	}
}

func TestRun_RuleTakeProfitScenario(t *testing.T) {
	const entry = 100.0
	params := model.DefaultParameterSet(model.PolicyRule)
	params.Periods.EMAShort, params.Periods.EMALong = 2, 4

	closes := []float64{entry, entry, entry, entry, entry, entry, 105, 110, 115, entry * (1 + params.TakeProfit)}
	bars := makeBars(closes)

	frames := make([]model.IndicatorFrame, len(bars))
	for i := range frames {
		frames[i] = neutralFrame()
	}
	for i := 0; i < 2; i++ {
		frames[i] = model.EmptyFrame()
	}
	// Bar 5: short EMA crosses above the long one, RSI drops under 30 and the
	// close touches the lower band.
	frames[5] = model.IndicatorFrame{EMAShort: 100.5, EMALong: 100, RSI: 25, BBUpper: 104, BBMiddle: 102, BBLower: 100.2}

	cfg := DefaultConfig(model.PolicyRule)
	var events []model.Transition
	eng := New(cfg, WithEventSink(func(tr model.Transition) { events = append(events, tr) }))
	res, err := eng.RunFrames(bars, frames, params, strategy.NewRuleScorer(params))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if !tr.OpenedAt.Equal(bars[5].Time) {
		t.Errorf("expected entry at bar 5, got %s", tr.OpenedAt)
	}
	if !tr.ClosedAt.Equal(bars[9].Time) {
		t.Errorf("expected exit at bar 9, got %s", tr.ClosedAt)
	}
	if tr.ExitReason != model.ExitTakeProfit {
		t.Errorf("expected take_profit, got %s", tr.ExitReason)
	}
	fee := cfg.FeeRate
	want := 1.2*(1-fee)*(1-fee) - 1
	if math.Abs(tr.PnLRatio-want) > 1e-12 {
		t.Errorf("expected pnl %.10f, got %.10f", want, tr.PnLRatio)
	}
	if res.OpenPosition != nil {
		t.Error("expected no open position")
	}
	if math.Abs(res.FinalEquity-cfg.InitialCash*(1+want)) > 1e-6 {
		t.Errorf("unexpected final equity %.4f", res.FinalEquity)
	}

	if len(events) != 2 || events[0].Kind != model.TransitionOpen || events[1].Kind != model.TransitionClose {
		t.Fatalf("unexpected events %+v", events)
	}

	// Equity is marked before the bar's decision, so the entry bar still shows cash.
	if res.EquityCurve[5].Equity != cfg.InitialCash || res.EquityCurve[5].State != model.StateFlat {
		t.Errorf("bar 5: %+v", res.EquityCurve[5])
	}
	wantBar6 := cfg.InitialCash * (1 - fee) / entry * 105
	if math.Abs(res.EquityCurve[6].Equity-wantBar6) > 1e-6 {
		t.Errorf("bar 6 equity: expected %.4f, got %.4f", wantBar6, res.EquityCurve[6].Equity)
	}
}

func TestRun_RuleEntryFromComputedIndicators(t *testing.T) {
	params := model.DefaultParameterSet(model.PolicyRule)
	params.Periods.EMAShort, params.Periods.EMALong = 2, 4
	params.Periods.RSI = 2
	params.Periods.BB, params.Periods.BBStdDev = 3, 1

	// Up-move then a dip at bar 5: EMA(2) still leads EMA(4), both deltas in
	// the RSI window are non-positive and the close sits under the lower band.
	bars := makeBars([]float64{100, 100, 100, 110, 110, 104, 109.2, 114.4, 119.6, 125})
	cfg := DefaultConfig(model.PolicyRule)

	frames, err := calculator.Compute(bars, params.Periods, cfg.Indicators)
	if err != nil {
		t.Fatal(err)
	}
	f := frames[5]
	if !(f.EMAShort > f.EMALong && f.RSI < params.RSIOversold && bars[5].Close <= f.BBLower) {
		t.Fatalf("bar 5 does not meet the entry conditions: %+v", f)
	}

	res, err := New(cfg).Run(bars, params, strategy.NewRuleScorer(params))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if !tr.OpenedAt.Equal(bars[5].Time) || !tr.ClosedAt.Equal(bars[9].Time) {
		t.Errorf("expected trade from bar 5 to bar 9, got %s to %s", tr.OpenedAt, tr.ClosedAt)
	}
	if tr.ExitReason != model.ExitTakeProfit {
		t.Errorf("expected take_profit, got %s", tr.ExitReason)
	}
	fee := cfg.FeeRate
	want := 125.0/104*(1-fee)*(1-fee) - 1
	if math.Abs(tr.PnLRatio-want) > 1e-12 {
		t.Errorf("expected pnl %.10f, got %.10f", want, tr.PnLRatio)
	}
}

func TestRun_ShortSeriesNeverTrades(t *testing.T) {
	bars := makeBars([]float64{100, 90, 80, 70, 60})
	for _, policy := range []model.Policy{model.PolicyWeighted, model.PolicyRule} {
		params := model.DefaultParameterSet(policy)
		scorer, err := strategy.New(policy, params)
		if err != nil {
			t.Fatal(err)
		}
		res, err := New(DefaultConfig(policy)).Run(bars, params, scorer)
		if err != nil {
			t.Fatalf("%s: %v", policy, err)
		}
		if len(res.Trades) != 0 || res.OpenPosition != nil {
			t.Errorf("%s: expected no activity, got %d trades", policy, len(res.Trades))
		}
		for i, p := range res.EquityCurve {
			if p.Equity != res.InitialCash || p.Drawdown != 0 {
				t.Errorf("%s bar %d: %+v", policy, i, p)
			}
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	bars := waveBars(400)
	for _, policy := range []model.Policy{model.PolicyWeighted, model.PolicyRule} {
		params := model.DefaultParameterSet(policy)
		scorer, _ := strategy.New(policy, params)
		eng := New(DefaultConfig(policy))
		first, err := eng.Run(bars, params, scorer)
		if err != nil {
			t.Fatal(err)
		}
		second, err := eng.Run(bars, params, scorer)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: repeated runs differ", policy)
		}
	}
}

func TestRun_DrawdownNeverNegative(t *testing.T) {
	bars := waveBars(400)
	params := model.DefaultParameterSet(model.PolicyWeighted)
	res, err := New(DefaultConfig(model.PolicyWeighted)).Run(bars, params, strategy.NewWeightedScorer(params))
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range res.EquityCurve {
		if p.Drawdown < 0 || p.Peak < p.Equity {
			t.Fatalf("bar %d: %+v", i, p)
		}
	}
}

func TestRun_RejectsBadBars(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3})
	bars[2].Time = bars[1].Time
	params := model.DefaultParameterSet(model.PolicyRule)
	_, err := New(DefaultConfig(model.PolicyRule)).Run(bars, params, strategy.NewRuleScorer(params))
	if !errors.Is(err, model.ErrDuplicateTimestamp) {
		t.Fatalf("expected duplicate timestamp error, got %v", err)
	}
}

type scriptedScorer map[int]model.Action

func (s scriptedScorer) Name() string { return "scripted" }

func (s scriptedScorer) Decide(in Input) model.Signal {
	idx := int(in.Bar.Time.Sub(t0) / (5 * time.Minute))
	if a, ok := s[idx]; ok {
		return model.Signal{Action: a}
	}
	return model.Hold("")
}

// Input aliases the scorer input so the scripted scorer reads naturally.
type Input = strategy.Input

func TestRunFrames_MarksOpenPositionToMarket(t *testing.T) {
	bars := makeBars([]float64{100, 100, 102, 104, 103})
	frames := make([]model.IndicatorFrame, len(bars))
	for i := range frames {
		frames[i] = neutralFrame()
	}
	cfg := DefaultConfig(model.PolicyRule)
	params := model.DefaultParameterSet(model.PolicyRule)
	res, err := New(cfg).RunFrames(bars, frames, params, scriptedScorer{1: model.ActionBuy})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("open position must not be force-closed, got %d trades", len(res.Trades))
	}
	if res.OpenPosition == nil {
		t.Fatal("expected open position")
	}
	want := res.FinalCash + res.OpenPosition.Quantity*103
	if res.FinalEquity != want {
		t.Errorf("expected final equity %.4f, got %.4f", want, res.FinalEquity)
	}
}

func TestRunFrames_SignalExit(t *testing.T) {
	bars := makeBars([]float64{100, 100, 101, 102, 103})
	frames := make([]model.IndicatorFrame, len(bars))
	for i := range frames {
		frames[i] = neutralFrame()
	}
	cfg := DefaultConfig(model.PolicyWeighted)
	params := model.DefaultParameterSet(model.PolicyWeighted)
	res, err := New(cfg).RunFrames(bars, frames, params, scriptedScorer{1: model.ActionBuy, 3: model.ActionSell})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != model.ExitSignal {
		t.Fatalf("expected one signal exit, got %+v", res.Trades)
	}
	if res.Trades[0].ExitPrice != 102 {
		t.Errorf("expected exit at 102, got %v", res.Trades[0].ExitPrice)
	}
}

func TestRunFrames_LengthMismatch(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3})
	params := model.DefaultParameterSet(model.PolicyRule)
	if _, err := New(DefaultConfig(model.PolicyRule)).RunFrames(bars, nil, params, strategy.NewRuleScorer(params)); err == nil {
		t.Error("expected error for missing frames")
	}
}

func TestEncodeTradesCSV(t *testing.T) {
	trades := []model.TradeRecord{
		{EntryPrice: 100, ExitPrice: 120, Quantity: 1, PnLRatio: 0.2, ExitReason: model.ExitTakeProfit, OpenedAt: t0, ClosedAt: t0.Add(time.Hour)},
		{EntryPrice: 120, ExitPrice: 108, Quantity: 1, PnLRatio: -0.1, ExitReason: model.ExitStopLoss, OpenedAt: t0.Add(2 * time.Hour), ClosedAt: t0.Add(3 * time.Hour)},
	}
	var buf bytes.Buffer
	if err := EncodeTradesCSV(&buf, trades); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "index,opened_at") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasSuffix(lines[2], "stop_loss") {
		t.Errorf("unexpected row %q", lines[2])
	}
}
