package position

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"TradeSentinel/internal/model"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func barAt(i int, close float64) model.Bar {
	return model.Bar{Time: t0.Add(time.Duration(i) * 5 * time.Minute), Open: close, High: close, Low: close, Close: close}
}

func frameATR(atr float64) model.IndicatorFrame {
	f := model.EmptyFrame()
	f.ATR = atr
	return f
}

var (
	buy  = model.Signal{Action: model.ActionBuy}
	sell = model.Signal{Action: model.ActionSell}
	hold = model.Signal{Action: model.ActionHold}
)

func percentConfig() Config {
	return Config{Mode: RiskPercent, StopLoss: 0.1, TakeProfit: 0.2, FeeRate: 0.0005, DeployFraction: 1}
}

func mustManager(t *testing.T, cfg Config, cash float64) *Manager {
	t.Helper()
	m, err := NewManager(cfg, cash)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestManager_OpenPercent(t *testing.T) {
	m := mustManager(t, percentConfig(), 1_000_000)
	tr, ok := m.Step(barAt(0, 100), model.EmptyFrame(), buy)
	if !ok || tr.Kind != model.TransitionOpen {
		t.Fatalf("expected open transition, got %+v (%v)", tr, ok)
	}
	p, open := m.Position()
	if !open {
		t.Fatal("expected open position")
	}
	if math.Abs(p.Quantity-9995) > 1e-9 {
		t.Errorf("expected quantity 9995, got %v", p.Quantity)
	}
	if math.Abs(p.StopPrice-90) > 1e-9 || math.Abs(p.TakePrice-120) > 1e-9 {
		t.Errorf("unexpected stop/take %v/%v", p.StopPrice, p.TakePrice)
	}
	if m.Cash() != 0 {
		t.Errorf("expected all cash deployed, got %v", m.Cash())
	}
	if m.State() != model.StateOpen {
		t.Errorf("expected open state, got %s", m.State())
	}
}

func TestManager_TakeProfitChargesFeeTwice(t *testing.T) {
	m := mustManager(t, percentConfig(), 1_000_000)
	m.Step(barAt(0, 100), model.EmptyFrame(), buy)
	tr, ok := m.Step(barAt(1, 120), model.EmptyFrame(), hold)
	if !ok || tr.Reason != model.ExitTakeProfit {
		t.Fatalf("expected take profit, got %+v", tr)
	}
	want := 1.2*0.9995*0.9995 - 1
	trades := m.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if math.Abs(trades[0].PnLRatio-want) > 1e-12 {
		t.Errorf("expected pnl %.10f, got %.10f", want, trades[0].PnLRatio)
	}
	if math.Abs(m.Cash()-1_000_000*(1+want)) > 1e-6 {
		t.Errorf("unexpected cash %v", m.Cash())
	}
	if m.State() != model.StateFlat {
		t.Error("expected flat after exit")
	}
}

func TestManager_ExitPriority(t *testing.T) {
	atrCfg := Config{Mode: RiskATR, StopLoss: 1.5, TakeProfit: 3, FeeRate: 0.001, DeployFraction: 1}
	tests := []struct {
		name   string
		cfg    Config
		atr    float64
		exit   float64
		sig    model.Signal
		reason model.ExitReason
		closed bool
	}{
		{"stop beats signal", percentConfig(), 0, 89, sell, model.ExitStopLoss, true},
		{"take beats signal", percentConfig(), 0, 121, sell, model.ExitTakeProfit, true},
		{"signal exit", percentConfig(), 0, 101, sell, model.ExitSignal, true},
		{"hold inside band", percentConfig(), 0, 101, hold, "", false},
		{"atr stop", atrCfg, 2, 97, hold, model.ExitStopLoss, true},
		{"atr take", atrCfg, 2, 106, hold, model.ExitTakeProfit, true},
		// Zero ATR collapses stop and take onto the entry price; stop wins.
		{"stop beats take", atrCfg, 0, 100, hold, model.ExitStopLoss, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustManager(t, tt.cfg, 10_000)
			if _, ok := m.Step(barAt(0, 100), frameATR(tt.atr), buy); !ok {
				t.Fatal("expected entry")
			}
			tr, ok := m.Step(barAt(1, tt.exit), frameATR(tt.atr), tt.sig)
			if ok != tt.closed {
				t.Fatalf("expected closed=%v, got %v", tt.closed, ok)
			}
			if tt.closed && tr.Reason != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, tr.Reason)
			}
		})
	}
}

func TestManager_ATRGatesEntry(t *testing.T) {
	m := mustManager(t, Config{Mode: RiskATR, StopLoss: 1, TakeProfit: 2, FeeRate: 0.001, DeployFraction: 1}, 1000)
	if _, ok := m.Step(barAt(0, 100), model.EmptyFrame(), buy); ok {
		t.Fatal("entry must wait for a defined ATR")
	}
	if _, ok := m.Step(barAt(1, 100), frameATR(1), buy); !ok {
		t.Fatal("expected entry once ATR is defined")
	}
}

func TestManager_NoPyramiding(t *testing.T) {
	m := mustManager(t, percentConfig(), 1000)
	m.Step(barAt(0, 100), model.EmptyFrame(), buy)
	before, _ := m.Position()
	if _, ok := m.Step(barAt(1, 105), model.EmptyFrame(), buy); ok {
		t.Fatal("buy while open must not transition")
	}
	after, _ := m.Position()
	if before != after {
		t.Errorf("position changed: %+v -> %+v", before, after)
	}
}

func TestManager_OneExitPerOpen(t *testing.T) {
	m := mustManager(t, percentConfig(), 1000)
	prices := []float64{100, 80, 79, 100, 130, 131}
	sigs := []model.Signal{buy, sell, sell, buy, sell, sell}
	var kinds []model.TransitionKind
	for i, p := range prices {
		if tr, ok := m.Step(barAt(i, p), model.EmptyFrame(), sigs[i]); ok {
			kinds = append(kinds, tr.Kind)
		}
	}
	want := []model.TransitionKind{model.TransitionOpen, model.TransitionClose, model.TransitionOpen, model.TransitionClose}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
	if n := len(m.Trades()); n != 2 {
		t.Errorf("expected 2 trades, got %d", n)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Mode: "trailing", StopLoss: 1, TakeProfit: 1, DeployFraction: 1},
		{Mode: RiskPercent, StopLoss: 0, TakeProfit: 1, DeployFraction: 1},
		{Mode: RiskPercent, StopLoss: 1, TakeProfit: 1, FeeRate: 1, DeployFraction: 1},
		{Mode: RiskPercent, StopLoss: 1, TakeProfit: 1, DeployFraction: 1.5},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("config %d: expected validation error", i)
		}
	}
	if err := percentConfig().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSnapshotPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "position.json")

	m, err := LoadManager(percentConfig(), path, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if m.Cash() != 5000 || m.State() != model.StateFlat {
		t.Fatalf("fresh manager: cash=%v state=%s", m.Cash(), m.State())
	}
	m.Step(barAt(0, 100), model.EmptyFrame(), buy)
	snap := m.Snapshot()
	if err := SaveSnapshot(path, &snap); err != nil {
		t.Fatal(err)
	}

	restored, err := LoadManager(percentConfig(), path, 5000)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := m.Position()
	got, open := restored.Position()
	if !open {
		t.Fatal("expected restored open position")
	}
	if !got.OpenedAt.Equal(want.OpenedAt) || got.StopPrice != want.StopPrice || got.TakePrice != want.TakePrice {
		t.Errorf("restored %+v, want %+v", got, want)
	}
	if restored.Cash() != m.Cash() {
		t.Errorf("restored cash %v, want %v", restored.Cash(), m.Cash())
	}
}
