package position

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"TradeSentinel/internal/model"
)

// RiskMode selects how stop and take prices are derived from the entry.
type RiskMode string

const (
	// RiskATR places stop/take at entry ∓ ATR × factor.
	RiskATR RiskMode = "atr"
	// RiskPercent places stop/take at entry × (1 ∓ factor).
	RiskPercent RiskMode = "percent"
)

// ParseRiskMode maps a config string to a RiskMode.
func ParseRiskMode(s string) (RiskMode, error) {
	switch RiskMode(s) {
	case RiskATR, RiskPercent:
		return RiskMode(s), nil
	}
	return "", fmt.Errorf("unknown risk mode %q", s)
}

// Config holds the risk and cost settings of one run.
type Config struct {
	Mode           RiskMode
	StopLoss       float64
	TakeProfit     float64
	FeeRate        float64
	DeployFraction float64
}

// Validate checks ranges.
func (c Config) Validate() error {
	if _, err := ParseRiskMode(string(c.Mode)); err != nil {
		return err
	}
	if !(c.StopLoss > 0) {
		return fmt.Errorf("stop loss factor must be positive, got %v", c.StopLoss)
	}
	if !(c.TakeProfit > 0) {
		return fmt.Errorf("take profit factor must be positive, got %v", c.TakeProfit)
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 || math.IsNaN(c.FeeRate) {
		return fmt.Errorf("fee rate must be in [0, 1), got %v", c.FeeRate)
	}
	if !(c.DeployFraction > 0 && c.DeployFraction <= 1) {
		return fmt.Errorf("deploy fraction must be in (0, 1], got %v", c.DeployFraction)
	}
	return nil
}

// Manager is the Flat/Open state machine of a single position. It owns the
// cash ledger and the trade list of one run.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	cash   float64
	pos    *model.Position
	trades []model.TradeRecord
}

// NewManager creates a flat Manager holding cash.
func NewManager(cfg Config, cash float64) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cash < 0 || math.IsNaN(cash) || math.IsInf(cash, 0) {
		return nil, errors.New("cash must be a finite non-negative amount")
	}
	return &Manager{cfg: cfg, cash: cash}, nil
}

// State returns Flat or Open.
func (m *Manager) State() model.PositionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state()
}

func (m *Manager) state() model.PositionState {
	if m.pos == nil {
		return model.StateFlat
	}
	return model.StateOpen
}

// Position returns a copy of the open position.
func (m *Manager) Position() (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return model.Position{}, false
	}
	return *m.pos, true
}

func (m *Manager) Cash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash
}

// Equity marks the holding to price.
func (m *Manager) Equity(price float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return m.cash
	}
	return m.cash + m.pos.Quantity*price
}

// Trades returns a copy of the completed trades.
func (m *Manager) Trades() []model.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out
}

// Step applies at most one transition for the bar. While open, exits are
// checked in the order stop loss, take profit, sell signal.
func (m *Manager) Step(bar model.Bar, frame model.IndicatorFrame, sig model.Signal) (model.Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos == nil {
		if sig.Action != model.ActionBuy {
			return model.Transition{}, false
		}
		return m.open(bar, frame)
	}

	price := bar.Close
	switch {
	case price <= m.pos.StopPrice:
		return m.close(bar, model.ExitStopLoss), true
	case price >= m.pos.TakePrice:
		return m.close(bar, model.ExitTakeProfit), true
	case sig.Action == model.ActionSell:
		return m.close(bar, model.ExitSignal), true
	}
	return model.Transition{}, false
}

func (m *Manager) open(bar model.Bar, frame model.IndicatorFrame) (model.Transition, bool) {
	if m.cfg.Mode == RiskATR && !frame.Ready(model.FieldATR) {
		return model.Transition{}, false
	}
	if m.cash <= 0 {
		return model.Transition{}, false
	}

	price := bar.Close
	deploy := m.cash * m.cfg.DeployFraction
	qty := deploy * (1 - m.cfg.FeeRate) / price

	var stop, take float64
	switch m.cfg.Mode {
	case RiskATR:
		stop = price - frame.ATR*m.cfg.StopLoss
		take = price + frame.ATR*m.cfg.TakeProfit
	default:
		stop = price * (1 - m.cfg.StopLoss)
		take = price * (1 + m.cfg.TakeProfit)
	}

	m.cash -= deploy
	m.pos = &model.Position{
		EntryPrice: price,
		Quantity:   qty,
		StopPrice:  stop,
		TakePrice:  take,
		OpenedAt:   bar.Time,
		Cost:       deploy,
	}
	return model.Transition{
		Kind:     model.TransitionOpen,
		Time:     bar.Time,
		Price:    price,
		Quantity: qty,
	}, true
}

func (m *Manager) close(bar model.Bar, reason model.ExitReason) model.Transition {
	p := m.pos
	proceeds := p.Quantity * bar.Close * (1 - m.cfg.FeeRate)
	m.cash += proceeds

	pnl := 0.0
	if p.Cost > 0 {
		pnl = (proceeds - p.Cost) / p.Cost
	}
	tr := model.TradeRecord{
		EntryPrice: p.EntryPrice,
		ExitPrice:  bar.Close,
		Quantity:   p.Quantity,
		PnLRatio:   pnl,
		ExitReason: reason,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   bar.Time,
	}
	m.trades = append(m.trades, tr)
	m.pos = nil

	return model.Transition{
		Kind:     model.TransitionClose,
		Time:     bar.Time,
		Price:    bar.Close,
		Quantity: tr.Quantity,
		Reason:   reason,
		Trade:    &tr,
	}
}

// Snapshot captures the manager for persistence.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{State: m.state(), Cash: m.cash}
	if m.pos != nil {
		p := *m.pos
		s.Position = &p
	}
	return s
}

// Restore replaces cash and position with a snapshot. Completed trades are
// not part of a snapshot and are cleared.
func (m *Manager) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cash = s.Cash
	m.pos = nil
	if s.Position != nil {
		p := *s.Position
		m.pos = &p
	}
	m.trades = nil
}
