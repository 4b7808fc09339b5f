package model

import "time"

// PositionState is the state of the single-position state machine.
type PositionState string

const (
	StateFlat PositionState = "flat"
	StateOpen PositionState = "open"
)

// Position is an open holding. It is also the persistence contract for live use.
type Position struct {
	EntryPrice float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	StopPrice  float64   `json:"stop_price"`
	TakePrice  float64   `json:"take_price"`
	OpenedAt   time.Time `json:"opened_at"`
	Cost       float64   `json:"cost"`
}

// ExitReason tells why a position was closed.
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
)

// TradeRecord is one completed round trip.
type TradeRecord struct {
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   float64    `json:"quantity"`
	PnLRatio   float64    `json:"pnl_ratio"`
	ExitReason ExitReason `json:"exit_reason"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   time.Time  `json:"closed_at"`
}

// TransitionKind distinguishes entries from exits.
type TransitionKind string

const (
	TransitionOpen  TransitionKind = "open"
	TransitionClose TransitionKind = "close"
)

// Transition is emitted on every Flat→Open and Open→Flat change.
type Transition struct {
	Kind     TransitionKind `json:"kind"`
	Time     time.Time      `json:"time"`
	Price    float64        `json:"price"`
	Quantity float64        `json:"quantity"`
	Reason   ExitReason     `json:"reason,omitempty"`
	Trade    *TradeRecord   `json:"trade,omitempty"`
}
