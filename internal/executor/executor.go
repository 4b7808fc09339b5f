// Package executor turns position transitions into order intents and fills
// them. Only a paper executor is provided.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TradeSentinel/internal/model"
)

// MinOrderValue is the smallest order the exchange accepts, in quote currency.
var MinOrderValue = decimal.NewFromInt(5000)

var (
	ErrBelowMinimum      = errors.New("order below minimum value")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Intent is an order the live runner wants placed. Buys are sized by Amount
// in quote currency, sells by Quantity in the base asset.
type Intent struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Amount   decimal.Decimal `json:"amount"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Reason   string          `json:"reason"`
	At       time.Time       `json:"at"`
}

// Value is the quote-currency size of the intent.
func (in Intent) Value() decimal.Decimal {
	if in.Side == SideBuy {
		return in.Amount
	}
	return in.Quantity.Mul(in.Price)
}

// FromTransition builds the intent matching a manager transition. cost is the
// cash committed on open; buy amounts are rounded down to whole units.
func FromTransition(symbol string, tr model.Transition, cost float64) Intent {
	in := Intent{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(tr.Price),
		Reason: string(tr.Reason),
		At:     tr.Time,
	}
	if tr.Kind == model.TransitionOpen {
		in.Side = SideBuy
		in.Amount = decimal.NewFromFloat(cost).Truncate(0)
		if in.Reason == "" {
			in.Reason = "entry"
		}
	} else {
		in.Side = SideSell
		in.Quantity = decimal.NewFromFloat(tr.Quantity).Truncate(8)
	}
	return in
}

// Fit caps a buy at the cash actually held. The account can lag the
// manager's float bookkeeping by a fraction of a unit after a sell.
func (in Intent) Fit(b Balance) Intent {
	if in.Side == SideBuy && in.Amount.GreaterThan(b.Cash) {
		in.Amount = b.Cash.Truncate(0)
	}
	return in
}

// Fill is an executed order.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Fee      decimal.Decimal `json:"fee"`
	At       time.Time       `json:"at"`
}

// Balance is the account state in quote cash and base asset.
type Balance struct {
	Cash  decimal.Decimal `json:"cash"`
	Asset decimal.Decimal `json:"asset"`
}

// Executor places orders.
type Executor interface {
	Name() string
	Balance(ctx context.Context) (Balance, error)
	Execute(ctx context.Context, in Intent) (Fill, error)
}

var _ Executor = (*PaperExecutor)(nil)

// PaperExecutor fills every intent at its reference price against an
// in-memory balance.
type PaperExecutor struct {
	mu      sync.Mutex
	feeRate decimal.Decimal
	balance Balance
	fills   []Fill
	logger  *zap.Logger
}

// NewPaperExecutor creates a paper account holding cash.
func NewPaperExecutor(cash, feeRate float64, logger *zap.Logger) *PaperExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperExecutor{
		feeRate: decimal.NewFromFloat(feeRate),
		balance: Balance{Cash: decimal.NewFromFloat(cash), Asset: decimal.Zero},
		logger:  logger,
	}
}

// Hold sets the paper asset balance, e.g. when resuming an open position.
func (p *PaperExecutor) Hold(qty float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance.Asset = decimal.NewFromFloat(qty)
}

func (p *PaperExecutor) Name() string { return "paper" }

func (p *PaperExecutor) Balance(context.Context) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// Fills returns a copy of the fill log.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}

func (p *PaperExecutor) Execute(ctx context.Context, in Intent) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if !in.Price.IsPositive() {
		return Fill{}, fmt.Errorf("intent price must be positive, got %s", in.Price)
	}
	if in.Value().LessThan(MinOrderValue) {
		return Fill{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, in.Value().StringFixed(0), MinOrderValue)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	one := decimal.NewFromInt(1)
	fill := Fill{
		OrderID: uuid.NewString(),
		Symbol:  in.Symbol,
		Side:    in.Side,
		Price:   in.Price,
		At:      in.At,
	}
	switch in.Side {
	case SideBuy:
		if in.Amount.GreaterThan(p.balance.Cash) {
			return Fill{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, in.Amount, p.balance.Cash)
		}
		fill.Fee = in.Amount.Mul(p.feeRate)
		fill.Quantity = in.Amount.Mul(one.Sub(p.feeRate)).Div(in.Price)
		p.balance.Cash = p.balance.Cash.Sub(in.Amount)
		p.balance.Asset = p.balance.Asset.Add(fill.Quantity)
	case SideSell:
		qty := in.Quantity
		if qty.GreaterThan(p.balance.Asset) {
			qty = p.balance.Asset
		}
		if !qty.IsPositive() {
			return Fill{}, fmt.Errorf("%w: no asset to sell", ErrInsufficientFunds)
		}
		gross := qty.Mul(in.Price)
		fill.Quantity = qty
		fill.Fee = gross.Mul(p.feeRate)
		p.balance.Asset = p.balance.Asset.Sub(qty)
		p.balance.Cash = p.balance.Cash.Add(gross.Sub(fill.Fee))
	default:
		return Fill{}, fmt.Errorf("unknown side %q", in.Side)
	}

	p.fills = append(p.fills, fill)
	p.logger.Info("paper order filled",
		zap.String("order_id", fill.OrderID),
		zap.String("side", string(fill.Side)),
		zap.String("quantity", fill.Quantity.String()),
		zap.String("price", fill.Price.String()),
		zap.String("reason", in.Reason),
	)
	return fill, nil
}
