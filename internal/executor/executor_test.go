package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"TradeSentinel/internal/model"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestPaperExecutor_RoundTrip(t *testing.T) {
	p := NewPaperExecutor(1_000_000, 0.0005, nil)
	ctx := context.Background()

	buy := FromTransition("KRW-BTC", model.Transition{Kind: model.TransitionOpen, Time: t0, Price: 100_000, Quantity: 9.995}, 1_000_000)
	if buy.Side != SideBuy || !buy.Amount.Equal(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("unexpected buy intent %+v", buy)
	}
	fill, err := p.Execute(ctx, buy)
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("9.995"); !fill.Quantity.Equal(want) {
		t.Errorf("expected quantity %s, got %s", want, fill.Quantity)
	}
	bal, _ := p.Balance(ctx)
	if !bal.Cash.IsZero() {
		t.Errorf("expected all cash deployed, got %s", bal.Cash)
	}

	sell := FromTransition("KRW-BTC", model.Transition{Kind: model.TransitionClose, Time: t0.Add(time.Hour), Price: 120_000, Quantity: 9.995, Reason: model.ExitTakeProfit}, 0)
	if _, err := p.Execute(ctx, sell); err != nil {
		t.Fatal(err)
	}
	bal, _ = p.Balance(ctx)
	// 9.995 * 120000 = 1,199,400, less 0.05% fee.
	if want := decimal.RequireFromString("1198800.3"); !bal.Cash.Equal(want) {
		t.Errorf("expected cash %s, got %s", want, bal.Cash)
	}
	if !bal.Asset.IsZero() {
		t.Errorf("expected no asset left, got %s", bal.Asset)
	}
	if n := len(p.Fills()); n != 2 {
		t.Errorf("expected 2 fills, got %d", n)
	}
}

func TestPaperExecutor_Rejections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		cash   float64
		intent Intent
		want   error
	}{
		{
			name:   "below minimum",
			cash:   10_000,
			intent: Intent{Side: SideBuy, Amount: decimal.NewFromInt(4999), Price: decimal.NewFromInt(100)},
			want:   ErrBelowMinimum,
		},
		{
			name:   "more than cash",
			cash:   10_000,
			intent: Intent{Side: SideBuy, Amount: decimal.NewFromInt(20_000), Price: decimal.NewFromInt(100)},
			want:   ErrInsufficientFunds,
		},
		{
			name:   "nothing to sell",
			cash:   10_000,
			intent: Intent{Side: SideSell, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10_000)},
			want:   ErrInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaperExecutor(tt.cash, 0.0005, nil)
			if _, err := p.Execute(ctx, tt.intent); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(p.Fills()) != 0 {
				t.Error("rejected intent must not fill")
			}
		})
	}
}

func TestPaperExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPaperExecutor(10_000, 0, nil)
	in := Intent{Side: SideBuy, Amount: decimal.NewFromInt(6000), Price: decimal.NewFromInt(100)}
	if _, err := p.Execute(ctx, in); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPaperExecutor_HoldResumesPosition(t *testing.T) {
	p := NewPaperExecutor(500, 0, nil)
	p.Hold(0.5)
	in := Intent{Side: SideSell, Quantity: decimal.NewFromFloat(0.5), Price: decimal.NewFromInt(20_000)}
	fill, err := p.Execute(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !fill.Quantity.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("unexpected fill quantity %s", fill.Quantity)
	}
	bal, _ := p.Balance(context.Background())
	if !bal.Cash.Equal(decimal.NewFromInt(10_500)) || !bal.Asset.IsZero() {
		t.Errorf("unexpected balance %+v", bal)
	}
}

func TestPaperExecutor_ReentryAfterSell(t *testing.T) {
	p := NewPaperExecutor(1_000_000, 0.0005, nil)
	ctx := context.Background()

	// Float bookkeeping of the same two trades, as the position manager does it.
	qty := 1_000_000 * (1 - 0.0005) / 123456.789
	managerCash := qty * 150003.0 * (1 - 0.0005)

	buy := FromTransition("KRW-BTC", model.Transition{Kind: model.TransitionOpen, Time: t0, Price: 123456.789, Quantity: qty}, 1_000_000)
	if _, err := p.Execute(ctx, buy); err != nil {
		t.Fatal(err)
	}
	sell := FromTransition("KRW-BTC", model.Transition{Kind: model.TransitionClose, Time: t0.Add(time.Hour), Price: 150003.0, Quantity: qty}, 0)
	if _, err := p.Execute(ctx, sell); err != nil {
		t.Fatal(err)
	}

	bal, _ := p.Balance(ctx)
	again := FromTransition("KRW-BTC", model.Transition{Kind: model.TransitionOpen, Time: t0.Add(2 * time.Hour), Price: 123456.789}, managerCash)
	if !again.Amount.Equal(decimal.NewFromFloat(managerCash).Truncate(0)) {
		t.Errorf("buy amount must round down, got %s from %v", again.Amount, managerCash)
	}
	again = again.Fit(bal)
	if again.Amount.GreaterThan(bal.Cash) {
		t.Fatalf("amount %s exceeds cash %s", again.Amount, bal.Cash)
	}
	if _, err := p.Execute(ctx, again); err != nil {
		t.Fatalf("re-entry rejected: %v", err)
	}
}

func TestIntent_Fit(t *testing.T) {
	bal := Balance{Cash: decimal.RequireFromString("1213809.589951")}
	tests := []struct {
		name string
		in   Intent
		want decimal.Decimal
	}{
		{"over cash", Intent{Side: SideBuy, Amount: decimal.NewFromInt(1213810)}, decimal.NewFromInt(1213809)},
		{"within cash", Intent{Side: SideBuy, Amount: decimal.NewFromInt(1000)}, decimal.NewFromInt(1000)},
		{"sell untouched", Intent{Side: SideSell, Amount: decimal.NewFromInt(5_000_000)}, decimal.NewFromInt(5_000_000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Fit(bal).Amount; !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
