// Package advisor asks an external model for a buy/sell/hold judgment on a
// window of recent bars and folds it into the scorer's signal.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"TradeSentinel/internal/model"
)

type Decision string

const (
	DecisionBuy  Decision = "buy"
	DecisionSell Decision = "sell"
	DecisionHold Decision = "hold"
)

// Judgment is an advisor's answer.
type Judgment struct {
	Decision    Decision `json:"decision"`
	Explanation string   `json:"explanation"`
}

// HoldJudgment is the answer used whenever an advisor cannot be consulted.
func HoldJudgment(why string) Judgment {
	return Judgment{Decision: DecisionHold, Explanation: why}
}

// Advisor judges a window of bars, oldest first.
type Advisor interface {
	Name() string
	Advise(ctx context.Context, window []model.Bar) (Judgment, error)
}

// Noop always holds.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Advise(context.Context, []model.Bar) (Judgment, error) {
	return HoldJudgment("advisor disabled"), nil
}

// Ask consults a and degrades any failure to a hold judgment.
func Ask(ctx context.Context, a Advisor, window []model.Bar, logger *zap.Logger) Judgment {
	if a == nil {
		return HoldJudgment("no advisor")
	}
	j, err := a.Advise(ctx, window)
	if err != nil {
		if logger != nil {
			logger.Warn("advisor failed, holding", zap.String("advisor", a.Name()), zap.Error(err))
		}
		return HoldJudgment(err.Error())
	}
	return j
}

var ErrUnparseable = errors.New("unparseable judgment")

// ParseJudgment extracts {"decision", "explanation"} from a model reply.
// Code fences and surrounding prose are ignored and the decision is matched
// case-insensitively.
func ParseJudgment(reply string) (Judgment, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Judgment{}, fmt.Errorf("%w: no json object in %q", ErrUnparseable, truncate(reply, 80))
	}
	var raw struct {
		Decision    string `json:"decision"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	d := Decision(strings.ToLower(strings.TrimSpace(raw.Decision)))
	switch d {
	case DecisionBuy, DecisionSell, DecisionHold:
	default:
		return Judgment{}, fmt.Errorf("%w: decision %q", ErrUnparseable, raw.Decision)
	}
	return Judgment{Decision: d, Explanation: raw.Explanation}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Mode controls how a judgment combines with the scorer's signal.
type Mode string

const (
	// ModeOff ignores the advisor.
	ModeOff Mode = "off"
	// ModeConfirm lets a buy through only when the advisor also says buy.
	ModeConfirm Mode = "confirm"
	// ModeReplace trades on the advisor's decision alone.
	ModeReplace Mode = "replace"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeOff, nil
	case ModeOff, ModeConfirm, ModeReplace:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown advisor mode %q", s)
}

// Apply combines sig with j according to mode. Stop and take-profit exits are
// handled by the risk manager and are not affected.
func Apply(mode Mode, sig model.Signal, j Judgment) model.Signal {
	switch mode {
	case ModeConfirm:
		if sig.Action == model.ActionBuy && j.Decision != DecisionBuy {
			out := sig
			out.Action = model.ActionHold
			out.Reason = fmt.Sprintf("%s; advisor says %s", sig.Reason, j.Decision)
			return out
		}
	case ModeReplace:
		out := sig
		switch j.Decision {
		case DecisionBuy:
			out.Action = model.ActionBuy
		case DecisionSell:
			out.Action = model.ActionSell
		default:
			out.Action = model.ActionHold
		}
		out.Reason = "advisor: " + j.Explanation
		return out
	}
	return sig
}
