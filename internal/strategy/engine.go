package strategy

import (
	"fmt"

	"TradeSentinel/internal/model"
)

// Input is what a scorer sees at one bar.
type Input struct {
	Bar   model.Bar
	Frame model.IndicatorFrame
	Open  bool
}

// Scorer turns one bar's indicators into a directional decision.
type Scorer interface {
	Name() string
	Decide(in Input) model.Signal
}

// New returns the scorer for a policy.
func New(policy model.Policy, params model.ParameterSet) (Scorer, error) {
	switch policy {
	case model.PolicyWeighted:
		return NewWeightedScorer(params), nil
	case model.PolicyRule:
		return NewRuleScorer(params), nil
	}
	return nil, fmt.Errorf("unknown policy %q", policy)
}

var (
	_ Scorer = (*WeightedScorer)(nil)
	_ Scorer = (*RuleScorer)(nil)
)

var weightedFields = []model.Field{
	model.FieldEMAShort, model.FieldEMALong, model.FieldRSI,
	model.FieldBBUpper, model.FieldBBLower, model.FieldMACD, model.FieldMACDSignal,
}

// WeightedScorer sums signed factor weights into a composite score.
type WeightedScorer struct {
	params model.ParameterSet
}

// NewWeightedScorer creates a WeightedScorer.
func NewWeightedScorer(params model.ParameterSet) *WeightedScorer {
	return &WeightedScorer{params: params}
}

func (s *WeightedScorer) Name() string { return string(model.PolicyWeighted) }

// Decide buys on score >= buy threshold while flat and sells on score <=
// sell threshold while open.
func (s *WeightedScorer) Decide(in Input) model.Signal {
	if !in.Frame.Ready(weightedFields...) {
		return model.Hold("warm-up")
	}
	p := s.params
	factors := []model.FactorScore{
		scoreEMACross(in.Frame, p.Weights.EMA),
		scoreRSIExtremes(in.Frame, p.Weights.RSI, p.RSIOversold, p.RSIOverbought),
		scoreBollingerBreach(in.Frame, in.Bar.Close, p.Weights.BB),
		scoreMACDCross(in.Frame, p.Weights.MACD),
	}
	score := 0.0
	for _, f := range factors {
		score += f.Weighted
	}

	sig := model.Signal{Action: model.ActionHold, Score: score, Factors: factors}
	switch {
	case !in.Open && score >= p.BuyThreshold:
		sig.Action = model.ActionBuy
		sig.Reason = fmt.Sprintf("score %+.3f >= %+.3f", score, p.BuyThreshold)
	case in.Open && score <= p.SellThreshold:
		sig.Action = model.ActionSell
		sig.Reason = fmt.Sprintf("score %+.3f <= %+.3f", score, p.SellThreshold)
	}
	return sig
}

var ruleFields = []model.Field{model.FieldEMAShort, model.FieldEMALong, model.FieldRSI, model.FieldBBLower}

// RuleScorer enters only when trend, momentum and band conditions all hold.
// Exits are left to the risk manager.
type RuleScorer struct {
	params model.ParameterSet
}

// NewRuleScorer creates a RuleScorer.
func NewRuleScorer(params model.ParameterSet) *RuleScorer {
	return &RuleScorer{params: params}
}

func (s *RuleScorer) Name() string { return string(model.PolicyRule) }

func (s *RuleScorer) Decide(in Input) model.Signal {
	if !in.Frame.Ready(ruleFields...) {
		return model.Hold("warm-up")
	}
	f := in.Frame
	factors := []model.FactorScore{
		condition("ema_trend", f.EMAShort > f.EMALong, fmt.Sprintf("ema %.2f / %.2f", f.EMAShort, f.EMALong)),
		condition("rsi_oversold", f.RSI < s.params.RSIOversold, fmt.Sprintf("rsi=%.1f", f.RSI)),
		condition("bb_lower_touch", in.Bar.Close <= f.BBLower, fmt.Sprintf("close %.2f / lower %.2f", in.Bar.Close, f.BBLower)),
	}
	met := 0.0
	for _, c := range factors {
		met += c.Weighted
	}

	sig := model.Signal{Action: model.ActionHold, Score: met / float64(len(factors)), Factors: factors}
	if !in.Open && met == float64(len(factors)) {
		sig.Action = model.ActionBuy
		sig.Reason = "all entry conditions met"
	}
	return sig
}
