package model

// Action is the directional decision produced by a scorer for one bar.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// FactorScore represents a single factor's scoring result.
type FactorScore struct {
	Name       string  `json:"name"`
	RawScore   float64 `json:"raw_score"`
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"`
	Commentary string  `json:"commentary"`
}

// Signal is the output of a scorer for one bar.
type Signal struct {
	Action  Action        `json:"action"`
	Score   float64       `json:"score"`
	Factors []FactorScore `json:"factors,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// Hold returns a hold signal carrying a reason.
func Hold(reason string) Signal {
	return Signal{Action: ActionHold, Reason: reason}
}
