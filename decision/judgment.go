// Package decision defines the pluggable decision sources that propose
// trades: AI judgment providers and structured-rule generators. The trading
// core only depends on the interfaces here and treats every source as a
// black box with unspecified latency.
package decision

import (
	"context"
	"strings"

	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/rules"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction normalizes a free-form action string; anything unrecognized
// is HOLD.
func ParseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return ActionBuy
	case "SELL", "SHORT":
		return ActionSell
	default:
		return ActionHold
	}
}

// Judgment is a proposed trading action. Price fields are optional; zero
// means the source expressed no preference.
type Judgment struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"` // 0..1
	Reasoning  string  `json:"reasoning"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// Source proposes an action for the current market state. An error means
// "no trade this cycle" to the scheduler; the live review layer treats it as
// a fail-safe trigger instead.
type Source interface {
	Evaluate(ctx context.Context, snap market.Snapshot) (Judgment, error)
}

// RuleSource generates a structured trading rule. review carries an optional
// summary of the previous day's trading for the source to learn from.
type RuleSource interface {
	GenerateRule(ctx context.Context, snap market.Snapshot, review string) (rules.Rule, error)
}
