// Package risk holds the independent pre-trade checks and position sizing.
// Everything here is a pure function over its inputs.
package risk

import (
	"fmt"
	"time"

	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/market"
)

// Policy configures the gate. Zero values disable the optional checks
// (volatility); the hard checks always run.
type Policy struct {
	MinConfidence      float64 // 0..1
	MaxSpreadPips      float64
	MaxOpenPositions   int
	FridayCutoffHour   int     // UTC hour from which Friday entries are blocked
	MaxVolatilityRatio float64 // current/average; 0 disables

	// Position sizing
	RiskPercent float64 // percent of balance risked per trade
}

func DefaultPolicy() Policy {
	return Policy{
		MinConfidence:      0.70,
		MaxSpreadPips:      3.0,
		MaxOpenPositions:   3,
		FridayCutoffHour:   20,
		MaxVolatilityRatio: 2.5,
		RiskPercent:        1.0,
	}
}

type Gate struct {
	Policy Policy
}

func NewGate(p Policy) *Gate {
	return &Gate{Policy: p}
}

// Validate runs the pre-trade checks in priority order and short-circuits on
// the first failure, which becomes the reported reason: action, confidence,
// spread, open position count, trading hours, volatility.
func (g *Gate) Validate(j decision.Judgment, openCount int, spreadPips float64, now time.Time, volRatio float64) (bool, string) {
	p := g.Policy

	if j.Action != decision.ActionBuy && j.Action != decision.ActionSell {
		return false, fmt.Sprintf("action %s is not tradeable", j.Action)
	}

	if j.Confidence < p.MinConfidence {
		return false, fmt.Sprintf("confidence %.2f below minimum %.2f", j.Confidence, p.MinConfidence)
	}

	if p.MaxSpreadPips > 0 && spreadPips > p.MaxSpreadPips {
		return false, fmt.Sprintf("spread %.1f pips above maximum %.1f", spreadPips, p.MaxSpreadPips)
	}

	if openCount >= p.MaxOpenPositions {
		return false, fmt.Sprintf("open positions %d at maximum %d", openCount, p.MaxOpenPositions)
	}

	if ok, reason := g.tradingHours(now); !ok {
		return false, reason
	}

	if p.MaxVolatilityRatio > 0 && volRatio > 0 && volRatio > p.MaxVolatilityRatio {
		return false, fmt.Sprintf("volatility ratio %.2f above maximum %.2f", volRatio, p.MaxVolatilityRatio)
	}

	return true, "all risk checks passed"
}

// tradingHours blocks weekends entirely and Fridays from the cutoff hour.
func (g *Gate) tradingHours(now time.Time) (bool, string) {
	utc := now.UTC()
	switch utc.Weekday() {
	case time.Saturday, time.Sunday:
		return false, fmt.Sprintf("no trading on %s", utc.Weekday())
	case time.Friday:
		if utc.Hour() >= g.Policy.FridayCutoffHour {
			return false, fmt.Sprintf("Friday cutoff %02d:00 UTC passed", g.Policy.FridayCutoffHour)
		}
	}
	return true, ""
}

// PositionSize computes lots from risk budget and stop distance:
// (balance * riskPct/100) / (stopPips * pipValuePerLot), clamped to the
// instrument's lot limits and floored to its lot step. A zero stop distance
// returns the minimum lot rather than dividing by zero.
func PositionSize(balance market.Cash, riskPct, stopPips float64, in market.Instrument) float64 {
	if stopPips <= 0 {
		return in.MinLot
	}

	bal, _ := balance.Float64()
	riskAmt := bal * riskPct / 100
	lots := riskAmt / (stopPips * in.PipValuePerLot)

	return in.ClampLots(lots)
}
