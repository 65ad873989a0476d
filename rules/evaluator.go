package rules

import (
	"fmt"
	"time"

	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
)

type ExitAction int

const (
	CloseAll ExitAction = iota
	ClosePercent
)

// ExitSignal is the evaluator's verdict on one position.
type ExitSignal struct {
	Exit    bool
	Reason  string
	Action  ExitAction
	Percent float64 // only for ClosePercent
	Rung    int     // TP ladder index that fired, -1 otherwise
}

// ExitState is the per-position one-shot state for the TP ladder. The
// evaluator itself stays stateless; callers own one ExitState per ticket and
// drop it when the position closes.
type ExitState struct {
	FiredRungs map[int]bool
}

func NewExitState() *ExitState {
	return &ExitState{FiredRungs: make(map[int]bool)}
}

// Evaluator matches market snapshots against structured rules. It is a pure
// function over its inputs and safe for concurrent use.
type Evaluator struct{}

// CheckEntry decides entry admissibility. Checks run in a fixed order and
// short-circuit on the first failure: should_trade, price zone, spread,
// RSI band, EMA relation, MACD condition, avoid windows. A condition whose
// timeframe data is missing fails (never skips); conditions absent from the
// rule pass vacuously.
func (Evaluator) CheckEntry(snap market.Snapshot, rule Rule) (bool, string) {
	e := rule.Entry

	if !e.ShouldTrade {
		return false, "rule says no trade"
	}

	mid := snap.Tick.Mid()
	if z := e.PriceZone; z != nil && (z.Min != 0 || z.Max != 0) {
		if mid < z.Min || mid > z.Max {
			return false, fmt.Sprintf("price %.5f outside zone [%.5f, %.5f]", mid, z.Min, z.Max)
		}
	}

	if e.MaxSpreadPips > 0 && snap.SpreadPips > e.MaxSpreadPips {
		return false, fmt.Sprintf("spread %.1f pips > max %.1f", snap.SpreadPips, e.MaxSpreadPips)
	}

	if b := e.RSI; b != nil {
		iv, ok := snap.Indicators(market.Timeframe(b.Timeframe))
		if !ok {
			return false, fmt.Sprintf("no %s data for RSI check", b.Timeframe)
		}
		if iv.RSI < b.Min {
			return false, fmt.Sprintf("RSI %g < min %g (%s)", iv.RSI, b.Min, b.Timeframe)
		}
		if iv.RSI > b.Max {
			return false, fmt.Sprintf("RSI %g > max %g (%s)", iv.RSI, b.Max, b.Timeframe)
		}
	}

	if c := e.EMA; c != nil {
		iv, ok := snap.Indicators(market.Timeframe(c.Timeframe))
		if !ok {
			return false, fmt.Sprintf("no %s data for EMA check", c.Timeframe)
		}
		ok, reason := checkEMA(iv, c)
		if !ok {
			return false, reason
		}
	}

	if c := e.MACD; c != nil {
		iv, ok := snap.Indicators(market.Timeframe(c.Timeframe))
		if !ok {
			return false, fmt.Sprintf("no %s data for MACD check", c.Timeframe)
		}
		ok, reason := checkMACD(iv, c)
		if !ok {
			return false, reason
		}
	}

	for _, w := range e.AvoidWindows {
		inside, err := w.Contains(snap.Tick.Time)
		if err != nil {
			return false, err.Error()
		}
		if inside {
			return false, fmt.Sprintf("inside avoided window %s-%s", w.Start, w.End)
		}
	}

	return true, "all entry conditions met"
}

func checkEMA(iv market.IndicatorValues, c *EMACheck) (bool, string) {
	switch c.Relation {
	case EMAAbove:
		if iv.EMAFast <= iv.EMASlow {
			return false, fmt.Sprintf("EMA fast %.5f not above slow %.5f (%s)", iv.EMAFast, iv.EMASlow, c.Timeframe)
		}
	case EMABelow:
		if iv.EMAFast >= iv.EMASlow {
			return false, fmt.Sprintf("EMA fast %.5f not below slow %.5f (%s)", iv.EMAFast, iv.EMASlow, c.Timeframe)
		}
	case EMACrossUp:
		// Cross detection needs the previous bar; without it the condition
		// fails closed.
		if !iv.HasPrev {
			return false, fmt.Sprintf("no previous %s bar for EMA cross", c.Timeframe)
		}
		if !(iv.PrevEMAFast <= iv.PrevEMASlow && iv.EMAFast > iv.EMASlow) {
			return false, fmt.Sprintf("no EMA cross up on %s", c.Timeframe)
		}
	case EMACrossDown:
		if !iv.HasPrev {
			return false, fmt.Sprintf("no previous %s bar for EMA cross", c.Timeframe)
		}
		if !(iv.PrevEMAFast >= iv.PrevEMASlow && iv.EMAFast < iv.EMASlow) {
			return false, fmt.Sprintf("no EMA cross down on %s", c.Timeframe)
		}
	default:
		return false, fmt.Sprintf("unknown EMA relation %q", c.Relation)
	}
	return true, ""
}

func checkMACD(iv market.IndicatorValues, c *MACDCheck) (bool, string) {
	switch c.Condition {
	case MACDHistPositive:
		if iv.MACDHist <= 0 {
			return false, fmt.Sprintf("MACD histogram %.6f not positive (%s)", iv.MACDHist, c.Timeframe)
		}
	case MACDHistNegative:
		if iv.MACDHist >= 0 {
			return false, fmt.Sprintf("MACD histogram %.6f not negative (%s)", iv.MACDHist, c.Timeframe)
		}
	case MACDCrossUp:
		if !iv.HasPrev {
			return false, fmt.Sprintf("no previous %s bar for MACD cross", c.Timeframe)
		}
		if !(iv.PrevMACD <= iv.PrevMACDSignal && iv.MACD > iv.MACDSignal) {
			return false, fmt.Sprintf("no MACD cross up on %s", c.Timeframe)
		}
	case MACDCrossDown:
		if !iv.HasPrev {
			return false, fmt.Sprintf("no previous %s bar for MACD cross", c.Timeframe)
		}
		if !(iv.PrevMACD >= iv.PrevMACDSignal && iv.MACD < iv.MACDSignal) {
			return false, fmt.Sprintf("no MACD cross down on %s", c.Timeframe)
		}
	default:
		return false, fmt.Sprintf("unknown MACD condition %q", c.Condition)
	}
	return true, ""
}

// CheckExit evaluates the rule's exit strategy for one open position.
// Category order is fixed: TP ladder, hard stop level, indicator exits,
// time exits. The first firing category wins; later ones are not checked.
func (Evaluator) CheckExit(pos ledger.Position, snap market.Snapshot, rule Rule, state *ExitState) ExitSignal {
	in, err := market.Lookup(pos.Instrument)
	if err != nil {
		return ExitSignal{Rung: -1}
	}
	if state == nil {
		state = NewExitState()
	}

	pips := pos.PipProfit(snap.Tick.Bid, snap.Tick.Ask, in)

	// 1) Take-profit ladder: first unfired rung (ascending pips) whose
	// threshold the current pip-profit meets.
	for i, rung := range rule.SortedTakeProfits() {
		if state.FiredRungs[i] || pips < rung.Pips {
			continue
		}
		sig := ExitSignal{
			Exit:    true,
			Reason:  fmt.Sprintf("TP rung %d: +%.1f pips >= %g", i+1, pips, rung.Pips),
			Action:  ClosePercent,
			Percent: rung.ClosePercent,
			Rung:    i,
		}
		if rung.ClosePercent >= 100 {
			sig.Action = CloseAll
		}
		return sig
	}

	// 2) Hard stop-loss price level.
	if level := rule.Exit.StopLoss.PriceLevel; level > 0 {
		mark := snap.Tick.Bid
		breached := mark <= level
		if pos.Direction == ledger.Sell {
			mark = snap.Tick.Ask
			breached = mark >= level
		}
		if breached {
			return ExitSignal{
				Exit:   true,
				Reason: fmt.Sprintf("rule SL level %.5f breached at %.5f", level, mark),
				Action: CloseAll,
				Rung:   -1,
			}
		}
	}

	// 3) Indicator exits, first match wins.
	for _, ex := range rule.Exit.IndicatorExits {
		if fired, reason := checkIndicatorExit(pos, snap, ex); fired {
			return ExitSignal{Exit: true, Reason: reason, Action: CloseAll, Rung: -1}
		}
	}

	// 4) Time exits.
	now := snap.Tick.Time
	if m := rule.Exit.Time.MaxHoldMinutes; m > 0 {
		held := now.Sub(pos.OpenTime)
		if held >= time.Duration(m)*time.Minute {
			return ExitSignal{
				Exit:   true,
				Reason: fmt.Sprintf("max hold %dm exceeded (held %s)", m, held.Truncate(time.Minute)),
				Action: CloseAll,
				Rung:   -1,
			}
		}
	}
	if fc := rule.Exit.Time.ForceCloseTime; fc != "" {
		cutoff, err := parseHHMM(fc)
		if err == nil {
			minute := now.UTC().Hour()*60 + now.UTC().Minute()
			if minute >= cutoff {
				return ExitSignal{
					Exit:   true,
					Reason: fmt.Sprintf("force close time %s reached", fc),
					Action: CloseAll,
					Rung:   -1,
				}
			}
		}
	}

	return ExitSignal{Rung: -1}
}

// checkIndicatorExit evaluates a single indicator exit against a position.
// Missing timeframe or previous-bar data fails closed (condition not met).
func checkIndicatorExit(pos ledger.Position, snap market.Snapshot, ex IndicatorExit) (bool, string) {
	iv, ok := snap.Indicators(market.Timeframe(ex.Timeframe))
	if !ok {
		return false, ""
	}

	long := pos.Direction == ledger.Buy

	switch ex.Type {
	case ExitMACDCross:
		if !iv.HasPrev {
			return false, ""
		}
		if long && iv.PrevMACD >= iv.PrevMACDSignal && iv.MACD < iv.MACDSignal {
			return true, fmt.Sprintf("MACD crossed down on %s", ex.Timeframe)
		}
		if !long && iv.PrevMACD <= iv.PrevMACDSignal && iv.MACD > iv.MACDSignal {
			return true, fmt.Sprintf("MACD crossed up on %s", ex.Timeframe)
		}

	case ExitEMABreak:
		if long && snap.Tick.Bid < iv.EMASlow {
			return true, fmt.Sprintf("price broke below EMA %.5f on %s", iv.EMASlow, ex.Timeframe)
		}
		if !long && snap.Tick.Ask > iv.EMASlow {
			return true, fmt.Sprintf("price broke above EMA %.5f on %s", iv.EMASlow, ex.Timeframe)
		}

	case ExitRSIThreshold:
		if long && iv.RSI >= ex.Threshold {
			return true, fmt.Sprintf("RSI %g reached %g on %s", iv.RSI, ex.Threshold, ex.Timeframe)
		}
		if !long && iv.RSI <= ex.Threshold {
			return true, fmt.Sprintf("RSI %g reached %g on %s", iv.RSI, ex.Threshold, ex.Timeframe)
		}
	}

	return false, ""
}
