// Package rules defines the machine-evaluable trading rule a decision
// source emits and the evaluator that matches market snapshots against it.
package rules

import (
	"fmt"
	"sort"
	"time"
)

type EMARelation string

const (
	EMAAbove     EMARelation = "above" // fast above slow
	EMABelow     EMARelation = "below"
	EMACrossUp   EMARelation = "cross_up"
	EMACrossDown EMARelation = "cross_down"
)

type MACDCondition string

const (
	MACDHistPositive MACDCondition = "hist_positive"
	MACDHistNegative MACDCondition = "hist_negative"
	MACDCrossUp      MACDCondition = "cross_up"
	MACDCrossDown    MACDCondition = "cross_down"
)

type IndicatorExitType string

const (
	ExitMACDCross    IndicatorExitType = "macd_cross"
	ExitEMABreak     IndicatorExitType = "ema_break"
	ExitRSIThreshold IndicatorExitType = "rsi_threshold"
)

type PriceZone struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

type RSIBand struct {
	Timeframe string  `json:"timeframe" yaml:"timeframe"`
	Min       float64 `json:"min" yaml:"min"`
	Max       float64 `json:"max" yaml:"max"`
}

type EMACheck struct {
	Timeframe string      `json:"timeframe" yaml:"timeframe"`
	Relation  EMARelation `json:"relation" yaml:"relation"`
}

type MACDCheck struct {
	Timeframe string        `json:"timeframe" yaml:"timeframe"`
	Condition MACDCondition `json:"condition" yaml:"condition"`
}

// TimeWindow is a daily UTC window in "HH:MM" form. Windows may wrap
// midnight (Start > End).
type TimeWindow struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Contains reports whether t's UTC time-of-day falls inside the window.
func (w TimeWindow) Contains(t time.Time) (bool, error) {
	start, err := parseHHMM(w.Start)
	if err != nil {
		return false, fmt.Errorf("time window start: %w", err)
	}
	end, err := parseHHMM(w.End)
	if err != nil {
		return false, fmt.Errorf("time window end: %w", err)
	}

	minute := t.UTC().Hour()*60 + t.UTC().Minute()
	if start <= end {
		return minute >= start && minute < end, nil
	}
	return minute >= start || minute < end, nil
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad HH:MM %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad HH:MM %q", s)
	}
	return h*60 + m, nil
}

type EntryConditions struct {
	ShouldTrade   bool         `json:"should_trade" yaml:"should_trade"`
	Direction     string       `json:"direction" yaml:"direction"` // BUY or SELL
	PriceZone     *PriceZone   `json:"price_zone,omitempty" yaml:"price_zone,omitempty"`
	RSI           *RSIBand     `json:"rsi,omitempty" yaml:"rsi,omitempty"`
	EMA           *EMACheck    `json:"ema,omitempty" yaml:"ema,omitempty"`
	MACD          *MACDCheck   `json:"macd,omitempty" yaml:"macd,omitempty"`
	MaxSpreadPips float64      `json:"max_spread_pips,omitempty" yaml:"max_spread_pips,omitempty"`
	AvoidWindows  []TimeWindow `json:"avoid_time_windows,omitempty" yaml:"avoid_time_windows,omitempty"`
}

// TPRung is one step of the take-profit ladder. Rungs are one-shot: once a
// rung has fired for a position it never fires again.
type TPRung struct {
	Pips         float64 `json:"pips" yaml:"pips"`
	ClosePercent float64 `json:"close_percent" yaml:"close_percent"`
}

type Trailing struct {
	ActivateAtPips    float64 `json:"activate_at_pips" yaml:"activate_at_pips"`
	TrailDistancePips float64 `json:"trail_distance_pips" yaml:"trail_distance_pips"`
}

type StopLossSpec struct {
	PriceLevel float64   `json:"price_level,omitempty" yaml:"price_level,omitempty"`
	Trailing   *Trailing `json:"trailing,omitempty" yaml:"trailing,omitempty"`
}

type IndicatorExit struct {
	Type      IndicatorExitType `json:"type" yaml:"type"`
	Timeframe string            `json:"timeframe" yaml:"timeframe"`
	// Threshold is used by rsi_threshold: longs exit at RSI >= Threshold,
	// shorts at RSI <= Threshold.
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

type TimeExits struct {
	MaxHoldMinutes int    `json:"max_hold_minutes,omitempty" yaml:"max_hold_minutes,omitempty"`
	ForceCloseTime string `json:"force_close_time,omitempty" yaml:"force_close_time,omitempty"` // "HH:MM" UTC
}

type ExitStrategy struct {
	TakeProfits    []TPRung        `json:"take_profit,omitempty" yaml:"take_profit,omitempty"`
	StopLoss       StopLossSpec    `json:"stop_loss" yaml:"stop_loss"`
	IndicatorExits []IndicatorExit `json:"indicator_exits,omitempty" yaml:"indicator_exits,omitempty"`
	Time           TimeExits       `json:"time_exits" yaml:"time_exits"`
}

type RiskManagement struct {
	PositionSizeMultiplier float64 `json:"position_size_multiplier" yaml:"position_size_multiplier"`
	MaxPositions           int     `json:"max_positions" yaml:"max_positions"`
}

// Rule is a structured trading rule, valid for new entries only within
// [GeneratedAt, ValidUntil). Existing positions keep being governed by an
// expired rule until it is replaced.
type Rule struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	ValidUntil  time.Time       `json:"valid_until" yaml:"valid_until"`
	Bias        string          `json:"bias" yaml:"bias"`
	Confidence  float64         `json:"confidence" yaml:"confidence"`
	Entry       EntryConditions `json:"entry_conditions" yaml:"entry_conditions"`
	Exit        ExitStrategy    `json:"exit_strategy" yaml:"exit_strategy"`
	Risk        RiskManagement  `json:"risk_management" yaml:"risk_management"`
}

// ValidAt reports whether the rule may be used for new entries at t.
func (r Rule) ValidAt(t time.Time) bool {
	return !t.Before(r.GeneratedAt) && t.Before(r.ValidUntil)
}

// SortedTakeProfits returns the TP ladder in ascending pip order.
func (r Rule) SortedTakeProfits() []TPRung {
	rungs := make([]TPRung, len(r.Exit.TakeProfits))
	copy(rungs, r.Exit.TakeProfits)
	sort.Slice(rungs, func(i, j int) bool { return rungs[i].Pips < rungs[j].Pips })
	return rungs
}
