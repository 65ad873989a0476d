package decision

import (
	"context"
	"time"

	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/rules"
)

// StaticRuleSource returns a fixed rule template, restamped with validity
// around the request time. Backtests use it for deterministic replay; tests
// use it everywhere a rule source is needed.
type StaticRuleSource struct {
	Template rules.Rule
	Validity time.Duration

	// Fn, when set, overrides Template and is invoked per request.
	Fn func(snap market.Snapshot, review string) (rules.Rule, error)
}

func (s *StaticRuleSource) GenerateRule(_ context.Context, snap market.Snapshot, review string) (rules.Rule, error) {
	if s.Fn != nil {
		return s.Fn(snap, review)
	}

	r := s.Template
	validity := s.Validity
	if validity <= 0 {
		validity = 4 * time.Hour
	}
	r.GeneratedAt = snap.Tick.Time
	r.ValidUntil = snap.Tick.Time.Add(validity)
	return r, nil
}

// StaticSource returns a fixed judgment; its Fn variant supports
// scripted tests.
type StaticSource struct {
	Judgment Judgment
	Fn       func(snap market.Snapshot) (Judgment, error)
}

func (s *StaticSource) Evaluate(_ context.Context, snap market.Snapshot) (Judgment, error) {
	if s.Fn != nil {
		return s.Fn(snap)
	}
	return s.Judgment, nil
}
