package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/market"
)

// Monday 10:00 UTC, well inside trading hours.
var monday = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func TestValidateChecksInPriorityOrder(t *testing.T) {
	t.Parallel()

	g := NewGate(DefaultPolicy())

	tests := []struct {
		name     string
		judgment decision.Judgment
		open     int
		spread   float64
		now      time.Time
		vol      float64
		wantOK   bool
		contains string
	}{
		{
			name:     "passes all checks",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.9},
			spread:   1.5,
			now:      monday,
			wantOK:   true,
			contains: "all risk checks passed",
		},
		{
			name:     "hold is not tradeable",
			judgment: decision.Judgment{Action: decision.ActionHold, Confidence: 0.9},
			spread:   1.5,
			now:      monday,
			contains: "not tradeable",
		},
		{
			name:     "low confidence",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.5},
			spread:   1.5,
			now:      monday,
			contains: "confidence 0.50 below minimum 0.70",
		},
		{
			// Both confidence and spread fail; confidence is reported
			// because it is checked first.
			name:     "confidence reported before spread",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.5},
			spread:   9.0,
			now:      monday,
			contains: "confidence",
		},
		{
			name:     "spread too wide",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.9},
			spread:   3.5,
			now:      monday,
			contains: "spread 3.5 pips above maximum 3.0",
		},
		{
			name:     "position limit reached",
			judgment: decision.Judgment{Action: decision.ActionSell, Confidence: 0.9},
			open:     3,
			spread:   1.5,
			now:      monday,
			contains: "open positions 3 at maximum 3",
		},
		{
			name:     "saturday blocked",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.9},
			spread:   1.5,
			now:      time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC),
			contains: "no trading on Saturday",
		},
		{
			name:     "friday after cutoff blocked",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.9},
			spread:   1.5,
			now:      time.Date(2025, 6, 6, 20, 30, 0, 0, time.UTC),
			contains: "Friday cutoff 20:00 UTC passed",
		},
		{
			name:     "friday before cutoff allowed",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.9},
			spread:   1.5,
			now:      time.Date(2025, 6, 6, 19, 59, 0, 0, time.UTC),
			wantOK:   true,
		},
		{
			name:     "volatility spike blocked",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.9},
			spread:   1.5,
			now:      monday,
			vol:      3.0,
			contains: "volatility ratio 3.00 above maximum 2.50",
		},
		{
			name:     "unknown volatility passes",
			judgment: decision.Judgment{Action: decision.ActionBuy, Confidence: 0.9},
			spread:   1.5,
			now:      monday,
			vol:      0,
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, reason := g.Validate(tt.judgment, tt.open, tt.spread, tt.now, tt.vol)
			assert.Equal(t, tt.wantOK, ok, "reason: %s", reason)
			if tt.contains != "" {
				assert.Contains(t, reason, tt.contains)
			}
		})
	}
}

func TestPositionSize(t *testing.T) {
	t.Parallel()

	in := market.Instruments["USD_JPY"]

	tests := []struct {
		name     string
		balance  float64
		riskPct  float64
		stopPips float64
		want     float64
	}{
		// 1% of 100k = 1000, over 20 pips at $10/pip/lot.
		{"textbook", 100_000, 1.0, 20, 5.0},
		{"half risk", 100_000, 0.5, 20, 2.5},
		{"wide stop shrinks size", 100_000, 1.0, 100, 1.0},
		{"zero stop falls back to min lot", 100_000, 1.0, 0, in.MinLot},
		{"negative stop falls back to min lot", 100_000, 1.0, -5, in.MinLot},
		{"huge balance clamps to max lot", 100_000_000, 1.0, 20, in.MaxLot},
		{"tiny balance clamps to min lot", 100, 1.0, 20, in.MinLot},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := PositionSize(market.CashFromFloat(tt.balance), tt.riskPct, tt.stopPips, in)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPositionSizeFlooredToLotStep(t *testing.T) {
	t.Parallel()

	in := market.Instruments["EUR_USD"]

	// 1% of 12,345 = 123.45, over 25 pips: 0.4938 lots, floored to 0.49.
	got := PositionSize(market.CashFromFloat(12_345), 1.0, 25, in)
	assert.InDelta(t, 0.49, got, 1e-9)
}
