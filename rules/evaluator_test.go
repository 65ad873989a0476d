package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
)

var evalTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func snapAt(at time.Time, bid, ask float64, m15 *market.IndicatorValues) market.Snapshot {
	s := market.Snapshot{
		Tick:       market.Tick{Instrument: "USD_JPY", Time: at, Bid: bid, Ask: ask},
		SpreadPips: market.Instruments["USD_JPY"].PriceToPips(ask - bid),
	}
	if m15 != nil {
		s.ByTimeframe = map[market.Timeframe]market.IndicatorValues{market.M15: *m15}
	}
	return s
}

func buyRule() Rule {
	return Rule{
		GeneratedAt: evalTime.Add(-time.Hour),
		ValidUntil:  evalTime.Add(3 * time.Hour),
		Confidence:  0.85,
		Entry:       EntryConditions{ShouldTrade: true, Direction: "BUY"},
	}
}

func TestCheckEntryConditions(t *testing.T) {
	t.Parallel()

	ev := Evaluator{}

	tests := []struct {
		name   string
		modify func(*Rule)
		snap   market.Snapshot
		wantOK bool
		reason string
	}{
		{
			name:   "no conditions passes",
			modify: func(r *Rule) {},
			snap:   snapAt(evalTime, 150.000, 150.010, nil),
			wantOK: true,
			reason: "all entry conditions met",
		},
		{
			name:   "should_trade false",
			modify: func(r *Rule) { r.Entry.ShouldTrade = false },
			snap:   snapAt(evalTime, 150.000, 150.010, nil),
			wantOK: false,
			reason: "rule says no trade",
		},
		{
			name:   "price outside zone",
			modify: func(r *Rule) { r.Entry.PriceZone = &PriceZone{Min: 151.0, Max: 152.0} },
			snap:   snapAt(evalTime, 150.000, 150.010, nil),
			wantOK: false,
		},
		{
			name:   "spread too wide",
			modify: func(r *Rule) { r.Entry.MaxSpreadPips = 2 },
			snap:   snapAt(evalTime, 150.000, 150.050, nil),
			wantOK: false,
		},
		{
			name:   "rsi above band",
			modify: func(r *Rule) { r.Entry.RSI = &RSIBand{Timeframe: "M15", Min: 40, Max: 70} },
			snap:   snapAt(evalTime, 150.000, 150.010, &market.IndicatorValues{RSI: 75}),
			wantOK: false,
			reason: "RSI 75 > max 70 (M15)",
		},
		{
			name:   "rsi below band",
			modify: func(r *Rule) { r.Entry.RSI = &RSIBand{Timeframe: "M15", Min: 40, Max: 70} },
			snap:   snapAt(evalTime, 150.000, 150.010, &market.IndicatorValues{RSI: 30}),
			wantOK: false,
		},
		{
			name:   "rsi missing timeframe fails",
			modify: func(r *Rule) { r.Entry.RSI = &RSIBand{Timeframe: "H1", Min: 40, Max: 70} },
			snap:   snapAt(evalTime, 150.000, 150.010, &market.IndicatorValues{RSI: 50}),
			wantOK: false,
			reason: "no H1 data for RSI check",
		},
		{
			name:   "ema above holds",
			modify: func(r *Rule) { r.Entry.EMA = &EMACheck{Timeframe: "M15", Relation: EMAAbove} },
			snap:   snapAt(evalTime, 150.000, 150.010, &market.IndicatorValues{EMAFast: 150.1, EMASlow: 150.0}),
			wantOK: true,
		},
		{
			name:   "ema cross without previous bar fails closed",
			modify: func(r *Rule) { r.Entry.EMA = &EMACheck{Timeframe: "M15", Relation: EMACrossUp} },
			snap:   snapAt(evalTime, 150.000, 150.010, &market.IndicatorValues{EMAFast: 150.1, EMASlow: 150.0}),
			wantOK: false,
			reason: "no previous M15 bar for EMA cross",
		},
		{
			name:   "ema cross up detected",
			modify: func(r *Rule) { r.Entry.EMA = &EMACheck{Timeframe: "M15", Relation: EMACrossUp} },
			snap: snapAt(evalTime, 150.000, 150.010, &market.IndicatorValues{
				EMAFast: 150.1, EMASlow: 150.0,
				PrevEMAFast: 149.9, PrevEMASlow: 150.0,
				HasPrev: true,
			}),
			wantOK: true,
		},
		{
			name:   "macd histogram sign",
			modify: func(r *Rule) { r.Entry.MACD = &MACDCheck{Timeframe: "M15", Condition: MACDHistPositive} },
			snap:   snapAt(evalTime, 150.000, 150.010, &market.IndicatorValues{MACDHist: -0.002}),
			wantOK: false,
		},
		{
			name:   "inside avoid window",
			modify: func(r *Rule) { r.Entry.AvoidWindows = []TimeWindow{{Start: "08:30", End: "09:30"}} },
			snap:   snapAt(evalTime, 150.000, 150.010, nil),
			wantOK: false,
		},
		{
			name:   "outside avoid window",
			modify: func(r *Rule) { r.Entry.AvoidWindows = []TimeWindow{{Start: "12:00", End: "14:00"}} },
			snap:   snapAt(evalTime, 150.000, 150.010, nil),
			wantOK: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rule := buyRule()
			tt.modify(&rule)
			ok, reason := ev.CheckEntry(tt.snap, rule)
			assert.Equal(t, tt.wantOK, ok, "reason: %s", reason)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, reason)
			}
		})
	}
}

func TestCheckEntryOrderShortCircuits(t *testing.T) {
	t.Parallel()

	// Price zone and spread both fail; the zone is reported because it is
	// checked first.
	rule := buyRule()
	rule.Entry.PriceZone = &PriceZone{Min: 151.0, Max: 152.0}
	rule.Entry.MaxSpreadPips = 0.1

	_, reason := Evaluator{}.CheckEntry(snapAt(evalTime, 150.000, 150.050, nil), rule)
	assert.Contains(t, reason, "outside zone")
}

func openLong(entry float64) ledger.Position {
	return ledger.Position{
		Ticket:     1,
		Instrument: "USD_JPY",
		Direction:  ledger.Buy,
		Volume:     1.0,
		EntryPrice: entry,
		OpenTime:   evalTime,
		Status:     ledger.Open,
	}
}

func TestCheckExitTPLadder(t *testing.T) {
	t.Parallel()

	ev := Evaluator{}
	rule := buyRule()
	rule.Exit.TakeProfits = []TPRung{
		{Pips: 30, ClosePercent: 100},
		{Pips: 10, ClosePercent: 30},
		{Pips: 20, ClosePercent: 40},
	}

	pos := openLong(150.000)
	state := NewExitState()

	// Below the first rung: nothing fires.
	sig := ev.CheckExit(pos, snapAt(evalTime, 150.050, 150.060, nil), rule, state)
	assert.False(t, sig.Exit)

	// +12 pips: rung 0 (10 pips after sorting) fires at 30%.
	sig = ev.CheckExit(pos, snapAt(evalTime, 150.120, 150.130, nil), rule, state)
	require.True(t, sig.Exit)
	assert.Equal(t, ClosePercent, sig.Action)
	assert.Equal(t, 30.0, sig.Percent)
	assert.Equal(t, 0, sig.Rung)
	state.FiredRungs[sig.Rung] = true

	// Same price again: the rung is one-shot.
	sig = ev.CheckExit(pos, snapAt(evalTime, 150.120, 150.130, nil), rule, state)
	assert.False(t, sig.Exit)

	// +22 pips: second rung fires at 40%.
	sig = ev.CheckExit(pos, snapAt(evalTime, 150.220, 150.230, nil), rule, state)
	require.True(t, sig.Exit)
	assert.Equal(t, 40.0, sig.Percent)
	assert.Equal(t, 1, sig.Rung)
	state.FiredRungs[sig.Rung] = true

	// +35 pips: final rung is a full close.
	sig = ev.CheckExit(pos, snapAt(evalTime, 150.350, 150.360, nil), rule, state)
	require.True(t, sig.Exit)
	assert.Equal(t, CloseAll, sig.Action)
	assert.Equal(t, 2, sig.Rung)
}

func TestCheckExitLadderSkipsToHighestReached(t *testing.T) {
	t.Parallel()

	rule := buyRule()
	rule.Exit.TakeProfits = []TPRung{
		{Pips: 10, ClosePercent: 30},
		{Pips: 20, ClosePercent: 100},
	}

	// A gap straight past both rungs still fires the first unfired rung;
	// the next evaluation picks up the rest.
	sig := Evaluator{}.CheckExit(openLong(150.000), snapAt(evalTime, 150.250, 150.260, nil), rule, NewExitState())
	require.True(t, sig.Exit)
	assert.Equal(t, 0, sig.Rung)
	assert.Equal(t, 30.0, sig.Percent)
}

func TestCheckExitStopLevel(t *testing.T) {
	t.Parallel()

	rule := buyRule()
	rule.Exit.StopLoss.PriceLevel = 149.900

	sig := Evaluator{}.CheckExit(openLong(150.000), snapAt(evalTime, 149.890, 149.900, nil), rule, NewExitState())
	require.True(t, sig.Exit)
	assert.Equal(t, CloseAll, sig.Action)
	assert.Contains(t, sig.Reason, "SL level")
	assert.Equal(t, -1, sig.Rung)
}

func TestCheckExitIndicator(t *testing.T) {
	t.Parallel()

	ev := Evaluator{}

	rule := buyRule()
	rule.Exit.IndicatorExits = []IndicatorExit{{Type: ExitRSIThreshold, Timeframe: "M15", Threshold: 75}}

	iv := &market.IndicatorValues{RSI: 80}
	sig := ev.CheckExit(openLong(150.000), snapAt(evalTime, 150.010, 150.020, iv), rule, NewExitState())
	require.True(t, sig.Exit)
	assert.Contains(t, sig.Reason, "RSI 80")

	// Missing timeframe data: the exit stays quiet.
	sig = ev.CheckExit(openLong(150.000), snapAt(evalTime, 150.010, 150.020, nil), rule, NewExitState())
	assert.False(t, sig.Exit)

	rule2 := buyRule()
	rule2.Exit.IndicatorExits = []IndicatorExit{{Type: ExitEMABreak, Timeframe: "M15"}}
	iv2 := &market.IndicatorValues{EMASlow: 150.100}
	sig = ev.CheckExit(openLong(150.000), snapAt(evalTime, 150.050, 150.060, iv2), rule2, NewExitState())
	require.True(t, sig.Exit)
	assert.Contains(t, sig.Reason, "broke below EMA")
}

func TestCheckExitTime(t *testing.T) {
	t.Parallel()

	ev := Evaluator{}

	rule := buyRule()
	rule.Exit.Time.MaxHoldMinutes = 90

	pos := openLong(150.000)

	sig := ev.CheckExit(pos, snapAt(evalTime.Add(89*time.Minute), 150.010, 150.020, nil), rule, NewExitState())
	assert.False(t, sig.Exit)

	sig = ev.CheckExit(pos, snapAt(evalTime.Add(90*time.Minute), 150.010, 150.020, nil), rule, NewExitState())
	require.True(t, sig.Exit)
	assert.Contains(t, sig.Reason, "max hold")

	rule2 := buyRule()
	rule2.Exit.Time.ForceCloseTime = "21:00"

	sig = ev.CheckExit(pos, snapAt(time.Date(2025, 6, 2, 21, 5, 0, 0, time.UTC), 150.010, 150.020, nil), rule2, NewExitState())
	require.True(t, sig.Exit)
	assert.Contains(t, sig.Reason, "force close time")
}

func TestCheckExitNilStateTolerated(t *testing.T) {
	t.Parallel()

	rule := buyRule()
	rule.Exit.TakeProfits = []TPRung{{Pips: 10, ClosePercent: 100}}

	sig := Evaluator{}.CheckExit(openLong(150.000), snapAt(evalTime, 150.150, 150.160, nil), rule, nil)
	assert.True(t, sig.Exit)
}

func TestTimeWindowContains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		window TimeWindow
		at     time.Time
		want   bool
	}{
		{"inside plain window", TimeWindow{"08:00", "10:00"}, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), true},
		{"end is exclusive", TimeWindow{"08:00", "10:00"}, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), false},
		{"wraps midnight late side", TimeWindow{"22:00", "02:00"}, time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC), true},
		{"wraps midnight early side", TimeWindow{"22:00", "02:00"}, time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC), true},
		{"wraps midnight outside", TimeWindow{"22:00", "02:00"}, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.window.Contains(tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := TimeWindow{"25:00", "02:00"}.Contains(evalTime)
	assert.Error(t, err)
}

func TestRuleValidity(t *testing.T) {
	t.Parallel()

	r := Rule{GeneratedAt: evalTime, ValidUntil: evalTime.Add(4 * time.Hour)}

	assert.True(t, r.ValidAt(evalTime))
	assert.True(t, r.ValidAt(evalTime.Add(3*time.Hour)))
	assert.False(t, r.ValidAt(evalTime.Add(4*time.Hour)), "expiry is exclusive")
	assert.False(t, r.ValidAt(evalTime.Add(-time.Second)))
}

func TestSortedTakeProfitsDoesNotMutate(t *testing.T) {
	t.Parallel()

	r := Rule{Exit: ExitStrategy{TakeProfits: []TPRung{{Pips: 30}, {Pips: 10}}}}
	sorted := r.SortedTakeProfits()

	assert.Equal(t, 10.0, sorted[0].Pips)
	assert.Equal(t, 30.0, r.Exit.TakeProfits[0].Pips, "original order untouched")
}
