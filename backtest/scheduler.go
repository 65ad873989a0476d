// Package backtest replays a historical tick stream through the full
// trade-lifecycle stack: ledger, rule evaluator, risk gate and anomaly
// detector. The replay is single-threaded and driven entirely by simulated
// time extracted from the ticks; identical inputs produce identical output.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/rustyeddy/fxpilot/anomaly"
	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/journal"
	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/market/data"
	"github.com/rustyeddy/fxpilot/risk"
	"github.com/rustyeddy/fxpilot/rules"
)

// SnapshotFunc enriches a tick with indicator data. Backtests without an
// indicator pipeline may leave it nil and get a bare price snapshot; rules
// with indicator conditions then fail closed on the missing data.
type SnapshotFunc func(t market.Tick) market.Snapshot

type Config struct {
	Instrument        market.Instrument
	RuleIntervalHours int           // hourly decision points; default 4
	MonitorInterval   time.Duration // exit-check cadence in simulated time; default 15m
	DailyReview       bool          // feed the previous day's summary to the rule source
}

func (c *Config) defaults() {
	if c.RuleIntervalHours <= 0 {
		c.RuleIntervalHours = 4
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 15 * time.Minute
	}
}

type Result struct {
	Stats ledger.Stats
	Days  int
	Ticks int
	Start time.Time
	End   time.Time
}

// Scheduler composes the core components over one replay run. It is not
// reusable across runs.
type Scheduler struct {
	ledger    *ledger.Ledger
	evaluator rules.Evaluator
	gate      *risk.Gate
	detector  *anomaly.Detector
	source    decision.RuleSource
	journal   journal.Journal
	snapshot  SnapshotFunc
	cfg       Config
	log       *slog.Logger

	// simulated-day state, reset at day boundaries
	rule        *rules.Rule
	firedHours  map[int]bool
	lastMonitor time.Time

	// per-position state, persists across days until the position closes
	exitStates map[int64]*rules.ExitState
	ladder     []rules.TPRung // the ladder exitStates indices refer to

	day          string
	days         int
	review       string
	prevDayStats ledger.Stats
}

func NewScheduler(l *ledger.Ledger, gate *risk.Gate, det *anomaly.Detector,
	source decision.RuleSource, j journal.Journal, snap SnapshotFunc,
	cfg Config, log *slog.Logger) *Scheduler {

	cfg.defaults()
	if j == nil {
		j = journal.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	if snap == nil {
		snap = func(t market.Tick) market.Snapshot {
			return market.Snapshot{Tick: t, SpreadPips: t.SpreadPips(cfg.Instrument)}
		}
	}

	return &Scheduler{
		ledger:     l,
		gate:       gate,
		detector:   det,
		source:     source,
		journal:    j,
		snapshot:   snap,
		cfg:        cfg,
		log:        log,
		firedHours: make(map[int]bool),
		exitStates: make(map[int64]*rules.ExitState),
	}
}

// OnTradeClosed drops per-position exit state when the ledger auto-closes a
// position on SL/TP.
func (s *Scheduler) OnTradeClosed(ticket int64, reason string) {
	delete(s.exitStates, ticket)
}

// Run replays the feed to exhaustion. Whatever is still open at the end is
// closed unconditionally with reason "Backtest end".
func (s *Scheduler) Run(ctx context.Context, feed data.TickFeed) (Result, error) {
	defer feed.Close()

	s.ledger.SetTradeClosedListener(s)

	var start, end time.Time
	ticks := 0

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		t, ok, err := feed.Next()
		if err != nil {
			return Result{}, fmt.Errorf("backtest feed: %w", err)
		}
		if !ok {
			break
		}

		if start.IsZero() {
			start = t.Time
		}
		end = t.Time
		ticks++

		s.onTick(ctx, t)
	}

	s.ledger.CloseAll("Backtest end")

	if err := s.journal.RecordStats(s.ledger.StatsSnapshot(end)); err != nil {
		s.log.Error("journal stats record failed", "err", err)
	}

	return Result{
		Stats: s.ledger.Statistics(),
		Days:  s.days,
		Ticks: ticks,
		Start: start,
		End:   end,
	}, nil
}

// onTick is the per-tick decision order: price update, hourly rule
// regeneration, interval exit monitoring, anomaly check.
func (s *Scheduler) onTick(ctx context.Context, t market.Tick) {
	day := t.Time.UTC().Format("2006-01-02")
	if day != s.day {
		s.dayStart(day, t)
	}

	s.ledger.UpdatePrice(t)

	tm := t.Time.UTC()
	if tm.Minute() == 0 && tm.Hour()%s.cfg.RuleIntervalHours == 0 && !s.firedHours[tm.Hour()] {
		s.firedHours[tm.Hour()] = true
		s.regenerateRule(ctx, t)
	}

	if len(s.ledger.OpenPositions()) > 0 && t.Time.Sub(s.lastMonitor) >= s.cfg.MonitorInterval {
		s.lastMonitor = t.Time
		s.checkExits(t)
	}

	if s.detector != nil {
		if ev := s.detector.Observe(t); ev != nil {
			s.onAnomaly(t, ev)
		}
	}
}

func (s *Scheduler) dayStart(day string, t market.Tick) {
	if s.day != "" {
		s.dayEnd()
	}

	s.day = day
	s.days++
	s.lastMonitor = t.Time

	if s.cfg.DailyReview {
		stats := s.ledger.Statistics()
		closed := stats.Trades - s.prevDayStats.Trades
		if closed > 0 {
			net := stats.NetProfit.Sub(s.prevDayStats.NetProfit)
			s.review = fmt.Sprintf("previous day: %d trades closed, net P&L %s, running balance %s",
				closed, net.StringFixed(2), stats.Balance.StringFixed(2))
		} else {
			s.review = ""
		}
		s.prevDayStats = stats
	}

	s.log.Debug("backtest day start", "day", day)
}

// dayEnd resets the simulated-day state. Open positions persist.
func (s *Scheduler) dayEnd() {
	s.rule = nil
	s.firedHours = make(map[int]bool)
	s.lastMonitor = time.Time{}
	if s.detector != nil {
		s.detector.Reset()
	}
}

func (s *Scheduler) regenerateRule(ctx context.Context, t market.Tick) {
	snap := s.snapshot(t)

	rule, err := s.source.GenerateRule(ctx, snap, s.review)
	if err != nil {
		// External source failure means no trade this cycle, nothing more.
		s.log.Warn("rule generation failed, skipping cycle", "err", err)
		return
	}
	s.rule = &rule

	// Fired-rung state is keyed by ladder index; a different ladder makes
	// those indices meaningless, so positions re-arm against the new rungs.
	if sorted := rule.SortedTakeProfits(); !slices.Equal(s.ladder, sorted) {
		for _, st := range s.exitStates {
			st.FiredRungs = make(map[int]bool)
		}
		s.ladder = sorted
	}

	if !rule.Entry.ShouldTrade {
		return
	}
	if !rule.ValidAt(t.Time) {
		s.log.Warn("generated rule not valid at current time, skipping entry",
			"generated_at", rule.GeneratedAt, "valid_until", rule.ValidUntil)
		return
	}

	s.attemptEntry(t, snap, rule)
}

func (s *Scheduler) attemptEntry(t market.Tick, snap market.Snapshot, rule rules.Rule) {
	if ok, reason := s.evaluator.CheckEntry(snap, rule); !ok {
		s.log.Debug("entry rejected by rule", "reason", reason)
		return
	}

	openCount := len(s.ledger.OpenPositions())
	if max := rule.Risk.MaxPositions; max > 0 && openCount >= max {
		s.log.Debug("entry rejected", "reason", "rule max positions reached")
		return
	}

	j := decision.Judgment{
		Action:     decision.ParseAction(rule.Entry.Direction),
		Confidence: rule.Confidence,
	}
	if ok, reason := s.gate.Validate(j, openCount, snap.SpreadPips, t.Time, snap.VolatilityRatio()); !ok {
		s.log.Debug("entry rejected by risk gate", "reason", reason)
		return
	}

	dir := ledger.Buy
	fill := t.Ask
	if j.Action == decision.ActionSell {
		dir = ledger.Sell
		fill = t.Bid
	}

	slLevel := rule.Exit.StopLoss.PriceLevel
	stopPips := 0.0
	if slLevel > 0 {
		stopPips = s.cfg.Instrument.PriceToPips(fill - slLevel)
		if dir == ledger.Sell {
			stopPips = s.cfg.Instrument.PriceToPips(slLevel - fill)
		}
	}

	lots := risk.PositionSize(s.ledger.Account().Balance, s.gate.Policy.RiskPercent, stopPips, s.cfg.Instrument)
	if m := rule.Risk.PositionSizeMultiplier; m > 0 {
		lots = s.cfg.Instrument.ClampLots(lots * m)
	}

	ticket, err := s.ledger.Open(dir, lots, slLevel, 0)
	if err != nil {
		s.log.Error("open failed", "err", err)
		return
	}
	s.exitStates[ticket] = rules.NewExitState()

	if tr := rule.Exit.StopLoss.Trailing; tr != nil {
		if err := s.ledger.SetTrailing(ticket, tr.ActivateAtPips, tr.TrailDistancePips); err != nil {
			s.log.Error("set trailing failed", "ticket", ticket, "err", err)
		}
	}

	s.log.Info("position opened from rule",
		"ticket", ticket, "direction", dir.String(), "lots", lots, "sl", slLevel)
}

// checkExits runs the rule's exit strategy for every open position.
func (s *Scheduler) checkExits(t market.Tick) {
	if s.rule == nil {
		return
	}
	snap := s.snapshot(t)

	for _, pos := range s.ledger.OpenPositions() {
		st, ok := s.exitStates[pos.Ticket]
		if !ok {
			st = rules.NewExitState()
			s.exitStates[pos.Ticket] = st
		}

		sig := s.evaluator.CheckExit(pos, snap, *s.rule, st)
		if !sig.Exit {
			continue
		}
		if sig.Rung >= 0 {
			st.FiredRungs[sig.Rung] = true
		}

		switch sig.Action {
		case rules.ClosePercent:
			after, err := s.ledger.ClosePartial(pos.Ticket, sig.Percent, sig.Reason)
			if err != nil {
				s.log.Error("partial close failed", "ticket", pos.Ticket, "err", err)
				continue
			}
			if after.Status == ledger.Closed {
				delete(s.exitStates, pos.Ticket)
			}
		default:
			if _, err := s.ledger.Close(pos.Ticket, sig.Reason); err != nil {
				s.log.Error("close failed", "ticket", pos.Ticket, "err", err)
				continue
			}
			delete(s.exitStates, pos.Ticket)
		}
	}
}

// onAnomaly handles a rapid price movement while positions are open. A
// critical event closes everything; a warning forces an immediate exit
// re-evaluation outside the normal monitoring interval.
func (s *Scheduler) onAnomaly(t market.Tick, ev *anomaly.Event) {
	open := s.ledger.OpenPositions()
	if len(open) == 0 {
		return
	}

	s.log.Warn("anomaly during replay",
		"severity", ev.Severity, "pips", ev.PipMove, "time", ev.Timestamp)

	if ev.Severity == anomaly.SeverityCritical {
		s.ledger.CloseAll(fmt.Sprintf("Emergency: rapid price movement %.1f pips", ev.PipMove))
		s.exitStates = make(map[int64]*rules.ExitState)
		return
	}

	s.checkExits(t)
}
