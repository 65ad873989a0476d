// Package monitor runs the live multi-layer position supervision: an
// emergency layer with authority to close, an alert-only anomaly watcher,
// and a periodic AI review. The layers are independently scheduled, never
// block each other, and may observe slightly different position snapshots
// within the same wall-clock moment.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rustyeddy/fxpilot/broker"
	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/journal"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/notifier"
)

type Config struct {
	Emergency EmergencyConfig
	Watch     WatchConfig
	Review    ReviewConfig

	WatchEvery    time.Duration // layer 2 cadence; default 5m
	ReviewEvery   time.Duration // layer 3 cadence; default 30m
	AlertCooldown time.Duration // dedup window; default 15m
	StopTimeout   time.Duration // bounded wait on Stop; default 10s
}

func (c *Config) defaults() {
	c.Emergency.defaults()
	c.Watch.defaults()
	c.Review.defaults()
	if c.WatchEvery <= 0 {
		c.WatchEvery = 5 * time.Minute
	}
	if c.ReviewEvery <= 0 {
		c.ReviewEvery = 30 * time.Minute
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
}

// Orchestrator owns the three monitor layers. Layer 1 runs on its own
// ticker (cron cannot schedule sub-second); layers 2/3 and the daily
// summary run on a cron scheduler. Start order layer1->2->3 and the
// reverse on stop exist purely for log readability.
type Orchestrator struct {
	broker broker.Client
	alerts *AlertManager
	layer1 *emergencyLayer
	layer2 *watchLayer
	layer3 *reviewLayer
	cfg    Config
	log    *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	known map[int64]bool // tickets seen open, for close detection
}

func NewOrchestrator(b broker.Client, in market.Instrument, source decision.Source,
	snaps SnapshotProvider, sinks notifier.Notifier, j journal.Journal,
	cfg Config, log *slog.Logger) *Orchestrator {

	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}

	alerts := NewAlertManager(cfg.AlertCooldown, sinks, j, log)

	o := &Orchestrator{
		broker: b,
		alerts: alerts,
		cfg:    cfg,
		log:    log,
		known:  make(map[int64]bool),
	}

	o.layer1 = &emergencyLayer{
		broker: b, in: in, cfg: cfg.Emergency, alerts: alerts, log: log,
		closed: o.positionClosed,
	}
	o.layer2 = &watchLayer{
		broker: b, in: in, cfg: cfg.Watch, alerts: alerts, log: log,
		peaks: make(map[int64]float64),
	}
	o.layer3 = &reviewLayer{
		broker: b, source: source, snaps: snaps, cfg: cfg.Review,
		alerts: alerts, log: log, closed: o.positionClosed,
	}

	return o
}

// Start launches all three layers. It returns immediately; loops run until
// Stop. A transient error in one iteration is logged and the loop carries
// on at the next tick.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go o.runEmergency(ctx)
	o.log.Info("monitor layer 1 (emergency) started", "interval", o.cfg.Emergency.Interval)

	o.cron = cron.New(cron.WithSeconds())

	if _, err := o.cron.AddFunc(fmt.Sprintf("@every %s", o.cfg.WatchEvery), func() {
		if err := o.layer2.iterate(ctx); err != nil {
			o.log.Error("layer 2 iteration failed", "err", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("register layer 2: %w", err)
	}
	o.log.Info("monitor layer 2 (anomaly watch) started", "every", o.cfg.WatchEvery)

	if _, err := o.cron.AddFunc(fmt.Sprintf("@every %s", o.cfg.ReviewEvery), func() {
		if err := o.layer3.iterate(ctx); err != nil {
			o.log.Error("layer 3 iteration failed", "err", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("register layer 3: %w", err)
	}
	o.log.Info("monitor layer 3 (AI review) started", "every", o.cfg.ReviewEvery)

	if _, err := o.cron.AddFunc("0 0 0 * * *", o.dailySummary); err != nil {
		cancel()
		return fmt.Errorf("register daily summary: %w", err)
	}

	o.cron.Start()
	return nil
}

// Stop signals all loops and waits, bounded by StopTimeout, for in-flight
// iterations to finish.
func (o *Orchestrator) Stop() {
	o.log.Info("monitor layer 3 (AI review) stopping")
	o.log.Info("monitor layer 2 (anomaly watch) stopping")

	var cronDone <-chan struct{}
	if o.cron != nil {
		cronDone = o.cron.Stop().Done()
	}

	o.log.Info("monitor layer 1 (emergency) stopping")
	if o.cancel != nil {
		o.cancel()
	}

	l1done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(l1done)
	}()

	deadline := time.After(o.cfg.StopTimeout)
	for _, ch := range []<-chan struct{}{cronDone, l1done} {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-deadline:
			o.log.Warn("monitor stop timed out waiting for in-flight iterations")
			return
		}
	}
	o.log.Info("monitor stopped")
}

func (o *Orchestrator) runEmergency(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.Emergency.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickets, err := o.layer1.iterate(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				o.log.Error("layer 1 iteration failed", "err", err)
				continue
			}
			o.reconcile(tickets)
		}
	}
}

// reconcile diffs the currently open tickets against the last sweep and
// clears per-ticket state for anything that closed, whoever closed it.
func (o *Orchestrator) reconcile(open []int64) {
	current := make(map[int64]bool, len(open))
	for _, t := range open {
		current[t] = true
	}

	o.mu.Lock()
	var gone []int64
	for t := range o.known {
		if !current[t] {
			gone = append(gone, t)
		}
	}
	o.known = current
	o.mu.Unlock()

	for _, t := range gone {
		o.positionClosed(t)
	}
}

// positionClosed is the single clearing hook: every layer's tracking state
// and the alert dedup entries for the ticket are dropped here.
func (o *Orchestrator) positionClosed(ticket int64) {
	o.layer2.onPositionClosed(ticket)
	o.alerts.Clear(fmt.Sprintf("%d", ticket))

	o.mu.Lock()
	delete(o.known, ticket)
	o.mu.Unlock()
}

func (o *Orchestrator) dailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	acct, err := o.broker.GetAccountInfo(ctx)
	if err != nil {
		o.log.Error("daily summary: account", "err", err)
		return
	}
	positions, err := o.broker.GetOpenPositions(ctx)
	if err != nil {
		o.log.Error("daily summary: positions", "err", err)
		return
	}

	o.alerts.EmitAlways(notifier.Alert{
		Type:     "daily_summary",
		Severity: "info",
		Subject:  "session",
		Message: fmt.Sprintf("balance %s, equity %s, %d open positions",
			acct.Balance.StringFixed(2), acct.Equity.StringFixed(2), len(positions)),
		Details: map[string]string{
			"balance":        acct.Balance.StringFixed(2),
			"equity":         acct.Equity.StringFixed(2),
			"open_positions": fmt.Sprintf("%d", len(positions)),
		},
	})
}

// Alerts exposes the manager, mainly for wiring and tests.
func (o *Orchestrator) Alerts() *AlertManager { return o.alerts }
