package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fxpilot/broker/sim"
	"github.com/rustyeddy/fxpilot/config"
	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/market/data"
	"github.com/rustyeddy/fxpilot/monitor"
	"github.com/rustyeddy/fxpilot/notifier"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the live monitoring stack in paper mode",
	Long: `Monitor runs the three-layer live position supervision against a
paper account, replaying a tick file as the price feed:

  layer 1 - emergency hard stops, checked every 100ms
  layer 2 - drawdown/adverse-move/spread alerts, every 5 minutes
  layer 3 - AI re-review of open exposure, every 30 minutes

Positions opened through the paper broker (or pre-seeded with --seed) are
supervised until the feed ends or the process receives SIGINT.

Example:
  fxpilot monitor --config bot.yaml --ticks data/usdjpy.csv --speed 60`,
	RunE: runMonitor,
}

var (
	monConfigPath string
	monTicksPath  string
	monSpeed      float64
	monSeed       bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVarP(&monConfigPath, "config", "c", "", "path to bot config (YAML or JSON)")
	monitorCmd.Flags().StringVarP(&monTicksPath, "ticks", "t", "", "path to tick CSV used as the paper price feed (required)")
	monitorCmd.Flags().Float64Var(&monSpeed, "speed", 1, "replay speed multiplier (60 = one tick-minute per wall second)")
	monitorCmd.Flags().BoolVar(&monSeed, "seed", false, "open one position at the first tick so the layers have work")

	monitorCmd.MarkFlagRequired("ticks")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if monConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(monConfigPath)
		if err != nil {
			return err
		}
	}

	in, err := market.Lookup(cfg.Account.Instrument)
	if err != nil {
		return err
	}

	feed, err := data.NewCSVFeed(monTicksPath, in.Name, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("open ticks: %w", err)
	}
	defer feed.Close()

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	led := ledger.New(in, cfg.Account.Balance, j, nil)
	brk := sim.New(led)

	// Without an API key the review layer cannot consult a model; a static
	// HOLD keeps the other two layers useful in pure paper mode.
	var judge decision.Source = &decision.StaticSource{
		Judgment: decision.Judgment{Action: decision.ActionHold, Confidence: 1},
	}
	if key := cfg.Decision.ResolveAPIKey(); key != "" {
		retry := decision.DefaultRetry()
		if cfg.Decision.MaxAttempts > 0 {
			retry.MaxAttempts = cfg.Decision.MaxAttempts
		}
		llm, err := decision.NewLLMSource(cfg.Decision.Model, key, decision.NewTokenUsage(), retry)
		if err != nil {
			return fmt.Errorf("decision source: %w", err)
		}
		judge = llm
	}

	sinks := notifier.Multi{notifier.Slog{}}
	if cfg.Telegram.Enabled() {
		sinks = append(sinks, notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}

	cooldown, _ := time.ParseDuration(cfg.Monitor.AlertCooldown)
	orch := monitor.NewOrchestrator(brk, in, judge, ledgerSnapshots{led}, sinks, j, monitor.Config{
		Emergency: monitor.EmergencyConfig{
			HardStopPips:      cfg.Monitor.HardStopPips,
			MaxSessionLossPct: cfg.Monitor.MaxSessionLossPct,
		},
		Watch: monitor.WatchConfig{
			DrawdownFromPeakPips: cfg.Monitor.DrawdownFromPeakPips,
			AdverseMovePips:      cfg.Monitor.AdverseMovePips,
			MaxSpreadPips:        cfg.Monitor.MaxSpreadPips,
		},
		Review:        monitor.ReviewConfig{MinConfidence: cfg.Monitor.ReviewMinConfidence},
		AlertCooldown: cooldown,
	}, nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer orch.Stop()

	fmt.Printf("Paper monitoring %s at %gx speed. Ctrl-C to stop.\n", in.Name, monSpeed)
	if err := replayFeed(ctx, led, feed, monSpeed, monSeed, in); err != nil {
		return err
	}

	acct := led.Account()
	fmt.Printf("\nFeed finished. Balance: %s, Equity: %s\n",
		acct.Balance.StringFixed(2), acct.Equity.StringFixed(2))
	return nil
}

// replayFeed pushes ticks into the ledger, pacing them by their timestamps
// scaled by the speed multiplier.
func replayFeed(ctx context.Context, led *ledger.Ledger, feed data.TickFeed, speed float64, seed bool, in market.Instrument) error {
	if speed <= 0 {
		speed = 1
	}

	var prev time.Time
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		t, ok, err := feed.Next()
		if err != nil {
			return fmt.Errorf("feed: %w", err)
		}
		if !ok {
			return nil
		}

		if !prev.IsZero() {
			if gap := t.Time.Sub(prev); gap > 0 {
				wait := time.Duration(float64(gap) / speed)
				if wait > 5*time.Second {
					wait = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
		}
		prev = t.Time

		led.UpdatePrice(t)

		if seed {
			seed = false
			if ticket, err := led.Open(ledger.Buy, in.MinLot, 0, 0); err == nil {
				fmt.Printf("Seeded position: ticket %d\n", ticket)
			}
		}
	}
}

// ledgerSnapshots adapts the paper ledger into the snapshot source the
// review layer wants.
type ledgerSnapshots struct {
	led *ledger.Ledger
}

func (s ledgerSnapshots) Snapshot(_ context.Context, _ string) (market.Snapshot, error) {
	t, ok := s.led.LastTick()
	if !ok {
		return market.Snapshot{}, fmt.Errorf("no price yet")
	}
	return market.Snapshot{Tick: t, SpreadPips: t.SpreadPips(s.led.Instrument())}, nil
}
