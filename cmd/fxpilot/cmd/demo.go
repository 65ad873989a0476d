package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fxpilot/anomaly"
	"github.com/rustyeddy/fxpilot/backtest"
	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/journal"
	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/market/data"
	"github.com/rustyeddy/fxpilot/risk"
	"github.com/rustyeddy/fxpilot/rules"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run example replays and demos",
	Long: `Run small self-contained examples to learn how the system works.

Available demos:
  basic  - Replay a synthetic tick stream through a fixed rule
  sizing - Demonstrates risk-based position sizing

Examples:
  fxpilot demo basic
  fxpilot demo sizing`,
}

var demoBasicCmd = &cobra.Command{
	Use:   "basic",
	Short: "Replay a synthetic tick stream through a fixed rule",
	Long: `Replays a short synthetic USD/JPY tick stream through the full stack
with a fixed BUY rule.

Shows the basic workflow of:
  1. Generating a rule at a decision point
  2. Gating the entry on confidence, spread and trading hours
  3. Opening a position sized off the stop distance
  4. The take-profit ladder closing it in stages`,
	RunE: runDemoBasic,
}

var demoSizingCmd = &cobra.Command{
	Use:   "sizing",
	Short: "Run a position sizing demo",
	Long: `Demonstrates risk-based position sizing.

Shows how to:
  - Size a position so a stop-out loses a fixed percentage
  - Handle instruments with different pip values
  - Respect broker lot limits`,
	RunE: runDemoSizing,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.AddCommand(demoBasicCmd)
	demoCmd.AddCommand(demoSizingCmd)
}

func runDemoBasic(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Basic Replay Demo ===")
	fmt.Println()

	in := market.Instruments["USD_JPY"]

	// Monday 04:00 UTC, well inside trading hours. The stream rises 60 pips
	// over three hours so the 25/50 pip TP ladder fires twice.
	start := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)
	var ticks []market.Tick
	for i := 0; i <= 180; i++ {
		bid := 150.000 + float64(i)*0.0034
		ticks = append(ticks, market.Tick{
			Instrument: in.Name,
			Time:       start.Add(time.Duration(i) * time.Minute),
			Bid:        bid,
			Ask:        bid + 0.010,
		})
	}

	source := &decision.StaticRuleSource{
		Template: rules.Rule{
			Bias:       "bullish",
			Confidence: 0.85,
			Entry:      rules.EntryConditions{ShouldTrade: true, Direction: "BUY"},
			Exit: rules.ExitStrategy{
				TakeProfits: []rules.TPRung{
					{Pips: 25, ClosePercent: 50},
					{Pips: 50, ClosePercent: 100},
				},
				StopLoss: rules.StopLossSpec{PriceLevel: 149.700},
			},
			Risk: rules.RiskManagement{PositionSizeMultiplier: 1.0, MaxPositions: 1},
		},
	}

	led := ledger.New(in, 100_000, journal.Noop{}, nil)
	sched := backtest.NewScheduler(led, risk.NewGate(risk.DefaultPolicy()),
		anomaly.NewDetector(in, 30, 50, time.Minute), source, nil, nil,
		backtest.Config{Instrument: in, MonitorInterval: 5 * time.Minute}, nil)

	result, err := sched.Run(cmd.Context(), data.NewSliceFeed(ticks))
	if err != nil {
		return err
	}

	printResult(result)
	fmt.Println("\n✓ The ladder closed half the position at +25 pips and the rest at +50.")
	return nil
}

func runDemoSizing(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Position Sizing Demo ===")
	fmt.Println()

	balance := market.CashFromFloat(100_000)
	riskPct := 1.0
	stopPips := 20.0

	for _, name := range []string{"EUR_USD", "USD_JPY"} {
		in := market.Instruments[name]
		lots := risk.PositionSize(balance, riskPct, stopPips, in)

		fmt.Printf("%s:\n", name)
		fmt.Printf("  Balance: %s, risking %.1f%% over a %.0f pip stop\n",
			balance.StringFixed(2), riskPct, stopPips)
		fmt.Printf("  Pip value per lot: $%.0f\n", in.PipValuePerLot)
		fmt.Printf("  Position Size: %.2f lots\n", lots)
		fmt.Printf("  Maximum Loss: $%.2f (if stop hit)\n\n", lots*stopPips*in.PipValuePerLot)
	}

	fmt.Println("✓ Notice how position size changes with pip value.")
	return nil
}
