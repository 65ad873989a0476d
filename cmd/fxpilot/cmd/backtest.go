package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fxpilot/anomaly"
	"github.com/rustyeddy/fxpilot/backtest"
	"github.com/rustyeddy/fxpilot/config"
	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/market/data"
	"github.com/rustyeddy/fxpilot/risk"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical ticks through the rule-driven trade lifecycle",
	Long: `Backtest replays historical tick data through the full stack: rule
generation, entry gating, position management and exit monitoring.

Tick data formats:
  csv - time,bid,ask[,volume] rows, RFC3339 timestamps
  bi5 - a Dukascopy archive directory (SYMBOL/YYYY/MM/DD/HHh_ticks.bi5)

The decision source is either a fixed rule loaded from a YAML file (fully
deterministic replay) or the configured AI model.

Example:
  fxpilot backtest --config bot.yaml --ticks data/usdjpy.csv --rule rules/trend.yaml`,
	RunE: runBacktest,
}

var (
	btConfigPath string
	btTicksPath  string
	btFormat     string
	btRulePath   string
	btFrom       string
	btTo         string
	btBalance    float64
	btInstrument string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "c", "", "path to bot config (YAML or JSON)")
	backtestCmd.Flags().StringVarP(&btTicksPath, "ticks", "t", "", "path to tick data (CSV file or bi5 directory) (required)")
	backtestCmd.Flags().StringVar(&btFormat, "format", "", "tick data format: csv or bi5 (default from config)")
	backtestCmd.Flags().StringVarP(&btRulePath, "rule", "r", "", "fixed rule YAML for deterministic replay (otherwise uses the AI model)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "start of replay range (RFC3339 or YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "end of replay range (RFC3339 or YYYY-MM-DD)")
	backtestCmd.Flags().Float64VarP(&btBalance, "balance", "b", 0, "starting balance (default from config)")
	backtestCmd.Flags().StringVarP(&btInstrument, "instrument", "i", "", "instrument to trade (default from config)")

	backtestCmd.MarkFlagRequired("ticks")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if btConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(btConfigPath)
		if err != nil {
			return err
		}
	}
	if btBalance > 0 {
		cfg.Account.Balance = btBalance
	}
	if btInstrument != "" {
		cfg.Account.Instrument = btInstrument
	}
	if btFormat != "" {
		cfg.Backtest.Format = btFormat
	}

	in, err := market.Lookup(cfg.Account.Instrument)
	if err != nil {
		return err
	}

	from, err := parseTimeFlag(btFrom)
	if err != nil {
		return err
	}
	to, err := parseTimeFlag(btTo)
	if err != nil {
		return err
	}

	var feed data.TickFeed
	switch cfg.Backtest.Format {
	case "bi5":
		feed = data.NewBI5Feed(btTicksPath, in.Name, in, from, to)
	default:
		feed, err = data.NewCSVFeed(btTicksPath, in.Name, from, to)
		if err != nil {
			return fmt.Errorf("open ticks: %w", err)
		}
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	usage := decision.NewTokenUsage()
	source, err := ruleSource(btRulePath, cfg.Decision, usage)
	if err != nil {
		return err
	}

	monitorInterval, err := cfg.Backtest.ParseMonitorInterval()
	if err != nil {
		return err
	}

	led := ledger.New(in, cfg.Account.Balance, j, nil)
	gate := risk.NewGate(risk.Policy{
		MinConfidence:      cfg.Risk.MinConfidence,
		MaxSpreadPips:      cfg.Risk.MaxSpreadPips,
		MaxOpenPositions:   cfg.Risk.MaxOpenPositions,
		FridayCutoffHour:   cfg.Risk.FridayCutoffHour,
		MaxVolatilityRatio: cfg.Risk.MaxVolatilityRatio,
		RiskPercent:        cfg.Risk.RiskPercent,
	})
	detector := anomaly.NewDetector(in, 30, 50, time.Minute)

	sched := backtest.NewScheduler(led, gate, detector, source, j, nil, backtest.Config{
		Instrument:        in,
		RuleIntervalHours: cfg.Backtest.RuleIntervalHours,
		MonitorInterval:   monitorInterval,
		DailyReview:       cfg.Backtest.DailyReview,
	}, nil)

	fmt.Printf("Running backtest on %s\n", in.Name)
	fmt.Printf("  Ticks: %s (%s)\n", btTicksPath, cfg.Backtest.Format)
	if btRulePath != "" {
		fmt.Printf("  Rule: %s (deterministic)\n\n", btRulePath)
	} else {
		fmt.Printf("  Model: %s\n\n", cfg.Decision.Model)
	}

	result, err := sched.Run(cmd.Context(), feed)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	printResult(result)

	if prompt, completion, calls := usage.Totals(); calls > 0 {
		fmt.Printf("\nToken usage: %d prompt, %d completion over %d calls\n", prompt, completion, calls)
	}
	return nil
}

func printResult(r backtest.Result) {
	s := r.Stats
	fmt.Printf("\nBacktest Complete!\n")
	fmt.Printf("  Period: %s .. %s (%d days, %d ticks)\n",
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Days, r.Ticks)
	fmt.Printf("  Trades: %d (%d wins, %d losses)\n", s.Trades, s.Wins, s.Losses)
	fmt.Printf("  Win Rate: %.1f%%\n", s.WinRate)
	fmt.Printf("  Net Profit: %s\n", s.NetProfit.StringFixed(2))
	fmt.Printf("  Profit Factor: %.2f\n", s.ProfitFactor)
	fmt.Printf("  Max Drawdown: %s (%.2f%%)\n", s.MaxDrawdown.StringFixed(2), s.MaxDrawdownPct)
	fmt.Printf("  Final Balance: %s\n", s.Balance.StringFixed(2))
}
