package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/fxpilot/broker"
	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/notifier"
)

// EmergencyConfig tunes layer 1, the only layer with authority to close
// positions on price action alone.
type EmergencyConfig struct {
	Interval          time.Duration // default 100ms
	HardStopPips      float64       // adverse move that triggers a force close; default 50
	MaxSessionLossPct float64       // account loss since session start; default 2
}

func (c *EmergencyConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.HardStopPips <= 0 {
		c.HardStopPips = 50
	}
	if c.MaxSessionLossPct <= 0 {
		c.MaxSessionLossPct = 2
	}
}

// emergencyLayer force-closes positions that breach hard limits. No dedup
// or cooldown applies here; every trigger is a genuine emergency.
type emergencyLayer struct {
	broker broker.Client
	in     market.Instrument
	cfg    EmergencyConfig
	alerts *AlertManager
	log    *slog.Logger
	closed func(ticket int64)

	sessionStart market.Cash
	sessionSet   bool
}

// pipProfit recovers the pip move from broker-reported unrealized P&L, so
// the layer needs no tick source of its own.
func pipProfit(p ledger.Position, in market.Instrument) float64 {
	denom := in.PipValuePerLot * p.Volume
	if denom == 0 {
		return 0
	}
	pl, _ := p.UnrealizedPL.Float64()
	return pl / denom
}

// iterate runs one emergency sweep and returns the tickets seen open, so
// the orchestrator can detect externally closed positions.
func (e *emergencyLayer) iterate(ctx context.Context) ([]int64, error) {
	positions, err := e.broker.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("emergency: positions: %w", err)
	}

	acct, err := e.broker.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("emergency: account: %w", err)
	}
	if !e.sessionSet {
		e.sessionStart = acct.Balance
		e.sessionSet = true
	}

	tickets := make([]int64, 0, len(positions))
	for _, p := range positions {
		tickets = append(tickets, p.Ticket)
	}

	// Account-level circuit breaker first: a session loss beyond the limit
	// flattens everything.
	if e.sessionSet && e.sessionStart.Sign() > 0 {
		loss := e.sessionStart.Sub(acct.Equity)
		pct, _ := loss.Div(e.sessionStart).Float64()
		pct *= 100
		if pct >= e.cfg.MaxSessionLossPct {
			for _, p := range positions {
				e.forceClose(ctx, p,
					fmt.Sprintf("session loss %.2f%% breached limit %.2f%%", pct, e.cfg.MaxSessionLossPct),
					map[string]string{
						"session_loss_pct": fmt.Sprintf("%.2f", pct),
						"limit_pct":        fmt.Sprintf("%.2f", e.cfg.MaxSessionLossPct),
					})
			}
			return tickets, nil
		}
	}

	for _, p := range positions {
		adverse := -pipProfit(p, e.in)
		if adverse >= e.cfg.HardStopPips {
			e.forceClose(ctx, p,
				fmt.Sprintf("adverse move %.1f pips breached hard stop %.1f", adverse, e.cfg.HardStopPips),
				map[string]string{
					"adverse_pips":   fmt.Sprintf("%.1f", adverse),
					"hard_stop_pips": fmt.Sprintf("%.1f", e.cfg.HardStopPips),
				})
		}
	}

	return tickets, nil
}

func (e *emergencyLayer) forceClose(ctx context.Context, p ledger.Position, reason string, details map[string]string) {
	if err := e.broker.CloseOrder(ctx, p.Ticket); err != nil {
		e.log.Error("emergency close failed", "ticket", p.Ticket, "err", err)
		return
	}

	e.alerts.EmitAlways(notifier.Alert{
		Type:     "emergency_close",
		Severity: "critical",
		Subject:  fmt.Sprintf("%d", p.Ticket),
		Message:  fmt.Sprintf("ticket %d force-closed: %s", p.Ticket, reason),
		Details:  details,
	})

	if e.closed != nil {
		e.closed(p.Ticket)
	}
}
