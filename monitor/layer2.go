package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rustyeddy/fxpilot/broker"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/notifier"
)

// WatchConfig tunes layer 2, the alert-only anomaly watcher.
type WatchConfig struct {
	DrawdownFromPeakPips float64 // default 30
	AdverseMovePips      float64 // default 30
	MaxSpreadPips        float64 // default 5
}

func (c *WatchConfig) defaults() {
	if c.DrawdownFromPeakPips <= 0 {
		c.DrawdownFromPeakPips = 30
	}
	if c.AdverseMovePips <= 0 {
		c.AdverseMovePips = 30
	}
	if c.MaxSpreadPips <= 0 {
		c.MaxSpreadPips = 5
	}
}

// watchLayer tracks per-position peak profit and alerts on drawdown from
// peak, adverse moves and spread widening. It never closes positions. Peak
// values are advisory caches and may be stale by up to one polling interval.
type watchLayer struct {
	broker broker.Client
	in     market.Instrument
	cfg    WatchConfig
	alerts *AlertManager
	log    *slog.Logger

	mu    sync.Mutex
	peaks map[int64]float64 // ticket -> peak pip profit; only this layer mutates it
}

func (w *watchLayer) iterate(ctx context.Context) error {
	positions, err := w.broker.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("watch: positions: %w", err)
	}

	instruments := map[string]bool{}

	for _, p := range positions {
		pips := pipProfit(p, w.in)
		instruments[p.Instrument] = true
		subject := fmt.Sprintf("%d", p.Ticket)

		w.mu.Lock()
		peak, ok := w.peaks[p.Ticket]
		if !ok || pips > peak {
			peak = pips
			w.peaks[p.Ticket] = peak
		}
		w.mu.Unlock()

		if dd := peak - pips; peak > 0 && dd >= w.cfg.DrawdownFromPeakPips {
			w.alerts.Emit(notifier.Alert{
				Type:     "drawdown_from_peak",
				Severity: "warning",
				Subject:  subject,
				Message:  fmt.Sprintf("ticket %d gave back %.1f pips from peak +%.1f", p.Ticket, dd, peak),
				Details: map[string]string{
					"drawdown_pips": fmt.Sprintf("%.1f", dd),
					"peak_pips":     fmt.Sprintf("%.1f", peak),
				},
			})
		}

		if adverse := -pips; adverse >= w.cfg.AdverseMovePips {
			w.alerts.Emit(notifier.Alert{
				Type:     "adverse_move",
				Severity: "warning",
				Subject:  subject,
				Message:  fmt.Sprintf("ticket %d is %.1f pips under water", p.Ticket, adverse),
				Details: map[string]string{
					"adverse_pips": fmt.Sprintf("%.1f", adverse),
					"limit_pips":   fmt.Sprintf("%.1f", w.cfg.AdverseMovePips),
				},
			})
		}
	}

	for instrument := range instruments {
		spread, err := w.broker.GetSpread(ctx, instrument)
		if err != nil {
			w.log.Warn("watch: spread unavailable", "instrument", instrument, "err", err)
			continue
		}
		if spread > w.cfg.MaxSpreadPips {
			w.alerts.Emit(notifier.Alert{
				Type:     "spread_widening",
				Severity: "warning",
				Subject:  instrument,
				Message:  fmt.Sprintf("%s spread widened to %.1f pips (limit %.1f)", instrument, spread, w.cfg.MaxSpreadPips),
				Details: map[string]string{
					"spread_pips": fmt.Sprintf("%.1f", spread),
					"limit_pips":  fmt.Sprintf("%.1f", w.cfg.MaxSpreadPips),
				},
			})
		}
	}

	return nil
}

func (w *watchLayer) onPositionClosed(ticket int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.peaks, ticket)
}
