package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/fxpilot/broker"
	"github.com/rustyeddy/fxpilot/decision"
	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
	"github.com/rustyeddy/fxpilot/notifier"
)

// ReviewConfig tunes layer 3, the periodic AI re-review of open exposure.
type ReviewConfig struct {
	MinConfidence float64 // default 0.60
}

func (c *ReviewConfig) defaults() {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.60
	}
}

// SnapshotProvider supplies the market snapshot the review layer feeds to
// the decision source.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, instrument string) (market.Snapshot, error)
}

// reviewLayer asks the decision source to re-judge every open position. A
// judgment opposite the position's direction force-closes it; low confidence
// only alerts. An evaluation failure with open exposure triggers the
// documented fail-safe: close everything.
type reviewLayer struct {
	broker broker.Client
	source decision.Source
	snaps  SnapshotProvider
	cfg    ReviewConfig
	alerts *AlertManager
	log    *slog.Logger
	closed func(ticket int64)
}

func (r *reviewLayer) iterate(ctx context.Context) error {
	positions, err := r.broker.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("review: positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	for _, p := range positions {
		snap, err := r.snaps.Snapshot(ctx, p.Instrument)
		if err != nil {
			return r.failSafe(ctx, positions, fmt.Errorf("snapshot: %w", err))
		}

		j, err := r.source.Evaluate(ctx, snap)
		if err != nil {
			return r.failSafe(ctx, positions, fmt.Errorf("evaluate: %w", err))
		}

		subject := fmt.Sprintf("%d", p.Ticket)

		if opposes(j.Action, p.Direction) {
			r.alerts.Emit(notifier.Alert{
				Type:     "direction_reversal",
				Severity: "critical",
				Subject:  subject,
				Message: fmt.Sprintf("review says %s against open %s ticket %d: closing",
					j.Action, p.Direction, p.Ticket),
				Details: map[string]string{
					"judgment":   fmt.Sprint(j.Action),
					"position":   p.Direction.String(),
					"confidence": fmt.Sprintf("%.2f", j.Confidence),
				},
			})
			if err := r.broker.CloseOrder(ctx, p.Ticket); err != nil {
				r.log.Error("review close failed", "ticket", p.Ticket, "err", err)
				continue
			}
			if r.closed != nil {
				r.closed(p.Ticket)
			}
			continue
		}

		if j.Confidence < r.cfg.MinConfidence {
			r.alerts.Emit(notifier.Alert{
				Type:     "confidence_drop",
				Severity: "warning",
				Subject:  subject,
				Message: fmt.Sprintf("confidence on ticket %d fell to %.2f (threshold %.2f)",
					p.Ticket, j.Confidence, r.cfg.MinConfidence),
				Details: map[string]string{
					"confidence": fmt.Sprintf("%.2f", j.Confidence),
					"threshold":  fmt.Sprintf("%.2f", r.cfg.MinConfidence),
				},
			})
		}
	}

	return nil
}

// failSafe closes all open exposure when the review itself cannot run.
// Flying blind with open positions is the one state this system refuses.
func (r *reviewLayer) failSafe(ctx context.Context, positions []ledger.Position, cause error) error {
	r.alerts.EmitAlways(notifier.Alert{
		Type:     "review_failsafe",
		Severity: "critical",
		Subject:  "session",
		Message:  fmt.Sprintf("AI review failed with %d open positions, closing all: %v", len(positions), cause),
		Details: map[string]string{
			"open_positions": fmt.Sprintf("%d", len(positions)),
			"cause":          cause.Error(),
		},
	})

	for _, p := range positions {
		if err := r.broker.CloseOrder(ctx, p.Ticket); err != nil {
			r.log.Error("fail-safe close failed", "ticket", p.Ticket, "err", err)
			continue
		}
		if r.closed != nil {
			r.closed(p.Ticket)
		}
	}
	return cause
}

func opposes(a decision.Action, d ledger.Direction) bool {
	return (a == decision.ActionBuy && d == ledger.Sell) ||
		(a == decision.ActionSell && d == ledger.Buy)
}
