// Package anomaly detects rapid price movement between two chronologically
// ordered samples at least a minimum interval apart.
package anomaly

import (
	"time"

	"github.com/rustyeddy/fxpilot/market"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Event struct {
	Type      string
	Severity  Severity
	PipMove   float64
	From      market.Tick
	To        market.Tick
	Timestamp time.Time
}

// Detector keeps a reference sample and compares new observations against
// it once the minimum interval has elapsed. Sub-interval observations leave
// the reference untouched so the comparison baseline stays stable.
type Detector struct {
	instrument    market.Instrument
	thresholdPips float64
	severePips    float64
	minInterval   time.Duration
	reference     market.Tick
	hasReference  bool
}

func NewDetector(in market.Instrument, thresholdPips, severePips float64, minInterval time.Duration) *Detector {
	if minInterval <= 0 {
		minInterval = time.Minute
	}
	return &Detector{
		instrument:    in,
		thresholdPips: thresholdPips,
		severePips:    severePips,
		minInterval:   minInterval,
	}
}

// Observe consumes one tick. It returns a non-nil event when the pip move
// since the reference sample exceeds the threshold. Whenever the interval
// has elapsed, the reference resets to the current sample regardless of
// whether an event fired.
func (d *Detector) Observe(t market.Tick) *Event {
	if !d.hasReference {
		d.reference = t
		d.hasReference = true
		return nil
	}

	if t.Time.Sub(d.reference.Time) < d.minInterval {
		return nil
	}

	move := d.instrument.PriceToPips(t.Mid() - d.reference.Mid())
	if move < 0 {
		move = -move
	}

	var ev *Event
	if move >= d.thresholdPips {
		sev := SeverityWarning
		if d.severePips > 0 && move >= d.severePips {
			sev = SeverityCritical
		}
		ev = &Event{
			Type:      "rapid_price_movement",
			Severity:  sev,
			PipMove:   move,
			From:      d.reference,
			To:        t,
			Timestamp: t.Time,
		}
	}

	d.reference = t
	return ev
}

// Reset clears the reference sample; the next observation starts a new
// baseline. Backtests call this at day boundaries.
func (d *Detector) Reset() {
	d.hasReference = false
}
