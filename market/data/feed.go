// Package data provides historical tick feeds for backtests. Feeds are
// deterministic and return (ok=false, err=nil) at EOF. Feeds also own input
// sanitation: out-of-order samples and ticks with ask < bid are dropped with
// a warning, never fatal.
package data

import "github.com/rustyeddy/fxpilot/market"

// TickFeed yields ticks one at a time.
type TickFeed interface {
	Next() (t market.Tick, ok bool, err error)
	Close() error
}

// SliceFeed replays an in-memory tick slice. Mostly used by tests.
type SliceFeed struct {
	ticks []market.Tick
	pos   int
}

func NewSliceFeed(ticks []market.Tick) *SliceFeed {
	return &SliceFeed{ticks: ticks}
}

func (f *SliceFeed) Next() (market.Tick, bool, error) {
	for f.pos < len(f.ticks) {
		t := f.ticks[f.pos]
		f.pos++
		if !t.Valid() {
			continue
		}
		return t, true, nil
	}
	return market.Tick{}, false, nil
}

func (f *SliceFeed) Close() error { return nil }
