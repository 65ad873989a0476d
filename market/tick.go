package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

type TickSource interface {
	GetTick(ctx context.Context, instrument string) (Tick, error)
}

// Tick is a single bid/ask sample for one instrument. Ticks are immutable
// once produced; `Ask >= Bid` is enforced at the feed boundary, not here.
type Tick struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
	Volume     float64
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// SpreadPips expresses the spread in pips for the given instrument.
func (t Tick) SpreadPips(in Instrument) float64 {
	return in.PriceToPips(t.Spread())
}

// Valid reports whether the tick is usable: positive prices, ask at or
// above bid.
func (t Tick) Valid() bool {
	return t.Bid > 0 && t.Ask >= t.Bid
}

type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Instrument] = t
}

func (ts *TickStore) Get(instr string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[instr]
	if !ok {
		return Tick{}, errors.New("tick not found")
	}
	return t, nil
}
