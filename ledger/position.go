package ledger

import (
	"time"

	"github.com/rustyeddy/fxpilot/market"
)

// Direction: +1 long, -1 short.
type Direction int8

const (
	Buy  Direction = +1
	Sell Direction = -1
)

func (d Direction) String() string {
	if d == Sell {
		return "SELL"
	}
	return "BUY"
}

// Opposite reports whether o is the opposing side.
func (d Direction) Opposite(o Direction) bool {
	return d == -o
}

type Status int8

const (
	Open Status = iota
	Closed
)

// Position is a virtual position owned exclusively by the Ledger. Monitoring
// layers hold copies and refer back by Ticket; only the Ledger mutates the
// canonical record.
type Position struct {
	Ticket     int64
	Instrument string
	Direction  Direction
	Volume     float64 // lots
	EntryPrice float64
	StopLoss   float64 // 0 means none
	TakeProfit float64 // 0 means none
	OpenTime   time.Time
	Status     Status

	ClosePrice  float64
	CloseTime   time.Time
	CloseReason string

	// RealizedPL accumulates across partial closes; UnrealizedPL covers the
	// remaining open volume.
	RealizedPL   market.Cash
	UnrealizedPL market.Cash

	// Trailing stop config. Once price has moved TrailActivatePips in
	// favor, the stop trails TrailDistancePips behind the close price and
	// replaces StopLoss (only ever tightening).
	TrailActivatePips float64
	TrailDistancePips float64
	TrailActive       bool
}

// PipProfit returns the favorable pip move for the position at the
// side-appropriate close price (longs mark against bid, shorts against ask).
func (p Position) PipProfit(bid, ask float64, in market.Instrument) float64 {
	if p.Direction == Buy {
		return in.PriceToPips(bid - p.EntryPrice)
	}
	return in.PriceToPips(p.EntryPrice - ask)
}

// markPrice is the side-appropriate price a position would close against.
func (p Position) markPrice(bid, ask float64) float64 {
	if p.Direction == Buy {
		return bid
	}
	return ask
}

func (p Position) hitStopLoss(mark float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Direction == Buy {
		return mark <= p.StopLoss
	}
	return mark >= p.StopLoss
}

func (p Position) hitTakeProfit(mark float64) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Direction == Buy {
		return mark >= p.TakeProfit
	}
	return mark <= p.TakeProfit
}
