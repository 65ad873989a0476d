package journal

import (
	"time"

	"github.com/rustyeddy/fxpilot/market"
)

// TradeRecord is one realized P&L event. A partial close produces its own
// record with the closed slice's volume; the surviving position keeps its
// ticket.
type TradeRecord struct {
	Ticket     int64
	Instrument string
	Direction  string
	Volume     float64
	EntryPrice float64
	ExitPrice  float64
	Pips       float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL market.Cash
	Reason     string
}

type EquitySnapshot struct {
	Time          time.Time
	Balance       market.Cash
	Equity        market.Cash
	OpenPositions int
}

type AlertRecord struct {
	ID       string
	Type     string
	Severity string
	Subject  string
	Message  string
	Details  string // structured alert values, JSON-encoded; empty when none
	Time     time.Time
}

type StatsSnapshot struct {
	Time           time.Time
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64
	ProfitFactor   float64
	MaxDrawdownPct float64
	NetProfit      market.Cash
	Balance        market.Cash
}

// Journal persists immutable records. Implementations must never block or
// corrupt simulation state: callers log journal errors and continue.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordAlert(AlertRecord) error
	RecordStats(StatsSnapshot) error
	Close() error
}
