package ledger

import (
	"time"

	"github.com/rustyeddy/fxpilot/journal"
	"github.com/rustyeddy/fxpilot/market"
)

// Stats is a derived view over realized trade events. Partial closes count
// as independent trades.
type Stats struct {
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64 // percent
	GrossProfit    market.Cash
	GrossLoss      market.Cash // positive magnitude
	NetProfit      market.Cash
	ProfitFactor   float64 // 0 when GrossLoss is 0
	MaxDrawdown    market.Cash
	MaxDrawdownPct float64
	Balance        market.Cash
	Equity         market.Cash
	OpenPositions  int
}

func (l *Ledger) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		Trades:        l.trades,
		Wins:          l.wins,
		Losses:        l.losses,
		GrossProfit:   l.grossProfit,
		GrossLoss:     l.grossLoss,
		NetProfit:     l.grossProfit.Sub(l.grossLoss),
		MaxDrawdown:   l.acct.MaxDrawdown,
		Balance:       l.acct.Balance,
		Equity:        l.acct.Equity,
		OpenPositions: len(l.open),
	}

	if l.trades > 0 {
		s.WinRate = 100 * float64(l.wins) / float64(l.trades)
	}
	// Profit factor is defined as 0 when there are no losses; an "infinite"
	// factor would only poison downstream arithmetic.
	if l.grossLoss.Sign() > 0 {
		s.ProfitFactor, _ = l.grossProfit.Div(l.grossLoss).Float64()
	}
	if l.acct.PeakBalance.Sign() > 0 {
		pct, _ := l.acct.MaxDrawdown.Div(l.acct.PeakBalance).Float64()
		s.MaxDrawdownPct = 100 * pct
	}

	return s
}

// StatsSnapshot converts Statistics() into a journal record.
func (l *Ledger) StatsSnapshot(at time.Time) journal.StatsSnapshot {
	s := l.Statistics()
	return journal.StatsSnapshot{
		Time:           at,
		Trades:         s.Trades,
		Wins:           s.Wins,
		Losses:         s.Losses,
		WinRate:        s.WinRate,
		ProfitFactor:   s.ProfitFactor,
		MaxDrawdownPct: s.MaxDrawdownPct,
		NetProfit:      s.NetProfit,
		Balance:        s.Balance,
	}
}
