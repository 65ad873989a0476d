package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/fxpilot/journal"
	"github.com/rustyeddy/fxpilot/market"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrInvalidVolume  = errors.New("volume must be positive")
	ErrNoPrice        = errors.New("no market price observed yet")
)

// Account tracks balance and equity in account currency. PeakBalance is
// monotonic non-decreasing; MaxDrawdown is a one-way ratchet.
type Account struct {
	InitialBalance market.Cash
	Balance        market.Cash
	Equity         market.Cash
	PeakBalance    market.Cash
	MaxDrawdown    market.Cash
}

// TradeClosedListener is notified when the ledger auto-closes a position
// (SL/TP hit during a price update). Called after the lock is released.
type TradeClosedListener interface {
	OnTradeClosed(ticket int64, reason string)
}

// Ledger owns the virtual position set and the account. It is the only
// component that mutates positions; everything else works with copies.
type Ledger struct {
	mu         sync.Mutex
	instrument market.Instrument
	acct       Account
	nextTicket int64
	open       map[int64]*Position
	closed     []Position
	lastTick   market.Tick
	hasTick    bool
	journal    journal.Journal
	listener   TradeClosedListener
	log        *slog.Logger

	// realized event aggregates for Statistics()
	trades      int
	wins        int
	losses      int
	grossProfit market.Cash
	grossLoss   market.Cash
}

func New(in market.Instrument, initialBalance float64, j journal.Journal, log *slog.Logger) *Ledger {
	if j == nil {
		j = journal.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	bal := market.CashFromFloat(initialBalance)
	return &Ledger{
		instrument: in,
		acct: Account{
			InitialBalance: bal,
			Balance:        bal,
			Equity:         bal,
			PeakBalance:    bal,
		},
		nextTicket:  1,
		open:        make(map[int64]*Position),
		journal:     j,
		log:         log,
		grossProfit: market.ZeroCash(),
		grossLoss:   market.ZeroCash(),
	}
}

// SetTradeClosedListener sets an optional listener for auto-closed positions.
func (l *Ledger) SetTradeClosedListener(listener TradeClosedListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = listener
}

// Open creates a position at the current market price, adjusted for spread:
// longs fill at ask, shorts at bid. There is no capital check here; capital
// discipline belongs to the risk gate.
func (l *Ledger) Open(dir Direction, volume, stopLoss, takeProfit float64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if volume <= 0 {
		return 0, fmt.Errorf("open: %w (got %g)", ErrInvalidVolume, volume)
	}
	if !l.hasTick {
		return 0, fmt.Errorf("open: %w", ErrNoPrice)
	}

	fill := l.lastTick.Ask
	if dir == Sell {
		fill = l.lastTick.Bid
	}

	ticket := l.nextTicket
	l.nextTicket++

	l.open[ticket] = &Position{
		Ticket:       ticket,
		Instrument:   l.instrument.Name,
		Direction:    dir,
		Volume:       volume,
		EntryPrice:   fill,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		OpenTime:     l.lastTick.Time,
		Status:       Open,
		RealizedPL:   market.ZeroCash(),
		UnrealizedPL: market.ZeroCash(),
	}

	l.log.Debug("position opened",
		"ticket", ticket, "direction", dir.String(), "volume", volume,
		"entry", fill, "sl", stopLoss, "tp", takeProfit)

	return ticket, nil
}

// SetTrailing arms a trailing stop on an open position.
func (l *Ledger) SetTrailing(ticket int64, activatePips, distancePips float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.open[ticket]
	if !ok {
		return fmt.Errorf("set trailing: %w: %d", ErrTicketNotFound, ticket)
	}
	p.TrailActivatePips = activatePips
	p.TrailDistancePips = distancePips
	return nil
}

// UpdatePrice feeds a new tick through the ledger: recompute unrealized P&L,
// advance trailing stops, then evaluate SL before TP per position at the
// side-appropriate price. Hits close within this call; equity is recomputed
// once after all closures. Invalid ticks (ask < bid) are dropped.
func (l *Ledger) UpdatePrice(t market.Tick) {
	l.mu.Lock()

	if !t.Valid() {
		l.log.Warn("dropping invalid tick", "bid", t.Bid, "ask", t.Ask, "time", t.Time)
		l.mu.Unlock()
		return
	}

	l.lastTick = t
	l.hasTick = true

	type closedEvent struct {
		ticket int64
		reason string
	}
	var closedEvents []closedEvent

	for _, ticket := range l.openTicketsLocked() {
		p := l.open[ticket]

		pips := p.PipProfit(t.Bid, t.Ask, l.instrument)
		p.UnrealizedPL = l.cashForPips(pips, p.Volume)

		l.advanceTrailingLocked(p, t)

		mark := p.markPrice(t.Bid, t.Ask)

		// SL before TP: when both have crossed, the stop wins.
		reason := ""
		switch {
		case p.hitStopLoss(mark):
			reason = "SL hit"
		case p.hitTakeProfit(mark):
			reason = "TP hit"
		}
		if reason != "" {
			l.closeLocked(p, mark, t.Time, reason)
			closedEvents = append(closedEvents, closedEvent{p.Ticket, reason})
		}
	}

	l.revalueLocked()
	l.recordEquityLocked(t.Time)

	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		for _, ev := range closedEvents {
			listener.OnTradeClosed(ev.ticket, ev.reason)
		}
	}
}

// Close closes an open position at the current market price.
func (l *Ledger) Close(ticket int64, reason string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.open[ticket]
	if !ok {
		return Position{}, fmt.Errorf("close: %w: %d", ErrTicketNotFound, ticket)
	}

	mark := p.markPrice(l.lastTick.Bid, l.lastTick.Ask)
	l.closeLocked(p, mark, l.lastTick.Time, reason)
	l.revalueLocked()
	l.recordEquityLocked(l.lastTick.Time)

	return *p, nil
}

// ClosePartial realizes percent of the position's current volume as an
// independent trade record and keeps the ticket open with the remainder.
// percent >= 100, or a remainder below the minimum lot, closes in full.
func (l *Ledger) ClosePartial(ticket int64, percent float64, reason string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.open[ticket]
	if !ok {
		return Position{}, fmt.Errorf("close partial: %w: %d", ErrTicketNotFound, ticket)
	}
	if percent <= 0 {
		return Position{}, fmt.Errorf("close partial: invalid percent %g", percent)
	}

	mark := p.markPrice(l.lastTick.Bid, l.lastTick.Ask)

	closeVol := p.Volume * percent / 100
	remainder := p.Volume - closeVol
	if percent >= 100 || remainder < l.instrument.MinLot {
		l.closeLocked(p, mark, l.lastTick.Time, reason)
	} else {
		l.realizeLocked(p, closeVol, mark, l.lastTick.Time, reason)
		p.Volume = remainder
		pips := p.PipProfit(l.lastTick.Bid, l.lastTick.Ask, l.instrument)
		p.UnrealizedPL = l.cashForPips(pips, p.Volume)
	}

	l.revalueLocked()
	l.recordEquityLocked(l.lastTick.Time)

	return *p, nil
}

// CloseAll closes every open position in ticket order. Each close is an
// independent transition; this is not atomic across positions.
func (l *Ledger) CloseAll(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ticket := range l.openTicketsLocked() {
		p := l.open[ticket]
		mark := p.markPrice(l.lastTick.Bid, l.lastTick.Ask)
		l.closeLocked(p, mark, l.lastTick.Time, reason)
	}

	l.revalueLocked()
	if l.hasTick {
		l.recordEquityLocked(l.lastTick.Time)
	}
}

// Account returns a snapshot of the account state.
func (l *Ledger) Account() Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acct
}

// Position returns a copy of a position, open or closed.
func (l *Ledger) Position(ticket int64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.open[ticket]; ok {
		return *p, nil
	}
	for i := range l.closed {
		if l.closed[i].Ticket == ticket {
			return l.closed[i], nil
		}
	}
	return Position{}, fmt.Errorf("position: %w: %d", ErrTicketNotFound, ticket)
}

// OpenPositions returns copies of all open positions in ticket order.
func (l *Ledger) OpenPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.open))
	for _, ticket := range l.openTicketsLocked() {
		out = append(out, *l.open[ticket])
	}
	return out
}

// ClosedPositions returns copies of all fully closed positions in close order.
func (l *Ledger) ClosedPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// LastTick returns the most recent tick the ledger has accepted.
func (l *Ledger) LastTick() (market.Tick, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTick, l.hasTick
}

func (l *Ledger) Instrument() market.Instrument { return l.instrument }

func (l *Ledger) openTicketsLocked() []int64 {
	tickets := make([]int64, 0, len(l.open))
	for t := range l.open {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
	return tickets
}

func (l *Ledger) cashForPips(pips, volume float64) market.Cash {
	return market.CashFromFloat(pips).
		Mul(market.CashFromFloat(l.instrument.PipValuePerLot)).
		Mul(market.CashFromFloat(volume))
}

func (l *Ledger) advanceTrailingLocked(p *Position, t market.Tick) {
	if p.TrailDistancePips <= 0 {
		return
	}

	pips := p.PipProfit(t.Bid, t.Ask, l.instrument)
	if !p.TrailActive && pips < p.TrailActivatePips {
		return
	}
	p.TrailActive = true

	dist := l.instrument.PipsToPrice(p.TrailDistancePips)
	if p.Direction == Buy {
		candidate := t.Bid - dist
		if candidate > p.StopLoss {
			p.StopLoss = candidate
		}
	} else {
		candidate := t.Ask + dist
		if p.StopLoss == 0 || candidate < p.StopLoss {
			p.StopLoss = candidate
		}
	}
}

// realizeLocked books P&L for volume lots of p at closePrice: balance,
// peak/drawdown ratchet, stats aggregates, and a trade record.
func (l *Ledger) realizeLocked(p *Position, volume, closePrice float64, closeTime time.Time, reason string) market.Cash {
	var pips float64
	if p.Direction == Buy {
		pips = l.instrument.PriceToPips(closePrice - p.EntryPrice)
	} else {
		pips = l.instrument.PriceToPips(p.EntryPrice - closePrice)
	}

	pl := l.cashForPips(pips, volume)
	p.RealizedPL = p.RealizedPL.Add(pl)

	l.acct.Balance = l.acct.Balance.Add(pl)
	if l.acct.Balance.GreaterThan(l.acct.PeakBalance) {
		l.acct.PeakBalance = l.acct.Balance
	}
	if dd := l.acct.PeakBalance.Sub(l.acct.Balance); dd.GreaterThan(l.acct.MaxDrawdown) {
		l.acct.MaxDrawdown = dd
	}

	l.trades++
	switch pl.Sign() {
	case +1:
		l.wins++
		l.grossProfit = l.grossProfit.Add(pl)
	case -1:
		l.losses++
		l.grossLoss = l.grossLoss.Add(pl.Neg())
	}

	if err := l.journal.RecordTrade(journal.TradeRecord{
		Ticket:     p.Ticket,
		Instrument: p.Instrument,
		Direction:  p.Direction.String(),
		Volume:     volume,
		EntryPrice: p.EntryPrice,
		ExitPrice:  closePrice,
		Pips:       pips,
		OpenTime:   p.OpenTime,
		CloseTime:  closeTime,
		RealizedPL: pl,
		Reason:     reason,
	}); err != nil {
		l.log.Error("journal trade record failed", "ticket", p.Ticket, "err", err)
	}

	return pl
}

func (l *Ledger) closeLocked(p *Position, closePrice float64, closeTime time.Time, reason string) {
	l.realizeLocked(p, p.Volume, closePrice, closeTime, reason)

	p.Status = Closed
	p.ClosePrice = closePrice
	p.CloseTime = closeTime
	p.CloseReason = reason
	p.UnrealizedPL = market.ZeroCash()

	delete(l.open, p.Ticket)
	l.closed = append(l.closed, *p)

	l.log.Debug("position closed",
		"ticket", p.Ticket, "reason", reason, "exit", closePrice, "pl", p.RealizedPL)
}

func (l *Ledger) revalueLocked() {
	equity := l.acct.Balance
	for _, p := range l.open {
		equity = equity.Add(p.UnrealizedPL)
	}
	l.acct.Equity = equity
}

func (l *Ledger) recordEquityLocked(at time.Time) {
	if err := l.journal.RecordEquity(journal.EquitySnapshot{
		Time:          at,
		Balance:       l.acct.Balance,
		Equity:        l.acct.Equity,
		OpenPositions: len(l.open),
	}); err != nil {
		l.log.Error("journal equity record failed", "err", err)
	}
}
