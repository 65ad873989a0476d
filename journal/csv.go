package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/fxpilot/market"
	"github.com/shopspring/decimal"
)

// CSVJournal writes trades, equity, alerts and stats snapshots to four
// separate CSV files.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	alerts *csv.Writer
	stats  *csv.Writer
	files  []*os.File
}

func NewCSV(tradesPath, equityPath, alertsPath, statsPath string) (*CSVJournal, error) {
	j := &CSVJournal{}

	open := func(path string, header []string) (*csv.Writer, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.trades, err = open(tradesPath, []string{"ticket", "instrument", "direction", "volume", "entry_price", "exit_price", "pips", "open_time", "close_time", "realized_pl", "reason"}); err != nil {
		return nil, err
	}
	if j.equity, err = open(equityPath, []string{"time", "balance", "equity", "open_positions"}); err != nil {
		return nil, err
	}
	if j.alerts, err = open(alertsPath, []string{"alert_id", "type", "severity", "subject", "message", "details", "time"}); err != nil {
		return nil, err
	}
	if j.stats, err = open(statsPath, []string{"time", "trades", "wins", "losses", "win_rate", "profit_factor", "max_drawdown_pct", "net_profit", "balance"}); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		strconv.FormatInt(t.Ticket, 10),
		t.Instrument,
		t.Direction,
		f(t.Volume),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.Pips),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		t.RealizedPL.String(),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		e.Balance.String(),
		e.Equity.String(),
		strconv.Itoa(e.OpenPositions),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) RecordAlert(a AlertRecord) error {
	err := j.alerts.Write([]string{
		a.ID, a.Type, a.Severity, a.Subject, a.Message, a.Details,
		a.Time.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	j.alerts.Flush()
	return j.alerts.Error()
}

func (j *CSVJournal) RecordStats(s StatsSnapshot) error {
	err := j.stats.Write([]string{
		s.Time.Format(time.RFC3339),
		strconv.Itoa(s.Trades),
		strconv.Itoa(s.Wins),
		strconv.Itoa(s.Losses),
		f(s.WinRate),
		f(s.ProfitFactor),
		f(s.MaxDrawdownPct),
		s.NetProfit.String(),
		s.Balance.String(),
	})
	if err != nil {
		return err
	}
	j.stats.Flush()
	return j.stats.Error()
}

func (j *CSVJournal) Close() error {
	for _, w := range []*csv.Writer{j.trades, j.equity, j.alerts, j.stats} {
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	for _, f := range j.files {
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func parseCash(s string) (market.Cash, error) {
	return decimal.NewFromString(s)
}
