package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(ticket, instrument, direction, volume, entry_price, exit_price, pips, open_time, close_time, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Ticket, t.Instrument, t.Direction, t.Volume, t.EntryPrice,
		t.ExitPrice, t.Pips, t.OpenTime, t.CloseTime, t.RealizedPL.String(), t.Reason,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, balance, equity, open_positions)
		VALUES (?, ?, ?, ?)`,
		e.Time, e.Balance.String(), e.Equity.String(), e.OpenPositions,
	)
	return err
}

func (j *SQLiteJournal) RecordAlert(a AlertRecord) error {
	_, err := j.db.Exec(`
		INSERT OR IGNORE INTO alerts (alert_id, type, severity, subject, message, details, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.Severity, a.Subject, a.Message, a.Details, a.Time,
	)
	return err
}

func (j *SQLiteJournal) RecordStats(s StatsSnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO stats
		(time, trades, wins, losses, win_rate, profit_factor, max_drawdown_pct, net_profit, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Time, s.Trades, s.Wins, s.Losses, s.WinRate, s.ProfitFactor,
		s.MaxDrawdownPct, s.NetProfit.String(), s.Balance.String(),
	)
	return err
}

// ListTradesClosedBetween returns trades with close_time in [from, to).
func (j *SQLiteJournal) ListTradesClosedBetween(from, to time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT ticket, instrument, direction, volume, entry_price, exit_price, pips,
		       open_time, close_time, realized_pl, reason
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var pl string
		if err := rows.Scan(&t.Ticket, &t.Instrument, &t.Direction, &t.Volume,
			&t.EntryPrice, &t.ExitPrice, &t.Pips, &t.OpenTime, &t.CloseTime,
			&pl, &t.Reason); err != nil {
			return nil, err
		}
		t.RealizedPL, err = parseCash(pl)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
