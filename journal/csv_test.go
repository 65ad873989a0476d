package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fxpilot/market"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalWritesHeadersAndRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := map[string]string{
		"trades": filepath.Join(dir, "trades.csv"),
		"equity": filepath.Join(dir, "equity.csv"),
		"alerts": filepath.Join(dir, "alerts.csv"),
		"stats":  filepath.Join(dir, "stats.csv"),
	}

	j, err := NewCSV(paths["trades"], paths["equity"], paths["alerts"], paths["stats"])
	require.NoError(t, err)

	closedAt := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(TradeRecord{
		Ticket:     7,
		Instrument: "USD_JPY",
		Direction:  "SELL",
		Volume:     2,
		EntryPrice: 150.000,
		ExitPrice:  149.700,
		Pips:       30,
		OpenTime:   closedAt.Add(-30 * time.Minute),
		CloseTime:  closedAt,
		RealizedPL: market.CashFromFloat(600),
		Reason:     "SL hit",
	}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:    closedAt,
		Balance: market.CashFromFloat(100_600),
		Equity:  market.CashFromFloat(100_600),
	}))
	require.NoError(t, j.RecordAlert(AlertRecord{
		ID: "spread_widening|USD_JPY", Type: "spread_widening",
		Severity: "warning", Subject: "USD_JPY",
		Message: "spread 6.0 pips", Details: `{"spread_pips":"6.0"}`,
		Time: closedAt,
	}))
	require.NoError(t, j.RecordStats(StatsSnapshot{
		Time: closedAt, Trades: 1, Wins: 1,
		WinRate: 100, NetProfit: market.CashFromFloat(600),
		Balance: market.CashFromFloat(100_600),
	}))
	require.NoError(t, j.Close())

	trades := readCSV(t, paths["trades"])
	require.Len(t, trades, 2)
	assert.Equal(t, []string{
		"ticket", "instrument", "direction", "volume", "entry_price",
		"exit_price", "pips", "open_time", "close_time", "realized_pl", "reason",
	}, trades[0])
	assert.Equal(t, "7", trades[1][0])
	assert.Equal(t, "SELL", trades[1][2])
	assert.Equal(t, "2025-06-02T10:00:00Z", trades[1][8])
	assert.Equal(t, "600", trades[1][9])
	assert.Equal(t, "SL hit", trades[1][10])

	equity := readCSV(t, paths["equity"])
	require.Len(t, equity, 2)
	assert.Equal(t, "100600", equity[1][1])

	alerts := readCSV(t, paths["alerts"])
	require.Len(t, alerts, 2)
	assert.Equal(t, []string{
		"alert_id", "type", "severity", "subject", "message", "details", "time",
	}, alerts[0])
	assert.Equal(t, "spread_widening|USD_JPY", alerts[1][0])
	assert.Equal(t, "warning", alerts[1][2])
	assert.Equal(t, `{"spread_pips":"6.0"}`, alerts[1][5])

	stats := readCSV(t, paths["stats"])
	require.Len(t, stats, 2)
	assert.Equal(t, "1", stats[1][1])
}

func TestCSVJournalRowsSurviveWithoutClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(
		filepath.Join(dir, "trades.csv"),
		filepath.Join(dir, "equity.csv"),
		filepath.Join(dir, "alerts.csv"),
		filepath.Join(dir, "stats.csv"),
	)
	require.NoError(t, err)
	defer j.Close()

	// Every record is flushed as it is written, so a crash loses nothing.
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:    time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		Balance: market.CashFromFloat(100_000),
		Equity:  market.CashFromFloat(100_000),
	}))

	rows := readCSV(t, filepath.Join(dir, "equity.csv"))
	assert.Len(t, rows, 2)
}

func TestNoopJournalAcceptsEverything(t *testing.T) {
	t.Parallel()

	j := Noop{}
	assert.NoError(t, j.RecordTrade(TradeRecord{}))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{}))
	assert.NoError(t, j.RecordAlert(AlertRecord{}))
	assert.NoError(t, j.RecordStats(StatsSnapshot{}))
	assert.NoError(t, j.Close())
}
