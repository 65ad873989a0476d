package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/fxpilot/market"
)

// CSVFeed reads ticks from a CSV file with columns:
//
//	time,bid,ask,volume
//
// A header row is allowed. Volume may be empty. Rows that are out of order
// or violate ask >= bid are dropped and counted, not fatal.
type CSVFeed struct {
	f          *os.File
	r          *csv.Reader
	instrument string
	from, to   time.Time

	sawFirst bool
	lastTime time.Time
	dropped  int
	log      *slog.Logger
}

func NewCSVFeed(path, instrument string, from, to time.Time) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return &CSVFeed{
		f:          f,
		r:          r,
		instrument: instrument,
		from:       from,
		to:         to,
		log:        slog.Default(),
	}, nil
}

func (fd *CSVFeed) Next() (market.Tick, bool, error) {
	for {
		row, err := fd.r.Read()
		if err == io.EOF {
			return market.Tick{}, false, nil
		}
		if err != nil {
			return market.Tick{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		if !fd.sawFirst {
			fd.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		t, ok, err := fd.parseRow(row)
		if err != nil {
			return market.Tick{}, false, err
		}
		if !ok {
			continue
		}
		if !inRange(t.Time, fd.from, fd.to) {
			continue
		}

		if !t.Valid() {
			fd.dropped++
			fd.log.Warn("dropping tick with ask < bid", "time", t.Time, "bid", t.Bid, "ask", t.Ask)
			continue
		}
		if t.Time.Before(fd.lastTime) {
			fd.dropped++
			fd.log.Warn("dropping out-of-order tick", "time", t.Time, "last", fd.lastTime)
			continue
		}
		fd.lastTime = t.Time

		return t, true, nil
	}
}

// Dropped reports how many rows were discarded by sanitation.
func (fd *CSVFeed) Dropped() int { return fd.dropped }

func (fd *CSVFeed) Close() error {
	if fd.f != nil {
		return fd.f.Close()
	}
	return nil
}

func (fd *CSVFeed) parseRow(row []string) (market.Tick, bool, error) {
	if len(row) < 3 {
		return market.Tick{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Tick{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return market.Tick{}, false, fmt.Errorf("bad time %q: %w", ts, err)
	}

	bid, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return market.Tick{}, false, fmt.Errorf("bad bid %q: %w", row[1], err)
	}
	ask, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return market.Tick{}, false, fmt.Errorf("bad ask %q: %w", row[2], err)
	}

	vol := 0.0
	if len(row) >= 4 && strings.TrimSpace(row[3]) != "" {
		vol, err = strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return market.Tick{}, false, fmt.Errorf("bad volume %q: %w", row[3], err)
		}
	}

	return market.Tick{
		Instrument: fd.instrument,
		Time:       t.UTC(),
		Bid:        bid,
		Ask:        ask,
		Volume:     vol,
	}, true, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
