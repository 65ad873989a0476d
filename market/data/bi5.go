package data

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/fxpilot/market"
	"github.com/ulikunitz/xz/lzma"
)

// BI5Feed replays Dukascopy hourly tick archives. Each .bi5 file is an
// LZMA stream of 20-byte big-endian records:
//
//	uint32 ms offset into the hour, uint32 ask, uint32 bid (point-scaled),
//	float32 ask volume, float32 bid volume
//
// Files are expected under root/SYMBOL/YYYY/MM/DD/HHh_ticks.bi5. Missing
// hours (closed market) are skipped silently.
type BI5Feed struct {
	root       string
	symbol     string
	instrument market.Instrument

	hour time.Time
	end  time.Time

	buf []market.Tick
	pos int
}

func NewBI5Feed(root, symbol string, in market.Instrument, from, to time.Time) *BI5Feed {
	return &BI5Feed{
		root:       root,
		symbol:     symbol,
		instrument: in,
		hour:       from.UTC().Truncate(time.Hour),
		end:        to.UTC(),
	}
}

func (f *BI5Feed) Next() (market.Tick, bool, error) {
	for {
		if f.pos < len(f.buf) {
			t := f.buf[f.pos]
			f.pos++
			if !t.Valid() || t.Time.After(f.end) {
				continue
			}
			return t, true, nil
		}

		if !f.hour.Before(f.end) {
			return market.Tick{}, false, nil
		}

		hour := f.hour
		f.hour = f.hour.Add(time.Hour)

		path := filepath.Join(f.root, f.symbol,
			fmt.Sprintf("%04d", hour.Year()),
			fmt.Sprintf("%02d", int(hour.Month())),
			fmt.Sprintf("%02d", hour.Day()),
			fmt.Sprintf("%02dh_ticks.bi5", hour.Hour()))

		ticks, err := f.loadHour(path, hour)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return market.Tick{}, false, err
		}
		f.buf = ticks
		f.pos = 0
	}
}

func (f *BI5Feed) Close() error { return nil }

func (f *BI5Feed) loadHour(path string, hourStart time.Time) ([]market.Tick, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	r, err := lzma.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("lzma %s: %w", path, err)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}

	return decodeTickRecords(raw, hourStart, f.symbol, f.instrument)
}

// decodeTickRecords parses decompressed bi5 payload bytes.
func decodeTickRecords(raw []byte, hourStart time.Time, symbol string, in market.Instrument) ([]market.Tick, error) {
	const recSize = 20
	if len(raw)%recSize != 0 {
		return nil, fmt.Errorf("bi5 payload not a multiple of %d bytes: %d", recSize, len(raw))
	}

	// Dukascopy stores prices as integers scaled by the point value:
	// 5 decimals for -4 pip-location pairs, 3 for JPY pairs.
	scale := math.Pow(10, float64(1-in.PipLocation))

	out := make([]market.Tick, 0, len(raw)/recSize)
	for off := 0; off < len(raw); off += recSize {
		rec := raw[off : off+recSize]
		ms := binary.BigEndian.Uint32(rec[0:4])
		ask := binary.BigEndian.Uint32(rec[4:8])
		bid := binary.BigEndian.Uint32(rec[8:12])
		askVol := math.Float32frombits(binary.BigEndian.Uint32(rec[12:16]))
		bidVol := math.Float32frombits(binary.BigEndian.Uint32(rec[16:20]))

		out = append(out, market.Tick{
			Instrument: symbol,
			Time:       hourStart.Add(time.Duration(ms) * time.Millisecond),
			Bid:        float64(bid) / scale,
			Ask:        float64(ask) / scale,
			Volume:     float64(askVol + bidVol),
		})
	}
	return out, nil
}
