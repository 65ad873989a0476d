package market

import (
	"fmt"
	"math"
)

// Instrument carries the static metadata the ledger and risk gate need to
// turn price distances into pips and pips into account currency. Pip value
// is a configured constant per instrument, never derived from quotes.
type Instrument struct {
	Name           string
	BaseCurrency   string
	QuoteCurrency  string
	PipLocation    int     // EUR_USD: -4 (pip = 0.0001), USD_JPY: -2 (pip = 0.01)
	PipValuePerLot float64 // account currency per pip per 1.0 lot
	MinLot         float64
	MaxLot         float64
	LotStep        float64
}

func (in Instrument) PipSize() float64 {
	return math.Pow(10, float64(in.PipLocation))
}

// PriceToPips converts a price delta into pips.
func (in Instrument) PriceToPips(delta float64) float64 {
	return delta / in.PipSize()
}

// PipsToPrice converts a pip distance into a price delta.
func (in Instrument) PipsToPrice(pips float64) float64 {
	return pips * in.PipSize()
}

// ClampLots clamps lots to [MinLot, MaxLot] and floors to LotStep.
func (in Instrument) ClampLots(lots float64) float64 {
	if lots < in.MinLot {
		return in.MinLot
	}
	if lots > in.MaxLot {
		lots = in.MaxLot
	}
	if in.LotStep > 0 {
		lots = math.Floor(lots/in.LotStep) * in.LotStep
	}
	if lots < in.MinLot {
		return in.MinLot
	}
	return lots
}

var Instruments = map[string]Instrument{
	"EUR_USD": {
		Name:           "EUR_USD",
		BaseCurrency:   "EUR",
		QuoteCurrency:  "USD",
		PipLocation:    -4,
		PipValuePerLot: 10.0,
		MinLot:         0.01,
		MaxLot:         50.0,
		LotStep:        0.01,
	},
	"USD_JPY": {
		Name:           "USD_JPY",
		BaseCurrency:   "USD",
		QuoteCurrency:  "JPY",
		PipLocation:    -2,
		PipValuePerLot: 10.0,
		MinLot:         0.01,
		MaxLot:         50.0,
		LotStep:        0.01,
	},
	"GBP_USD": {
		Name:           "GBP_USD",
		BaseCurrency:   "GBP",
		QuoteCurrency:  "USD",
		PipLocation:    -4,
		PipValuePerLot: 10.0,
		MinLot:         0.01,
		MaxLot:         50.0,
		LotStep:        0.01,
	},
}

// Lookup returns the instrument metadata or an error for unknown names.
func Lookup(name string) (Instrument, error) {
	in, ok := Instruments[name]
	if !ok {
		return Instrument{}, fmt.Errorf("unknown instrument %q", name)
	}
	return in, nil
}
