package market

// Timeframe names follow the usual FX convention (M15 = 15 minutes).
type Timeframe string

const (
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
)

// IndicatorValues holds the precomputed indicator state for one timeframe.
// Indicator math itself lives outside this module; cross-detection needs the
// previous bar's values, so both generations travel together.
type IndicatorValues struct {
	RSI            float64
	EMAFast        float64
	EMASlow        float64
	PrevEMAFast    float64
	PrevEMASlow    float64
	MACD           float64
	MACDSignal     float64
	MACDHist       float64
	PrevMACD       float64
	PrevMACDSignal float64
	ATR            float64

	// HasPrev is false on the first bar of a series, when no previous
	// generation exists yet.
	HasPrev bool
}

// Snapshot is everything a decision source or rule evaluator sees about the
// market at one instant.
type Snapshot struct {
	Tick        Tick
	SpreadPips  float64
	ByTimeframe map[Timeframe]IndicatorValues

	// Volatility context for the risk gate; zero means unknown.
	CurrentVolatility float64
	AvgVolatility     float64
}

// Indicators returns the indicator values for a timeframe, reporting whether
// data for that timeframe is present at all.
func (s Snapshot) Indicators(tf Timeframe) (IndicatorValues, bool) {
	iv, ok := s.ByTimeframe[tf]
	return iv, ok
}

// VolatilityRatio returns current/average volatility, or 0 when unknown.
func (s Snapshot) VolatilityRatio() float64 {
	if s.AvgVolatility <= 0 {
		return 0
	}
	return s.CurrentVolatility / s.AvgVolatility
}
