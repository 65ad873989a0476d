package journal

// Noop discards all records. Used when persistence is disabled and in tests.
type Noop struct{}

func (Noop) RecordTrade(TradeRecord) error     { return nil }
func (Noop) RecordEquity(EquitySnapshot) error { return nil }
func (Noop) RecordAlert(AlertRecord) error     { return nil }
func (Noop) RecordStats(StatsSnapshot) error   { return nil }
func (Noop) Close() error                      { return nil }
