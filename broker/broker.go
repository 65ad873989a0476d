// Package broker defines the narrow execution contract the live monitoring
// layers consume. The layers only ever call GetOpenPositions, CloseOrder and
// GetAccountInfo; order opening is driven by the orchestrator through the
// risk gate.
package broker

import (
	"context"

	"github.com/rustyeddy/fxpilot/ledger"
	"github.com/rustyeddy/fxpilot/market"
)

type AccountInfo struct {
	Balance market.Cash
	Equity  market.Cash
}

type Client interface {
	OpenOrder(ctx context.Context, dir ledger.Direction, volume, stopLoss, takeProfit float64) (int64, error)
	CloseOrder(ctx context.Context, ticket int64) error
	GetOpenPositions(ctx context.Context) ([]ledger.Position, error)
	GetAccountInfo(ctx context.Context) (AccountInfo, error)
	GetSpread(ctx context.Context, instrument string) (float64, error)
}
