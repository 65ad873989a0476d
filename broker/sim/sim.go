// Package sim adapts the virtual ledger to the broker contract so demo mode
// can run the live monitoring stack without a real broker connection.
package sim

import (
	"context"
	"fmt"

	"github.com/rustyeddy/fxpilot/broker"
	"github.com/rustyeddy/fxpilot/ledger"
)

type Client struct {
	ledger *ledger.Ledger
}

func New(l *ledger.Ledger) *Client {
	return &Client{ledger: l}
}

func (c *Client) OpenOrder(_ context.Context, dir ledger.Direction, volume, stopLoss, takeProfit float64) (int64, error) {
	return c.ledger.Open(dir, volume, stopLoss, takeProfit)
}

func (c *Client) CloseOrder(_ context.Context, ticket int64) error {
	_, err := c.ledger.Close(ticket, "broker close")
	return err
}

func (c *Client) GetOpenPositions(_ context.Context) ([]ledger.Position, error) {
	return c.ledger.OpenPositions(), nil
}

func (c *Client) GetAccountInfo(_ context.Context) (broker.AccountInfo, error) {
	acct := c.ledger.Account()
	return broker.AccountInfo{Balance: acct.Balance, Equity: acct.Equity}, nil
}

func (c *Client) GetSpread(_ context.Context, instrument string) (float64, error) {
	t, ok := c.ledger.LastTick()
	if !ok {
		return 0, fmt.Errorf("no price for %q yet", instrument)
	}
	return t.SpreadPips(c.ledger.Instrument()), nil
}

var _ broker.Client = (*Client)(nil)
