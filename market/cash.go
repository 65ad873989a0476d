package market

import "github.com/shopspring/decimal"

// Cash is an amount in the account currency. Money is kept in decimal so
// long accumulation runs (balance, drawdown ratchets) don't drift; prices
// and pip distances stay float64.
type Cash = decimal.Decimal

func CashFromFloat(x float64) Cash {
	return decimal.NewFromFloat(x)
}

func ZeroCash() Cash {
	return decimal.Zero
}
