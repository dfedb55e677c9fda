package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifies one leg of the market's trading pair.
type Asset string

const (
	// AssetBase is the traded good; volumes are denominated in it.
	AssetBase Asset = "base"
	// AssetQuote is the pricing currency.
	AssetQuote Asset = "quote"
)

func (a Asset) Valid() bool {
	return a == AssetBase || a == AssetQuote
}

// Account is one owner's balance in a single asset. Available funds move to
// Held when an order reserves them and back on cancel or settlement.
type Account struct {
	Owner     string
	Asset     Asset
	Available decimal.Decimal
	Held      decimal.Decimal
}

// Fill is one journaled match between an incoming (taker) and resting
// (maker) order.
type Fill struct {
	ID           string
	TakerOrderID string
	MakerOrderID string
	Volume       decimal.Decimal
	Price        decimal.Decimal
	CreatedAt    time.Time
}
