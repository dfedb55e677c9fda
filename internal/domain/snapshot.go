package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is an immutable summary of the book appended after each
// matching pass. Zero-valued sides mean an empty side of the book; match
// fields carry forward from the previous snapshot when a pass produces no
// fill.
type MarketSnapshot struct {
	SellVolume  decimal.Decimal
	SellPrice   decimal.Decimal
	BuyVolume   decimal.Decimal
	BuyPrice    decimal.Decimal
	MatchVolume decimal.Decimal
	MatchPrice  decimal.Decimal
	CreatedAt   time.Time
}
