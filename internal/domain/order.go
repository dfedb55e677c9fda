package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the counterparty side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type PassStatus string

const (
	// PassStatusPending marks an order no matching pass has run against yet.
	PassStatusPending PassStatus = "pending"
	// PassStatusPassed marks an order whose pass has run. A passed order with
	// remaining volume keeps resting in the book as a counterparty.
	PassStatusPassed   PassStatus = "passed"
	PassStatusCanceled PassStatus = "canceled"
)

// Order is a limit order on the single market. Orders are never deleted;
// matching only decrements CurrentVolume and cancellation only flips
// PassStatus to canceled.
type Order struct {
	ID             string
	LimitPrice     decimal.Decimal
	OriginalVolume decimal.Decimal
	CurrentVolume  decimal.Decimal
	Side           Side
	PassStatus     PassStatus
	Owner          string
	CreatedAt      time.Time
}

// Resting reports whether the order can still serve as a counterparty.
func (o Order) Resting() bool {
	return o.PassStatus != PassStatusCanceled && o.CurrentVolume.IsPositive()
}

// Crosses reports whether o's limit price crosses the incoming order's.
func (o Order) Crosses(incoming Order) bool {
	if incoming.Side == SideSell {
		return o.LimitPrice.GreaterThanOrEqual(incoming.LimitPrice)
	}
	return o.LimitPrice.LessThanOrEqual(incoming.LimitPrice)
}
