package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
)

// Hooks is the capability interface invoked at the engine's well-defined
// points. Each call receives the open txn and may append ops that commit
// atomically with the engine's own writes. Implementations must not commit
// the txn themselves.
type Hooks interface {
	BeforePlaceOrder(ctx context.Context, txn *storage.Txn, order domain.Order) error
	AfterMatched(ctx context.Context, txn *storage.Txn, incoming, counterparty domain.Order, fillVolume, fillPrice decimal.Decimal) error
	OnCancelOrder(ctx context.Context, txn *storage.Txn, order domain.Order) error
}

// NopHooks appends nothing.
type NopHooks struct{}

func (NopHooks) BeforePlaceOrder(context.Context, *storage.Txn, domain.Order) error {
	return nil
}

func (NopHooks) AfterMatched(context.Context, *storage.Txn, domain.Order, domain.Order, decimal.Decimal, decimal.Decimal) error {
	return nil
}

func (NopHooks) OnCancelOrder(context.Context, *storage.Txn, domain.Order) error {
	return nil
}
