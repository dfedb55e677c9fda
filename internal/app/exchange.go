package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/clock"
	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
)

// Exchange exposes the public operations of the market: placing and
// canceling orders, owner queries, and the latest market snapshot.
type Exchange struct {
	orders     OrderRepository
	snapshots  SnapshotRepository
	store      storage.Committer
	hooks      Hooks
	serializer *Serializer
	clock      clock.Clock
	logger     zerolog.Logger
}

func NewExchange(orders OrderRepository, snapshots SnapshotRepository, store storage.Committer, hooks Hooks, clk clock.Clock, logger zerolog.Logger) *Exchange {
	if hooks == nil {
		hooks = NopHooks{}
	}
	engine := NewEngine(orders, snapshots, store, hooks, clk, logger)
	return &Exchange{
		orders:     orders,
		snapshots:  snapshots,
		store:      store,
		hooks:      hooks,
		serializer: NewSerializer(orders, engine, logger),
		clock:      clk,
		logger:     logger,
	}
}

type PlaceOrderInput struct {
	LimitPrice decimal.Decimal
	Volume     decimal.Decimal
	Owner      string
	Side       domain.Side
}

// PlaceOrder persists a new pending order, giving the before-place hook the
// open txn, then triggers a drain. Returns the new order's id.
func (x *Exchange) PlaceOrder(ctx context.Context, in PlaceOrderInput) (string, error) {
	if !in.LimitPrice.IsPositive() {
		return "", domain.ErrInvalidPrice
	}
	if !in.Volume.IsPositive() {
		return "", domain.ErrInvalidVolume
	}
	if !in.Side.Valid() {
		return "", domain.ErrUnknownSide
	}
	if in.Owner == "" {
		return "", domain.ErrOwnerRequired
	}

	order := domain.Order{
		ID:             uuid.NewString(),
		LimitPrice:     in.LimitPrice,
		OriginalVolume: in.Volume,
		CurrentVolume:  in.Volume,
		Side:           in.Side,
		PassStatus:     domain.PassStatusPending,
		Owner:          in.Owner,
		CreatedAt:      x.clock.Now(),
	}

	txn := &storage.Txn{}
	txn.Append(x.orders.CreateOrderOp(order))
	if err := x.hooks.BeforePlaceOrder(ctx, txn, order); err != nil {
		return "", err
	}

	results, err := x.store.Commit(ctx, txn)
	if err != nil {
		return "", err
	}
	if !results.AllApplied() {
		// the order insert itself cannot conflict; the only required staged
		// op that rejects a place is a hook's funds reserve
		return "", domain.ErrInsufficientFunds
	}

	x.logger.Info().
		Str("order_id", order.ID).
		Str("side", string(order.Side)).
		Str("price", order.LimitPrice.String()).
		Str("volume", order.OriginalVolume.String()).
		Msg("order placed")

	x.serializer.Trigger(ctx)
	return order.ID, nil
}

// CancelOrder transitions an order to canceled, giving the on-cancel hook
// the open txn with the order's latest read. Canceling an already canceled
// order is a no-op. The cancel is not coordinated with an in-flight pass;
// the fill commit's volume check bounds that race.
func (x *Exchange) CancelOrder(ctx context.Context, id string) error {
	order, err := x.orders.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	txn := &storage.Txn{}
	txn.Append(x.orders.CancelOp(id))
	if err := x.hooks.OnCancelOrder(ctx, txn, order); err != nil {
		return err
	}

	results, err := x.store.Commit(ctx, txn)
	if err != nil {
		return err
	}
	if results.AllApplied() {
		x.logger.Info().Str("order_id", id).Msg("order canceled")
	}

	x.serializer.Trigger(ctx)
	return nil
}

func (x *Exchange) OrdersByOwner(ctx context.Context, owner string) ([]domain.Order, error) {
	if owner == "" {
		return nil, domain.ErrOwnerRequired
	}
	return x.orders.OrdersByOwner(ctx, owner)
}

// LatestSnapshot returns the most recent market snapshot; ok is false when
// no pass has run yet.
func (x *Exchange) LatestSnapshot(ctx context.Context) (snap domain.MarketSnapshot, ok bool, err error) {
	latest, err := x.snapshots.Latest(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, false, err
	}
	if latest == nil {
		return domain.MarketSnapshot{}, false, nil
	}
	return *latest, true, nil
}

// Serializer exposes the pass gate, mainly for tests and instrumentation.
func (x *Exchange) Serializer() *Serializer {
	return x.serializer
}
