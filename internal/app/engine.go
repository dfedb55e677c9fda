package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/clock"
	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
)

type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	OrdersByOwner(ctx context.Context, owner string) ([]domain.Order, error)
	OldestPending(ctx context.Context) (*domain.Order, error)
	BestCounterparty(ctx context.Context, incoming domain.Order) (*domain.Order, error)
	BookTop(ctx context.Context, side domain.Side) (volume, price decimal.Decimal, ok bool, err error)
	CreateOrderOp(o domain.Order) storage.Op
	DecrementVolumeOp(id string, expected, delta decimal.Decimal) storage.Op
	MarkPassedOp(id string) storage.Op
	CancelOp(id string) storage.Op
}

type SnapshotRepository interface {
	Latest(ctx context.Context) (*domain.MarketSnapshot, error)
	AppendOp(s domain.MarketSnapshot) storage.Op
}

// Engine runs matching passes. It is the sole writer of order volumes and
// pass statuses, and the sole appender of market snapshots; the Serializer
// guarantees at most one RunPass executes at a time.
type Engine struct {
	orders    OrderRepository
	snapshots SnapshotRepository
	store     storage.Committer
	hooks     Hooks
	clock     clock.Clock
	logger    zerolog.Logger
}

func NewEngine(orders OrderRepository, snapshots SnapshotRepository, store storage.Committer, hooks Hooks, clk clock.Clock, logger zerolog.Logger) *Engine {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Engine{
		orders:    orders,
		snapshots: snapshots,
		store:     store,
		hooks:     hooks,
		clock:     clk,
		logger:    logger,
	}
}

// RunPass drains the incoming order against the book until its volume is
// exhausted or nothing crosses, then marks the pass complete and appends a
// market snapshot. A commit that lands on a stale read is a no-op iteration
// followed by a re-read and re-query; when the incoming order itself is no
// longer resting the pass ends instead of retrying. A failed commit ends the
// pass with an error and leaves the order in its last committed state.
func (e *Engine) RunPass(ctx context.Context, incoming domain.Order) error {
	var lastFill *fill

	for incoming.CurrentVolume.IsPositive() {
		counterparty, err := e.orders.BestCounterparty(ctx, incoming)
		if err != nil {
			e.logger.Error().Err(err).Str("order_id", incoming.ID).Msg("counterparty lookup failed")
			return err
		}
		if counterparty == nil {
			// nothing crosses; the remainder rests in the book
			break
		}

		f := fill{
			volume: decimal.Min(incoming.CurrentVolume, counterparty.CurrentVolume),
			price:  fillPrice(incoming, *counterparty),
		}

		txn := &storage.Txn{}
		txn.Append(e.orders.DecrementVolumeOp(incoming.ID, incoming.CurrentVolume, f.volume))
		txn.Append(e.orders.DecrementVolumeOp(counterparty.ID, counterparty.CurrentVolume, f.volume))
		if err := e.hooks.AfterMatched(ctx, txn, incoming, *counterparty, f.volume, f.price); err != nil {
			e.logger.Error().Err(err).Str("order_id", incoming.ID).Msg("after-match hook failed")
			return err
		}

		results, err := e.store.Commit(ctx, txn)
		if err != nil {
			e.logger.Error().Err(err).Str("order_id", incoming.ID).Msg("fill commit failed")
			return err
		}
		if !results.AllApplied() {
			// stale read: something changed under us, nothing was applied
			e.logger.Warn().
				Str("order_id", incoming.ID).
				Str("counterparty_id", counterparty.ID).
				Msg("fill skipped on concurrent volume change")

			// re-read the incoming order before retrying: a cancel landing
			// mid-pass releases its reservation, so a retry against the same
			// counterparty would roll back on the settlement forever
			fresh, err := e.orders.GetOrder(ctx, incoming.ID)
			if err != nil {
				e.logger.Error().Err(err).Str("order_id", incoming.ID).Msg("incoming re-read failed")
				return err
			}
			if !fresh.Resting() {
				break
			}
			incoming = fresh
			continue
		}

		incoming.CurrentVolume = incoming.CurrentVolume.Sub(f.volume)
		lastFill = &f
		e.logger.Info().
			Str("order_id", incoming.ID).
			Str("counterparty_id", counterparty.ID).
			Str("volume", f.volume.String()).
			Str("price", f.price.String()).
			Msg("matched")
	}

	passed := &storage.Txn{}
	passed.Append(e.orders.MarkPassedOp(incoming.ID))
	if _, err := e.store.Commit(ctx, passed); err != nil {
		e.logger.Error().Err(err).Str("order_id", incoming.ID).Msg("pass-complete commit failed")
		return err
	}

	return e.appendSnapshot(ctx, lastFill)
}

type fill struct {
	volume decimal.Decimal
	price  decimal.Decimal
}

// fillPrice reproduces the book's pricing rule: an incoming sell trades at
// the higher of the two limits, an incoming buy trades at its own limit.
// Under the crossing condition both cases resolve to the buyer's limit.
func fillPrice(incoming, counterparty domain.Order) decimal.Decimal {
	if incoming.Side == domain.SideSell {
		return decimal.Max(incoming.LimitPrice, counterparty.LimitPrice)
	}
	return incoming.LimitPrice
}

// appendSnapshot recomputes the book top and appends a snapshot. When the
// pass produced no fill the previous snapshot's match fields carry forward
// so trade history is never blanked out.
func (e *Engine) appendSnapshot(ctx context.Context, lastFill *fill) error {
	sellVolume, sellPrice, _, err := e.orders.BookTop(ctx, domain.SideSell)
	if err != nil {
		e.logger.Error().Err(err).Msg("sell book top failed")
		return err
	}
	buyVolume, buyPrice, _, err := e.orders.BookTop(ctx, domain.SideBuy)
	if err != nil {
		e.logger.Error().Err(err).Msg("buy book top failed")
		return err
	}

	snap := domain.MarketSnapshot{
		SellVolume: sellVolume,
		SellPrice:  sellPrice,
		BuyVolume:  buyVolume,
		BuyPrice:   buyPrice,
		CreatedAt:  e.clock.Now(),
	}
	if lastFill != nil {
		snap.MatchVolume = lastFill.volume
		snap.MatchPrice = lastFill.price
	} else {
		prev, err := e.snapshots.Latest(ctx)
		if err != nil {
			e.logger.Error().Err(err).Msg("latest snapshot read failed")
			return err
		}
		if prev != nil {
			snap.MatchVolume = prev.MatchVolume
			snap.MatchPrice = prev.MatchPrice
		}
	}

	txn := &storage.Txn{}
	txn.Append(e.snapshots.AppendOp(snap))
	if _, err := e.store.Commit(ctx, txn); err != nil {
		e.logger.Error().Err(err).Msg("snapshot append failed")
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}
