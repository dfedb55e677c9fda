// Package ledger implements the engine hooks against per-owner asset
// accounts: placing an order reserves funds, a match settles them, a cancel
// refunds the remainder. Every staged op commits atomically with the
// engine's own writes, so an underfunded place fails as one unit and a
// settlement can never half-apply.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/clock"
	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
)

type Repository interface {
	Get(ctx context.Context, owner string, asset domain.Asset) (domain.Account, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Account, error)
	FillsByOrder(ctx context.Context, orderID string) ([]domain.Fill, error)
	CreditOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op
	HoldOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op
	ReleaseOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op
	SpendOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op
	RecordFillOp(f domain.Fill) storage.Op
}

// Hooks stages ledger postings into the engine's open txns.
type Hooks struct {
	repo  Repository
	clock clock.Clock
}

func NewHooks(repo Repository, clk clock.Clock) *Hooks {
	return &Hooks{repo: repo, clock: clk}
}

// BeforePlaceOrder reserves the order's worst-case cost: a buy holds
// limit*volume quote, a sell holds the volume in base. The hold op applies
// only with sufficient available funds, so the order insert rolls back with
// it.
func (h *Hooks) BeforePlaceOrder(_ context.Context, txn *storage.Txn, order domain.Order) error {
	if order.Side == domain.SideBuy {
		txn.Append(h.repo.HoldOp(order.Owner, domain.AssetQuote, order.LimitPrice.Mul(order.OriginalVolume)))
	} else {
		txn.Append(h.repo.HoldOp(order.Owner, domain.AssetBase, order.OriginalVolume))
	}
	return nil
}

// AfterMatched settles one fill: the seller's held base moves to the buyer,
// the buyer's held quote (reserved at their own limit) pays the seller at
// the fill price, and any difference is released back to the buyer. The
// fill is journaled in the same unit.
func (h *Hooks) AfterMatched(_ context.Context, txn *storage.Txn, incoming, counterparty domain.Order, fillVolume, fillPrice decimal.Decimal) error {
	buyer, seller := incoming, counterparty
	if incoming.Side == domain.SideSell {
		buyer, seller = counterparty, incoming
	}

	cost := fillPrice.Mul(fillVolume)
	reserved := buyer.LimitPrice.Mul(fillVolume)

	txn.Append(h.repo.SpendOp(seller.Owner, domain.AssetBase, fillVolume))
	txn.Append(h.repo.CreditOp(buyer.Owner, domain.AssetBase, fillVolume))
	txn.Append(h.repo.SpendOp(buyer.Owner, domain.AssetQuote, cost))
	txn.Append(h.repo.CreditOp(seller.Owner, domain.AssetQuote, cost))
	if excess := reserved.Sub(cost); excess.IsPositive() {
		txn.Append(h.repo.ReleaseOp(buyer.Owner, domain.AssetQuote, excess))
	}

	txn.Append(h.repo.RecordFillOp(domain.Fill{
		ID:           uuid.NewString(),
		TakerOrderID: incoming.ID,
		MakerOrderID: counterparty.ID,
		Volume:       fillVolume,
		Price:        fillPrice,
		CreatedAt:    h.clock.Now(),
	}))
	return nil
}

// OnCancelOrder refunds the reservation still backing the order's remaining
// volume. Nothing is staged for a fully filled order.
func (h *Hooks) OnCancelOrder(_ context.Context, txn *storage.Txn, order domain.Order) error {
	if !order.CurrentVolume.IsPositive() {
		return nil
	}
	if order.Side == domain.SideBuy {
		txn.Append(h.repo.ReleaseOp(order.Owner, domain.AssetQuote, order.LimitPrice.Mul(order.CurrentVolume)))
	} else {
		txn.Append(h.repo.ReleaseOp(order.Owner, domain.AssetBase, order.CurrentVolume))
	}
	return nil
}

// Service exposes deposits and balance reads around the same repository.
type Service struct {
	repo  Repository
	store storage.Committer
}

func NewService(repo Repository, store storage.Committer) *Service {
	return &Service{repo: repo, store: store}
}

func (s *Service) Deposit(ctx context.Context, owner string, asset domain.Asset, amount decimal.Decimal) error {
	if owner == "" {
		return domain.ErrOwnerRequired
	}
	if !asset.Valid() {
		return domain.ErrUnknownAsset
	}
	if !amount.IsPositive() {
		return domain.ErrInvalidVolume
	}

	txn := &storage.Txn{}
	txn.Append(s.repo.CreditOp(owner, asset, amount))
	_, err := s.store.Commit(ctx, txn)
	return err
}

func (s *Service) Balances(ctx context.Context, owner string) ([]domain.Account, error) {
	if owner == "" {
		return nil, domain.ErrOwnerRequired
	}
	return s.repo.ListByOwner(ctx, owner)
}
