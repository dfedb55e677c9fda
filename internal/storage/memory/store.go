// Package memory implements the storage surface against process memory.
// It backs DB-less runs and deterministic engine tests; the durable
// implementation lives in storage/postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
)

// bookEntry locates one order in a price-time index.
type bookEntry struct {
	price     decimal.Decimal
	createdAt time.Time
	id        string
}

// askLess orders entries best-ask first: lowest price, then earliest time.
func askLess(a, b bookEntry) bool {
	if !a.price.Equal(b.price) {
		return a.price.LessThan(b.price)
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id < b.id
}

// bidLess orders entries best-bid first: highest price, then earliest time.
func bidLess(a, b bookEntry) bool {
	if !a.price.Equal(b.price) {
		return a.price.GreaterThan(b.price)
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id < b.id
}

type accountKey struct {
	owner string
	asset domain.Asset
}

// Store keeps all records in memory behind one mutex. Commit applies staged
// ops against a restorable copy of the maps, so a failed required op leaves
// the store untouched, matching the transactional contract of the Postgres
// store.
type Store struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	asks      *btree.BTreeG[bookEntry]
	bids      *btree.BTreeG[bookEntry]
	snapshots []domain.MarketSnapshot
	accounts  map[accountKey]domain.Account
	fills     []domain.Fill

	// staged tree inserts of the in-flight commit, undone on rollback
	stagedEntries []bookEntry
}

func NewStore() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		asks:     btree.NewG(8, askLess),
		bids:     btree.NewG(8, bidLess),
		accounts: make(map[accountKey]domain.Account),
	}
}

// Commit runs the txn's ops under the store lock. A required op reporting
// applied=false or any op error restores the pre-commit state.
func (s *Store) Commit(ctx context.Context, txn *storage.Txn) (storage.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordersBackup := make(map[string]domain.Order, len(s.orders))
	for k, v := range s.orders {
		ordersBackup[k] = v
	}
	accountsBackup := make(map[accountKey]domain.Account, len(s.accounts))
	for k, v := range s.accounts {
		accountsBackup[k] = v
	}
	snapshotsLen := len(s.snapshots)
	fillsLen := len(s.fills)
	s.stagedEntries = nil

	restore := func() {
		s.orders = ordersBackup
		s.accounts = accountsBackup
		s.snapshots = s.snapshots[:snapshotsLen]
		s.fills = s.fills[:fillsLen]
		for _, e := range s.stagedEntries {
			s.asks.Delete(e)
			s.bids.Delete(e)
		}
		s.stagedEntries = nil
	}

	var results storage.Results
	for _, op := range txn.Ops() {
		applied, err := op.Do(ctx)
		if err != nil {
			restore()
			return nil, fmt.Errorf("%s: %w", op.Name, err)
		}
		results = append(results, storage.Result{Name: op.Name, Applied: applied})
		if !applied && !op.Optional {
			restore()
			return results, nil
		}
	}
	s.stagedEntries = nil
	return results, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *Store) OrdersByOwner(_ context.Context, owner string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []domain.Order
	for _, o := range s.orders {
		if o.Owner == owner {
			orders = append(orders, o)
		}
	}
	sortByCreatedAt(orders)
	return orders, nil
}

func (s *Store) OldestPending(_ context.Context) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *domain.Order
	for id := range s.orders {
		o := s.orders[id]
		if o.PassStatus != domain.PassStatusPending {
			continue
		}
		if oldest == nil || o.CreatedAt.Before(oldest.CreatedAt) ||
			(o.CreatedAt.Equal(oldest.CreatedAt) && o.ID < oldest.ID) {
			oldest = &o
		}
	}
	return oldest, nil
}

func (s *Store) BestCounterparty(_ context.Context, incoming domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.asks
	if incoming.Side == domain.SideSell {
		tree = s.bids
	}

	var best *domain.Order
	tree.Ascend(func(e bookEntry) bool {
		o, ok := s.orders[e.id]
		if !ok || !o.Resting() {
			return true
		}
		if !o.Crosses(incoming) {
			// entries are price-ordered; the first resting entry decides
			return false
		}
		best = &o
		return false
	})
	return best, nil
}

func (s *Store) BookTop(_ context.Context, side domain.Side) (volume, price decimal.Decimal, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.asks
	if side == domain.SideBuy {
		tree = s.bids
	}

	found := false
	tree.Ascend(func(e bookEntry) bool {
		o, exists := s.orders[e.id]
		if !exists || !o.Resting() {
			return true
		}
		if !found {
			found = true
			price = o.LimitPrice
			volume = o.CurrentVolume
			return true
		}
		if o.LimitPrice.Equal(price) {
			volume = volume.Add(o.CurrentVolume)
			return true
		}
		return false
	})
	if !found {
		return decimal.Decimal{}, decimal.Decimal{}, false, nil
	}
	return volume, price, true, nil
}

func (s *Store) CreateOrderOp(o domain.Order) storage.Op {
	return storage.Op{
		Name: "create_order",
		Do: func(context.Context) (bool, error) {
			if _, exists := s.orders[o.ID]; exists {
				return false, nil
			}
			s.orders[o.ID] = o
			e := bookEntry{price: o.LimitPrice, createdAt: o.CreatedAt, id: o.ID}
			if o.Side == domain.SideSell {
				s.asks.ReplaceOrInsert(e)
			} else {
				s.bids.ReplaceOrInsert(e)
			}
			s.stagedEntries = append(s.stagedEntries, e)
			return true, nil
		},
	}
}

func (s *Store) DecrementVolumeOp(id string, expected, delta decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "decrement_volume",
		Do: func(context.Context) (bool, error) {
			o, ok := s.orders[id]
			if !ok || !o.CurrentVolume.Equal(expected) {
				return false, nil
			}
			o.CurrentVolume = o.CurrentVolume.Sub(delta)
			s.orders[id] = o
			return true, nil
		},
	}
}

func (s *Store) MarkPassedOp(id string) storage.Op {
	return storage.Op{
		Name:     "mark_passed",
		Optional: true,
		Do: func(context.Context) (bool, error) {
			o, ok := s.orders[id]
			if !ok || o.PassStatus != domain.PassStatusPending {
				return false, nil
			}
			o.PassStatus = domain.PassStatusPassed
			s.orders[id] = o
			return true, nil
		},
	}
}

func (s *Store) CancelOp(id string) storage.Op {
	return storage.Op{
		Name: "cancel_order",
		Do: func(context.Context) (bool, error) {
			o, ok := s.orders[id]
			if !ok || o.PassStatus == domain.PassStatusCanceled {
				return false, nil
			}
			o.PassStatus = domain.PassStatusCanceled
			s.orders[id] = o
			return true, nil
		},
	}
}

func (s *Store) Latest(_ context.Context) (*domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil, nil
	}
	snap := s.snapshots[len(s.snapshots)-1]
	return &snap, nil
}

func (s *Store) AppendOp(snap domain.MarketSnapshot) storage.Op {
	return storage.Op{
		Name: "append_snapshot",
		Do: func(context.Context) (bool, error) {
			s.snapshots = append(s.snapshots, snap)
			return true, nil
		},
	}
}

func (s *Store) Get(_ context.Context, owner string, asset domain.Asset) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountKey{owner: owner, asset: asset}]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (s *Store) ListByOwner(_ context.Context, owner string) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accounts []domain.Account
	for k := range s.accounts {
		if k.owner == owner {
			accounts = append(accounts, s.accounts[k])
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Asset < accounts[j].Asset
	})
	return accounts, nil
}

func (s *Store) CreditOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "credit_" + string(asset),
		Do: func(context.Context) (bool, error) {
			k := accountKey{owner: owner, asset: asset}
			a, ok := s.accounts[k]
			if !ok {
				a = domain.Account{Owner: owner, Asset: asset}
			}
			a.Available = a.Available.Add(amount)
			s.accounts[k] = a
			return true, nil
		},
	}
}

func (s *Store) HoldOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "hold_" + string(asset),
		Do: func(context.Context) (bool, error) {
			k := accountKey{owner: owner, asset: asset}
			a, ok := s.accounts[k]
			if !ok || a.Available.LessThan(amount) {
				return false, nil
			}
			a.Available = a.Available.Sub(amount)
			a.Held = a.Held.Add(amount)
			s.accounts[k] = a
			return true, nil
		},
	}
}

func (s *Store) ReleaseOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "release_" + string(asset),
		Do: func(context.Context) (bool, error) {
			k := accountKey{owner: owner, asset: asset}
			a, ok := s.accounts[k]
			if !ok || a.Held.LessThan(amount) {
				return false, nil
			}
			a.Held = a.Held.Sub(amount)
			a.Available = a.Available.Add(amount)
			s.accounts[k] = a
			return true, nil
		},
	}
}

func (s *Store) SpendOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "spend_" + string(asset),
		Do: func(context.Context) (bool, error) {
			k := accountKey{owner: owner, asset: asset}
			a, ok := s.accounts[k]
			if !ok || a.Held.LessThan(amount) {
				return false, nil
			}
			a.Held = a.Held.Sub(amount)
			s.accounts[k] = a
			return true, nil
		},
	}
}

func (s *Store) RecordFillOp(f domain.Fill) storage.Op {
	return storage.Op{
		Name: "record_fill",
		Do: func(context.Context) (bool, error) {
			s.fills = append(s.fills, f)
			return true, nil
		},
	}
}

func (s *Store) FillsByOrder(_ context.Context, orderID string) ([]domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fills []domain.Fill
	for _, f := range s.fills {
		if f.TakerOrderID == orderID || f.MakerOrderID == orderID {
			fills = append(fills, f)
		}
	}
	return fills, nil
}

func sortByCreatedAt(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
