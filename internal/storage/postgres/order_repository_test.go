package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
	"github.com/tuanna1601/solibook/internal/testutil"
)

func newOrder(side domain.Side, price, volume int64, at time.Time) domain.Order {
	return domain.Order{
		ID:             uuid.NewString(),
		LimitPrice:     decimal.NewFromInt(price),
		OriginalVolume: decimal.NewFromInt(volume),
		CurrentVolume:  decimal.NewFromInt(volume),
		Side:           side,
		PassStatus:     domain.PassStatusPassed,
		Owner:          "owner-" + uuid.NewString()[:8],
		CreatedAt:      at,
	}
}

func TestOrderRepository_GetOrder(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOrderRepository(pool)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	want := newOrder(domain.SideSell, 10, 5, base)
	testutil.InsertOrder(t, ctx, pool, want)

	got, err := repo.GetOrder(ctx, want.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.ID != want.ID || got.Side != want.Side || got.Owner != want.Owner {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !got.LimitPrice.Equal(want.LimitPrice) || !got.CurrentVolume.Equal(want.CurrentVolume) {
		t.Fatalf("got price=%s volume=%s, want price=%s volume=%s",
			got.LimitPrice, got.CurrentVolume, want.LimitPrice, want.CurrentVolume)
	}

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetOrder(ctx, uuid.NewString())
		if !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		_, err := repo.GetOrder(ctx, "not-a-uuid")
		if !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})
}

func TestOrderRepository_OrdersByOwner(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOrderRepository(pool)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	second := newOrder(domain.SideSell, 10, 5, base.Add(time.Minute))
	second.Owner = "alice"
	first := newOrder(domain.SideBuy, 9, 2, base)
	first.Owner = "alice"
	other := newOrder(domain.SideSell, 11, 1, base)
	other.Owner = "bob"
	testutil.InsertOrder(t, ctx, pool, second)
	testutil.InsertOrder(t, ctx, pool, first)
	testutil.InsertOrder(t, ctx, pool, other)

	orders, err := repo.OrdersByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("orders by owner: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != first.ID || orders[1].ID != second.ID {
		t.Fatalf("expected oldest first, got %s then %s", orders[0].ID, orders[1].ID)
	}
}

func TestOrderRepository_OldestPending(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOrderRepository(pool)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	got, err := repo.OldestPending(ctx)
	if err != nil {
		t.Fatalf("oldest pending: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on an empty queue, got %+v", got)
	}

	passed := newOrder(domain.SideSell, 10, 1, base)
	late := newOrder(domain.SideSell, 10, 1, base.Add(2*time.Second))
	late.PassStatus = domain.PassStatusPending
	early := newOrder(domain.SideBuy, 9, 1, base.Add(time.Second))
	early.PassStatus = domain.PassStatusPending
	testutil.InsertOrder(t, ctx, pool, passed)
	testutil.InsertOrder(t, ctx, pool, late)
	testutil.InsertOrder(t, ctx, pool, early)

	got, err = repo.OldestPending(ctx)
	if err != nil {
		t.Fatalf("oldest pending: %v", err)
	}
	if got == nil || got.ID != early.ID {
		t.Fatalf("expected the earliest pending order %s, got %+v", early.ID, got)
	}
}

func TestOrderRepository_BestCounterparty(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOrderRepository(pool)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	sellHigh := newOrder(domain.SideSell, 10, 1, base)
	sellBestEarly := newOrder(domain.SideSell, 9, 1, base.Add(time.Second))
	sellBestLate := newOrder(domain.SideSell, 9, 1, base.Add(2*time.Second))
	canceled := newOrder(domain.SideSell, 8, 1, base)
	canceled.PassStatus = domain.PassStatusCanceled
	exhausted := newOrder(domain.SideSell, 8, 5, base)
	exhausted.CurrentVolume = decimal.Zero
	for _, o := range []domain.Order{sellHigh, sellBestEarly, sellBestLate, canceled, exhausted} {
		testutil.InsertOrder(t, ctx, pool, o)
	}

	t.Run("incoming buy takes lowest ask, earliest first", func(t *testing.T) {
		incoming := newOrder(domain.SideBuy, 9, 1, base.Add(time.Minute))
		got, err := repo.BestCounterparty(ctx, incoming)
		if err != nil {
			t.Fatalf("best counterparty: %v", err)
		}
		if got == nil || got.ID != sellBestEarly.ID {
			t.Fatalf("expected %s, got %+v", sellBestEarly.ID, got)
		}
	})

	t.Run("nothing crosses below the book", func(t *testing.T) {
		incoming := newOrder(domain.SideBuy, 5, 1, base.Add(time.Minute))
		got, err := repo.BestCounterparty(ctx, incoming)
		if err != nil {
			t.Fatalf("best counterparty: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("incoming sell takes highest crossing bid", func(t *testing.T) {
		bidLow := newOrder(domain.SideBuy, 9, 1, base)
		bidHigh := newOrder(domain.SideBuy, 11, 1, base.Add(time.Second))
		testutil.InsertOrder(t, ctx, pool, bidLow)
		testutil.InsertOrder(t, ctx, pool, bidHigh)

		incoming := newOrder(domain.SideSell, 9, 1, base.Add(time.Minute))
		got, err := repo.BestCounterparty(ctx, incoming)
		if err != nil {
			t.Fatalf("best counterparty: %v", err)
		}
		if got == nil || got.ID != bidHigh.ID {
			t.Fatalf("expected %s, got %+v", bidHigh.ID, got)
		}
	})
}

func TestOrderRepository_BookTop(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOrderRepository(pool)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	_, _, ok, err := repo.BookTop(ctx, domain.SideSell)
	if err != nil {
		t.Fatalf("book top: %v", err)
	}
	if ok {
		t.Fatalf("expected empty book")
	}

	testutil.InsertOrder(t, ctx, pool, newOrder(domain.SideSell, 9, 2, base))
	testutil.InsertOrder(t, ctx, pool, newOrder(domain.SideSell, 9, 3, base.Add(time.Second)))
	testutil.InsertOrder(t, ctx, pool, newOrder(domain.SideSell, 10, 7, base))
	canceled := newOrder(domain.SideSell, 8, 4, base)
	canceled.PassStatus = domain.PassStatusCanceled
	testutil.InsertOrder(t, ctx, pool, canceled)

	volume, price, ok, err := repo.BookTop(ctx, domain.SideSell)
	if err != nil || !ok {
		t.Fatalf("book top: ok=%v err=%v", ok, err)
	}
	if !price.Equal(decimal.NewFromInt(9)) || !volume.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected ask top 5@9, got %s@%s", volume, price)
	}
}

func TestOrderRepository_Ops(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOrderRepository(pool)
	store := NewStore(pool)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("create then conditional decrement", func(t *testing.T) {
		o := newOrder(domain.SideSell, 10, 5, base)
		o.PassStatus = domain.PassStatusPending

		txn := &storage.Txn{}
		txn.Append(repo.CreateOrderOp(o))
		results, err := store.Commit(ctx, txn)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if !results.AllApplied() {
			t.Fatalf("create not applied: %v", results)
		}

		// stale expected volume: nothing applies, nothing changes
		stale := &storage.Txn{}
		stale.Append(repo.DecrementVolumeOp(o.ID, decimal.NewFromInt(4), decimal.NewFromInt(4)))
		results, err = store.Commit(ctx, stale)
		if err != nil {
			t.Fatalf("stale decrement: %v", err)
		}
		if results.AllApplied() {
			t.Fatalf("expected stale decrement rejected")
		}
		got, err := repo.GetOrder(ctx, o.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.CurrentVolume.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("stale decrement changed volume to %s", got.CurrentVolume)
		}

		fresh := &storage.Txn{}
		fresh.Append(repo.DecrementVolumeOp(o.ID, decimal.NewFromInt(5), decimal.NewFromInt(2)))
		results, err = store.Commit(ctx, fresh)
		if err != nil {
			t.Fatalf("decrement: %v", err)
		}
		if !results.AllApplied() {
			t.Fatalf("decrement not applied: %v", results)
		}
		got, _ = repo.GetOrder(ctx, o.ID)
		if !got.CurrentVolume.Equal(decimal.NewFromInt(3)) {
			t.Fatalf("expected volume 3, got %s", got.CurrentVolume)
		}
	})

	t.Run("rejected required op rolls back the whole txn", func(t *testing.T) {
		victim := newOrder(domain.SideSell, 10, 5, base)
		other := newOrder(domain.SideBuy, 12, 5, base)
		testutil.InsertOrder(t, ctx, pool, victim)
		testutil.InsertOrder(t, ctx, pool, other)

		txn := &storage.Txn{}
		txn.Append(repo.DecrementVolumeOp(other.ID, decimal.NewFromInt(5), decimal.NewFromInt(5)))
		txn.Append(repo.DecrementVolumeOp(victim.ID, decimal.NewFromInt(99), decimal.NewFromInt(5)))
		results, err := store.Commit(ctx, txn)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if results.AllApplied() {
			t.Fatalf("expected rejection, got %v", results)
		}

		got, _ := repo.GetOrder(ctx, other.ID)
		if !got.CurrentVolume.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("first decrement survived the rollback, volume %s", got.CurrentVolume)
		}
	})

	t.Run("mark passed only from pending", func(t *testing.T) {
		o := newOrder(domain.SideSell, 10, 5, base)
		o.PassStatus = domain.PassStatusPending
		testutil.InsertOrder(t, ctx, pool, o)

		txn := &storage.Txn{}
		txn.Append(repo.MarkPassedOp(o.ID))
		if _, err := store.Commit(ctx, txn); err != nil {
			t.Fatalf("mark passed: %v", err)
		}
		got, _ := repo.GetOrder(ctx, o.ID)
		if got.PassStatus != domain.PassStatusPassed {
			t.Fatalf("expected passed, got %s", got.PassStatus)
		}

		// canceled mid-pass: the optional mark must not overwrite
		canceled := newOrder(domain.SideBuy, 10, 5, base)
		canceled.PassStatus = domain.PassStatusCanceled
		testutil.InsertOrder(t, ctx, pool, canceled)

		txn = &storage.Txn{}
		txn.Append(repo.MarkPassedOp(canceled.ID))
		txn.Append(repo.DecrementVolumeOp(o.ID, decimal.NewFromInt(5), decimal.NewFromInt(1)))
		results, err := store.Commit(ctx, txn)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		got, _ = repo.GetOrder(ctx, canceled.ID)
		if got.PassStatus != domain.PassStatusCanceled {
			t.Fatalf("optional mark overwrote canceled, got %s", got.PassStatus)
		}
		// the optional no-op did not abort the rest of the txn
		if len(results) != 2 || !results[1].Applied {
			t.Fatalf("expected the decrement to land, got %v", results)
		}
	})

	t.Run("cancel is conditional on not already canceled", func(t *testing.T) {
		o := newOrder(domain.SideSell, 10, 5, base)
		testutil.InsertOrder(t, ctx, pool, o)

		txn := &storage.Txn{}
		txn.Append(repo.CancelOp(o.ID))
		results, err := store.Commit(ctx, txn)
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if !results.AllApplied() {
			t.Fatalf("cancel not applied: %v", results)
		}

		again := &storage.Txn{}
		again.Append(repo.CancelOp(o.ID))
		results, err = store.Commit(ctx, again)
		if err != nil {
			t.Fatalf("second cancel: %v", err)
		}
		if results.AllApplied() {
			t.Fatalf("expected repeated cancel to apply zero rows")
		}
	})
}
