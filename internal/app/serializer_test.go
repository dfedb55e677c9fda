package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/clock"
	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
	"github.com/tuanna1601/solibook/internal/storage/memory"
)

func TestSerializer_TriggerOnEmptyQueue(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	engine := NewEngine(store, store, store, nil, clock.NewSystem(), zerolog.Nop())
	serializer := NewSerializer(store, engine, zerolog.Nop())

	serializer.Trigger(context.Background())

	if serializer.Busy() {
		t.Fatalf("expected serializer idle after drain")
	}
	snap, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected no snapshot from an empty drain, got %+v", snap)
	}
}

func TestSerializer_DrainsOldestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	repo := &recordingRepo{Store: store}
	engine := NewEngine(repo, store, store, nil, clock.NewFixed(base), zerolog.Nop())
	serializer := NewSerializer(repo, engine, zerolog.Nop())

	for i, id := range []string{"first", "second", "third"} {
		seedOrder(t, store, domain.Order{
			ID:             id,
			LimitPrice:     decimal.NewFromInt(100),
			OriginalVolume: decimal.NewFromInt(1),
			CurrentVolume:  decimal.NewFromInt(1),
			Side:           domain.SideSell,
			PassStatus:     domain.PassStatusPending,
			Owner:          "maker",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}

	serializer.Trigger(context.Background())

	want := []string{"first", "second", "third"}
	if len(repo.passed) != len(want) {
		t.Fatalf("expected %d passes, got %v", len(want), repo.passed)
	}
	for i, id := range want {
		if repo.passed[i] != id {
			t.Fatalf("pass %d: expected %s, got %s", i, id, repo.passed[i])
		}
	}
	for _, id := range want {
		if got := mustGet(t, store, id); got.PassStatus != domain.PassStatusPassed {
			t.Fatalf("order %s: expected passed, got %s", id, got.PassStatus)
		}
	}
}

func TestSerializer_TriggerWhileBusyReturns(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	gate := make(chan struct{})
	entered := make(chan struct{})
	hooks := &blockingHooks{gate: gate, entered: entered}
	engine := NewEngine(store, store, store, hooks, clock.NewFixed(base), zerolog.Nop())
	serializer := NewSerializer(store, engine, zerolog.Nop())

	seedOrder(t, store, domain.Order{
		ID:             "sell-1",
		LimitPrice:     decimal.NewFromInt(10),
		OriginalVolume: decimal.NewFromInt(1),
		CurrentVolume:  decimal.NewFromInt(1),
		Side:           domain.SideSell,
		PassStatus:     domain.PassStatusPassed,
		Owner:          "maker",
		CreatedAt:      base,
	})
	seedOrder(t, store, domain.Order{
		ID:             "buy-1",
		LimitPrice:     decimal.NewFromInt(10),
		OriginalVolume: decimal.NewFromInt(1),
		CurrentVolume:  decimal.NewFromInt(1),
		Side:           domain.SideBuy,
		PassStatus:     domain.PassStatusPending,
		Owner:          "taker",
		CreatedAt:      base.Add(time.Second),
	})

	done := make(chan struct{})
	go func() {
		serializer.Trigger(context.Background())
		close(done)
	}()

	<-entered
	if !serializer.Busy() {
		t.Fatalf("expected serializer busy mid-pass")
	}
	// a second trigger must not start a second drain
	serializer.Trigger(context.Background())

	close(gate)
	<-done
	if serializer.Busy() {
		t.Fatalf("expected serializer idle after drain")
	}
}

func TestSerializer_ConcurrentTriggersRunOnePassAtATime(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	hooks := &gaugeHooks{}
	engine := NewEngine(store, store, store, hooks, clock.NewFixed(base), zerolog.Nop())
	serializer := NewSerializer(store, engine, zerolog.Nop())

	const pairs = 20
	for i := 0; i < pairs; i++ {
		seedOrder(t, store, domain.Order{
			ID:             "sell-" + string(rune('a'+i)),
			LimitPrice:     decimal.NewFromInt(10),
			OriginalVolume: decimal.NewFromInt(1),
			CurrentVolume:  decimal.NewFromInt(1),
			Side:           domain.SideSell,
			PassStatus:     domain.PassStatusPassed,
			Owner:          "maker",
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		})
		seedOrder(t, store, domain.Order{
			ID:             "buy-" + string(rune('a'+i)),
			LimitPrice:     decimal.NewFromInt(10),
			OriginalVolume: decimal.NewFromInt(1),
			CurrentVolume:  decimal.NewFromInt(1),
			Side:           domain.SideBuy,
			PassStatus:     domain.PassStatusPending,
			Owner:          "taker",
			CreatedAt:      base.Add(time.Second + time.Duration(i)*time.Millisecond),
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				serializer.Trigger(context.Background())
			}
		}()
	}
	wg.Wait()

	// a trailing trigger drains anything the earlier ones raced past
	serializer.Trigger(context.Background())

	if got := hooks.max.Load(); got > 1 {
		t.Fatalf("observed %d concurrent passes", got)
	}
	if got := hooks.matches.Load(); got != pairs {
		t.Fatalf("expected %d fills, got %d", pairs, got)
	}
}

// recordingRepo remembers the order in which pending orders were handed to
// the engine.
type recordingRepo struct {
	*memory.Store
	passed []string
}

func (r *recordingRepo) OldestPending(ctx context.Context) (*domain.Order, error) {
	o, err := r.Store.OldestPending(ctx)
	if err == nil && o != nil {
		r.passed = append(r.passed, o.ID)
	}
	return o, err
}

// blockingHooks parks the pass inside the after-match hook until gate closes.
type blockingHooks struct {
	NopHooks
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (h *blockingHooks) AfterMatched(ctx context.Context, txn *storage.Txn, incoming, counterparty domain.Order, volume, price decimal.Decimal) error {
	h.once.Do(func() { close(h.entered) })
	<-h.gate
	return nil
}

// gaugeHooks tracks how many passes are inside the after-match hook at once.
type gaugeHooks struct {
	NopHooks
	current atomic.Int32
	max     atomic.Int32
	matches atomic.Int32
}

func (h *gaugeHooks) AfterMatched(ctx context.Context, txn *storage.Txn, incoming, counterparty domain.Order, volume, price decimal.Decimal) error {
	cur := h.current.Add(1)
	for {
		m := h.max.Load()
		if cur <= m || h.max.CompareAndSwap(m, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	h.current.Add(-1)
	h.matches.Add(1)
	return nil
}
