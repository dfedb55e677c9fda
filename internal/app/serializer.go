package app

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Serializer guarantees at most one matching pass runs at a time. The busy
// flag is a process-local gate: running multiple engine instances against
// the same store is not supported.
type Serializer struct {
	busy   atomic.Bool
	orders OrderRepository
	engine *Engine
	logger zerolog.Logger
}

func NewSerializer(orders OrderRepository, engine *Engine, logger zerolog.Logger) *Serializer {
	return &Serializer{
		orders: orders,
		engine: engine,
		logger: logger,
	}
}

// Trigger drains pending orders, oldest first, until the queue is empty.
// If a drain is already running it returns immediately; the running drain's
// next OldestPending query will pick up any order inserted meanwhile. On an
// engine error the drain stops and remaining pending orders wait for the
// next Trigger call.
func (s *Serializer) Trigger(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		return
	}
	defer s.busy.Store(false)

	for {
		next, err := s.orders.OldestPending(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("pending order lookup failed")
			return
		}
		if next == nil {
			return
		}
		if err := s.engine.RunPass(ctx, *next); err != nil {
			// already logged at the failure site; pending orders stay pending
			return
		}
	}
}

// Busy reports whether a drain is currently running.
func (s *Serializer) Busy() bool {
	return s.busy.Load()
}
