// Package engine implements the order-flow reconciliation engine: order
// and payment ingestion, claiming, settlement, price/memo mutation, and
// expiry. Every public method is one logical transaction composed from
// persistence.Store primitives, a thin orchestration layer over the
// repository underneath it.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tarigateway/reconciler/internal/events"
	"github.com/tarigateway/reconciler/internal/persistence"
)

// Config captures the engine's configurable behavior.
type Config struct {
	// SettleOnReceived, when true (the reference default), treats
	// Received-status payments as spendable for settlement purposes
	// rather than requiring Confirmed first.
	SettleOnReceived bool
}

// Engine orchestrates order and payment ingestion against a
// persistence.Store, publishing domain events on a Bus as each
// operation commits.
type Engine struct {
	store  persistence.Store
	bus    *events.Bus
	cfg    Config
	logger zerolog.Logger
}

// New constructs an Engine. bus may be nil, in which case events are
// silently dropped (useful for tests that don't care about fan-out).
func New(store persistence.Store, bus *events.Bus, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{store: store, bus: bus, cfg: cfg, logger: logger}
}

// publish is a nil-safe wrapper around Bus.Publish.
func (e *Engine) publish(ctx context.Context, kind events.Kind, payload interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, kind, payload)
}

