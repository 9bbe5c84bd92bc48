// Package expiry runs the periodic tick that moves stale orders to
// Expired: Unclaimed orders after the shorter timeout, then New orders
// after the longer one. Its ticker/stopCh/WaitGroup shape is the
// standard stoppable background worker pattern used elsewhere in this
// codebase.
package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarigateway/reconciler/internal/events"
	"github.com/tarigateway/reconciler/internal/metrics"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// Worker periodically expires Unclaimed and New orders that have aged
// past their configured timeouts.
type Worker struct {
	store        persistence.Store
	bus          *events.Bus
	logger       zerolog.Logger
	tickInterval time.Duration
	unclaimedTTL time.Duration
	unpaidTTL    time.Duration
	metrics      *metrics.Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Worker. bus may be nil.
func New(store persistence.Store, bus *events.Bus, logger zerolog.Logger, tickInterval, unclaimedTTL, unpaidTTL time.Duration) *Worker {
	return &Worker{
		store:        store,
		bus:          bus,
		logger:       logger,
		tickInterval: tickInterval,
		unclaimedTTL: unclaimedTTL,
		unpaidTTL:    unpaidTTL,
		stopCh:       make(chan struct{}),
	}
}

// WithMetrics attaches a collector for tick and expiry counters. Call
// before Start.
func (w *Worker) WithMetrics(m *metrics.Metrics) *Worker {
	w.metrics = m
	return w
}

// Start begins the periodic expiry loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().
		Dur("tick_interval", w.tickInterval).
		Dur("unclaimed_timeout", w.unclaimedTTL).
		Dur("unpaid_timeout", w.unpaidTTL).
		Msg("expiry.started")

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop gracefully stops the expiry loop.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info().Msg("expiry.stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one expiry pass over Unclaimed then New orders, emitting
// OrderAnnulled for each order that moves to Expired.
func (w *Worker) tick(ctx context.Context) {
	if w.metrics != nil {
		w.metrics.ExpiryTickTotal.Inc()
	}
	w.expire(ctx, tari.OrderUnclaimed, w.unclaimedTTL)
	w.expire(ctx, tari.OrderNew, w.unpaidTTL)
}

func (w *Worker) expire(ctx context.Context, fromStatus tari.OrderStatus, timeout time.Duration) {
	expired, err := w.store.ExpireOrders(ctx, fromStatus, timeout)
	if err != nil {
		w.logger.Error().Err(err).Str("from_status", string(fromStatus)).Msg("expiry.tick_error")
		return
	}

	for _, order := range expired {
		w.logger.Info().Str("order_id", order.OrderID).Str("from_status", string(fromStatus)).Msg("expiry.order_annulled")
		if w.metrics != nil {
			w.metrics.OrdersExpiredTotal.WithLabelValues(string(fromStatus)).Inc()
		}
		if w.bus != nil {
			w.bus.Publish(ctx, events.KindOrderAnnulled, events.OrderAnnulledEvent{Order: order})
		}
	}
}
