// Package exchangerate wraps the persistence layer's append-only
// currency-rate table. It is consulted only by the storefront ingestion
// adapter when converting storefront-priced orders to MicroTari; the
// settlement path never touches it.
package exchangerate

import (
	"context"

	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// Store answers currency-rate lookups and records new rate observations.
type Store struct {
	store persistence.Store
}

// NewStore wraps a persistence.Store for exchange-rate access.
func NewStore(store persistence.Store) *Store {
	return &Store{store: store}
}

// SetRate appends a new observed rate for currency. rate is expressed
// as base units per 100 units of currency.
func (s *Store) SetRate(ctx context.Context, currency string, rate int64) (tari.ExchangeRate, error) {
	return s.store.SetExchangeRate(ctx, currency, rate)
}

// LatestRate returns the most recently observed rate for currency, or
// engineerr.CodeUnsupportedCurrency if none has ever been recorded.
func (s *Store) LatestRate(ctx context.Context, currency string) (tari.ExchangeRate, error) {
	return s.store.LatestExchangeRate(ctx, currency)
}

// Convert converts an amount of currency into MicroTari using the
// latest recorded rate: amount * rate / 100.
func (s *Store) Convert(ctx context.Context, currency string, amount int64) (tari.MicroTari, error) {
	rate, err := s.LatestRate(ctx, currency)
	if err != nil {
		return tari.MicroTari(0), err
	}
	return tari.MicroTari(amount * rate.Rate / 100), nil
}
