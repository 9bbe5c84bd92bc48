package exchangerate

import (
	"context"
	"testing"

	"github.com/tarigateway/reconciler/internal/persistence"
)

func TestStore_LatestRateReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(persistence.NewMemoryStore())

	if _, err := s.SetRate(ctx, "USD", 150); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if _, err := s.SetRate(ctx, "USD", 200); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	rate, err := s.LatestRate(ctx, "USD")
	if err != nil {
		t.Fatalf("latest rate: %v", err)
	}
	if rate.Rate != 200 {
		t.Errorf("expected latest rate 200, got %d", rate.Rate)
	}
}

func TestStore_UnsupportedCurrencyErrors(t *testing.T) {
	ctx := context.Background()
	s := NewStore(persistence.NewMemoryStore())

	if _, err := s.LatestRate(ctx, "EUR"); err == nil {
		t.Fatal("expected error for currency with no recorded rate")
	}
}

func TestStore_Convert(t *testing.T) {
	ctx := context.Background()
	s := NewStore(persistence.NewMemoryStore())

	if _, err := s.SetRate(ctx, "USD", 100); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	amount, err := s.Convert(ctx, "USD", 500)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if amount != 500 {
		t.Errorf("expected 500 microtari at 1:1 rate, got %d", amount)
	}
}
