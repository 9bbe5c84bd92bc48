// Package storage provides Postgres and MongoDB implementations of
// persistence.Store. Both satisfy the identical interface the
// in-memory backend does; the order-flow engine is constructed against
// whichever one a deployment configures.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tarigateway/reconciler/internal/config"
	"github.com/tarigateway/reconciler/internal/persistence"
)

// DefaultQueryTimeout bounds any persistence call that doesn't already
// carry a deadline, so a stalled driver never hangs a settlement
// transaction indefinitely.
const DefaultQueryTimeout = 5 * time.Second

// withQueryTimeout applies DefaultQueryTimeout unless ctx already has a
// deadline.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}

// tableNames resolves the configured (or default) table/collection names
// for every entity the Store touches, honoring PersistenceConfig's
// SchemaMapping overrides.
type tableNames struct {
	Orders        string
	Payments      string
	Settlements   string
	BalanceCredits string
	Balances      string
	CustomerLinks string
	AuthLogs      string
	WalletAuths   string
	Roles         string
	ExchangeRates string
}

func resolveTableNames(cfg config.SchemaMappingConfig) tableNames {
	names := tableNames{
		Orders:         "orders",
		Payments:       "payments",
		Settlements:    "settlements",
		BalanceCredits: "balance_credits",
		Balances:       "address_balances",
		CustomerLinks:  "address_customer_links",
		AuthLogs:       "auth_logs",
		WalletAuths:    "wallet_auths",
		Roles:          "role_assignments",
		ExchangeRates:  "exchange_rates",
	}
	if cfg.Orders.TableName != "" {
		names.Orders = cfg.Orders.TableName
	}
	if cfg.Payments.TableName != "" {
		names.Payments = cfg.Payments.TableName
	}
	if cfg.Settlements.TableName != "" {
		names.Settlements = cfg.Settlements.TableName
	}
	if cfg.Balances.TableName != "" {
		names.Balances = cfg.Balances.TableName
	}
	if cfg.AuthLogs.TableName != "" {
		names.AuthLogs = cfg.AuthLogs.TableName
	}
	if cfg.WalletAuths.TableName != "" {
		names.WalletAuths = cfg.WalletAuths.TableName
	}
	if cfg.Roles.TableName != "" {
		names.Roles = cfg.Roles.TableName
	}
	if cfg.ExchangeRate.TableName != "" {
		names.ExchangeRates = cfg.ExchangeRate.TableName
	}
	return names
}

// NewStore builds the persistence.Store backend named by cfg.Backend
// ("memory", "postgres", or "mongodb").
func NewStore(cfg config.PersistenceConfig) (persistence.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return persistence.NewMemoryStore(), nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("storage: postgres backend requires database_url")
		}
		return NewPostgresStore(cfg.DatabaseURL, cfg.PostgresPool, resolveTableNames(cfg.SchemaMapping))
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("storage: mongodb backend requires mongodb_url")
		}
		database := cfg.MongoDB
		if database == "" {
			database = "tari_reconciler"
		}
		return NewMongoStore(cfg.MongoDBURL, database, resolveTableNames(cfg.SchemaMapping))
	default:
		return nil, fmt.Errorf("storage: unknown persistence backend %q", cfg.Backend)
	}
}
