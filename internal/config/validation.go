package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "memory"
	}
	if c.Expiry.TickInterval.Duration <= 0 {
		c.Expiry.TickInterval = Duration{Duration: 1 * time.Minute}
	}
	if c.Expiry.UnclaimedOrderTimeout.Duration <= 0 {
		c.Expiry.UnclaimedOrderTimeout = Duration{Duration: 1 * time.Hour}
	}
	if c.Expiry.UnpaidOrderTimeout.Duration <= 0 {
		c.Expiry.UnpaidOrderTimeout = Duration{Duration: 24 * time.Hour}
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	if c.Storefront.PaymentWalletAddress == "" {
		errs = append(errs, "storefront.payment_wallet_address is required")
	}

	switch c.Persistence.Backend {
	case "memory":
	case "postgres":
		if c.Persistence.DatabaseURL == "" {
			errs = append(errs, fmt.Sprintf("persistence.database_url is required when persistence.backend is %q", c.Persistence.Backend))
		}
	case "mongodb":
		if c.Persistence.MongoDBURL == "" {
			errs = append(errs, "persistence.mongodb_url is required when persistence.backend is \"mongodb\"")
		}
		if c.Persistence.MongoDB == "" {
			errs = append(errs, "persistence.mongodb_database is required when persistence.backend is \"mongodb\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("persistence.backend %q is not one of memory, postgres, mongodb", c.Persistence.Backend))
	}

	if c.Expiry.UnclaimedOrderTimeout.Duration >= c.Expiry.UnpaidOrderTimeout.Duration {
		errs = append(errs, "expiry.unclaimed_order_timeout must be shorter than expiry.unpaid_order_timeout")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database
// connection. If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
