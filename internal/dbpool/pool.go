// Package dbpool owns the single *sql.DB connection pool the Postgres
// persistence backend runs on. Every repository shares it; settlement
// atomicity depends on transactions, not on per-repository connections.
package dbpool

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/tarigateway/reconciler/internal/config"
)

// SharedPool wraps the process's one PostgreSQL connection pool.
type SharedPool struct {
	db *sql.DB
}

// NewSharedPool opens connectionString, verifies the connection with a
// ping, and applies the configured pool limits.
func NewSharedPool(connectionString string, poolConfig config.PostgresPoolConfig) (*SharedPool, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)

	return &SharedPool{db: db}, nil
}

// DB exposes the underlying pool to repositories.
func (p *SharedPool) DB() *sql.DB {
	return p.db
}

// Close shuts the pool down. Safe to call more than once.
func (p *SharedPool) Close() error {
	return p.db.Close()
}
