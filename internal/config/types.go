package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and
// environment variables, one section per concern, built around the
// reconciliation engine's own needs.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Persistence    PersistenceConfig    `yaml:"persistence"`
	Storefront     StorefrontConfig     `yaml:"storefront"`
	WalletAuth     WalletAuthConfig     `yaml:"wallet_auth"`
	Expiry         ExpiryConfig         `yaml:"expiry"`
	Engine         EngineConfig         `yaml:"engine"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds the HTTP demo adapter's listener and JWT settings.
// The engine itself never sees these; only internal/httpserver does.
type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`
	JWTSigningKey      string   `yaml:"-"` // loaded from env only, never from YAML
	JWTVerificationKey string   `yaml:"-"`
}

// Address returns the host:port listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PersistenceConfig selects and configures the Store backend.
type PersistenceConfig struct {
	Backend       string              `yaml:"backend"` // "memory", "postgres", or "mongodb"
	DatabaseURL   string              `yaml:"database_url"`
	MongoDBURL    string              `yaml:"mongodb_url"`
	MongoDB       string              `yaml:"mongodb_database"`
	PostgresPool  PostgresPoolConfig  `yaml:"postgres_pool"`
	SchemaMapping SchemaMappingConfig `yaml:"schema_mapping"`
}

// SchemaMappingConfig lets a deployment rename the tables/collections the
// Postgres/Mongo backends use, with a per-entity table name override.
type SchemaMappingConfig struct {
	Orders       TableMappingConfig `yaml:"orders"`
	Payments     TableMappingConfig `yaml:"payments"`
	Settlements  TableMappingConfig `yaml:"settlements"`
	Balances     TableMappingConfig `yaml:"balances"`
	AuthLogs     TableMappingConfig `yaml:"auth_logs"`
	WalletAuths  TableMappingConfig `yaml:"wallet_auths"`
	Roles        TableMappingConfig `yaml:"roles"`
	ExchangeRate TableMappingConfig `yaml:"exchange_rates"`
}

// TableMappingConfig defines a single table/collection name override.
type TableMappingConfig struct {
	TableName string `yaml:"table_name"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// StorefrontConfig configures the Shopify-style storefront ingestion
// adapter and the hot wallet it expects payments from.
type StorefrontConfig struct {
	PaymentWalletAddress string `yaml:"payment_wallet_address"`
	ShopifyShopDomain    string `yaml:"shopify_shop_domain"`
	ShopifyAPIVersion    string `yaml:"shopify_api_version"`
	ShopifyAPIKey        string `yaml:"-"`
	ShopifyAPISecret     string `yaml:"-"`
	ShopifyWebhookSecret string `yaml:"-"`
}

// WalletAuthConfig gates which proxy headers the HTTP adapter may
// consult when resolving the peer IP handed to walletauth.Admit.
type WalletAuthConfig struct {
	UseXForwardedFor bool `yaml:"use_x_forwarded_for"`
	UseForwarded     bool `yaml:"use_forwarded"`
}

// ExpiryConfig configures the expiry worker.
type ExpiryConfig struct {
	TickInterval          Duration `yaml:"tick_interval"`
	UnclaimedOrderTimeout Duration `yaml:"unclaimed_order_timeout"`
	UnpaidOrderTimeout    Duration `yaml:"unpaid_order_timeout"`
}

// EngineConfig captures the order-flow engine's configurable behavior.
type EngineConfig struct {
	// SettleOnReceived, when true (the reference default), treats
	// Received-status payments as spendable for settlement purposes
	// rather than requiring Confirmed.
	SettleOnReceived bool `yaml:"settle_on_received"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Environment string `yaml:"environment"`
}

// RateLimitConfig configures the HTTP demo adapter's go-chi/httprate
// middleware.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig holds circuit breaker configuration for the
// engine's external collaborators: wallet notification delivery,
// webhook/audit delivery, and the storefront's rate publisher.
type CircuitBreakerConfig struct {
	Enabled         bool                 `yaml:"enabled"`
	WalletNotify    BreakerServiceConfig `yaml:"wallet_notify"`
	WebhookDelivery BreakerServiceConfig `yaml:"webhook_delivery"`
	StorefrontRate  BreakerServiceConfig `yaml:"storefront_rate"`
}

// BreakerServiceConfig configures a circuit breaker for a specific
// external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
