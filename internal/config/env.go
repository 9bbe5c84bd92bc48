package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration, and are
// the only way to set secrets (JWT keys, Shopify credentials). All env
// vars use the RECONCILER_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server
	setIfEnv(&c.Server.Host, "RECONCILER_SERVER_HOST")
	if v := os.Getenv("RECONCILER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	setIfEnv(&c.Server.RoutePrefix, "RECONCILER_ROUTE_PREFIX")
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}
	setIfEnv(&c.Server.JWTSigningKey, "RECONCILER_JWT_SIGNING_KEY")
	setIfEnv(&c.Server.JWTVerificationKey, "RECONCILER_JWT_VERIFICATION_KEY")

	// Persistence
	setIfEnv(&c.Persistence.Backend, "RECONCILER_PERSISTENCE_BACKEND")
	setIfEnv(&c.Persistence.DatabaseURL, "RECONCILER_DATABASE_URL")
	setIfEnv(&c.Persistence.MongoDBURL, "RECONCILER_MONGODB_URL")
	setIfEnv(&c.Persistence.MongoDB, "RECONCILER_MONGODB_DATABASE")

	// Storefront
	setIfEnv(&c.Storefront.PaymentWalletAddress, "RECONCILER_PAYMENT_WALLET_ADDRESS")
	setIfEnv(&c.Storefront.ShopifyShopDomain, "RECONCILER_SHOPIFY_SHOP_DOMAIN")
	setIfEnv(&c.Storefront.ShopifyAPIVersion, "RECONCILER_SHOPIFY_API_VERSION")
	setIfEnv(&c.Storefront.ShopifyAPIKey, "RECONCILER_SHOPIFY_API_KEY")
	setIfEnv(&c.Storefront.ShopifyAPISecret, "RECONCILER_SHOPIFY_API_SECRET")
	setIfEnv(&c.Storefront.ShopifyWebhookSecret, "RECONCILER_SHOPIFY_WEBHOOK_SECRET")

	// Wallet-auth peer IP trust
	setBoolIfEnv(&c.WalletAuth.UseXForwardedFor, "RECONCILER_USE_X_FORWARDED_FOR")
	setBoolIfEnv(&c.WalletAuth.UseForwarded, "RECONCILER_USE_FORWARDED")

	// Expiry worker
	setDurationIfEnv(&c.Expiry.TickInterval, "RECONCILER_EXPIRY_TICK_INTERVAL")
	setDurationIfEnv(&c.Expiry.UnclaimedOrderTimeout, "RECONCILER_UNCLAIMED_ORDER_TIMEOUT")
	setDurationIfEnv(&c.Expiry.UnpaidOrderTimeout, "RECONCILER_UNPAID_ORDER_TIMEOUT")

	// Engine open-question flag
	setBoolIfEnv(&c.Engine.SettleOnReceived, "RECONCILER_SETTLE_ON_RECEIVED")

	// Circuit breaker
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "RECONCILER_CIRCUIT_BREAKER_ENABLED")

	// Logging
	setIfEnv(&c.Logging.Level, "RECONCILER_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "RECONCILER_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "RECONCILER_ENVIRONMENT")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix
}
