package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOverrides_ServerConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "RECONCILER_SERVER_HOST overrides default",
			envVars: map[string]string{
				"RECONCILER_SERVER_HOST": "127.0.0.1",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.Host != "127.0.0.1" {
					t.Errorf("Expected 127.0.0.1, got %s", cfg.Server.Host)
				}
			},
		},
		{
			name: "RECONCILER_SERVER_PORT overrides default",
			envVars: map[string]string{
				"RECONCILER_SERVER_PORT": "3000",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 3000 {
					t.Errorf("Expected 3000, got %d", cfg.Server.Port)
				}
			},
		},
		{
			name: "RECONCILER_ROUTE_PREFIX override",
			envVars: map[string]string{
				"RECONCILER_ROUTE_PREFIX": "api",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.RoutePrefix != "/api" {
					t.Errorf("Expected /api, got %s", cfg.Server.RoutePrefix)
				}
			},
		},
		{
			name: "RECONCILER_JWT_SIGNING_KEY override",
			envVars: map[string]string{
				"RECONCILER_JWT_SIGNING_KEY": "super-secret",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.JWTSigningKey != "super-secret" {
					t.Errorf("Expected super-secret, got %s", cfg.Server.JWTSigningKey)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_PersistenceConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "RECONCILER_PERSISTENCE_BACKEND override",
			envVars: map[string]string{
				"RECONCILER_PERSISTENCE_BACKEND": "postgres",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Persistence.Backend != "postgres" {
					t.Errorf("Expected postgres, got %s", cfg.Persistence.Backend)
				}
			},
		},
		{
			name: "RECONCILER_DATABASE_URL override",
			envVars: map[string]string{
				"RECONCILER_DATABASE_URL": "postgres://user:pass@db:5432/reconciler",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				expected := "postgres://user:pass@db:5432/reconciler"
				if cfg.Persistence.DatabaseURL != expected {
					t.Errorf("Expected %s, got %s", expected, cfg.Persistence.DatabaseURL)
				}
			},
		},
		{
			name: "RECONCILER_MONGODB_URL and RECONCILER_MONGODB_DATABASE override",
			envVars: map[string]string{
				"RECONCILER_MONGODB_URL":      "mongodb://localhost:27017",
				"RECONCILER_MONGODB_DATABASE": "reconciler",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Persistence.MongoDBURL != "mongodb://localhost:27017" {
					t.Errorf("Expected mongodb url to be set, got %s", cfg.Persistence.MongoDBURL)
				}
				if cfg.Persistence.MongoDB != "reconciler" {
					t.Errorf("Expected mongodb database to be set, got %s", cfg.Persistence.MongoDB)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_StorefrontConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "RECONCILER_PAYMENT_WALLET_ADDRESS override",
			envVars: map[string]string{
				"RECONCILER_PAYMENT_WALLET_ADDRESS": "test-wallet-address",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Storefront.PaymentWalletAddress != "test-wallet-address" {
					t.Errorf("Expected test-wallet-address, got %s", cfg.Storefront.PaymentWalletAddress)
				}
			},
		},
		{
			name: "RECONCILER_SHOPIFY_SHOP_DOMAIN override",
			envVars: map[string]string{
				"RECONCILER_SHOPIFY_SHOP_DOMAIN": "example.myshopify.com",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Storefront.ShopifyShopDomain != "example.myshopify.com" {
					t.Errorf("Expected example.myshopify.com, got %s", cfg.Storefront.ShopifyShopDomain)
				}
			},
		},
		{
			name: "RECONCILER_SHOPIFY_API_KEY override",
			envVars: map[string]string{
				"RECONCILER_SHOPIFY_API_KEY": "shpat_test123",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Storefront.ShopifyAPIKey != "shpat_test123" {
					t.Errorf("Expected shpat_test123, got %s", cfg.Storefront.ShopifyAPIKey)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_WalletAuthConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "RECONCILER_USE_X_FORWARDED_FOR boolean (true)",
			envVars: map[string]string{
				"RECONCILER_USE_X_FORWARDED_FOR": "true",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if !cfg.WalletAuth.UseXForwardedFor {
					t.Error("Expected UseXForwardedFor to be true")
				}
			},
		},
		{
			name: "RECONCILER_USE_FORWARDED boolean (1)",
			envVars: map[string]string{
				"RECONCILER_USE_FORWARDED": "1",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if !cfg.WalletAuth.UseForwarded {
					t.Error("Expected UseForwarded to be true with '1'")
				}
			},
		},
		{
			name: "booleans default to false when unset",
			envVars: map[string]string{},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.WalletAuth.UseXForwardedFor || cfg.WalletAuth.UseForwarded {
					t.Error("Expected both peer-IP trust flags to default to false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_ExpiryConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "RECONCILER_UNCLAIMED_ORDER_TIMEOUT duration override",
			envVars: map[string]string{
				"RECONCILER_UNCLAIMED_ORDER_TIMEOUT": "30m",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				expected := 30 * time.Minute
				if cfg.Expiry.UnclaimedOrderTimeout.Duration != expected {
					t.Errorf("Expected %v, got %v", expected, cfg.Expiry.UnclaimedOrderTimeout.Duration)
				}
			},
		},
		{
			name: "RECONCILER_UNPAID_ORDER_TIMEOUT duration override",
			envVars: map[string]string{
				"RECONCILER_UNPAID_ORDER_TIMEOUT": "12h",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				expected := 12 * time.Hour
				if cfg.Expiry.UnpaidOrderTimeout.Duration != expected {
					t.Errorf("Expected %v, got %v", expected, cfg.Expiry.UnpaidOrderTimeout.Duration)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_CircuitBreakerConfig(t *testing.T) {
	defer os.Clearenv()

	os.Setenv("RECONCILER_CIRCUIT_BREAKER_ENABLED", "false")
	defer os.Clearenv()

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.CircuitBreaker.Enabled {
		t.Error("Expected CircuitBreaker.Enabled to be false")
	}
}

// TestNormalizeRoutePrefix already exists in config_test.go
