package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory, if present, is folded into the
// environment first; variables already set in the real environment win.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	_ = godotenv.Load()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "production",
		},
		Persistence: PersistenceConfig{
			Backend: "memory",
			PostgresPool: PostgresPoolConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: Duration{Duration: 5 * time.Minute},
			},
		},
		WalletAuth: WalletAuthConfig{
			UseXForwardedFor: false,
			UseForwarded:     false,
		},
		Expiry: ExpiryConfig{
			TickInterval:          Duration{Duration: 1 * time.Minute},
			UnclaimedOrderTimeout: Duration{Duration: 1 * time.Hour},
			UnpaidOrderTimeout:    Duration{Duration: 24 * time.Hour},
		},
		Engine: EngineConfig{
			SettleOnReceived: true,
		},
		RateLimit: RateLimitConfig{
			GlobalEnabled: true,
			GlobalLimit:   1000,
			GlobalWindow:  Duration{Duration: 1 * time.Minute},
			PerIPEnabled:  true,
			PerIPLimit:    120,
			PerIPWindow:   Duration{Duration: 1 * time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			WalletNotify: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			WebhookDelivery: BreakerServiceConfig{
				MaxRequests:         5,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 60 * time.Second},
				ConsecutiveFailures: 10,
				FailureRatio:        0.7,
				MinRequests:         20,
			},
			StorefrontRate: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
