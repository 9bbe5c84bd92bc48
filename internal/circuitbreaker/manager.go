package circuitbreaker

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/tarigateway/reconciler/internal/config"
)

// ServiceType identifies different external collaborators for circuit breaker isolation.
type ServiceType string

const (
	// ServiceWalletNotify is the breaker slot for outbound wallet-notification
	// calls. No code path in this repository executes through it.
	ServiceWalletNotify ServiceType = "wallet_notify"
	// ServiceWebhookDelivery guards the downstream notification delivery
	// triggered by the admin register_wallet and deregister_wallet operations.
	ServiceWebhookDelivery ServiceType = "webhook_delivery"
	// ServiceStorefrontRate is the breaker slot for calls out to a storefront
	// exchange-rate publisher. No code path in this repository executes through it.
	ServiceStorefrontRate ServiceType = "storefront_rate"
)

// Manager manages circuit breakers for different external services.
// Provides bulkhead isolation - each service has its own circuit breaker
// to prevent cascading failures across service boundaries.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	config   Config
}

// Config holds circuit breaker configuration for all services.
type Config struct {
	Enabled         bool
	WalletNotify    BreakerConfig
	WebhookDelivery BreakerConfig
	StorefrontRate  BreakerConfig
}

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// NewManagerFromConfig creates a circuit breaker manager from application config.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig) *Manager {
	return NewManager(Config{
		Enabled: cfg.Enabled,
		WalletNotify: BreakerConfig{
			MaxRequests:         cfg.WalletNotify.MaxRequests,
			Interval:            cfg.WalletNotify.Interval.Duration,
			Timeout:             cfg.WalletNotify.Timeout.Duration,
			ConsecutiveFailures: cfg.WalletNotify.ConsecutiveFailures,
			FailureRatio:        cfg.WalletNotify.FailureRatio,
			MinRequests:         cfg.WalletNotify.MinRequests,
		},
		WebhookDelivery: BreakerConfig{
			MaxRequests:         cfg.WebhookDelivery.MaxRequests,
			Interval:            cfg.WebhookDelivery.Interval.Duration,
			Timeout:             cfg.WebhookDelivery.Timeout.Duration,
			ConsecutiveFailures: cfg.WebhookDelivery.ConsecutiveFailures,
			FailureRatio:        cfg.WebhookDelivery.FailureRatio,
			MinRequests:         cfg.WebhookDelivery.MinRequests,
		},
		StorefrontRate: BreakerConfig{
			MaxRequests:         cfg.StorefrontRate.MaxRequests,
			Interval:            cfg.StorefrontRate.Interval.Duration,
			Timeout:             cfg.StorefrontRate.Timeout.Duration,
			ConsecutiveFailures: cfg.StorefrontRate.ConsecutiveFailures,
			FailureRatio:        cfg.StorefrontRate.FailureRatio,
			MinRequests:         cfg.StorefrontRate.MinRequests,
		},
	})
}

// NewManager creates a circuit breaker manager with the given configuration.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		config:   cfg,
	}

	if !cfg.Enabled {
		return m
	}

	// A service whose BreakerConfig is the zero value gets no breaker.
	if cfg.WalletNotify != (BreakerConfig{}) {
		m.breakers[ServiceWalletNotify] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceWalletNotify), cfg.WalletNotify))
	}
	if cfg.WebhookDelivery != (BreakerConfig{}) {
		m.breakers[ServiceWebhookDelivery] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceWebhookDelivery), cfg.WebhookDelivery))
	}
	if cfg.StorefrontRate != (BreakerConfig{}) {
		m.breakers[ServiceStorefrontRate] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceStorefrontRate), cfg.StorefrontRate))
	}

	return m
}

// Execute wraps a function call with circuit breaker protection.
// If circuit breaker is disabled or not configured for the service, executes directly.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if !m.config.Enabled {
		return fn()
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}

	return breaker.Execute(fn)
}

// State returns the current state of a circuit breaker.
func (m *Manager) State(service ServiceType) string {
	if !m.config.Enabled {
		return "disabled"
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}

	return breaker.State().String()
}

// Counts returns the current counts for a circuit breaker.
func (m *Manager) Counts(service ServiceType) Counts {
	if !m.config.Enabled {
		return Counts{}
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return Counts{}
	}

	c := breaker.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Counts represents circuit breaker statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func toGobreakerSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
				if counts.Requests >= cfg.MinRequests {
					failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
					if failureRate >= cfg.FailureRatio {
						return true
					}
				}
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuitbreaker.state_change")
		},
	}
}

// DefaultConfig returns sensible defaults for circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		WalletNotify: BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
		},
		WebhookDelivery: BreakerConfig{
			MaxRequests:         5,
			Interval:            60 * time.Second,
			Timeout:             60 * time.Second,
			ConsecutiveFailures: 10,
			FailureRatio:        0.7,
			MinRequests:         20,
		},
		StorefrontRate: BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
		},
	}
}
