// Package httpserver is a chi-routed HTTP surface binding the
// storefront, wallet-notification, admin, and query adapters to REST
// routes. It is a thin demonstration surface, not a production API
// gateway: the engine itself never depends on any of this, and the
// session-token / ACL machinery a real deployment would put in front
// of the admin routes is out of scope here.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tarigateway/reconciler/internal/adminapi"
	"github.com/tarigateway/reconciler/internal/config"
	"github.com/tarigateway/reconciler/internal/engine"
	"github.com/tarigateway/reconciler/internal/logger"
	"github.com/tarigateway/reconciler/internal/metrics"
	"github.com/tarigateway/reconciler/internal/queryapi"
	"github.com/tarigateway/reconciler/internal/ratelimit"
	"github.com/tarigateway/reconciler/internal/roles"
	"github.com/tarigateway/reconciler/internal/storefront"
	"github.com/tarigateway/reconciler/internal/walletnotify"
)

var serverStartTime = time.Now()

// Server wires handlers, middleware, and dependencies around a
// net/http.Server.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg        *config.Config
	engine     *engine.Engine
	storefront *storefront.Adapter
	wallet     *walletnotify.Adapter
	admin      *adminapi.Adapter
	query      *queryapi.Adapter
	roles      *roles.Engine
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New builds the HTTP server with a configured router.
func New(cfg *config.Config, eng *engine.Engine, storefrontAdapter *storefront.Adapter, walletAdapter *walletnotify.Adapter, adminAdapter *adminapi.Adapter, queryAdapter *queryapi.Adapter, rolesEngine *roles.Engine, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:        cfg,
			engine:     eng,
			storefront: storefrontAdapter,
			wallet:     walletAdapter,
			admin:      adminAdapter,
			query:      queryAdapter,
			roles:      rolesEngine,
			metrics:    metricsCollector,
			logger:     appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address(),
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, cfg, eng, storefrontAdapter, walletAdapter, adminAdapter, queryAdapter, rolesEngine, metricsCollector, appLogger)

	return s
}

// ConfigureRouter attaches every route and middleware layer to an
// existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, eng *engine.Engine, storefrontAdapter *storefront.Adapter, walletAdapter *walletnotify.Adapter, adminAdapter *adminapi.Adapter, queryAdapter *queryapi.Adapter, rolesEngine *roles.Engine, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) {
	if router == nil {
		return
	}

	h := handlers{
		cfg:        cfg,
		engine:     eng,
		storefront: storefrontAdapter,
		wallet:     walletAdapter,
		admin:      adminAdapter,
		query:      queryAdapter,
		roles:      rolesEngine,
		metrics:    metricsCollector,
		logger:     appLogger,
	}

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	rateLimitCfg := ratelimit.Config{
		GlobalEnabled: cfg.RateLimit.GlobalEnabled,
		GlobalLimit:   cfg.RateLimit.GlobalLimit,
		GlobalWindow:  cfg.RateLimit.GlobalWindow.Duration,
		PerIPEnabled:  cfg.RateLimit.PerIPEnabled,
		PerIPLimit:    cfg.RateLimit.PerIPLimit,
		PerIPWindow:   cfg.RateLimit.PerIPWindow.Duration,
		Metrics:       metricsCollector,
	}
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	prefix := cfg.Server.RoutePrefix

	// Lightweight endpoints: health and metrics get a short timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/health", h.health)
		r.Handle(prefix+"/metrics", promhttp.Handler())
	})

	// Everything that may touch persistence or wallet admission gets a
	// longer timeout, matching the slower end of a database round trip
	// or an outbound circuit-breaker-guarded call.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post(prefix+"/v1/orders", h.ingestOrder)
		r.Get(prefix+"/v1/orders/{orderID}", h.getOrder)
		r.Get(prefix+"/v1/orders", h.listOrders)
		r.Get(prefix+"/v1/orders/{orderID}/history", h.getOrderHistory)
		r.Post(prefix+"/v1/orders/{orderID}/claim", h.claimOrder)

		r.Get(prefix+"/v1/addresses/{address}/orders", h.listOrdersForAddress)
		r.Get(prefix+"/v1/addresses/{address}/payments", h.listPaymentsForAddress)
		r.Get(prefix+"/v1/addresses/{address}/balance", h.getAddressBalance)
		r.Get(prefix+"/v1/addresses", h.listAddresses)
		r.Get(prefix+"/v1/customers/{customerID}/balance", h.getCustomerBalance)
		r.Get(prefix+"/v1/customers", h.listCustomerIDs)
		r.Get(prefix+"/v1/creditors", h.listCreditors)

		r.Post(prefix+"/v1/wallet/payment", h.walletPayment)
		r.Post(prefix+"/v1/wallet/confirmation", h.walletConfirmation)

		r.Post(prefix+"/v1/admin/orders/{orderID}/mark_paid", h.adminMarkPaid)
		r.Post(prefix+"/v1/admin/orders/{orderID}/cancel", h.adminCancel)
		r.Post(prefix+"/v1/admin/orders/{orderID}/reset", h.adminReset)
		r.Post(prefix+"/v1/admin/orders/{orderID}/modify_memo", h.adminModifyMemo)
		r.Post(prefix+"/v1/admin/orders/{orderID}/modify_price", h.adminModifyPrice)
		r.Post(prefix+"/v1/admin/orders/{orderID}/reassign_customer", h.adminReassignCustomer)
		r.Post(prefix+"/v1/admin/expire", h.adminExpire)
		r.Post(prefix+"/v1/admin/credit_note", h.adminCreditNote)
		r.Post(prefix+"/v1/admin/wallets/register", h.adminRegisterWallet)
		r.Post(prefix+"/v1/admin/wallets/deregister", h.adminDeregisterWallet)
		r.Post(prefix+"/v1/admin/roles/assign", h.adminAssignRoles)
		r.Post(prefix+"/v1/admin/roles/remove", h.adminRemoveRoles)
		r.Post(prefix+"/v1/admin/exchange_rate", h.adminSetExchangeRate)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
