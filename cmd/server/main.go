// Command server boots the reconciliation engine behind its HTTP demo
// adapter: load configuration, build the persistence backend and every
// collaborator (engine, wallet-auth, roles, exchange rates, expiry
// worker), wire the external adapters over them, and serve until
// signaled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tarigateway/reconciler/internal/adminapi"
	"github.com/tarigateway/reconciler/internal/circuitbreaker"
	"github.com/tarigateway/reconciler/internal/config"
	"github.com/tarigateway/reconciler/internal/engine"
	"github.com/tarigateway/reconciler/internal/events"
	"github.com/tarigateway/reconciler/internal/exchangerate"
	"github.com/tarigateway/reconciler/internal/expiry"
	"github.com/tarigateway/reconciler/internal/httpserver"
	"github.com/tarigateway/reconciler/internal/lifecycle"
	"github.com/tarigateway/reconciler/internal/logger"
	"github.com/tarigateway/reconciler/internal/metrics"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/queryapi"
	"github.com/tarigateway/reconciler/internal/roles"
	"github.com/tarigateway/reconciler/internal/storage"
	"github.com/tarigateway/reconciler/internal/storefront"
	"github.com/tarigateway/reconciler/internal/walletauth"
	"github.com/tarigateway/reconciler/internal/walletnotify"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("server.config_load_failed")
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "tari-reconciler",
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer resources.Close()

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)

	store, err := storage.NewStore(cfg.Persistence)
	if err != nil {
		log.Fatal().Err(err).Msg("server.store_init_failed")
	}
	resources.RegisterFunc("store", store.Close)
	if instrumented, ok := store.(interface{ SetMetrics(*metrics.Metrics) }); ok {
		instrumented.SetMetrics(metricsCollector)
	}

	queryStore, ok := store.(persistence.QueryStore)
	if !ok {
		log.Fatal().Msg("server.store_does_not_implement_query_store")
	}

	bus := events.NewBus(appLogger, 256)
	metrics.SubscribeBus(bus, metricsCollector)
	busCtx, cancelBus := context.WithCancel(context.Background())
	bus.Start(busCtx)
	resources.RegisterFunc("event-bus", func() error {
		cancelBus()
		bus.Close()
		return nil
	})

	eng := engine.New(store, bus, engine.Config{SettleOnReceived: cfg.Engine.SettleOnReceived}, appLogger)

	walletAuth := walletauth.New(store, appLogger)
	rolesEngine := roles.NewEngine(store)
	rates := exchangerate.NewStore(store)
	breaker := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	storefrontAdapter := storefront.NewAdapter(rates)
	walletAdapter := walletnotify.New(walletAuth, eng)
	adminAdapter := adminapi.New(eng, walletAuth, rolesEngine, rates, breaker, adminapi.NoopNotifier{})
	queryAdapter := queryapi.New(store, queryStore)

	expiryWorker := expiry.New(store, bus, appLogger,
		cfg.Expiry.TickInterval.Duration,
		cfg.Expiry.UnclaimedOrderTimeout.Duration,
		cfg.Expiry.UnpaidOrderTimeout.Duration,
	).WithMetrics(metricsCollector)
	expiryWorker.Start(context.Background())
	resources.RegisterFunc("expiry-worker", func() error {
		expiryWorker.Stop()
		return nil
	})

	srv := httpserver.New(cfg, eng, storefrontAdapter, walletAdapter, adminAdapter, queryAdapter, rolesEngine, metricsCollector, appLogger)

	go func() {
		appLogger.Info().Str("addr", cfg.Server.Address()).Msg("server.listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server.listen_failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	appLogger.Info().Msg("server.shutting_down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server.shutdown_failed")
	}
}
