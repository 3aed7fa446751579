package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

// Run запускает сервис и блокируется до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	orchestrator := createOrchestrator(deps, cfg)
	if err := orchestrator.Subscribe(deps.Bus); err != nil {
		return err
	}

	// NOTE: Using mock services for development/demo purposes
	// In production, replace with real inventory and payment service clients
	inventorySvc := inventory.NewMockService(deps.Bus, nil, logger)
	if err := inventorySvc.Subscribe(deps.Bus); err != nil {
		return err
	}
	paymentSvc := payment.NewMockService(deps.Bus, logger)
	if err := paymentSvc.Subscribe(deps.Bus); err != nil {
		return err
	}

	// Consumer group стартует только после регистрации всех подписок.
	busErrCh := make(chan error, 1)
	if deps.kafkaBus != nil {
		go runBus(ctx, deps.kafkaBus, busErrCh)
	}

	sweeper := createSweeper(deps, orchestrator, cfg)
	go sweeper.Run(ctx)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storage.store != nil {
		store := deps.storage.store
		healthHandler.RegisterChecker("postgres", healthcheck.CheckerFunc(store.Ping))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	logger.WithFields(log.Fields{
		"storage": cfg.StorageDriver,
		"kafka":   cfg.KafkaBrokers != "",
	}).Info("fulfillment service started")

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-busErrCh:
		shutdownHTTP(metricsSrv, logger)
		return err
	}
}

// busStarter поднимает consumer group шины событий.
type busStarter interface {
	Start(ctx context.Context) error
}

// runBus запускает шину и сообщает в errCh только о реальной ошибке.
// Bus.Start возвращает nil сразу после запуска consumer-горутин, поэтому
// безусловная отправка результата немедленно остановила бы сервис.
func runBus(ctx context.Context, bus busStarter, errCh chan<- error) {
	if err := bus.Start(ctx); err != nil {
		errCh <- err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus
// вместе с health-пробами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
