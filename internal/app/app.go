package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	orderingv1 "github.com/vladislavdragonenkov/ordering/api/ordering/v1"
	"github.com/vladislavdragonenkov/ordering/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordering/internal/health"
	"github.com/vladislavdragonenkov/ordering/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/ordering/internal/service/grpc"
	"github.com/vladislavdragonenkov/ordering/internal/service/ordering"
	"github.com/vladislavdragonenkov/ordering/internal/version"
)

// Run поднимает хранилище, outbox worker, gRPC и HTTP-серверы и блокируется
// до отмены ctx или ошибки gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	shutdownTracing, err := initTracing(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownWithTimeout(shutdownTracing, cfg.ShutdownTimeout); err != nil {
			logger.WithError(err).Warn("tracer provider shutdown with error")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	workflow := ordering.NewWorkflow(ordering.Deps{
		Customers: deps.customers,
		Products:  deps.products,
		Orders:    deps.orders,
		Tx:        deps.tx,
		Outbox:    deps.outbox,
		Timeline:  deps.timeline,
		Metrics:   metrics.NewOrderMetrics(),
		Logger:    logger.WithField("component", "ordering"),
	})

	// Ошибка Kafka не фатальна: заказы принимаются, outbox копится.
	producer, _ := initKafkaProducer(cfg, logger)
	defer closeKafka(producer, logger)

	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer func() {
		stopWorkers()
		workers.Wait()
	}()
	if worker := newOutboxWorker(cfg, deps.outbox, producer, logger); worker != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workerCtx)
		}()
	}
	if cleaner := newOutboxCleaner(cfg, deps.cleaner, logger); cleaner != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			cleaner.Run(workerCtx)
		}()
	}

	orderService := grpcsvc.NewOrderService(workflow, deps.orders, deps.products, deps.timeline, logger.WithField("layer", "grpc"))
	grpcMetrics := registerGRPCMetrics(logger)
	grpcServer := grpc.NewServer(
		orderingv1.ServerOption(),
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
	)
	orderingv1.RegisterOrderServiceServer(grpcServer, orderService)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(orderingv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.pinger != nil {
		healthHandler.RegisterChecker("storage", healthcheck.PingChecker(deps.pinger))
	}
	healthHandler.RegisterOptional("outbox", outboxBacklogChecker(deps.outbox, outboxBacklogMaxAge, time.Now))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		gracefulStop(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// outboxBacklogMaxAge — возраст самого старого pending-сообщения, после которого
// сервис считается degraded.
const outboxBacklogMaxAge = 5 * time.Minute

func outboxBacklogChecker(repo domain.OutboxRepository, maxAge time.Duration, now func() time.Time) healthcheck.Checker {
	return healthcheck.FuncChecker(func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
			return nil
		}
		if age := now().Sub(stats.OldestPendingAt); age > maxAge {
			return fmt.Errorf("%d pending outbox messages, oldest is %s old", stats.PendingCount, age.Truncate(time.Second))
		}
		return nil
	})
}

func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// gracefulStop ждёт завершения активных RPC не дольше timeout.
func gracefulStop(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает HTTP-сервер с /metrics и health-пробами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
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

func shutdownWithTimeout(shutdown func(context.Context) error, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return shutdown(ctx)
}
