package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	cacheadapter "github.com/johnthebelovedcoder/contralock/internal/adapters/cache"
	eventadapter "github.com/johnthebelovedcoder/contralock/internal/adapters/events"
	gatewayadapter "github.com/johnthebelovedcoder/contralock/internal/adapters/gateway"
	grpcadapter "github.com/johnthebelovedcoder/contralock/internal/adapters/grpc"
	httpadapter "github.com/johnthebelovedcoder/contralock/internal/adapters/http"
	"github.com/johnthebelovedcoder/contralock/internal/adapters/postgres"
	"github.com/johnthebelovedcoder/contralock/internal/adapters/scheduler"
	"github.com/johnthebelovedcoder/contralock/internal/application"
	"github.com/johnthebelovedcoder/contralock/internal/domain"
	"github.com/johnthebelovedcoder/contralock/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	sweeper    *scheduler.AutoApprovalWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping contralock escrow engine", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, int(cfg.MaxDBConns))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	cleanup := func(context.Context) { _ = sqlDB.Close() }

	var sweepLock ports.SweepLock
	if cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		sweepLock = cacheadapter.NewRedisSweepLock(redisClient, uuid.NewString())
		prev := cleanup
		cleanup = func(ctx context.Context) {
			_ = redisClient.Close()
			prev(ctx)
		}
	}

	var domainPub ports.DomainPublisher
	var analyticsPub ports.AnalyticsPublisher
	var dlqPub ports.DLQPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err := eventadapter.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		domainPub, analyticsPub, dlqPub = amqpPub, amqpPub, amqpPub
		prev := cleanup
		cleanup = func(ctx context.Context) {
			amqpPub.Close()
			prev(ctx)
		}
	} else {
		loggingPub := eventadapter.NewLoggingPublisher(logger)
		domainPub, analyticsPub, dlqPub = loggingPub, loggingPub, loggingPub
	}

	repos := postgres.NewRepositories(pool)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:          cfg.ServiceID,
			IdempotencyTTL:       cfg.IdempotencyTTL,
			OutboxFlushBatchSize: cfg.OutboxFlushBatchSize,
			SweepInterval:        cfg.SweepInterval,
			WarningWindow:        cfg.WarningWindow,
			Fees: domain.FeeSchedule{
				PlatformFeeBps:     cfg.PlatformFeeBps,
				ProcessingFeeBps:   cfg.ProcessingFeeBps,
				ProcessingFeeFixed: cfg.ProcessingFeeFixed,
				DisputeFee:         cfg.DisputeFee,
			},
		},
		Projects:     repos.Projects,
		Milestones:   repos.Milestones,
		Accounts:     repos.Accounts,
		Transactions: repos.Transactions,
		Disputes:     repos.Disputes,
		Evidence:     repos.Evidence,
		Messages:     repos.Messages,
		Transitions:  repos.Transitions,
		Idempotency:  repos.Idempotency,
		Outbox:       repos.Outbox,
		Gateway:      gatewayadapter.NewLoggingGateway(logger),
		Tx:           repos.Tx,
		DomainEvents: domainPub,
		Analytics:    analyticsPub,
		DLQ:          dlqPub,
		Logger:       logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	handler := httpadapter.NewHandler(svc)
	router := httpadapter.NewRouter(handler, cfg.JWTSecret, registry)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	grpcadapter.Register(grpcServer, grpcadapter.NewEscrowInternalServer(svc))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     eventadapter.NewOutboxWorker(logger, svc, cfg.OutboxPollInterval),
		sweeper:    scheduler.NewAutoApprovalWorker(logger, svc, sweepLock, cfg.SweepInterval),
		cleanupFn:  cleanup,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunWorker runs the outbox publisher and the auto-approval sweeper in one
// process until cancellation.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("outbox worker started")
		errCh <- r.outbox.Run(ctx)
	}()
	go func() {
		r.logger.Info("auto-approval sweeper started", "interval", r.cfg.SweepInterval.String())
		errCh <- r.sweeper.Run(ctx)
	}()

	err := <-errCh
	stop()
	<-errCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
