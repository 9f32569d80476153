package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerlink/ledgerlink/internal/alerts"
	"github.com/ledgerlink/ledgerlink/internal/app"
	"github.com/ledgerlink/ledgerlink/internal/balances"
	"github.com/ledgerlink/ledgerlink/internal/ledger"
	"github.com/ledgerlink/ledgerlink/internal/observability"
	"github.com/ledgerlink/ledgerlink/internal/ops"
	"github.com/ledgerlink/ledgerlink/internal/orchestrator"
	"github.com/ledgerlink/ledgerlink/internal/platform/db"
	"github.com/ledgerlink/ledgerlink/internal/posting"
	"github.com/ledgerlink/ledgerlink/internal/reconcile"
	"github.com/ledgerlink/ledgerlink/internal/sources"
	"github.com/ledgerlink/ledgerlink/internal/stock"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
	"github.com/ledgerlink/ledgerlink/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	dispatcher := alerts.NewDispatcher(jobsClient, redisClient, logger)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, logger)

	sourceRepo := sources.NewRepository(pool)
	detector := sources.NewDetector(sourceRepo, cfg.DetectBatchLimit)

	queueRepo := syncqueue.NewRepository(pool)
	mappings := posting.NewMappingRepository(pool)
	postingEngine := posting.NewEngine(detector, ledgerService, queueRepo, mappings, dispatcher, logger)

	erpStock := stock.NewERPStore(pool)
	wmsStock := stock.NewWMSStore(pool)
	processor := syncqueue.NewProcessor(queueRepo, map[syncqueue.Direction]syncqueue.Target{
		syncqueue.DirectionERPToWMS: wmsStock,
		syncqueue.DirectionWMSToERP: erpStock,
	}, dispatcher, syncqueue.ProcessorConfig{
		MaxRetryCount:  cfg.MaxRetryCount,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	}, logger)

	aggregator := balances.NewAggregator(balances.NewRepository(pool), logger)

	reconRepo := reconcile.NewRepository(pool)
	reconciler := reconcile.NewEngine(erpStock, wmsStock, reconRepo, dispatcher, reconcile.Thresholds{
		MatchedPct: cfg.MatchedThresholdPct,
		MajorPct:   cfg.MajorThresholdPct,
	}, logger)

	metrics := observability.NewMetrics()

	orch := orchestrator.New(
		orchestrator.NewStateStore(pool),
		postingEngine,
		processor,
		aggregator,
		reconciler,
		metrics,
		orchestrator.Config{
			BalanceAggMultiple: cfg.BalanceAggMultiple,
			ReconcileMultiple:  cfg.ReconcileMultiple,
			SyncBatchLimit:     cfg.SyncBatchLimit,
		},
		logger,
	)

	alertJob := jobs.NewAlertDispatchJob(logger)
	retentionJob := jobs.NewRetentionSweepJob(pool, logger)
	retentionTask, err := jobs.NewRetentionSweepTask(30)
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAlertDispatch, Handler: alertJob.Handle},
			{Type: jobs.TaskRetentionSweep, Handler: retentionJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := ops.NewRouter(ops.RouterParams{
		Logger:     logger,
		DB:         pool,
		Redis:      ops.RedisPinger(redisClient),
		Queue:      queueRepo,
		Recon:      reconRepo,
		Alerts:     dispatcher,
		Metrics:    metrics.Handler(),
		JobsHealth: http.HandlerFunc(jobsHandler.Health),
		Production: cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting ops server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := orch.Run(gctx, orchestrator.NewRealClock(), cfg.TickInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("daemon stopped")
}
