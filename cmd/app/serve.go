package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dialogue-orchestrator/internal/config"
	"dialogue-orchestrator/internal/domain/ports/repository"
	aiAdapters "dialogue-orchestrator/internal/infra/adapters/ai"
	"dialogue-orchestrator/internal/infra/adapters/telegram"
	"dialogue-orchestrator/internal/infra/api"
	pg "dialogue-orchestrator/internal/infra/db/postgres"
	"dialogue-orchestrator/internal/infra/i18n"
	"dialogue-orchestrator/internal/infra/logging"
	"dialogue-orchestrator/internal/infra/metrics"
	red "dialogue-orchestrator/internal/infra/redis"
	"dialogue-orchestrator/internal/infra/sched"
	"dialogue-orchestrator/internal/infra/security"
	"dialogue-orchestrator/internal/infra/worker"
	"dialogue-orchestrator/internal/usecase"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		dev        bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath, dev)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config file")
	cmd.Flags().BoolVar(&dev, "dev", false, "developer mode: console logs, optional auth, noop AI fallback")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(Version, Commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	var sealer red.Sealer
	if cfg.Security.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		sealer = enc
	} else {
		logger.Warn().Msg("security.encryption_key not set; session snapshots are stored in plain JSON")
	}
	snapshots := red.NewSessionCache(redisClient, sealer, cfg.Redis.TTL)
	locker := red.NewRoomLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Postgres outbox (optional) ----
	var (
		outcomes repository.OutcomeRepository
		txm      repository.TransactionManager
	)
	if cfg.Database.URL != "" {
		dbPool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer dbPool.Close()
		go pg.ReportPoolStats(ctx, dbPool, 0)
		outcomes = pg.NewOutcomeRepo(dbPool)
		txm = pg.NewTxManager(dbPool)
	} else {
		logger.Warn().Msg("database.url not set; rulings are logged but not stored")
	}

	// ---- Outcome delivery ----
	pool := worker.NewPool(cfg.Workers.OutcomePoolSize, cfg.Workers.OutcomeQueue, logger)
	pool.Start(context.WithoutCancel(ctx))
	sink := worker.NewOutcomeDispatcher(pool, outcomes, txm, logger)

	// ---- Generation ----
	ai, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	gen := aiAdapters.NewGenerator(ai, aiAdapters.NewTokenCounter(), generatorConfig(cfg), logger)

	// ---- Use case ----
	uc := usecase.NewSessionUseCase(gen, sink, locker, snapshots, sessionOptions(cfg), logger)

	// ---- Idle sweeper ----
	sweeper, err := sched.NewIdleSweeper(cfg.Scheduler.IdleSweepCron, cfg.Orchestrator.IdleTimeout, uc, logger)
	if err != nil {
		return fmt.Errorf("idle sweeper: %w", err)
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("idle sweeper stopped")
		}
	}()

	// ---- Telegram (optional) ----
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.UpdateWorkers, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		router := telegram.NewRouter(uc, bot, limiter, i18n.Default(), cfg.Telegram.Cast, cfg.Telegram.CommandsPerMin, logger)
		go func() {
			if err := bot.Run(ctx, router); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- HTTP ----
	apiSrv := api.NewServer(uc, api.NewAuthenticator(cfg.HTTP.JWTSecret), limiter, i18n.Default(), api.Options{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		AdvancePerMin:  cfg.HTTP.AdvancePerMin,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http api listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdown(uc, pool, server, logger)
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdown(uc, pool, server, logger)
	return nil
}

// shutdown stops intake first, then ends live sessions, then drains delivery.
func shutdown(uc usecase.SessionUseCase, pool *worker.Pool, server *http.Server, logger *zerolog.Logger) {
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	uc.Shutdown(sctx)
	pool.Stop()
	logger.Info().Msg("stopped")
}
