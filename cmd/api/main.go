package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/cache"
	"storyreel/internal/http/handlers"
	"storyreel/internal/http/httpapi"
	"storyreel/internal/infra"
	"storyreel/internal/infra/geoip"
	"storyreel/internal/orchestrator"
	"storyreel/internal/providers/pipeline"
	"storyreel/internal/queue"
	"storyreel/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	jobRepo := repo.NewJobRepository(dbpool)
	subjectRepo := repo.NewSubjectRepository(dbpool)
	workQueue := queue.New(queue.Options{RetryBackoff: cfg.QueueRetryBackoff})
	progressCache := cache.NewStore(cfg.SnapshotTTL)

	orc := orchestrator.New(orchestrator.Options{
		Queue:           workQueue,
		Cache:           progressCache,
		Jobs:            jobRepo,
		Subjects:        subjectRepo,
		Logger:          logger,
		StaggerInterval: cfg.StaggerInterval,
	})

	providerClient, err := pipeline.NewClient(pipeline.Options{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider client")
	}
	if providerClient.Synthetic() {
		logger.Warn().Msg("no provider api key configured, running in synthetic mode")
	}

	pool := worker.New(worker.Options{
		Queue:             workQueue,
		Cache:             progressCache,
		Jobs:              jobRepo,
		Script:            pipeline.NewScriptAdapter(providerClient),
		Video:             pipeline.NewVideoAdapter(providerClient),
		Music:             pipeline.NewMusicAdapter(providerClient),
		Assembly:          pipeline.NewAssemblyAdapter(providerClient),
		Logger:            logger,
		Concurrency:       cfg.WorkerConcurrency,
		PollInterval:      cfg.WorkerPollEvery,
		StagePollInterval: cfg.StagePollEvery,
		StageTimeout:      cfg.StageTimeout,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		pool.Run(ctx)
	}()

	app := handlers.NewApp(orc, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		GeoIP:           resolver,
		CORSOrigins:     cfg.CORSOrigins,
		APIToken:        cfg.APIToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	<-workerDone
	logger.Info().Msg("server stopped")
}
