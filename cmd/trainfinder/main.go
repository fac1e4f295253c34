package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trainfinder/internal/cache"
	"trainfinder/internal/config"
	"trainfinder/internal/handler"
	"trainfinder/internal/hub"
	"trainfinder/internal/ingestor"
	"trainfinder/internal/metrics"
	"trainfinder/internal/middleware"
	"trainfinder/internal/railgraph"
	"trainfinder/internal/repository"
	"trainfinder/internal/rides"
	"trainfinder/internal/routing"
	"trainfinder/internal/scheduler"
	"trainfinder/internal/store"
	"trainfinder/internal/tracking"
	"trainfinder/pkg/nsapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting trainfinder server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"map_source", cfg.MapSource,
		"redis_enabled", cfg.RedisEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	graph, err := ingestor.NewMapLoader(cfg.MapSource, cfg.MapCacheDir, logger).Load(ctx)
	if err != nil {
		logger.Error("failed to import railway map", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	nsClient := nsapi.New(nsapi.Config{
		StationsURL:       cfg.NSStationsURL,
		DeparturesURL:     cfg.NSDeparturesURL,
		AdviceURL:         cfg.NSAdviceURL,
		Username:          cfg.NSUsername,
		Password:          cfg.NSPassword,
		Timeout:           cfg.NSTimeout,
		RequestsPerSecond: cfg.NSRequestsPerSecond,
		Burst:             cfg.NSRequestBurst,
	})

	stationStore := store.NewStationStore()
	stations := repository.NewNSStationRepository(nsClient, stationStore, logger)
	if err := stations.Reload(ctx); err != nil {
		logger.Error("failed to load stations", "error", err)
		os.Exit(1)
	}
	departures := repository.NewNSDeparturesRepository(nsClient, stations, logger)
	advice := repository.NewNSTravelAdviceRepository(nsClient, stations)

	tracker := rides.NewTracker(cfg.MaxRideDuration, cfg.RideCleanupInterval, logger)
	sched := scheduler.New(tracker, scheduler.Config{
		SkipDuration: cfg.StationSkipDuration,
		MaxStaleness: cfg.StationMaxStaleness,
		LookAhead:    cfg.StationLookAhead,
	}, logger)

	var railways cache.Cache[string, *railgraph.Railway] = cache.NewMemory[string, *railgraph.Railway]()
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, railways are cached in memory only", "error", err)
		} else {
			defer redisCache.Close()
			railways = cache.NewTiered(railways, cache.Cache[string, *railgraph.Railway](
				cache.NewRedisStore[*railgraph.Railway](redisCache, cfg.CacheTTL, logger),
			))
		}
	}

	router := routing.NewRouter(graph, railways, cfg.ProjectionRadius, m, logger)
	warmer := routing.NewWarmer(router, tracker, stations, cfg.StationLookAhead, logger)
	trains := tracking.NewService(tracker, router, cfg.Nearest, logger)

	coordinator := ingestor.NewCoordinator(
		ingestor.Sources{Stations: stations, Departures: departures, Advice: advice},
		tracker, sched, warmer, m,
		ingestor.CoordinatorConfig{
			RefreshInterval:        cfg.RefreshInterval,
			FetchConcurrency:       cfg.FetchConcurrency,
			FinalDestinationWindow: cfg.FinalDestinationWindow,
			Filter:                 cfg.StationFilter,
		},
		logger,
	)

	trainStore := store.NewTrainStore()
	wsHub := hub.NewHub(logger)
	publisher := ingestor.NewPublisher(trains, trainStore, wsHub, m, cfg.PositionInterval, cfg.TileZoomLevel, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	defer limiter.Stop()

	mux := handler.NewRouter(handler.Handlers{
		Trains:   handler.NewTrainHandler(trains, trainStore),
		Stations: handler.NewStationHandler(stationStore, logger),
		Railways: handler.NewRailwayHandler(router, stationStore, logger),
		Stats: handler.NewStatsHandler(handler.StatsSources{
			Rides:       tracker,
			Trains:      trainStore,
			Stations:    stationStore,
			Graph:       graph,
			Router:      router,
			Hub:         wsHub,
			Coordinator: coordinator,
			RateLimiter: limiter,
		}),
		Health:    handler.NewHealthHandler(coordinator, trainStore),
		WebSocket: handler.NewWSHandler(wsHub, trainStore, cfg.TileZoomLevel, logger),
		Metrics:   promhttp.Handler(),
		RateLimit: limiter.Middleware,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)

	go coordinator.Run(ctx)

	go publisher.Start(ctx)

	go warmer.ScheduleMidnightRefresh(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
