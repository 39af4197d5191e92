package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-streamer/internal/events"
	"live-streamer/internal/media/gstreamer"
	"live-streamer/internal/platform/config"
	"live-streamer/internal/platform/logger"
	"live-streamer/internal/platform/metrics"
	"live-streamer/internal/stream"
	"live-streamer/internal/streamer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultShutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	shutdownTimeout := config.GetEnvDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)

	log := logger.New(logLevel, logFormat)

	required, err := config.Require("RTMP_SERVER", "STREAM_PATH_PREFIX", "NGINX_HLS_URL")
	if err != nil {
		log.Error("stream is wrongly configured", "error", err)
		os.Exit(1)
	}
	rtmpServer, prefix, hlsURL := required[0], required[1], required[2]

	dest, err := streamer.NewDestination(rtmpServer, prefix)
	if err != nil {
		log.Error("stream is wrongly configured", "error", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	repo, closeRepo, err := openRepository(startCtx)
	if err != nil {
		cancelStart()
		log.Error("open stream repository", "error", err)
		os.Exit(1)
	}
	defer closeRepo()
	publisher, closePublisher, err := openPublisher(startCtx, log)
	cancelStart()
	if err != nil {
		log.Error("open event publisher", "error", err)
		os.Exit(1)
	}
	defer closePublisher()

	met := metrics.New()
	runtime := gstreamer.New(config.GetEnvDuration("BUS_POLL_INTERVAL", gstreamer.DefaultPollInterval))
	registry := streamer.NewRegistry()
	orch := streamer.New(
		streamer.NewBuilder(runtime, dest, logger.WithComponent(log, "graph")),
		registry,
		streamer.WithLogger(logger.WithComponent(log, "orchestrator")),
		streamer.WithObserver(met),
	)

	svc, err := stream.NewService(repo, orch, stream.Config{
		HLSURL:    hlsURL,
		Prefix:    prefix,
		MediaRoot: config.GetEnv("MEDIA_ROOT", ""),
	}, publisher, met, logger.WithComponent(log, "stream"))
	if err != nil {
		log.Error("create stream service", "error", err)
		os.Exit(1)
	}
	h := stream.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetRegistryEntries(registry.Size())
			n, err := svc.ActiveStreams(r.Context())
			if err != nil {
				log.Warn("count active streams", "error", err)
				return
			}
			met.SetActiveStreams(n)
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"rtmp_server", rtmpServer,
		"stream_prefix", prefix,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if err := orch.Shutdown(ctx); err != nil {
		log.Error("stream shutdown error", "error", err)
	}
	if err := svc.Wait(ctx); err != nil {
		log.Error("stream completion not recorded", "error", err)
	}

	log.Info("server stopped")
}

// openRepository connects to Postgres when DATABASE_URL is set and falls back
// to an in-memory repository otherwise.
func openRepository(ctx context.Context) (stream.Repository, func(), error) {
	dsn := config.GetEnv("DATABASE_URL", "")
	if dsn == "" {
		return stream.NewInMemoryRepository(), func() {}, nil
	}
	repo, err := stream.NewPostgresRepository(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// openPublisher connects to Redis when REDIS_ADDR is set; events are dropped otherwise.
func openPublisher(ctx context.Context, log *slog.Logger) (events.Publisher, func(), error) {
	addr := config.GetEnv("REDIS_ADDR", "")
	if addr == "" {
		log.Info("REDIS_ADDR not set, stream events disabled")
		return events.NoopPublisher{}, func() {}, nil
	}
	pub, err := events.NewRedisPublisher(ctx, events.RedisConfig{
		Addr:     addr,
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		Stream:   config.GetEnv("REDIS_STREAM", events.DefaultRedisStream),
		Logger:   logger.WithComponent(log, "events"),
	})
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { pub.Close() }, nil
}
