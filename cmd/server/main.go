package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mediascribe/ingest/internal/api"
	"github.com/mediascribe/ingest/internal/cache"
	"github.com/mediascribe/ingest/internal/config"
	"github.com/mediascribe/ingest/internal/downloader"
	"github.com/mediascribe/ingest/internal/events"
	"github.com/mediascribe/ingest/internal/extractor"
	"github.com/mediascribe/ingest/internal/health"
	"github.com/mediascribe/ingest/internal/ingest"
	"github.com/mediascribe/ingest/internal/logger"
	"github.com/mediascribe/ingest/internal/metrics"
	"github.com/mediascribe/ingest/internal/middleware"
	"github.com/mediascribe/ingest/internal/storage"
	"github.com/mediascribe/ingest/internal/stream"
	"github.com/mediascribe/ingest/internal/transcriber"
	"github.com/mediascribe/ingest/internal/validators"
	"github.com/mediascribe/ingest/internal/websocket"
)

const version = "0.1.0"

const gaugeRefreshInterval = 5 * time.Second

func main() {
	cfg := config.Load()

	log := logger.New(&logger.Config{Level: logger.ParseLevel(cfg.LogLevel)})
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := extractor.New(&extractor.Config{
		BinDir:         cfg.ExtractorDir,
		Timeout:        cfg.ExtractorTimeout,
		BrowserCookies: cfg.BrowserCookies,
	}, log)

	manager, err := downloader.NewManager(&downloader.Config{
		DownloadDir:      cfg.DownloadDir,
		Extractor:        runner,
		DirectMaxRetries: cfg.DirectMaxRetries,
	}, log)
	if err != nil {
		log.Error(ctx, "Failed to initialize download manager", err)
		os.Exit(1)
	}

	var whisper *transcriber.WhisperClient
	if cfg.WhisperURL != "" {
		whisper = transcriber.NewWhisperClient(transcriber.ClientConfig{BaseURL: cfg.WhisperURL}, log)
	}

	validationCache := buildCache(ctx, cfg, log)

	bus := events.NewBus()

	svcCfg := &ingest.Config{
		TranscriptDir:   cfg.TranscriptDir,
		Validator:       validators.DefaultRegistry(),
		Downloads:       manager,
		ValidationCache: validationCache,
		Bus:             bus,
	}
	// Assign only a live client so the service's nil check stays meaningful.
	if whisper != nil {
		svcCfg.Transcriber = whisper
	}

	svc, err := ingest.New(svcCfg, log)
	if err != nil {
		log.Error(ctx, "Failed to initialize ingest service", err)
		os.Exit(1)
	}

	dispatcher := ingest.NewDispatcher(svc, &ingest.DispatcherConfig{
		WorkerCount: cfg.MaxConcurrentIngests,
	}, log)
	dispatcher.Start()

	hub := websocket.NewHub()
	go hub.Run(ctx)
	go websocket.Bridge(ctx, bus, hub)

	origins := splitOrigins(cfg.AllowedOrigins)
	wsHandler := websocket.NewHandler(hub, origins, log)

	var relay *events.RedisRelay
	if cfg.RedisURL != "" {
		relay, err = events.NewRedisRelay(cfg.RedisURL, log)
		if err != nil {
			log.Warn(ctx, "Redis relay unavailable, events stay in-process", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			go events.Forward(ctx, bus, relay, log)
		}
	}

	store := buildStore(ctx, cfg, log)
	if store != nil {
		archiver := storage.NewArchiver(store, cfg.StorageUploadMedia, log)
		go archiver.Run(ctx, bus)
	}

	checkerCfg := &health.CheckerConfig{
		DownloadDir:    cfg.DownloadDir,
		ExtractorCheck: svc.IsExtractorAvailable,
		Version:        version,
	}
	if whisper != nil {
		checkerCfg.TranscriberPing = whisper.Ping
	}
	if relay != nil {
		checkerCfg.RelayPing = relay.Ping
	}
	if store != nil {
		checkerCfg.StoragePing = store.Ping
	}
	healthHandler := health.NewHandler(health.NewChecker(checkerCfg))

	m := metrics.New()
	go observeJobEvents(ctx, bus, m)
	go refreshGauges(ctx, svc, dispatcher, hub, m)

	router := api.NewRouter(&api.RouterConfig{
		Handlers: api.NewIngestHandlers(svc, dispatcher, log),
		Media:    stream.NewHandler(svc, log),
		WS:       wsHandler,
		Health:   healthHandler,
		Metrics:  m,
	})

	handler := middleware.Chain(router,
		middleware.RequestID,
		middleware.Logging(log),
		middleware.Recoverer(log),
		middleware.CORS(origins),
		metrics.MetricsMiddleware(m),
		middleware.Timing(log),
		middleware.Gzip,
		middleware.ETag,
	)

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info(ctx, "Server listening", map[string]interface{}{
			"addr":          cfg.ServerAddr,
			"version":       version,
			"transcription": whisper != nil,
			"relay":         relay != nil,
			"archival":      store != nil,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(context.Background(), "Server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn(context.Background(), "HTTP shutdown incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn(context.Background(), "Dispatcher drain incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}
	svc.Cleanup()
	if relay != nil {
		relay.Close()
	}

	log.Info(context.Background(), "Shutdown complete")
}

// buildCache prefers Redis when configured and falls back to the
// in-process cache when the connection cannot be established.
func buildCache(ctx context.Context, cfg *config.Config, log *logger.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemory()
	}
	c, err := cache.NewRedis(cfg.RedisURL, log)
	if err != nil {
		log.Warn(ctx, "Redis cache unavailable, using in-memory cache", map[string]interface{}{
			"error": err.Error(),
		})
		return cache.NewMemory()
	}
	return c
}

// buildStore returns the configured artifact store, or nil when archival
// is off or the backend cannot be constructed. A failed bucket probe only
// warns; uploads retry on their own.
func buildStore(ctx context.Context, cfg *config.Config, log *logger.Logger) storage.ArtifactStore {
	if cfg.StorageEndpoint == "" {
		return nil
	}

	store, err := storage.New(&storage.Config{
		Backend:   cfg.StorageBackend,
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		Region:    cfg.StorageRegion,
		UseSSL:    cfg.StorageUseSSL,
		PathStyle: cfg.StoragePathStyle,
	})
	if err != nil {
		log.Warn(ctx, "Artifact store disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ensureCtx); err != nil {
		log.Warn(ctx, "Artifact bucket not verified", map[string]interface{}{
			"bucket": cfg.StorageBucket,
			"error":  err.Error(),
		})
	}
	return store
}

// observeJobEvents counts terminal job outcomes from the event bus.
func observeJobEvents(ctx context.Context, bus *events.Bus, m *metrics.Metrics) {
	sub := bus.Subscribe(128)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			switch ev.Kind {
			case events.KindComplete:
				m.RecordJobCompleted()
			case events.KindError:
				m.RecordJobFailed()
			case events.KindCancelled:
				m.RecordJobCancelled()
			}
		}
	}
}

// refreshGauges samples pipeline state on a fixed interval.
func refreshGauges(ctx context.Context, svc *ingest.Service, d *ingest.Dispatcher, hub *websocket.Hub, m *metrics.Metrics) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetActiveDownloads(int64(svc.ActiveDownloads()))
			m.SetTrackedJobs(int64(svc.JobCount()))
			m.SetQueueDepth(int64(d.QueueDepth()))
			m.SetWSConnections(int64(hub.TotalClients()))
		}
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
