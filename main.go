package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"tourdoc/config"
	"tourdoc/convert"
	"tourdoc/db"
	"tourdoc/document"
	"tourdoc/itinerary"
	"tourdoc/jobs"
	"tourdoc/logging"
	"tourdoc/middleware"
	"tourdoc/pipeline"
	"tourdoc/ratelim"
	"tourdoc/rdx"
	"tourdoc/routes"
	"tourdoc/snapshot"
	"tourdoc/store"
	"tourdoc/utils"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

func corsOptions(cfg *config.Config) cors.Options {
	return cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", middleware.RequestIDHeader},
		// A wildcard origin must not be combined with credentials.
		AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
	}
}

// buildHandler wraps the router: request logging → security headers → CORS → router.
func buildHandler(cfg *config.Config, router http.Handler) http.Handler {
	corsHandler := cors.New(corsOptions(cfg)).Handler(router)
	return middleware.RequestLogger(securityHeaders(corsHandler))
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemoryStore(), nil
	case "mongo":
		client, err := db.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		return store.NewMongoStore(ctx, client, cfg.MongoDB)
	case "badger":
		if err := utils.EnsureDir(cfg.BadgerDir); err != nil {
			return nil, err
		}
		return store.OpenBadger(cfg.BadgerDir)
	default:
		return nil, fmt.Errorf("unknown STORE %q (want badger, mongo or memory)", cfg.Store)
	}
}

func openStatusStore(ctx context.Context, cfg *config.Config) (jobs.StatusStore, func(), error) {
	if cfg.RedisAddr == "" {
		return jobs.NewMemoryStatusStore(), func() {}, nil
	}
	client, err := rdx.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	return jobs.NewRedisStatusStore(client, jobs.DefaultStatusTTL), func() { _ = client.Close() }, nil
}

// prepareFiles creates the output folders, the built-in template and the
// placeholder images when they are missing.
func prepareFiles(cfg *config.Config) error {
	for _, dir := range []string{cfg.OutputDir, cfg.ScreenshotDir, cfg.AssetsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
	}
	created, err := document.EnsureTemplate(cfg.TemplatePath)
	if err != nil {
		return err
	}
	if created {
		logging.Info().Str("path", cfg.TemplatePath).Msg("wrote built-in itinerary template")
	}
	return pipeline.EnsureAssets(cfg.AssetsDir)
}

func main() {
	// load .env if present
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found; using system environment")
	}

	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.IsProduction() && cfg.JWTSecret == "change-me-in-production" {
		logging.Fatal().Msg("JWT_SECRET must be set in production")
	}

	ctx := context.Background()

	records, err := openStore(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Str("store", cfg.Store).Msg("could not open record store")
	}
	defer records.Close()

	statuses, closeStatuses, err := openStatusStore(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("could not connect to redis")
	}
	defer closeStatuses()

	if err := prepareFiles(cfg); err != nil {
		logging.Fatal().Err(err).Msg("could not prepare document files")
	}

	docs := pipeline.New(records,
		snapshot.New(snapshot.Config{
			BaseURL:    cfg.SnapshotURL,
			MapPageURL: cfg.MapPageURL,
			APIKey:     cfg.SnapshotKey,
		}),
		document.NewRenderer(),
		convert.New(convert.Config{
			BaseURL:      cfg.ConvertURL,
			APIKey:       cfg.ConvertKey,
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.PollAttempts,
		}),
		pipeline.Options{
			TemplatePath:  cfg.TemplatePath,
			OutputDir:     cfg.OutputDir,
			ScreenshotDir: cfg.ScreenshotDir,
			AssetsDir:     cfg.AssetsDir,
		},
	)

	runner := jobs.NewRunner(docs, statuses, cfg.Workers, cfg.QueueSize)
	runner.Start()

	rateLimiter := ratelim.NewRateLimiter(30, 5).TrustProxy(cfg.TrustProxy)
	stopCleanup := make(chan struct{})
	go rateLimiter.Cleanup(time.Minute, stopCleanup)

	router := httprouter.New()
	routes.RoutesWrapper(router, routes.Deps{
		Store: records,
		Auth:  middleware.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL),
		Itineraries: &itinerary.Handlers{
			Store:        records,
			Jobs:         runner,
			OutputDir:    cfg.OutputDir,
			DownloadWait: cfg.DownloadWait,
		},
	}, rateLimiter)

	handler := buildHandler(cfg, router)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.DownloadWait + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", cfg.Addr()).Str("store", cfg.Store).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logging.Info().Msg("shutdown signal received; shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
	close(stopCleanup)
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("document workers did not stop in time")
	}

	logging.Info().Msg("server stopped cleanly")
}
