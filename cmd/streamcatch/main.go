package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/streamcatch/streamcatch/internal/backend"
	"github.com/streamcatch/streamcatch/internal/config"
	"github.com/streamcatch/streamcatch/internal/database"
	"github.com/streamcatch/streamcatch/internal/geoip"
	"github.com/streamcatch/streamcatch/internal/identity"
	"github.com/streamcatch/streamcatch/internal/logging"
	"github.com/streamcatch/streamcatch/internal/metrics"
	"github.com/streamcatch/streamcatch/internal/recordings"
	"github.com/streamcatch/streamcatch/internal/server"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/storage"
	"github.com/streamcatch/streamcatch/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("streamcatch stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		slog.Info("database migrations applied")
	}

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       cfg.S3Endpoint,
		PublicEndpoint: cfg.S3PublicEndpoint,
		Bucket:         cfg.S3Bucket,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Region:         cfg.S3Region,
	})
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		slog.Warn("storage bucket not reachable, covers will be blank", "bucket", cfg.S3Bucket, "error", err)
	}

	geo, err := geoip.New(cfg.GeoIPDBPath)
	if err != nil {
		return fmt.Errorf("geoip initialization failed: %w", err)
	}
	defer func() { _ = geo.Close() }()

	reg := metrics.NewRegistry()
	upstream := metrics.NewUpstreamMetrics(reg)
	idp := identity.New(cfg.AuthURL, cfg.AuthAnonKey, upstream)

	sessionStore, storePinger, err := newSessionStore(cfg)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	provider := session.NewProvider(sessionStore, idp, session.NewVerifier(cfg.AuthJWTSecret, clock.Now), session.Options{
		HashKey: []byte(cfg.SessionSecret),
		MaxAge:  cfg.SessionMaxAge,
		Secure:  cfg.SecureCookies(),
		Clock:   clock,
		Locate:  geo.Country,
	})
	provider.Start()
	defer provider.Close()

	renderer, err := web.NewRenderer(provider)
	if err != nil {
		return fmt.Errorf("template initialization failed: %w", err)
	}

	storageEndpoint := cfg.S3PublicEndpoint
	if storageEndpoint == "" {
		storageEndpoint = cfg.S3Endpoint
	}

	srv := server.New(server.Config{
		DB:              db.Pool,
		Pinger:          db,
		StorePinger:     storePinger,
		Sessions:        provider,
		Identity:        idp,
		Backend:         backend.New(cfg.BackendBaseURL, upstream),
		Covers:          recordings.NewCoverResolver(store, cfg.CoverMode),
		Renderer:        renderer,
		Registry:        reg,
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: storageEndpoint,
		FollowStrategy:  cfg.FollowStrategy,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("streamcatch listening", "port", cfg.Port, "follow_strategy", cfg.FollowStrategy)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-shutdownCh:
	}
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

// newSessionStore picks Redis when REDIS_URL is set and the in-process store
// otherwise. The returned pinger is nil for the in-process store.
func newSessionStore(cfg *config.Config) (session.Store, server.Pinger, error) {
	if cfg.RedisURL == "" {
		slog.Info("session store: in-memory")
		return session.NewMemoryStore(cfg.SessionMaxAge, clockwork.NewRealClock()), nil, nil
	}

	rdb, err := session.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	key, err := hex.DecodeString(cfg.SessionEncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decode session encryption key: %w", err)
	}
	sealer, err := session.NewSealer(key)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("session store: redis", "encrypted", sealer != nil)
	store := session.NewRedisStore(rdb, sealer, cfg.SessionMaxAge)
	return store, store, nil
}
