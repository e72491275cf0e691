package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/alerts"
	"github.com/eldtechnologies/simpleremote/internal/api"
	"github.com/eldtechnologies/simpleremote/internal/api/middleware"
	"github.com/eldtechnologies/simpleremote/internal/auth"
	"github.com/eldtechnologies/simpleremote/internal/bridge"
	"github.com/eldtechnologies/simpleremote/internal/config"
	"github.com/eldtechnologies/simpleremote/internal/configpatch"
	"github.com/eldtechnologies/simpleremote/internal/handlers"
	"github.com/eldtechnologies/simpleremote/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Audit log: PostgreSQL when configured, SQLite otherwise
	var audit store.AuditLog
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		audit = pgStore
		logger.Info().Msg("audit log in PostgreSQL")
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("cannot create data dir")
		}
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.AuditDBPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		audit = sqliteStore
		logger.Info().Str("path", cfg.AuditDBPath).Msg("audit log in SQLite")
	}
	defer audit.Close()

	// Redis backs sessions and rate limits when configured
	var (
		redisStore *store.RedisStore
		sessions   auth.SessionStore
		counter    middleware.Counter
	)
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		sessions = auth.NewRedisSessions(redisStore, cfg.SessionTTL)
		counter = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		sessions = auth.NewMemorySessions(cfg.SessionTTL)
	}

	b := bridge.New(bridge.NewBus(), logger, cfg.ReloadURL)

	// Alert queue, restored from disk
	queueFile := store.NewQueueFile(cfg.QueueFile(), logger)
	engine := alerts.NewEngine(queueFile.Load(), alerts.Options{
		MaxQueue:  cfg.MaxQueue,
		Display:   cfg.DisplayDuration(),
		Slack:     cfg.TickSlack,
		Persister: queueFile,
		Notifier:  b,
		Logger:    logger,
	})
	engine.Start()
	defer engine.Close()

	schemas := configpatch.NewSchemas(cfg.SchemaDir, logger)
	if err := schemas.Watch(); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.SchemaDir).Msg("schema directory not watched")
	}
	defer schemas.Close()

	editor := configpatch.NewService(configpatch.Options{
		Path:        cfg.MirrorConfigPath,
		EvalTimeout: cfg.ConfigEvalTimeout,
		Schemas:     schemas,
		Notifier:    b,
		Logger:      logger,
	})

	verifier := auth.NewVerifier(cfg.AdminUser, cfg.AdminPassHash)
	if !verifier.Configured() {
		logger.Warn().Msg("SR_ADMIN_USER / SR_ADMIN_PASS_HASH not set, every login will fail")
	}
	if cfg.ExternalKey == "" {
		logger.Warn().Msg("SR_EXTERNAL_KEY not set, external submissions are disabled")
	}

	h := handlers.NewHandler(handlers.Deps{
		Alerts:       engine,
		Config:       editor,
		Events:       b,
		Sessions:     sessions,
		Verifier:     verifier,
		Audit:        audit,
		Redis:        redisStore,
		Logger:       logger,
		CookiePath:   cfg.BasePath,
		CookieSecure: cfg.CookieSecure,
	})

	// Create router
	router := api.NewRouter(api.Options{
		BasePath:           cfg.BasePath,
		ExternalKey:        cfg.ExternalKey,
		CookieSecure:       cfg.CookieSecure,
		DisplayWhitelist:   cfg.DisplayWhitelist,
		RateLimitWhitelist: cfg.RateLimitWhitelist,
		Handler:            h,
		Sessions:           sessions,
		Counter:            counter,
		Logger:             logger,
	})

	// Create server
	srv := api.NewServer(":"+cfg.Port, router)

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("base_path", cfg.BasePath).
			Int("queued", len(engine.Snapshot().Queue)).
			Msg("starting SimpleRemote server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("sd_notify failed")
	} else if ok {
		logger.Debug().Msg("notified systemd")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
