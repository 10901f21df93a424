// Command server runs the Lifeline HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/clock"
	"github.com/tbourn/lifeline-backend/internal/config"
	httpapi "github.com/tbourn/lifeline-backend/internal/http"
	"github.com/tbourn/lifeline-backend/internal/observability"
	"github.com/tbourn/lifeline-backend/internal/push"
	"github.com/tbourn/lifeline-backend/internal/realtime"
	"github.com/tbourn/lifeline-backend/internal/repo"
	"github.com/tbourn/lifeline-backend/internal/services"
	"github.com/tbourn/lifeline-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("otel shutdown")
			}
		}()
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	events := realtime.NewRouter(realtime.Options{
		Buffer:    cfg.Realtime.Buffer,
		Heartbeat: cfg.Realtime.Heartbeat,
	})
	defer events.Close()
	go events.Run(ctx)

	if cfg.Realtime.RedisURL != "" {
		client, err := startRelay(ctx, cfg.Realtime, events)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	provider := push.New(push.Config{
		Endpoint:  cfg.Push.Endpoint,
		ServerKey: cfg.Push.ServerKey,
		Timeout:   cfg.Push.Timeout,
		Retries:   cfg.Push.Retries,
	})

	deps, err := httpapi.NewDeps(db, events, provider, cfg)
	if err != nil {
		return err
	}

	sweeper := &services.ExpirySweeper{
		DB:       db,
		Events:   events,
		Clock:    clock.Real{},
		Interval: cfg.Match.SweepInterval,
	}
	go sweeper.Run(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Streams never finish on their own; closing the router ends them.
	events.Close()
	return srv.Shutdown(sctx)
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func startRelay(ctx context.Context, cfg config.RealtimeConfig, events *realtime.Router) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	relay, err := realtime.NewRedisRelay(client, cfg.RedisChannel, events)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error().Err(err).Msg("realtime relay stopped")
		}
	}()
	log.Info().Str("channel", cfg.RedisChannel).Msg("realtime relay enabled")
	return client, nil
}
