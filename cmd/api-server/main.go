package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var version = "dev"

func main() {
	boot := logging.New("prod", "info", "api-server")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("store", cfg.StoreDriver).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.OpenStore(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store connection error")
	}
	defer store.Close()
	log.Info().Str("store", cfg.StoreDriver).Msg("store ready")

	var (
		locker     redisclient.Locker
		redisCheck api.Check
	)
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisPractitionerLocker(rdb, cfg.LockTTL, cfg.LockWait)
		redisCheck = redisPing(rdb)
		log.Info().Msg("connected to Redis")
	}

	svc := appointment.NewService(store.Repository, locker, cfg, log)

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		Health:    api.NewHealthHandler(store.Driver, store.Ping, redisCheck, cfg.Env, version),
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

func redisPing(rdb *redis.Client) api.Check {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
