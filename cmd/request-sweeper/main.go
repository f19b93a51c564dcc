package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func main() {
	boot := logging.New("prod", "info", "request-sweeper")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "request-sweeper")
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("request-sweeper starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.OpenStore(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store connection error")
	}
	defer store.Close()

	var locker redisclient.Locker
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
		log.Info().Msg("connected to Redis")
	}

	svc := appointment.NewService(store.Repository, locker, cfg, log)

	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping request-sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CancelStaleRequests(runCtx, start.UTC())
	if err != nil {
		log.Error().Err(err).Int("cancelled", n).Msg("sweep run error")
		return
	}
	log.Info().Int("cancelled", n).Dur("took", time.Since(start)).Msg("sweep run complete")
}
