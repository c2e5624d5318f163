package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"deleonpos/backend/internal/cache"
	"deleonpos/backend/internal/config"
	"deleonpos/backend/internal/httpapi"
	"deleonpos/backend/internal/logging"
	"deleonpos/backend/internal/realtime"
	"deleonpos/backend/internal/service"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/store/memory"
	pgstore "deleonpos/backend/internal/store/postgres"
	"deleonpos/backend/internal/xid"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogPretty)
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	var repo store.Repository
	singleNode := false
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.TenantID)
		singleNode = true
		log.Info().Msg("repository: in-memory")
	}

	hub := realtime.NewHub(32)
	publishers := realtime.MultiPublisher{hub}
	summaryCache := cache.SummaryCache(cache.NoopSummaryCache{})
	if singleNode {
		// The in-memory repository lives in this process, so invalidation is local too.
		summaryCache = cache.NewMemorySummaryCache()
	}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisSummaryCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using local cache and events only")
			_ = client.Close()
		} else {
			summaryCache = redisCache
			relay := realtime.NewRedisRelay(client, hub, xid.New("node"))
			relayOut := realtime.NewAsyncPublisher("redis-relay", relay, 256, 2*time.Second)
			publishers = append(publishers, relayOut)
			go func() {
				if err := relay.Run(runCtx); err != nil {
					log.Error().Err(err).Msg("redis relay stopped")
				}
			}()
			closers = append(closers, func() error { relayOut.Close(); return nil }, client.Close)
			log.Info().Msg("cache: redis, events: redis relay")
		}
	} else if singleNode {
		log.Info().Msg("cache: in-memory")
	} else {
		log.Info().Msg("cache: noop")
	}

	if cfg.AMQPURL != "" {
		amqpPub, err := realtime.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Warn().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		} else {
			amqpOut := realtime.NewAsyncPublisher("amqp", amqpPub, 256, 2*time.Second)
			publishers = append(publishers, amqpOut)
			closers = append(closers, func() error { amqpOut.Close(); amqpPub.Close(); return nil })
			log.Info().Str("exchange", realtime.EventsExchange).Msg("events: rabbitmq")
		}
	}

	svc := service.New(repo, service.Options{
		DefaultTenantID: cfg.TenantID,
		Location:        cfg.Location(),
		TaxRatePercent:  cfg.TaxRatePercent,
		TipRatePercent:  cfg.TipRatePercent,
		SummaryTTL:      time.Duration(cfg.SummaryCacheTTLSeconds) * time.Second,
		Cache:           summaryCache,
		Events:          publishers,
	})
	if cfg.ManagerCode != "" {
		installed, err := svc.EnsureManagerCode(ctx, cfg.TenantID, cfg.ManagerCode)
		if err != nil {
			log.Fatal().Err(err).Msg("manager code bootstrap failed")
		}
		if installed {
			log.Info().Str("tenant_id", cfg.TenantID).Msg("manager code installed from MANAGER_CODE")
		}
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.TenantID, repo)
	api := httpapi.New(svc, auth, hub, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(api.CloseStreams)

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("tenant_id", cfg.TenantID).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	stopRun()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ManagerCode == "" {
		return nil
	}
	if strings.Trim(cfg.ManagerCode, "0123456789") != "" || len(cfg.ManagerCode) > 12 {
		return fmt.Errorf("MANAGER_CODE must be 4 to 12 digits")
	}
	if service.WeakManagerCode(cfg.ManagerCode) {
		return fmt.Errorf("MANAGER_CODE is too weak: use at least 4 digits that are not a run or a repeated digit")
	}
	return nil
}
