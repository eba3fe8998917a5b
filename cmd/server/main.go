// Command server runs the registration session service: the HTTP API, the
// Prometheus metrics endpoint, and the wiring between the orchestrator, the
// rate limiter, the session store, and the upstream facades.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"enroll/internal/directory"
	"enroll/internal/notify"
	"enroll/internal/platform/config"
	"enroll/internal/platform/httpserver"
	"enroll/internal/platform/logger"
	platformredis "enroll/internal/platform/redis"
	ratelimitmetrics "enroll/internal/ratelimit/metrics"
	ratelimitmodels "enroll/internal/ratelimit/models"
	ratelimit "enroll/internal/ratelimit/service"
	"enroll/internal/registration/code"
	"enroll/internal/registration/handler"
	registrationmetrics "enroll/internal/registration/metrics"
	"enroll/internal/registration/ports"
	"enroll/internal/registration/service"
	sessionstore "enroll/internal/registration/store/session"
	httptransport "enroll/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	sessions, cleanup, err := buildSessionStore(cfg, log)
	if err != nil {
		log.Error("session store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	limits, err := ratelimit.New(rateLimitConfig(cfg.RateLimits),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimitmetrics.New()),
	)
	if err != nil {
		log.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}

	codes, err := code.NewManager(cfg.Registration.CodeLength, cfg.Registration.VerificationTimeout)
	if err != nil {
		log.Error("code manager init failed", "error", err)
		os.Exit(1)
	}

	orchestrator, err := service.New(
		service.Config{
			VerifyAttempts:  cfg.Registration.VerifyAttempts,
			CreationScope:   cfg.RateLimits.SessionCreation.Scope,
			UpstreamTimeout: cfg.Registration.UpstreamTimeout,
		},
		directory.NewClient(cfg.Directory),
		notify.NewClient(cfg.Delivery),
		sessions,
		limits,
		codes,
		service.WithLogger(log),
		service.WithMetrics(registrationmetrics.New()),
	)
	if err != nil {
		log.Error("orchestrator init failed", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(handler.New(orchestrator, log), log)
	apiServer := httpserver.New(cfg.Server.Addr, router, cfg.Server)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := httpserver.New(cfg.Server.MetricsAddr, metricsMux, cfg.Server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting API server", "addr", cfg.Server.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		log.Info("starting metrics server", "addr", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// buildSessionStore picks the store backend: Redis when configured, Postgres
// as the second choice, and the in-memory store for local development.
func buildSessionStore(cfg config.Config, log *slog.Logger) (ports.SessionStore, func(), error) {
	if cfg.Redis.URL != "" {
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis session store")
		store := sessionstore.NewRedisStore(client.Client, cfg.Registration.SessionRetention)
		return store, func() { _ = client.Close() }, nil
	}

	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("using postgres session store")
		return sessionstore.NewPostgresStore(db), func() { _ = db.Close() }, nil
	}

	log.Info("using in-memory session store")
	return sessionstore.NewInMemoryStore(), func() {}, nil
}

// rateLimitConfig maps the process configuration onto the limiter's policy
// table.
func rateLimitConfig(rl config.RateLimits) ratelimitmodels.Config {
	return ratelimitmodels.Config{
		SessionCreation: ratelimitmodels.BucketConfig{
			MaxCapacity:        rl.SessionCreation.MaxCapacity,
			LeakRate:           rl.SessionCreation.LeakRate,
			RegenerationPeriod: rl.SessionCreation.RegenerationPeriod,
			MinDelay:           rl.SessionCreation.MinDelay,
			InitialTokens:      rl.SessionCreation.InitialTokens,
		},
		CheckCode: ratelimitmodels.CooldownConfig{
			Delay: rl.CheckVerificationCode.Delay,
		},
		SendSMS: ratelimitmodels.CooldownConfig{
			Delay: rl.SendSMSVerificationCode.Delay,
		},
		SendVoice: ratelimitmodels.VoiceConfig{
			Delay:              rl.SendVoiceVerificationCode.Delay,
			DelayAfterFirstSMS: rl.SendVoiceVerificationCode.DelayAfterFirstSMS,
			MaxAttempts:        rl.SendVoiceVerificationCode.MaxAttempts,
		},
	}
}
