// consentd is the consent gating service for AI agents acting on behalf of
// one person toward another. main only wires dependencies; business logic
// lives in the internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"consentd/internal/audit"
	"consentd/internal/consent/handler"
	"consentd/internal/consent/service"
	"consentd/internal/consent/store"
	"consentd/internal/dispatch"
	"consentd/internal/platform/auth"
	"consentd/internal/platform/config"
	"consentd/internal/platform/database"
	"consentd/internal/platform/health"
	"consentd/internal/platform/kafka/producer"
	"consentd/internal/platform/logger"
	"consentd/internal/platform/metrics"
	"consentd/internal/platform/middleware"
	"consentd/internal/platform/redis"
	httptransport "consentd/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing consentd",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	m := metrics.New()
	healthHandler := health.New(cfg.Environment)

	// Storage: Postgres when configured, in-memory otherwise.
	pool, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	var st store.Store
	if pool != nil {
		defer pool.Close() //nolint:errcheck
		st = store.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(checkCtx)
		})
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewInMemory()
	}

	// Audit fan-out: durable rows are written by the store; the publisher only
	// handles the Kafka copy, so running without brokers is safe.
	var sink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := producer.New(producer.Config{
			Brokers:         strings.Join(cfg.Kafka.Brokers, ","),
			Acks:            "all",
			Retries:         3,
			DeliveryTimeout: 30 * time.Second,
		}, log)
		if err != nil {
			return err
		}
		defer kafkaProducer.Close() //nolint:errcheck
		sink = audit.NewKafkaSink(kafkaProducer, cfg.Kafka.Topic)
		healthHandler.RegisterCheck("kafka", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(checkCtx) {
				return errors.New("kafka unreachable")
			}
			return nil
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, audit fan-out disabled")
	}
	auditor := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditor.Close()

	serviceOpts := []service.Option{
		service.WithMetrics(m),
		service.WithConsentBaseURL(cfg.ConsentBaseURL),
		service.WithDispatchTimeout(cfg.DispatchTimeout),
		service.WithCheckCacheTTL(cfg.CheckCacheTTL),
	}

	// Check cache: optional accelerator, the store stays authoritative.
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		serviceOpts = append(serviceOpts, service.WithCheckCache(redis.NewCheckCache(redisClient, log)))
		healthHandler.RegisterCheck("redis", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(checkCtx)
		})
	}

	svc := service.NewService(st, buildDispatcher(cfg, log), auditor, log, serviceOpts...)

	consentHandler := handler.New(svc, cfg.Environment, log)

	var validator middleware.BearerValidator
	if cfg.JWTSecret != "" {
		validator = auth.NewHMACValidator([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Consent:         consentHandler,
		Health:          healthHandler,
		Metrics:         m,
		APIKeys:         cfg.APIKeys,
		BearerValidator: validator,
		AdminToken:      cfg.AdminToken,
		Logger:          log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Expiry reconciliation. Reads stay correct without it; this keeps stored
	// rows and audit trails in line with what readers already observe.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				reconciled, err := svc.ReconcileExpired(ctx, cfg.ReconcileBatch)
				if err != nil {
					log.ErrorContext(ctx, "expiry reconciliation failed", "error", err)
					continue
				}
				if reconciled > 0 {
					log.InfoContext(ctx, "reconciled expired grants", "count", reconciled)
				}
			}
		}
	})

	if redisClient != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					redisClient.RecordPoolStats()
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// buildDispatcher selects message providers from configuration. Outside
// production a missing provider falls back to a logging no-op so the full
// lifecycle stays exercisable locally.
func buildDispatcher(cfg config.Config, log *slog.Logger) *dispatch.Router {
	var sms, email dispatch.Dispatcher

	if cfg.Twilio.AccountSID != "" {
		sms = dispatch.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, cfg.DispatchTimeout)
	}
	if cfg.SendGrid.APIKey != "" {
		email = dispatch.NewSendGrid(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.DispatchTimeout)
	}

	if !cfg.IsProduction() {
		noop := dispatch.NewNoop(log)
		if sms == nil {
			sms = noop
		}
		if email == nil {
			email = noop
		}
	}

	return dispatch.NewRouter(sms, email)
}
