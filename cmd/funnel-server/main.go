// cmd/funnel-server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lead-funnel/internal/api"
	"lead-funnel/internal/common/auth"
	"lead-funnel/internal/common/aws"
	"lead-funnel/internal/common/config"
	"lead-funnel/internal/common/database"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/observability"
	"lead-funnel/internal/common/zoho"
	"lead-funnel/internal/outbox"
	"lead-funnel/internal/ratelimit"
	"lead-funnel/internal/store"
	"lead-funnel/pkg/registry"

	createaffiliate "lead-funnel/internal/workers/affiliate/create-affiliate"
	applycommission "lead-funnel/internal/workers/attribution/apply-commission"
	createleadrecord "lead-funnel/internal/workers/intake/create-lead-record"
	validateleadintake "lead-funnel/internal/workers/intake/validate-lead-intake"
	transitionleadstatus "lead-funnel/internal/workers/lifecycle/transition-lead-status"
	computeleadstats "lead-funnel/internal/workers/reporting/compute-lead-stats"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// engine holds the operation handlers shared by the HTTP API, the outbox and
// the optional Zeebe workers.
type engine struct {
	validate   *validateleadintake.Handler
	submit     *createleadrecord.Handler
	signUp     *createaffiliate.Handler
	transition *transitionleadstatus.Handler
	commission *applycommission.Handler
	stats      *computeleadstats.Handler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting lead funnel server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.Observability.ServiceName)
	defer obs.Shutdown()
	if cfg.Observability.Tracing.Enabled {
		if err := obs.EnableTracing(cfg.Observability.Tracing.Endpoint); err != nil {
			zapLog.Warn("tracing disabled", zap.Error(err))
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
	}

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry failed to load", zap.Error(err))
	}

	leads := store.NewLeadRepository(pg)
	affiliates := store.NewAffiliateRepository(pg)
	ledger := store.NewCommissionRepository(pg)
	statsRepo := store.NewStatsRepository(pg)
	events := store.NewOutboxRepository(pg)

	// --- Outbox sinks: the commission engine always runs first ---
	eng := &engine{}
	eng.commission = applycommission.NewHandler(applycommission.LoadConfig(cfg.Attribution), ledger, affiliates, log)
	sinks := []outbox.Sink{outbox.NewCommissionSink(eng.commission)}
	sinks = append(sinks, optionalSinks(ctx, cfg, zapLog)...)

	settings := outbox.SettingsFrom(cfg.Outbox)
	dispatcher := outbox.NewDispatcher(events, settings, log, sinks...)

	// --- Engine operations ---
	validateCfg, err := validateleadintake.LoadConfig(reg)
	if err != nil {
		zapLog.Fatal("validate-lead-intake config", zap.Error(err))
	}
	if eng.validate, err = validateleadintake.NewHandler(validateCfg, log); err != nil {
		zapLog.Fatal("validate-lead-intake handler", zap.Error(err))
	}
	eng.submit = createleadrecord.NewHandler(createleadrecord.LoadConfig(cfg.Attribution), eng.validate, affiliates, leads, dispatcher, log)

	signUpCfg, err := createaffiliate.LoadConfig(reg, cfg.Attribution)
	if err != nil {
		zapLog.Fatal("create-affiliate config", zap.Error(err))
	}
	if eng.signUp, err = createaffiliate.NewHandler(signUpCfg, affiliates, log); err != nil {
		zapLog.Fatal("create-affiliate handler", zap.Error(err))
	}

	transitionCfg, err := transitionleadstatus.LoadConfig(reg)
	if err != nil {
		zapLog.Fatal("transition-lead-status config", zap.Error(err))
	}
	if eng.transition, err = transitionleadstatus.NewHandler(transitionCfg, leads, dispatcher, log); err != nil {
		zapLog.Fatal("transition-lead-status handler", zap.Error(err))
	}
	eng.stats = computeleadstats.NewHandler(computeleadstats.LoadConfig(cfg.Stats), statsRepo, log)

	// --- HTTP API ---
	deps := api.Deps{
		Submit:       eng.submit,
		SignUp:       eng.signUp,
		Transitions:  eng.transition,
		Stats:        eng.stats,
		Payouts:      eng.commission,
		Leads:        leads,
		Affiliates:   affiliates,
		RequiredRole: cfg.Auth.Keycloak.RequiredRole,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if deps.Proxies, err = ratelimit.ParseProxies(cfg.RateLimit.TrustedProxies); err != nil {
		zapLog.Fatal("rate_limit.trusted_proxies", zap.Error(err))
	}
	if cfg.RateLimit.Enabled {
		deps.Limiter = ratelimit.New(rdb.Client, cfg.RateLimit, log)
	}
	if cfg.Auth.Keycloak.Enabled {
		deps.Tokens = auth.NewKeycloakFromConfig(cfg.Auth.Keycloak)
	} else {
		zapLog.Warn("operator authentication disabled; admin routes are open")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewServer(deps, log).Routes(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		IdleTimeout:  config.GetDuration(cfg.Server.IdleTimeout),
	}
	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Outbox relay ---
	relay := outbox.NewRelay(events, dispatcher, settings, obs, log)
	relayDone := make(chan struct{})
	if cfg.Outbox.Enabled {
		go func() {
			defer close(relayDone)
			relay.Run(ctx)
		}()
	} else {
		close(relayDone)
		zapLog.Warn("outbox relay disabled; events are only delivered inline")
	}

	// --- Zeebe workers ---
	stopWorkers := startWorkers(cfg, reg, eng, zapLog, log)

	// --- Health, readiness and metrics ---
	opsServer := &http.Server{
		Addr:    cfg.Server.MetricsAddress,
		Handler: opsMux(pg, rdb, relay),
	}
	go func() {
		zapLog.Info("Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")

	shutdownTimeout := config.GetDuration(cfg.Server.ShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown", zap.Error(err))
	}
	stopWorkers()
	stop()
	<-relayDone
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("metrics server shutdown", zap.Error(err))
	}

	zapLog.Info("Lead funnel server stopped")
}

// optionalSinks builds the external outbox sinks that are switched on in
// config. A sink that cannot be built is left out and logged.
func optionalSinks(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) []outbox.Sink {
	var sinks []outbox.Sink

	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err := retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Error("elasticsearch sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, outbox.NewSearchSink(esClient.Client, esClient.Index))
			zapLog.Info("Elasticsearch sink enabled", zap.String("index", esClient.Index))
		}
	}

	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SNS.TopicARN)
		if err != nil {
			zapLog.Error("sns sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, outbox.NewSNSSink(snsClient))
			zapLog.Info("SNS sink enabled", zap.String("topicArn", cfg.Integrations.AWS.SNS.TopicARN))
		}
	}

	if cfg.Integrations.Zoho.Enabled {
		crm := zoho.NewCRMClient(
			cfg.Integrations.Zoho.BaseURL,
			cfg.Integrations.Zoho.AuthToken,
			config.GetDuration(cfg.Integrations.Zoho.Timeout),
		)
		sinks = append(sinks, outbox.NewCRMSink(crm))
		zapLog.Info("Zoho CRM sink enabled")
	}

	return sinks
}

func opsMux(pg *database.PostgresClient, rdb *database.RedisClient, relay *outbox.Relay) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := pg.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		body := map[string]interface{}{"checks": checks}
		if n, err := relay.Backlog(ctx); err == nil {
			body["outboxBacklog"] = n
		}
		if status == http.StatusOK {
			body["status"] = "ready"
		} else {
			body["status"] = "not_ready"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
