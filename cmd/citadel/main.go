package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/citadel/pkg/api"
	"github.com/platinummonkey/citadel/pkg/audit"
	"github.com/platinummonkey/citadel/pkg/config"
	"github.com/platinummonkey/citadel/pkg/observability"
	"github.com/platinummonkey/citadel/pkg/policy"
	"github.com/platinummonkey/citadel/pkg/realm"
	"github.com/platinummonkey/citadel/pkg/resource"
	"github.com/platinummonkey/citadel/pkg/security"
	"github.com/platinummonkey/citadel/pkg/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := os.MkdirAll(cfg.Storage.Root, 0755); err != nil {
		logger.WithError(err).Error("failed to create data root")
		os.Exit(1)
	}

	// Realm selection. The SQL provider is always registered; the default
	// realm needs no provider.
	realm.Register(&realm.SQLProvider{})
	rlm, err := realm.NewSelector(cfg.Security.Realm, cfg.Section("realm")).Realm()
	if err != nil {
		logger.WithError(err).Error("failed to initialize realm")
		os.Exit(1)
	}
	logger.WithField("realm", rlm.Identifier()).Info("realm initialized")

	// Token service. A failure to draw key material aborts startup.
	tokens, err := token.NewSelector(cfg.Security.TokenService, cfg.Section("token"), cfg.Security.TokenTTL).Service()
	if err != nil {
		logger.WithError(err).Error("failed to initialize token service")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	var redisClient *redis.Client
	var bans security.BanTracker
	if cfg.Security.BanTracker == "redis" {
		opts, err := redis.ParseURL(cfg.Security.RedisURL)
		if err != nil {
			logger.WithError(err).Error("invalid redis URL")
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		bans = security.NewRedisBanTracker(redisClient, cfg.Security.Bans, logger)
	} else {
		bans = security.NewMemoryBanTracker(cfg.Security.Bans)
	}

	var auditor audit.Logger = audit.NopLogger{}
	if cfg.Storage.AuditDir != "" {
		auditor, err = audit.NewFileLogger(cfg.Storage.AuditDir)
		if err != nil {
			logger.WithError(err).Error("failed to initialize audit logger")
			os.Exit(1)
		}
	}

	store, err := resource.NewFileStore(cfg.Storage.DescriptorDir, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize descriptor store")
		os.Exit(1)
	}
	if metrics != nil {
		store.SetSkipCallback(metrics.DescriptorLoadErrors.Inc)
	}
	manager := resource.NewManager(store, rlm, logger, metrics)
	manager.SetAuditor(auditor)

	actions := policy.NewRegistry()
	security.RegisterActions(actions)
	if err := resource.RegisterActions(actions); err != nil {
		logger.WithError(err).Error("failed to register resource actions")
		os.Exit(1)
	}
	api.RegisterActions(actions)

	codec := policy.NewCodec()
	policies := policy.NewConfiguration(cfg.Storage.PolicyPath, actions, codec, logger)
	if err := policies.Load(); err != nil {
		logger.WithError(err).Error("failed to load policy configuration")
		os.Exit(1)
	}

	engine := policy.NewEngine(policies, policy.Env{Roles: rlm, Resources: manager}, logger)
	svc := security.NewService(security.ServiceConfig{
		Realm:   rlm,
		Tokens:  tokens,
		Bans:    bans,
		Engine:  engine,
		Auditor: auditor,
		Logger:  logger,
		Metrics: metrics,
	})
	manager.SetGate(svc)

	server := api.NewServer(svc, manager, policies, actions, codec, logger)

	var realmDB *sql.DB
	if sqlRealm, ok := rlm.(*realm.SQLRealm); ok {
		realmDB = sqlRealm.DB()
	}
	health := observability.NewHealthChecker(realmDB, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health/live", health.Liveness)
	healthMux.HandleFunc("/health/ready", health.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
			os.Exit(1)
		}
	}()

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return auditor.Close() })
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error { return redisClient.Close() })
	}
	if realmDB != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error { return realmDB.Close() })
	}

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}
