package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/auth"
	"github.com/svcgateway/svcgw/internal/authz"
	"github.com/svcgateway/svcgw/internal/backend"
	"github.com/svcgateway/svcgw/internal/cache"
	"github.com/svcgateway/svcgw/internal/circuitbreaker"
	"github.com/svcgateway/svcgw/internal/config"
	"github.com/svcgateway/svcgw/internal/gateway"
	"github.com/svcgateway/svcgw/internal/health"
	"github.com/svcgateway/svcgw/internal/observability"
	"github.com/svcgateway/svcgw/internal/proxy"
	"github.com/svcgateway/svcgw/internal/ratelimit"
	"github.com/svcgateway/svcgw/internal/router"
	"github.com/svcgateway/svcgw/internal/security"
)

// application holds all gateway components.
type application struct {
	config   *config.GatewayConfig
	logger   *zap.Logger
	tracer   *observability.Tracer
	selector *backend.Selector
	router   *router.Router
	breakers *circuitbreaker.Registry
	cache    cache.Cache
	checker  *backend.HealthChecker
	server   *gateway.Server
}

// newApplication wires all gateway components from configuration.
func newApplication(ctx context.Context, cfg *config.GatewayConfig, logger *zap.Logger) (*application, error) {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "svcgw",
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	revocation := newRevocationList(cfg)

	validator, err := auth.NewValidator(ctx, &cfg.Identity,
		auth.WithValidatorLogger(logger),
		auth.WithRevocationList(revocation),
	)
	if err != nil {
		return nil, fmt.Errorf("init token validator: %w", err)
	}

	limiter, err := ratelimit.NewLimiter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	respCache, err := cache.New(&cfg.Cache, &cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	admission, err := security.NewAdmission(security.AdmissionConfig{
		AllowedIPs:     cfg.Security.AllowedIPs,
		AllowedOrigins: cfg.Security.AllowedOrigins,
		MaxPayloadSize: cfg.Security.MaxPayloadSize,
		TrustedProxies: cfg.Security.TrustedProxies,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init admission: %w", err)
	}

	selector, rtr, err := buildServices(cfg.Services)
	if err != nil {
		return nil, err
	}

	breakers := circuitbreaker.NewRegistry(&circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.EffectiveFailureThreshold(),
		RecoveryTimeout:  cfg.CircuitBreaker.EffectiveRecoveryTimeout(),
	}, logger)

	forwarder := proxy.NewForwarder(cfg.Forward.EffectiveTimeout(),
		proxy.WithForwardLogger(logger),
	)

	pipeline := gateway.NewPipeline(gateway.PipelineConfig{
		Admission: admission,
		Validator: validator,
		Guard:     authz.DefaultGuard(),
		Limiter:   limiter,
		Router:    rtr,
		Breakers:  breakers,
		Cache:     respCache,
		Policy:    cache.NewPolicy(cfg.Cache.CacheablePrefixes),
		Forwarder: forwarder,
		CacheTTL:  cfg.Cache.EffectiveTTL(),
		Logger:    logger,
	})

	server := gateway.NewServer(gateway.ServerOptions{
		Config:         &cfg.Server,
		Pipeline:       pipeline,
		Health:         health.NewHandler(selector, version),
		Revocation:     revocation,
		AllowedOrigins: cfg.Security.AllowedOrigins,
		Logger:         logger,
	})

	app := &application{
		config:   cfg,
		logger:   logger,
		tracer:   tracer,
		selector: selector,
		router:   rtr,
		breakers: breakers,
		cache:    respCache,
		server:   server,
	}

	if checkerCfg, enabled := healthCheckerConfig(cfg, logger); enabled {
		app.checker = backend.NewHealthChecker(selector, checkerCfg)
	}

	return app, nil
}

// Start launches background components. The HTTP server is started
// separately so its error is observable.
func (app *application) Start(ctx context.Context) {
	if app.checker != nil {
		app.checker.Start(ctx)
	}
}

// Stop shuts all components down.
func (app *application) Stop(ctx context.Context) {
	if err := app.server.Stop(ctx); err != nil {
		app.logger.Error("failed to stop server", zap.Error(err))
	}

	if app.checker != nil {
		app.checker.Stop()
	}

	if err := app.cache.Close(); err != nil {
		app.logger.Error("failed to close cache", zap.Error(err))
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		app.logger.Error("failed to shutdown tracer", zap.Error(err))
	}
}

// Reload applies a changed configuration. Only the service topology is
// swapped live; other settings require a restart.
func (app *application) Reload(newCfg *config.GatewayConfig) {
	selector, rtr, err := buildServices(newCfg.Services)
	if err != nil {
		app.logger.Error("reload rejected", zap.Error(err))
		return
	}

	app.selector.Replace(selector.Services())
	app.router.Replace(rtr.Services())

	// Breakers for removed services are dropped so a re-added service
	// starts closed.
	known := make(map[string]bool, len(newCfg.Services))
	for _, svc := range newCfg.Services {
		known[svc.Name] = true
	}
	for _, cb := range app.breakers.List() {
		if !known[cb.Name()] {
			app.breakers.Remove(cb.Name())
		}
	}

	app.logger.Info("service topology reloaded",
		zap.Int("services", len(newCfg.Services)),
	)
}

// buildServices constructs the selector and router from configuration.
func buildServices(services []config.ServiceConfig) (*backend.Selector, *router.Router, error) {
	selector := backend.NewSelector()
	rtr := router.New()

	for _, svcCfg := range services {
		svc, err := backend.NewService(svcCfg.Name, svcCfg.PathPrefix, svcCfg.Instances)
		if err != nil {
			return nil, nil, fmt.Errorf("service %q: %w", svcCfg.Name, err)
		}
		selector.Register(svc)
		rtr.Register(svc)
	}

	return selector, rtr, nil
}

// newRevocationList picks the revocation store. Redis keeps replicas
// in sync; without it revocations are process-local.
func newRevocationList(cfg *config.GatewayConfig) auth.RevocationList {
	if cfg.Redis.Address == "" {
		return auth.NewMemoryRevocationList()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout.Duration(),
		ReadTimeout:  cfg.Redis.ReadTimeout.Duration(),
		WriteTimeout: cfg.Redis.WriteTimeout.Duration(),
	})

	return auth.NewRedisRevocationList(client, "")
}

// healthCheckerConfig derives health checker settings from the first
// service that enables probing. All instances share one checker.
func healthCheckerConfig(cfg *config.GatewayConfig, logger *zap.Logger) (backend.HealthCheckerConfig, bool) {
	for _, svc := range cfg.Services {
		if svc.HealthPath == "" {
			continue
		}
		return backend.HealthCheckerConfig{
			HealthPath: svc.HealthPath,
			Interval:   svc.HealthInterval.Duration(),
			Logger:     logger,
		}, true
	}
	return backend.HealthCheckerConfig{}, false
}
