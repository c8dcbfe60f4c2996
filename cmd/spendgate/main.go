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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/config"
	"github.com/spendgate/spendgate/internal/db"
	dbMemory "github.com/spendgate/spendgate/internal/db/memory"
	dbRedis "github.com/spendgate/spendgate/internal/db/redis"
	"github.com/spendgate/spendgate/internal/domain"
	logpkg "github.com/spendgate/spendgate/internal/logger"
	"github.com/spendgate/spendgate/internal/metrics"
	killrepo "github.com/spendgate/spendgate/internal/repository/killswitch"
	ledgerrepo "github.com/spendgate/spendgate/internal/repository/ledger"
	chiTransport "github.com/spendgate/spendgate/internal/transport/chi"
	"github.com/spendgate/spendgate/internal/transport/provider"
	breakeruc "github.com/spendgate/spendgate/internal/usecase/breaker"
	estimatoruc "github.com/spendgate/spendgate/internal/usecase/estimator"
	guarduc "github.com/spendgate/spendgate/internal/usecase/guard"
	healthuc "github.com/spendgate/spendgate/internal/usecase/health"
	killswitchuc "github.com/spendgate/spendgate/internal/usecase/killswitch"
	ledgeruc "github.com/spendgate/spendgate/internal/usecase/ledger"
	ratelimituc "github.com/spendgate/spendgate/internal/usecase/ratelimit"
	usageuc "github.com/spendgate/spendgate/internal/usecase/usage"
	"github.com/spendgate/spendgate/internal/version"
)

// Counter retention: daily keys live 48h, monthly keys two full months.
const (
	dailyTTL   = 48 * time.Hour
	monthlyTTL = 62 * 24 * time.Hour
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting spendgate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Create database store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
	case "memory":
		store = dbMemory.NewStore()
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register enforcement metrics explicitly (no init())
	metrics.RegisterEnforcementMetrics()

	// Create repositories
	ledgerRepo := ledgerrepo.New(store, cfg.Storage.KeyPrefix, dailyTTL, monthlyTTL)
	killRepo := killrepo.New(store, cfg.Storage.KeyPrefix)

	// Cost estimator with the fixed price table from config
	prices := make(map[domain.Provider]float64, len(cfg.Estimator.Providers))
	for name, pc := range cfg.Estimator.Providers {
		prices[domain.Provider(name)] = pc.EURPerToken
	}
	estimatorSvc := estimatoruc.New(estimatoruc.Config{
		EURPerToken:     prices,
		DefaultProvider: domain.Provider(cfg.Estimator.DefaultProvider),
		DefaultTokens:   cfg.Estimator.DefaultTokens,
		Multiplier:      cfg.Estimator.DirectorMultiplier,
	})

	// Budget ledger, per-org limits resolved from config
	ledgerSvc := ledgeruc.New(ledgerRepo, ledgeruc.LimitResolverFunc(func(orgID string) ledgeruc.Limits {
		b := cfg.Budget.Default
		if org, ok := cfg.Budget.Orgs[orgID]; ok {
			b = org
		}
		return ledgeruc.Limits{DailyEUR: b.DailyLimitEUR, MonthlyEUR: b.MonthlyLimitEUR}
	})).WithTimeout(time.Duration(cfg.Storage.TimeoutMS) * time.Millisecond)

	// Kill-switch controller with write-through to the store; flags for
	// configured orgs are loaded at startup.
	orgScopes := make([]string, 0, len(cfg.Budget.Orgs))
	for org := range cfg.Budget.Orgs {
		orgScopes = append(orgScopes, org)
	}
	killSvc := killswitchuc.New(logger).WithStore(ctx, killRepo, orgScopes)

	// Rate limiter: fixed windows per tier
	tiers := make(map[string]ratelimituc.Tier, len(cfg.RateLimit.Tiers))
	for name, tc := range cfg.RateLimit.Tiers {
		tiers[name] = ratelimituc.Tier{
			Name:   name,
			Limit:  tc.MaxRequests,
			Window: time.Duration(tc.WindowMS) * time.Millisecond,
		}
	}
	limiter := ratelimituc.New(ratelimituc.Config{
		Tiers:       tiers,
		DefaultTier: cfg.RateLimit.DefaultTier,
		OrgTiers:    cfg.RateLimit.OrgTiers,
	})

	// Circuit breaker registry for downstream providers
	circuits := breakeruc.New(breakeruc.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		BaseBackoff:      time.Duration(cfg.Breaker.BaseBackoffMS) * time.Millisecond,
		MaxBackoff:       time.Duration(cfg.Breaker.MaxBackoffMS) * time.Millisecond,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}, logger)

	// Enforcement guard: the admission pipeline
	guardSvc := guarduc.New(estimatorSvc, ledgerSvc, killSvc, limiter,
		guarduc.PolicyResolverFunc(func(orgID string) guarduc.Policy {
			b := cfg.Budget.Default
			if org, ok := cfg.Budget.Orgs[orgID]; ok {
				b = org
			}
			return guarduc.Policy{
				PerRequestLimitEUR:     b.PerRequestLimitEUR,
				ActivationThresholdPct: b.ActivationThresholdPct,
			}
		}), logger)

	usageSvc := usageuc.New(ledgerSvc, killSvc)

	// Downstream provider callers; only providers with an endpoint are wired
	callers := make(map[domain.Provider]domain.AgentCaller)
	providerChecks := make(map[string]healthuc.ProviderChecker)
	for name, pc := range cfg.Estimator.Providers {
		if pc.BaseURL == "" {
			continue
		}
		callerCfg := &provider.Config{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
			Logger:  logger,
		}
		var caller *provider.Caller
		switch domain.Provider(name) {
		case domain.ProviderAzure:
			caller = provider.NewAzure(callerCfg)
		case domain.ProviderLocal:
			caller = provider.NewLocal(callerCfg)
		default:
			logger.Warn("Skipping unknown provider", zap.String("provider", name))
			continue
		}
		callers[domain.Provider(name)] = caller
		providerChecks[name] = caller
		logger.Info("Provider caller created",
			zap.String("provider", name),
			zap.String("model", pc.Model),
		)
	}

	healthSvc := healthuc.New(store, providerChecks)

	// Create chi server
	server := chiTransport.NewServer(guardSvc, usageSvc, killSvc, circuits, callers, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
