package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-business-hub/internal/config"
	"go-business-hub/internal/database"
	"go-business-hub/internal/event"
	"go-business-hub/internal/handler"
	"go-business-hub/internal/middleware"
	"go-business-hub/internal/repository"
	"go-business-hub/internal/revocation"
	"go-business-hub/internal/router"
	"go-business-hub/internal/service"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{db: db}
	a.onCleanup(db.Close)

	if err := db.EnsureSchema(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	accessRepo := repository.NewAccessRepository(pool)
	companyRepo := repository.NewCompanyRepository(pool)
	tokenRepo := repository.NewRefreshTokenRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	slog.Info("database ready")
	if cfg.TrustProxyHeaders {
		slog.Info("trusting forwarded client headers", "proxies", cfg.TrustedProxies)
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.onCleanup(func() { _ = redisClient.Close() })
	}

	issuer, err := service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL, nil)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	slog.Info("token issuer ready", "issuer", cfg.JWTIssuer, "access_ttl", issuer.AccessTTL(), "refresh_ttl", cfg.JWTRefreshTTL)

	var revoked revocation.List
	if cfg.RevocationBackend == config.BackendRedis {
		revoked = revocation.NewRedisList(redisClient, "revoked")
	} else {
		memory := revocation.NewMemoryList()
		sweepCtx, sweepCancel := context.WithCancel(context.Background())
		go memory.StartSweeper(sweepCtx, cfg.BlacklistSweepInterval)
		a.onCleanup(memory.Close)
		a.onCleanup(sweepCancel)
		revoked = memory
	}
	slog.Info("revocation list ready", "backend", cfg.RevocationBackend)

	var limitStore middleware.LimitStore = middleware.NewMemoryLimitStore()
	if cfg.RateLimitBackend == config.BackendRedis {
		limitStore = middleware.NewRedisLimitStore(redisClient, "ratelimit")
	}

	bus := event.NewBus()
	auditService := service.NewAuditService(auditRepo)
	a.onCleanup(auditService.Start(bus))

	authService := service.NewAuthService(userRepo, accessRepo, companyRepo, tokenRepo,
		revocation.Guarded(revoked, issuer), issuer, bus, service.AuthConfig{
			RefreshTTL:        cfg.JWTRefreshTTL,
			BcryptCost:        cfg.BcryptCost,
			HashConcurrency:   cfg.PasswordHashConcurrency,
			SeedAdminUsername: cfg.SeedAdminUsername,
			SeedAdminPassword: cfg.SeedAdminPassword,
			SeedCompanyName:   cfg.SeedCompanyName,
		})
	if err := authService.EnsureDefaultAdmin(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to seed default administrator: %w", err)
	}

	userService := service.NewUserService(userRepo, accessRepo, tokenRepo, bus)
	rbacService := service.NewRBACService(accessRepo, companyRepo)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	go service.NewTokenJanitor(tokenRepo).StartCleanupTicker(janitorCtx, cfg.BlacklistSweepInterval)
	a.onCleanup(janitorCancel)

	appRouter := router.New(cfg,
		middleware.NewAuthMiddleware(authService, cfg.JWTHeader, cfg.JWTPrefix),
		middleware.NewRateLimitMiddleware(middleware.RateLimits{
			GeneralRPM: cfg.RateLimitRPM,
			LoginRPM:   cfg.LoginRateLimitRPM,
			RefreshRPM: cfg.RefreshRateLimitRPM,
		}, limitStore),
		router.Handlers{
			Auth:  handler.NewAuthHandler(authService),
			User:  handler.NewUserHandler(userService),
			RBAC:  handler.NewRBACHandler(rbacService),
			Audit: handler.NewAuditHandler(auditService),
		},
		db.Health,
	)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("redis connected", "addr", opts.Addr)
	return client, nil
}

func (a *App) onCleanup(fn func()) {
	a.cleanupFuncs = append(a.cleanupFuncs, fn)
}

// cleanup runs registered functions in reverse order of registration.
func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
