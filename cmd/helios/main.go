package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/helios-iam/helios-iam/internal/app"
	"github.com/helios-iam/helios-iam/internal/assignments"
	"github.com/helios-iam/helios-iam/internal/audit"
	"github.com/helios-iam/helios-iam/internal/authz"
	"github.com/helios-iam/helios-iam/internal/bootstrap"
	"github.com/helios-iam/helios-iam/internal/observability"
	"github.com/helios-iam/helios-iam/internal/permissions"
	"github.com/helios-iam/helios-iam/internal/platform/cache"
	"github.com/helios-iam/helios-iam/internal/platform/db"
	"github.com/helios-iam/helios-iam/internal/roles"
	"github.com/helios-iam/helios-iam/internal/users"
	"github.com/helios-iam/helios-iam/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	seeder := bootstrap.NewSeeder(pool, logger)
	if err := seeder.Run(ctx, bootstrap.AdminAccount{
		Email:     cfg.BootstrapAdminEmail,
		Password:  cfg.BootstrapAdminPassword,
		FirstName: cfg.BootstrapAdminFirstName,
		LastName:  cfg.BootstrapAdminLastName,
	}); err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	authzCache := authz.NewCache(redisClient, cfg.AuthzCacheTTL)
	authzRepo := authz.NewRepository(pool)
	authzService := authz.NewService(authzRepo, authzCache, metrics)
	if err := authzService.RequireSystemRoles(ctx, bootstrap.SystemRoleNames()); err != nil {
		logger.Error("verify system roles", slog.Any("error", err))
		os.Exit(1)
	}
	authzMiddleware := authz.Middleware{Service: authzService, Logger: logger, Observer: metrics}

	auditWriter := audit.NewWriter(pool, logger)
	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, authzMiddleware)

	permissionsRepo := permissions.NewRepository(pool, auditWriter)
	permissionsService := permissions.NewService(permissionsRepo)
	permissionsHandler := permissions.NewHandler(logger, permissionsService, authzMiddleware)

	rolesRepo := roles.NewRepository(pool, auditWriter)
	rolesService := roles.NewService(rolesRepo, authzCache)
	rolesHandler := roles.NewHandler(logger, rolesService, authzMiddleware)

	assignmentsRepo := assignments.NewRepository(pool, auditWriter)
	assignmentsService := assignments.NewService(assignmentsRepo, authzCache)

	usersRepo := users.NewRepository(pool, auditWriter)
	usersService := users.NewService(usersRepo, authzCache)
	usersHandler := users.NewHandler(logger, usersService, assignmentsService, authzMiddleware)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		PermissionsHandler: permissionsHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
