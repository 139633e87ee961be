package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/smartattend/integrity-api/api/swagger"
	"github.com/smartattend/integrity-api/internal/dto"
	"github.com/smartattend/integrity-api/internal/handler"
	"github.com/smartattend/integrity-api/internal/middleware"
	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/repository"
	"github.com/smartattend/integrity-api/internal/service"
	"github.com/smartattend/integrity-api/migrations"
	"github.com/smartattend/integrity-api/pkg/cache"
	"github.com/smartattend/integrity-api/pkg/config"
	"github.com/smartattend/integrity-api/pkg/database"
	"github.com/smartattend/integrity-api/pkg/logger"
	corsmiddleware "github.com/smartattend/integrity-api/pkg/middleware/cors"
	reqidmiddleware "github.com/smartattend/integrity-api/pkg/middleware/requestid"
	"github.com/smartattend/integrity-api/pkg/storage"
)

// @title SmartAttend Integrity API
// @version 1.0.0
// @description Attendance state machine, immutable audit ledger and clock drift protection
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := migrations.Up(rootCtx, db.DB); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient, redisErr := cache.NewRedis(cfg.Redis); redisErr != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", redisErr)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Flags.CacheTTL, logr, true)
	}

	ledgerRepo := repository.NewLedgerRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	flagRepo := repository.NewFlagRepository(db)
	driftRepo := repository.NewDriftRepository(db)

	driftSvc := service.NewDriftService(cfg.Drift, cfg.Storage, driftRepo, cacheSvc, metricsSvc, logr)
	driftSvc.Start(rootCtx)

	clockSvc := service.NewClockService(cfg.Clock, driftSvc, metricsSvc, logr)
	tokenSvc := service.NewTokenService(cfg.JWT)
	ledgerSvc := service.NewLedgerService(cfg.Storage, ledgerRepo, clockSvc, metricsSvc, logr)
	integritySvc := service.NewIntegrityService(cfg.Ledger, cfg.Storage, ledgerRepo, clockSvc, metricsSvc, service.LogAlertSink{Logger: logr}, logr)
	integritySvc.StartSweeper(rootCtx)
	flagSvc := service.NewFlagService(cfg.Flags, cfg.Storage, flagRepo, attendanceRepo, ledgerSvc, cacheSvc, metricsSvc, logr)
	attendanceSvc, err := service.NewAttendanceService(cfg.Attendance, cfg.Storage, attendanceRepo, ledgerSvc, clockSvc, flagSvc, metricsSvc, logr)
	if err != nil {
		logr.Sugar().Fatalw("invalid attendance transition overrides", "error", err)
	}

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(cfg.Exports, cfg.APIPrefix, ledgerSvc, exportStore, exportSigner, nil, nil, logr)
	exportSvc.StartCleanup(rootCtx)

	dto.RegisterValidations()

	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc)
	integrityHandler := handler.NewIntegrityHandler(integritySvc)
	flagHandler := handler.NewFlagHandler(flagSvc)
	driftHandler := handler.NewDriftHandler(driftSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleFaculty, models.RoleHR)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	superadmin := middleware.RequireRoles(models.RoleSuperAdmin)

	attendance := api.Group("/attendance")
	{
		attendance.POST("/check-ins", staff, attendanceHandler.CheckIn)
		attendance.GET("/records", attendanceHandler.List)
		attendance.GET("/records/:id", attendanceHandler.Get)
		attendance.POST("/records/:id/transition", staff, attendanceHandler.Transition)
	}

	ledger := api.Group("/ledger")
	{
		ledger.POST("/entries", admins, ledgerHandler.Append)
		ledger.GET("/entries", ledgerHandler.Query)
		ledger.GET("/entries/:id/verify", superadmin, integrityHandler.VerifyEntry)
		ledger.GET("/resources/:type/:id", admins, ledgerHandler.ResourceHistory)
		ledger.POST("/verify-sweep", superadmin, integrityHandler.Sweep)
		ledger.POST("/exports", admins, exportHandler.Create)
	}

	// Downloads are authorized by the signed token alone, so the route
	// lives outside the JWT group.
	r.GET(cfg.APIPrefix+"/export/:token", exportHandler.Download)

	flags := api.Group("/flags")
	{
		flags.POST("", staff, flagHandler.Raise)
		flags.GET("", flagHandler.List)
		flags.POST("/:id/resolve", admins, flagHandler.Resolve)
	}

	drift := api.Group("/drift")
	{
		drift.GET("/events", driftHandler.Events)
		drift.GET("/stats", driftHandler.Stats)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Sugar().Infow("shutdown signal received")

	// Stop the sweeper ticker and the drift queue context before draining
	// in-flight HTTP requests.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}

	driftSvc.Stop()
	logr.Sugar().Infow("server stopped")
}
