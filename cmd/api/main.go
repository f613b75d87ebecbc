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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "recon-dashboard/docs"
	"recon-dashboard/internal/config"
	"recon-dashboard/internal/handler"
	"recon-dashboard/internal/lock"
	"recon-dashboard/internal/metrics"
	"recon-dashboard/internal/middleware"
	"recon-dashboard/internal/ocr"
	"recon-dashboard/internal/parser"
	"recon-dashboard/internal/repository"
	"recon-dashboard/internal/service"
	"recon-dashboard/internal/store"
	"recon-dashboard/internal/store/memory"
	"recon-dashboard/internal/store/redisstore"
	"recon-dashboard/internal/store/sqlstore"
	"recon-dashboard/internal/txindex"
	"recon-dashboard/pkg/logger"
)

// @title Reconciliation Dashboard API
// @version 1.0
// @description API for reconciling user-submitted bills against merchant settlement data
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@recon-dashboard.local

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.LogLevel)
	logger.GetLogger().Info("Starting Reconciliation Dashboard Service")

	matching, err := config.LoadMatchingConfig()
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to load matching configuration")
	}

	ids, err := store.NewIDGenerator(cfg.App.NodeID)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to create id generator")
	}

	// Connect to the document store
	db, locker, err := openStore(cfg, ids)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to open store")
	}
	defer db.Close()

	logger.GetLogger().WithField("backend", cfg.App.StoreBackend).Info("Store connection established")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Initialize repositories
	billRepo := repository.NewBillRepository(db)
	merchantRepo := repository.NewMerchantTransactionRepository(db, cfg.App.BatchSize)
	reportRepo := repository.NewReportRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	index := txindex.New(db)

	if cfg.OCR.Endpoint == "" {
		logger.GetLogger().Warn("OCR_ENDPOINT is not set, image submissions will fail")
	}
	extractor := ocr.NewHTTPExtractor(cfg.OCR.Endpoint, cfg.OCR.APIKey, cfg.OCR.Timeout)

	// Initialize services
	billService := service.NewBillService(billRepo, merchantRepo, reportRepo, index, extractor, matching, m, cfg.OCR.Timeout)
	reportService := service.NewReportService(billRepo, merchantRepo, reportRepo, index, matching, m)
	merchantService := service.NewMerchantImportService(
		merchantRepo, reportRepo, index, locker, matching, m,
		parser.Options{PhoneRegion: cfg.App.PhoneRegion},
		cfg.App.BatchSize,
	)
	paymentService := service.NewPaymentService(db, paymentRepo, reportRepo, billRepo, merchantRepo, reportService, m)

	// Initialize handlers
	handlers := handler.Handlers{
		Bills:     handler.NewBillHandler(billService),
		Merchants: handler.NewMerchantHandler(merchantService, cfg.App.ImportDir),
		Reports:   handler.NewReportHandler(reportService),
		Payments:  handler.NewPaymentHandler(paymentService),
	}

	// Setup router
	router := setupRouter(handlers, registry)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.GetLogger().WithField("address", addr).Info("Server starting")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-sigCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.GetLogger().WithError(err).Error("Server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.GetLogger().WithError(err).Error("Graceful shutdown failed")
	}
	logger.GetLogger().Info("Server stopped")
}

// openStore connects the configured backend. Redis deployments share admin
// locks through redis; the others lock in-process.
func openStore(cfg *config.Config, ids *store.IDGenerator) (store.Store, lock.Locker, error) {
	switch cfg.App.StoreBackend {
	case config.BackendSQL:
		s, err := sqlstore.Open(sqlstore.Config{
			Dialect:      cfg.Database.Dialect,
			DSN:          cfg.Database.DSN(),
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		}, ids)
		if err != nil {
			return nil, nil, err
		}
		return s, lock.NewLocalLocker(), nil

	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rdb, err := redisstore.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(rdb, cfg.Redis.Prefix, ids), lock.NewRedisLocker(rdb, cfg.Redis.Prefix), nil

	default:
		logger.GetLogger().Warn("Using the in-memory store, data is lost on restart")
		return memory.New(ids), lock.NewLocalLocker(), nil
	}
}

func setupRouter(handlers handler.Handlers, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.NoRoute(middleware.NoRoute())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 routes
	handler.RegisterRoutes(router.Group("/api/v1"), handlers)

	return router
}
