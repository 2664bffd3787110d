package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	inventoryapp "github.com/stockledger/backend/internal/application/inventory"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/infrastructure/audit"
	"github.com/stockledger/backend/internal/infrastructure/config"
	"github.com/stockledger/backend/internal/infrastructure/event"
	"github.com/stockledger/backend/internal/infrastructure/logger"
	"github.com/stockledger/backend/internal/infrastructure/persistence"
	"github.com/stockledger/backend/internal/interfaces/http/handler"
	"github.com/stockledger/backend/internal/interfaces/http/middleware"
	"github.com/stockledger/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting StockLedger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Run schema migration
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Transactional repository scope; every movement commits its
	// snapshot update, cost layer changes and ledger entry atomically
	scope := persistence.NewGormTransactionScope(db.DB)
	keys := inventoryapp.NewKeyedMutex()

	// Initialize event bus and handlers
	eventBus := event.NewInMemoryEventBus(log)

	reorderAlertHandler := inventoryapp.NewReorderAlertHandler(log).
		WithNotifier(inventoryapp.NewLoggingReorderAlertNotifier(log))
	eventBus.Subscribe(reorderAlertHandler)
	log.Info("Event handlers registered",
		zap.Strings("reorder_alert_events", reorderAlertHandler.EventTypes()),
	)

	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Audit trail sink
	auditSink := audit.NewZapAuditSink(log)

	// Initialize application services
	overagePolicy := inventory.OverageCostPolicy(cfg.Inventory.OverageCostPolicy)

	movementService := inventoryapp.NewMovementService(scope, keys, log)
	movementService.SetEventPublisher(eventBus)
	movementService.SetAuditSink(auditSink)
	if err := movementService.SetOveragePolicy(overagePolicy); err != nil {
		log.Fatal("Invalid overage cost policy", zap.String("policy", cfg.Inventory.OverageCostPolicy))
	}

	transferService := inventoryapp.NewTransferService(scope, keys, log)
	transferService.SetEventPublisher(eventBus)
	transferService.SetAuditSink(auditSink)

	stocktakeService := inventoryapp.NewStocktakeService(scope, keys, log)
	stocktakeService.SetEventPublisher(eventBus)
	stocktakeService.SetAuditSink(auditSink)
	if err := stocktakeService.SetOveragePolicy(overagePolicy); err != nil {
		log.Fatal("Invalid overage cost policy", zap.String("policy", cfg.Inventory.OverageCostPolicy))
	}

	// Initialize HTTP handlers
	inventoryHandler := handler.NewInventoryHandler(movementService, transferService)
	stocktakeHandler := handler.NewStocktakeHandler(stocktakeService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, "/health"))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS())

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(inventoryHandler).
		Register(stocktakeHandler).
		Register(systemHandler)
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
