package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/cache"
	"github.com/faithboy007/world-conquest-veterinary-home/catalog"
	"github.com/faithboy007/world-conquest-veterinary-home/checkout"
	"github.com/faithboy007/world-conquest-veterinary-home/circuitbreaker"
	"github.com/faithboy007/world-conquest-veterinary-home/config"
	"github.com/faithboy007/world-conquest-veterinary-home/database"
	checkoutgrpc "github.com/faithboy007/world-conquest-veterinary-home/grpc"
	"github.com/faithboy007/world-conquest-veterinary-home/handlers"
	"github.com/faithboy007/world-conquest-veterinary-home/kafka"
	"github.com/faithboy007/world-conquest-veterinary-home/middleware"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"
	"github.com/faithboy007/world-conquest-veterinary-home/paystack"
	"github.com/faithboy007/world-conquest-veterinary-home/validation"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Initialize database
	db, err := database.InitDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Initialize Redis cache
	redisClient, err := cache.InitRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}

	// Initialize Kafka producer and consumer
	producer, err := kafka.InitProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	consumer, err := kafka.InitConsumer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}

	grpcServer := checkoutgrpc.NewServer(logger)

	publisher := kafka.NewPublisher(producer, cfg.Kafka.EventsTopic, logger)
	pending := payment.NewPending(payment.WithTTL(cfg.Paystack.PendingTTL))
	paystackBreaker := circuitbreaker.NewCircuitBreaker(
		cfg.Paystack.BreakerMaxFailures,
		cfg.Paystack.BreakerReset,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			grpcServer.SetServing(checkoutgrpc.PaystackService, to != circuitbreaker.StateOpen)
		}),
	)
	paystackClient := paystack.NewClient(cfg.Paystack, paystackBreaker, pending, logger)
	if cfg.Paystack.SecretKey == "" {
		logger.Warn("PAYSTACK_SECRET_KEY is not set; checkout will report the payment system as loading")
	}

	registry := checkout.NewRegistry(checkout.Deps{
		Validator:           validation.New(),
		Handoff:             payment.NewHandoff(paystackClient, publisher, logger),
		Events:              publisher,
		Logger:              logger,
		PublicKey:           cfg.Paystack.PublicKey,
		Currency:            cfg.Paystack.Currency,
		ReferencePrefix:     cfg.Checkout.ReferencePrefix,
		NotificationDisplay: cfg.Checkout.NotificationDisplay,
		NotificationFade:    cfg.Checkout.NotificationFade,
		ContactSendDelay:    cfg.Checkout.ContactSendDelay,
		SessionIdleTTL:      cfg.Checkout.SessionIdleTTL,
	})

	store := catalog.NewStore(
		db,
		cache.NewProductCache(redisClient, cfg.Redis.TTL),
		circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger,
	)

	// Start Kafka consumer in background
	go func() {
		if err := kafka.StartConsumer(ctx, consumer, cfg.Kafka.PaymentsTopic, pending, logger); err != nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	// Reclaim abandoned sessions and payments
	if cfg.Checkout.SweepInterval <= 0 {
		logger.Fatal("CHECKOUT_SWEEP_INTERVAL must be positive")
	}
	go func() {
		ticker := time.NewTicker(cfg.Checkout.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				registry.Sweep(ctx)
				paystackClient.Expire()
			}
		}
	}()

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	adminHandler := handlers.NewAdminHandler(cfg.Admin, logger)
	router.POST("/admin/login", adminHandler.Login)

	catalogHandler := handlers.NewCatalogHandler(store, logger)
	router.GET("/products", catalogHandler.GetProducts)
	router.GET("/products/:sku", catalogHandler.GetProduct)
	router.POST("/products", middleware.AuthMiddleware([]byte(cfg.Admin.JWTSecret)), catalogHandler.UpsertProduct)

	sessionHandler := handlers.NewSessionHandler(registry, store, paystackClient, logger)
	paymentHandler := handlers.NewPaymentHandler(registry, pending, paystackClient, logger)
	sessions := router.Group("/sessions")
	{
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.DELETE("/:id", sessionHandler.EndSession)
		sessions.GET("/:id/notifications", sessionHandler.GetNotifications)
		sessions.POST("/:id/checkout", sessionHandler.OpenCheckout)
		sessions.DELETE("/:id/checkout", sessionHandler.CloseCheckout)
		sessions.POST("/:id/checkout/:modal/submit", sessionHandler.Submit)
		sessions.POST("/:id/checkout/:modal/events", sessionHandler.DispatchEvent)
		sessions.POST("/:id/contact", sessionHandler.SubmitContact)
		sessions.POST("/:id/newsletter", sessionHandler.Subscribe)
		sessions.POST("/:id/payments/:reference/cancel", paymentHandler.CancelPayment)
	}

	router.POST("/webhooks/paystack", paymentHandler.PaystackWebhook)

	// Start REST server
	restSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Checkout Service REST API started", zap.String("port", cfg.HTTPPort))

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	logger.Info("Checkout Service gRPC server started", zap.String("port", cfg.GRPCPort))

	gracefulShutdown(cfg.ShutdownTimeout, restSrv, grpcServer, registry, stop, producer, consumer, db, redisClient, shutdownTracing, logger)
}

// gracefulShutdown handles SIGINT/SIGTERM and shuts down all services gracefully
func gracefulShutdown(
	timeout time.Duration,
	restSrv *http.Server,
	grpcServer *checkoutgrpc.Server,
	registry *checkout.Registry,
	stopConsumer context.CancelFunc,
	producer sarama.SyncProducer,
	consumer sarama.Consumer,
	db *sql.DB,
	redisClient *redis.Client,
	shutdownTracing func(),
	logger *zap.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop REST server
	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("REST server stopped gracefully")
	}

	// Stop gRPC server
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped gracefully")

	// Tear down every open page so no notification timer fires after exit
	registry.Close(ctx)

	stopConsumer()
	if err := consumer.Close(); err != nil {
		logger.Error("Failed to close Kafka consumer", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		logger.Error("Failed to close Kafka producer", zap.Error(err))
	}

	// Close database
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	} else {
		logger.Info("Database connection closed gracefully")
	}

	// Close Redis cache
	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis cache", zap.Error(err))
	} else {
		logger.Info("Redis cache closed gracefully")
	}

	// Shutdown tracing
	shutdownTracing()
	logger.Info("Checkout Service exited gracefully")
}
