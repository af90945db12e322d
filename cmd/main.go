package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-host-service/internal/cache"
	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/database"
	"portfolio-host-service/internal/events"
	"portfolio-host-service/internal/handlers"
	"portfolio-host-service/internal/metrics"
	"portfolio-host-service/internal/repository"
	"portfolio-host-service/internal/services"
	"portfolio-host-service/internal/workers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
)

// localCacheSize bounds the in-process host cache used when Redis is unreachable
const localCacheSize = 10000

func main() {
	// Initialize logging
	initLogging()

	log.Info().Msg("Starting portfolio-host-service")

	// Load configuration
	cfg := config.NewConfig()

	// Initialize database
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	readiness := map[string]handlers.Pinger{
		"database": database.NewChecker(db),
	}

	// Host cache: shared Redis when reachable, otherwise per-replica memory
	redisClient := initRedis(cfg)
	var hostCache cache.HostCache
	if redisClient != nil {
		redisCache := cache.NewRedisHostCache(redisClient, cfg.Cache.KeyPrefix)
		hostCache = redisCache
		readiness["cache"] = redisCache
	} else {
		log.Warn().Msg("Using in-process host cache")
		hostCache = cache.NewMemoryHostCache(localCacheSize)
	}

	// Repositories
	tenantRepo := repository.NewTenantRepository(db)
	bindingRepo := repository.NewBindingRepository(db)
	billingEventRepo := repository.NewBillingEventRepository(db)

	// NATS: cache fan-out, content mutations and domain events
	var (
		natsConn        *nats.Conn
		invalidationBus *events.InvalidationBus
		broadcaster     services.InvalidationBroadcaster
		bindingPub      *events.BindingPublisher
	)
	if cfg.NATS.URL != "" {
		natsConn, err = events.Connect(cfg.NATS.URL, "portfolio-host-service")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, cross-replica invalidation disabled")
		} else {
			invalidationBus = events.NewInvalidationBus(natsConn, cfg.NATS.InvalidationSubject)
			broadcaster = invalidationBus
		}

		bindingPub, err = events.NewBindingPublisher(cfg, newLogrusLogger(cfg))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize NATS publisher, events will not be published")
		} else {
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS event publisher initialized")
		}
	} else {
		log.Warn().Msg("NATS URL not configured, event publishing and cross-replica invalidation disabled")
	}

	// Provider clients
	validator := services.NewDomainValidator(cfg)

	var edge services.EdgeProvider
	if cfg.Edge.Enabled {
		edge = clients.NewCloudflareSaaSClient(cfg.Edge, m)
		log.Info().Msg("Cloudflare for SaaS custom hostnames enabled")
	} else {
		edge = services.NewDNSEdgeProvider(validator)
		log.Info().Msg("Edge provider disabled, verifying custom domains by DNS")
	}

	billingClient := clients.NewStripeBillingClient(cfg.Billing, m)
	renderCache := clients.NewRenderCacheClient(cfg.Render, m)
	if !renderCache.Enabled() {
		log.Warn().Msg("Render revalidate URL not configured, page purges disabled")
	}

	// Services
	invalidator := services.NewInvalidationCoordinator(hostCache, renderCache, broadcaster, m)
	directory := services.NewTenantDirectory(tenantRepo, validator, invalidator)
	entitlements := services.NewEntitlementService(tenantRepo, billingEventRepo, billingClient, invalidator, m, cfg.Billing.Timeout)
	binder := services.NewBindingService(cfg, bindingRepo, tenantRepo, directory, validator, edge, bindingPub, m)
	resolver := services.NewHostResolver(cfg, tenantRepo, hostCache, m)

	// Subscribers
	var mutations *events.MutationSubscriber
	if invalidationBus != nil {
		if err := invalidationBus.Listen(invalidator); err != nil {
			log.Warn().Err(err).Msg("Failed to subscribe to cache invalidations")
		}

		mutations, err = events.NewMutationSubscriber(natsConn, cfg.NATS, directory)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create mutation subscriber")
		} else if err := mutations.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start mutation subscriber")
			mutations = nil
		}
	}

	// Handlers
	domainHandlers := handlers.NewDomainHandlers(binder)
	tenantHandlers := handlers.NewTenantHandlers(directory, entitlements)
	billingHandlers := handlers.NewBillingHandlers(billingClient, entitlements)
	internalHandlers := handlers.NewInternalHandlers(resolver, directory, entitlements, readiness)

	// Create router
	router := setupRouter(cfg)
	handlers.RegisterRoutes(router, domainHandlers, tenantHandlers, billingHandlers, internalHandlers)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startWorkers(ctx, cfg, binder, entitlements, bindingRepo, billingEventRepo)

	// Start server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel context to stop workers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if mutations != nil {
		mutations.Stop()
	}
	if invalidationBus != nil {
		invalidationBus.Stop()
	}
	if natsConn != nil {
		natsConn.Close()
	}
	bindingPub.Close()

	// Close database connection
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	log.Info().Msg("Server exited")
}

func initLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Use JSON logging in production
	if os.Getenv("GIN_MODE") == "release" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// newLogrusLogger builds the logger the shared event publisher expects
func newLogrusLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "release" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func initRedis(cfg *config.Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse Redis URL, using defaults")
		opt = &redis.Options{
			Addr: fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		}
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis")
		client.Close()
		return nil
	}

	log.Info().Msg("Connected to Redis")
	return client
}

func setupRouter(cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	// The admin UI is served from the primary domain; the gateway handles
	// CORS for everything else
	allowedOrigins := []string{
		"https://" + cfg.Platform.PrimaryDomain,
		"https://app." + cfg.Platform.PrimaryDomain,
	}
	allowedOrigins = append(allowedOrigins, cfg.Server.AllowedOrigins...)

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Tenant-ID", "X-User-ID", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		event := log.Info()
		if path == "/health" || path == "/ready" || path == "/metrics" {
			event = log.Debug()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func startWorkers(
	ctx context.Context,
	cfg *config.Config,
	binder *services.BindingService,
	entitlements *services.EntitlementService,
	bindingRepo *repository.BindingRepository,
	billingEventRepo *repository.BillingEventRepository,
) {
	verificationWorker := workers.NewVerificationWorker(cfg, binder)
	go verificationWorker.Start(ctx)

	expiryWorker := workers.NewExpiryWorker(cfg, entitlements)
	go expiryWorker.Start(ctx)

	cleanupWorker := workers.NewCleanupWorker(cfg, binder, bindingRepo, billingEventRepo)
	go cleanupWorker.Start(ctx)

	log.Info().Msg("Background workers started")
}
