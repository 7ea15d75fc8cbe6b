package main

import (
	"bidding-service/internal/api/handlers"
	"bidding-service/internal/config"
	"bidding-service/internal/domain"
	"bidding-service/internal/infrastructure/leader"
	"bidding-service/internal/infrastructure/mysql"
	"bidding-service/internal/infrastructure/rabbitmq"
	redisinfra "bidding-service/internal/infrastructure/redis"
	"bidding-service/internal/infrastructure/websocket"
	"bidding-service/internal/services"
	"bidding-service/pkg/logger"
	"bidding-service/pkg/utils"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "config", cfg.GetConfigString())

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Initialize MySQL
	db := utils.InitializeMysql(cfg, log, ctx)
	defer db.Close()

	if err := mysql.EnsureSchema(ctx, db); err != nil {
		log.Error("Failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// Initialize stores
	auctionStore := mysql.NewMySQLAuctionStore(db, cfg.Bidding.MinOpeningBid)
	bidRepo := mysql.NewMySQLBidRepository(db)
	processedEvents := mysql.NewMySQLProcessedEventStore(db)

	// Initialize broker
	broker, err := rabbitmq.NewBroker(cfg.RabbitMQ.URL, log)
	if err != nil {
		log.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}

	for _, queue := range []string{cfg.RabbitMQ.AuctionQueue, cfg.RabbitMQ.BidQueue} {
		if err := broker.DeclareQueue(queue); err != nil {
			log.Error("Failed to declare queue", "queue", queue, "error", err)
			os.Exit(1)
		}
	}

	eventPublisher, err := rabbitmq.NewRabbitEventPublisher(broker,
		cfg.RabbitMQ.BidPlacedQueue, cfg.RabbitMQ.FinishedQueue, log)
	if err != nil {
		log.Error("Failed to initialize event publisher", "error", err)
		os.Exit(1)
	}

	deadLetters, err := rabbitmq.NewDeadLetterPublisher(broker, cfg.RabbitMQ.DeadLetterQueue, log)
	if err != nil {
		log.Error("Failed to initialize dead letter publisher", "error", err)
		os.Exit(1)
	}

	// Initialize caches and leader election
	stateCache := redisinfra.NewRedisStateCache(rdb)
	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL)

	// Initialize websocket fan-out
	connManager := websocket.NewConnectionManager(log)
	broadcaster := websocket.NewNotifier(connManager)

	// Initialize services
	projector := services.NewAuctionProjector(auctionStore, stateCache, log)
	bidService := services.NewBidService(
		auctionStore,
		bidRepo,
		processedEvents,
		eventPublisher,
		broadcaster,
		stateCache,
		log,
	)
	finalizer := services.NewFinalizer(
		auctionStore,
		eventPublisher,
		stateCache,
		broadcaster,
		connManager,
		leaderElection,
		cfg.Instance.ID,
		cfg.Finalizer.SweepInterval,
		log,
	)

	dispatcher := services.NewDispatcher(log)
	dispatcher.Register(domain.EventAuctionCreated, projector.HandleAuctionCreated)
	dispatcher.Register(domain.EventBidRequested, bidService.HandleBidRequested)

	consumer := rabbitmq.NewConsumer(
		broker,
		deadLetters,
		log,
		cfg.Consumer.Workers,
		cfg.Consumer.MaxRetries,
		cfg.Consumer.RetryBackoff,
		cfg.Consumer.HandleTimeout,
	)

	// Start consumers
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	for _, queue := range []string{cfg.RabbitMQ.AuctionQueue, cfg.RabbitMQ.BidQueue} {
		if err := consumer.Start(consumerCtx, queue, dispatcher.Handle); err != nil {
			log.Error("Failed to start consumer", "queue", queue, "error", err)
			os.Exit(1)
		}
	}

	// Start finalizer sweep
	if err := finalizer.Start(context.Background()); err != nil {
		log.Error("Failed to start finalizer", "error", err)
		os.Exit(1)
	}

	// Try to become leader; the loop stops before leadership is released
	leaderCtx, stopLeadership := context.WithCancel(context.Background())
	defer stopLeadership()
	go services.MaintainLeadership(leaderCtx, leaderElection, cfg.Instance.ID, 10*time.Second, log)

	// Setup HTTP API
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	bidHandler := handlers.NewBidHandler(bidService, log)
	wsHandler := handlers.NewWebSocketHandler(bidService, connManager, log)

	api := e.Group("/api/v1")
	api.POST("/auctions/:id/bids", bidHandler.PlaceBid)
	api.GET("/auctions/:id", bidHandler.GetAuction)
	api.GET("/auctions/:id/bids", bidHandler.GetBidHistory)

	e.GET("/ws/auctions/:id", wsHandler.HandleConnection)

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("Starting bidding service", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop taking new messages, finish in-flight ones
	stopConsumers()
	consumer.Wait()

	// Stop the sweep and hand leadership back
	finalizer.Stop()
	stopLeadership()
	leaderElection.ReleaseLeadership(shutdownCtx, cfg.Instance.ID)

	// Close broker after the last in-flight publish
	broker.Close()

	// Shutdown HTTP server
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Bidding service stopped")
}
