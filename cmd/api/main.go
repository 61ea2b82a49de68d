package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/coffeeshop/internal/config"
	"github.com/flicky/coffeeshop/internal/events"
	"github.com/flicky/coffeeshop/internal/handler"
	"github.com/flicky/coffeeshop/internal/repository"
	"github.com/flicky/coffeeshop/internal/service"
	"github.com/flicky/coffeeshop/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		slog.Error("create logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	if cfg.DB.Migrate {
		if err := repository.Migrate(ctx, dbPool); err != nil {
			log.Error("migrate database", "error", err)
			os.Exit(1)
		}
		log.Info("database schema up to date")
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// Events
	notifier := worker.NewNotifier(worker.LogMessenger{Log: log}, redisClient, log)
	var (
		publisher     events.Publisher = events.Nop{}
		brokerCheck   handler.Pinger
		orderWorker   *worker.OrderWorker
		kafkaConsumer *worker.KafkaConsumer
	)
	switch cfg.Events.Broker {
	case config.BrokerAMQP:
		amqpConn, err := amqp.Dial(cfg.Events.RabbitMQURL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		amqpCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer amqpCh.Close()

		if err := worker.SetupRabbitMQ(amqpCh, cfg.Events.Queue); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}

		publisher = events.NewAMQPPublisher(amqpCh, cfg.Events.Queue)
		brokerCheck = events.AMQPCheck{Conn: amqpConn}
		orderWorker = worker.NewOrderWorker(amqpCh, cfg.Events.Queue, notifier, log)
		log.Info("connected to RabbitMQ")
	case config.BrokerKafka:
		brokers := events.SplitBrokers(cfg.Events.KafkaBrokers)
		publisher = events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		brokerCheck = events.KafkaCheck{Brokers: brokers}
		kafkaConsumer = worker.NewKafkaConsumer(brokers, cfg.Events.KafkaTopic, cfg.Events.KafkaGroupID, notifier, log)
	default:
		log.Warn("no event broker configured, lifecycle events are dropped")
	}
	defer publisher.Close()

	// Services
	store := repository.NewStore(dbPool)
	productCache := service.NewProductCache(redisClient)
	orderCfg := service.OrderConfig{
		DeliveryFee:           cfg.Shop.DeliveryFee,
		FreeDeliveryThreshold: cfg.Shop.FreeDeliveryThreshold,
		WelcomeCredit:         cfg.Shop.WelcomeCredit,
		PaymentGrace:          cfg.Shop.PaymentGrace,
	}

	authSvc := service.NewAuthService(store, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(store, productCache)
	cartSvc := service.NewCartService(store, productCache, cfg.Shop.CartReservationTTL, log)
	orderSvc := service.NewOrderService(store, orderCfg, publisher, productCache, log)
	profileSvc := service.NewProfileService(store, orderSvc, cfg.Shop.WelcomeCredit)
	notificationSvc := service.NewNotificationService(store)

	// Router
	router := handler.NewRouter(handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Product:      handler.NewProductHandler(productSvc),
		Cart:         handler.NewCartHandler(cartSvc),
		Order:        handler.NewOrderHandler(orderSvc),
		Profile:      handler.NewProfileHandler(profileSvc, orderSvc),
		Notification: handler.NewNotificationHandler(notificationSvc),
		Health:       handler.NewHealthHandler(dbPool, redisClient, brokerCheck),
	}, handler.RouterConfig{
		JWTSecret:    cfg.JWT.Secret,
		Logger:       log,
		Redis:        redisClient,
		CartLimit:    cfg.RateLimit.CartPerMinute,
		GeneralLimit: cfg.RateLimit.GeneralPerMinute,
	})

	// Workers
	sweeper := worker.NewSweeper(orderSvc, cartSvc, redisClient, cfg.Shop.SweepInterval, cfg.Shop.SweepBatch, log)
	sweeper.Start(ctx)
	if orderWorker != nil {
		if err := orderWorker.Start(ctx); err != nil {
			log.Error("start order worker", "error", err)
			os.Exit(1)
		}
	}
	if kafkaConsumer != nil {
		kafkaConsumer.Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	sweeper.Stop()
	if orderWorker != nil {
		orderWorker.Stop()
	}
	cancel()
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Wait(); err != nil {
			log.Error("close kafka reader", "error", err)
		}
	}
	log.Info("server stopped")
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}
