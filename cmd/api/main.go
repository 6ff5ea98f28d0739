package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/database"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
	"github.com/noah-isme/gema-chat/internal/router"
	"github.com/noah-isme/gema-chat/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PostgresOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set; unread counts are served from the database and cross-node relay over redis is disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := realtime.NewRegistry(realtime.RegistryOptions{SendBuffer: cfg.RealtimeSendBuffer}, logger)
	relay := realtime.NewRelay(redisClient, natsConn, cfg.RealtimeChannelBase, logger)
	bus := realtime.NewBus(registry, relay, logger)
	if err := bus.Start(ctx); err != nil {
		log.Fatalf("failed to start realtime relay: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	scopeRepo := repository.NewScopeRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, scopeRepo, bus, service.NotificationOptions{
		Redis:    redisClient,
		KeyBase:  cfg.RealtimeChannelBase,
		CacheTTL: cfg.UnreadCacheTTL,
	}, validate, logger)
	messageService := service.NewMessageService(messageRepo, reactionRepo, scopeRepo, notificationService, bus, validate, service.MessageOptions{
		MaxLength: cfg.MessageMaxLength,
	}, logger)
	reactionService := service.NewReactionService(reactionRepo, messageRepo, scopeRepo, bus, validate, logger)
	memberService := service.NewMemberService(scopeRepo, validate, logger)
	conversationService := service.NewConversationService(scopeRepo, validate, logger)
	sessionService := service.NewSessionService(registry, bus, scopeRepo, validate, cfg.RealtimePingInterval, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AccessLog,
	})
	router.Register(app, cfg, router.Dependencies{
		MessageHandler:      handler.NewMessageHandler(messageService, logger),
		ReactionHandler:     handler.NewReactionHandler(reactionService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		MemberHandler:       handler.NewMemberHandler(memberService, conversationService, logger),
		RealtimeHandler:     handler.NewRealtimeHandler(sessionService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		PostLimiter:         middleware.RateLimit("chat-write", cfg.MessagesPerMinute, time.Minute),
		HealthProbes:        healthProbes(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancel, cfg.ShutdownTimeout)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return errors.New(natsConn.Status().String())
				}
				return nil
			},
		})
	}
	return probes
}

func waitForShutdown(app *fiber.App, stopRealtime context.CancelFunc, timeout time.Duration) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	stopRealtime()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
