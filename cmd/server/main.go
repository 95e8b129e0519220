package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/salachat/internal/api"
	"github.com/lalith-99/salachat/internal/config"
	"github.com/lalith-99/salachat/internal/db"
	"github.com/lalith-99/salachat/internal/middleware"
	"github.com/lalith-99/salachat/internal/observ"
	"github.com/lalith-99/salachat/internal/pubsub"
	"github.com/lalith-99/salachat/internal/realtime"
	"github.com/lalith-99/salachat/internal/repository/postgres"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Connect to Postgres and apply the schema
	// ---------------------------------------------------------------
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// ---------------------------------------------------------------
	// 4. Create repositories
	// ---------------------------------------------------------------
	pool := database.Pool()
	roomRepo := postgres.NewRoomStore(pool)
	userRepo := postgres.NewUserStore(pool)
	messageRepo := postgres.NewMessageStore(pool)

	// ---------------------------------------------------------------
	// 5. Group broker
	// ---------------------------------------------------------------
	broker, closeBroker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create %s broker: %w", cfg.Broker, err)
	}
	defer closeBroker()

	// ---------------------------------------------------------------
	// 6. Realtime hub and HTTP handlers
	// ---------------------------------------------------------------
	hub := realtime.NewHub(broker, roomRepo, userRepo, messageRepo, logger, realtime.Options{
		SendBuffer: cfg.SendBuffer,
	})

	healthHandler := api.NewHealthHandler(database, broker.Name(), hub, logger)
	authHandler := api.NewAuthHandler(userRepo, cfg.JWTSecret, cfg.TokenTTL, logger)
	userHandler := api.NewUserHandler(userRepo, logger)
	roomHandler := api.NewRoomHandler(roomRepo, logger)
	messageHandler := api.NewMessageHandler(roomRepo, userRepo, messageRepo, cfg.HistoryLimit, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.AccessLog(gin.DefaultWriter), gin.Recovery())

	// Public: load balancers and clients without a token yet.
	router.GET("/v1/health", healthHandler.Health)
	router.POST("/v1/auth/signup", authHandler.Signup)
	router.POST("/v1/auth/login", authHandler.Login)

	ws := router.Group("/ws/chat")
	ws.Use(middleware.WSAuthMiddleware(cfg.JWTSecret))
	ws.GET("/room/:room_id", hub.HandleRoom)
	ws.GET("/direct", hub.HandleDirect)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	v1.GET("/users/me", userHandler.GetMe)
	v1.GET("/users/search", userHandler.Search)
	v1.GET("/rooms", roomHandler.List)
	v1.POST("/rooms", roomHandler.Create)
	v1.GET("/rooms/:id", roomHandler.GetByID)
	v1.GET("/rooms/:id/messages", messageHandler.RoomHistory)
	v1.GET("/direct/conversations", messageHandler.Conversations)
	v1.GET("/direct/:user_id/messages", messageHandler.DirectHistory)

	// ---------------------------------------------------------------
	// 7. Serve until SIGINT/SIGTERM
	// ---------------------------------------------------------------
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting salachat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("broker", broker.Name()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so the
	// hub is stopped separately.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket sessions did not drain", zap.Error(err))
	}
	return nil
}

// newBroker builds the group registry selected by cfg.Broker. The returned
// func releases the broker and any client it opened.
func newBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pubsub.Broker, func(), error) {
	logger = logger.With(zap.String("component", "broker"))

	switch cfg.Broker {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		b, err := pubsub.NewRedis(ctx, rdb, cfg.BrokerPrefix, logger)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				logger.Warn("close redis broker", zap.Error(err))
			}
			_ = rdb.Close()
		}, nil

	case "nats":
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("salachat"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		b, err := pubsub.NewNATS(nc, cfg.BrokerPrefix, logger)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				logger.Warn("close nats broker", zap.Error(err))
			}
			nc.Close()
		}, nil

	default:
		b := pubsub.NewLocal(logger)
		return b, func() { _ = b.Close() }, nil
	}
}
