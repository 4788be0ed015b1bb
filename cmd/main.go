package main

import (
	"context"
	"time"

	"bizledger/internal/dashcache"
	"bizledger/internal/handler"
	"bizledger/internal/hub"
	"bizledger/internal/middleware"
	"bizledger/internal/model"
	"bizledger/internal/notifier"
	"bizledger/internal/presence"
	"bizledger/internal/ws"
	"bizledger/pkg/config"
	"bizledger/pkg/database"
	"bizledger/pkg/jwtutil"
	"bizledger/pkg/logger"
	"bizledger/pkg/redisutil"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: "bizledger",
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting bizledger service...", cfg.LogConfig()...)

	// Initialize database
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(
		&model.Business{},
		&model.User{},
		&model.Notification{},
		&model.Activity{},
		&model.ChatMessage{},
		&model.Category{},
		&model.Expense{},
		&model.Income{},
	); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connection established")

	// Connect redis for presence and dashboard caching
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rdb, err := redisutil.Connect(ctx, &cfg.Redis)
	cancel()
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	log.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr))

	// Build the real-time layer
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})
	broadcastHub := hub.New()
	presenceStore := presence.NewStore(rdb)
	recorder := notifier.New(db, broadcastHub)
	invalidator := dashcache.New(rdb, broadcastHub)
	gateway := ws.NewGateway(db, broadcastHub, presenceStore, recorder, jwt)
	h := handler.New(db, jwt, recorder, invalidator, presenceStore)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", prometheus.GetPrometheusHandler())

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", h.Login)
	auth.POST("/register", h.Register)

	// Websocket endpoints - token carried in the query string or header
	gateway.Register(e)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(jwt))

	users := api.Group("/users")
	users.GET("/profile", h.GetProfile)
	users.GET("/online", h.OnlineUsers)

	businesses := api.Group("/businesses")
	businesses.POST("", h.CreateBusiness)
	businesses.DELETE("/:id", h.DeactivateBusiness)
	businesses.POST("/invite", h.InviteUser)

	finance := api.Group("/finance", middleware.RequireBusinessContext)
	finance.POST("/expenses", h.CreateExpense)
	finance.GET("/expenses", h.ListExpenses)
	finance.PATCH("/expenses/:id", h.UpdateExpense)
	finance.DELETE("/expenses/:id", h.DeleteExpense)
	finance.POST("/incomes", h.CreateIncome)
	finance.GET("/incomes", h.ListIncomes)
	finance.POST("/categories", h.CreateCategory)
	finance.GET("/categories", h.ListCategories)
	finance.GET("/dashboard", h.Dashboard)

	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
	api.GET("/activities", h.ListActivities)
	api.GET("/chat/messages", h.ListChatMessages)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
