// Package main runs the attendance HTTP server with the live WebSocket feed and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sashimi3433/Attendance-Check/config"
	"github.com/sashimi3433/Attendance-Check/internal/attendance"
	"github.com/sashimi3433/Attendance-Check/internal/auth"
	"github.com/sashimi3433/Attendance-Check/internal/ipresolver"
	"github.com/sashimi3433/Attendance-Check/internal/lessons"
	"github.com/sashimi3433/Attendance-Check/internal/middleware"
	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/realtime"
	"github.com/sashimi3433/Attendance-Check/internal/sessions"
	"github.com/sashimi3433/Attendance-Check/internal/store"
	"github.com/sashimi3433/Attendance-Check/internal/store/memory"
	"github.com/sashimi3433/Attendance-Check/internal/store/postgres"
	"github.com/sashimi3433/Attendance-Check/internal/tokens"
	"github.com/sashimi3433/Attendance-Check/internal/worker"
	"github.com/sashimi3433/Attendance-Check/pkg/database"
	"github.com/sashimi3433/Attendance-Check/pkg/redis"
	"github.com/sashimi3433/Attendance-Check/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var st store.Store
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		st = postgres.New(pool)
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		st = memory.New()
	}

	var (
		sessionBackend sessions.Backend = sessions.NewMemoryBackend(time.Now)
		hub                             = realtime.NewHub(logger, nil, nil)
	)
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		sessionBackend = sessions.NewRedisBackend(rdb.Client)
		redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, redisPubSub, redisPubSub)
	} else {
		logger.Warn("redis disabled; sessions and live feed are local to this instance")
	}

	ips := ipresolver.New(ipresolver.Config{
		ExternalEnabled:       cfg.IP.ExternalEnabled,
		Services:              cfg.IP.Services,
		Timeout:               cfg.IP.Timeout,
		ForceExternalForLocal: cfg.IP.ForceExternalForLocal,
		FallbackToHeaders:     cfg.IP.FallbackToHeaders,
		TrustedProxies:        cfg.Server.TrustedProxies,
	}, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	guard := sessions.NewGuard(st, sessionBackend, logger, sessions.WithTTL(cfg.Session.TTL))

	tokenSvc := tokens.NewService(st, logger, tokens.WithTTL(cfg.Token.TTL), tokens.WithIPBinding(cfg.Token.BindIP))
	lessonSvc := lessons.NewService(st, logger, lessons.WithNotifier(hub))
	attendanceSvc := attendance.NewService(st, tokenSvc, logger, attendance.WithNotifier(hub))

	authHandler := auth.NewHandler(auth.NewRepository(st), jwtService, guard, ips, logger)
	tokenHandler := tokens.NewHandler(tokenSvc, ips)
	lessonHandler := lessons.NewHandler(lessonSvc)
	attendanceHandler := attendance.NewHandler(attendanceSvc, ips)

	maintenanceCtx, maintenanceCancel := context.WithCancel(context.Background())
	defer maintenanceCancel()
	placement := worker.Plan(cfg)
	logger.Info("maintenance placement", zap.Bool("in_server", placement.InServer), zap.String("reason", placement.Reason))
	if placement.InServer {
		processor := worker.NewMaintenanceProcessor(tokenSvc, guard, cfg.Maintenance.TokenGCAge, cfg.Maintenance.JobTimeout, logger)
		go worker.NewScheduler(cfg.Maintenance.Interval, cfg.Maintenance.TokenGCAge, processor, logger).Run(maintenanceCtx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	router.POST("/auth/login", authHandler.Login)

	// Protected API (JWT bound to the user's live session)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService, guard))
	{
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/me", authHandler.Me)

		api.POST("/tokens", middleware.RequireRole(models.RoleStudent), tokenHandler.Issue)
		api.POST("/checkin", middleware.RequireRole(models.RoleKiosk), attendanceHandler.CheckIn)

		api.GET("/attendance/history", attendanceHandler.History)
		api.GET("/attendance/records/:id", attendanceHandler.Record)

		teacher := api.Group("/lessons", middleware.RequireRole(models.RoleTeacher))
		{
			teacher.GET("", lessonHandler.List)
			teacher.POST("", lessonHandler.Create)
			teacher.PATCH("/:id", lessonHandler.Update)
			teacher.DELETE("/:id", lessonHandler.Delete)
			teacher.POST("/:id/open", lessonHandler.Open)
			teacher.POST("/:id/end", lessonHandler.End)
			teacher.GET("/:id/records", lessonHandler.Records)
		}

		admin := api.Group("/admin", middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/users", authHandler.CreateUser)
			admin.POST("/kiosks", authHandler.CreateKiosk)
			admin.POST("/users/:id/logout", authHandler.ForceLogout)
			admin.GET("/tokens/stats", tokenHandler.Stats)
			admin.POST("/tokens/gc", tokenHandler.GC)
			admin.POST("/kiosks/resync", lessonHandler.Resync)
			admin.GET("/status", lessonHandler.Status)
		}
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws",
		middleware.QueryJWT(jwtService, guard),
		middleware.RequireRole(models.RoleTeacher, models.RoleAdmin),
		realtime.ServeWs(hub, lessonSvc, cfg.Server.CORSAllowedOrigins, logger),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	maintenanceCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
