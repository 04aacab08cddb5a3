package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/config"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/handler"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting mes service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.Item{},
		&entity.BillOfMaterial{},
		&entity.BomVersion{},
		&entity.BomItem{},
		&entity.ProductionRouting{},
		&entity.RoutingStep{},
		&entity.ManufacturingOrder{},
		&entity.WorkCell{},
		&entity.ProductionSchedule{},
		&entity.ManufacturingStepExecution{},
		&entity.ActivityLog{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// 初始化Redis（路线解析缓存）
	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, falling back to in-process routing cache", zap.Error(err))
		rdb = nil
	}

	// 仓库/服务/处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, db, rdb, cfg)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 物料
		items := authorized.Group("/items")
		{
			items.GET("", h.Item.List)
			items.POST("", h.Item.Create)
			items.GET("/:id", h.Item.Get)
			items.PUT("/:id", h.Item.Update)
			items.PUT("/:id/primary-bom", h.Item.SetPrimaryBOM)
		}

		// BOM
		boms := authorized.Group("/boms")
		{
			boms.POST("", h.BOM.Create)
			boms.GET("/:id", h.BOM.Get)
		}
		bomVersions := authorized.Group("/bom-versions")
		{
			bomVersions.POST("/:id/items", h.BOM.AddItem)
			bomVersions.GET("/:id/tree", h.BOM.GetTree)
			bomVersions.POST("/:id/publish", h.BOM.Publish)
			bomVersions.POST("/:id/clone", h.BOM.Clone)
		}

		// 路线
		routings := authorized.Group("/routings")
		{
			routings.POST("", h.Routing.Create)
			routings.GET("/:id", h.Routing.Get)
			routings.POST("/:id/steps", h.Routing.AddStep)
		}
		bomItems := authorized.Group("/bom-items")
		{
			bomItems.GET("/:id/routing", h.Routing.Resolve)
			bomItems.PUT("/:id/routing", h.Routing.Override)
			bomItems.GET("/:id/routing/inheritance", h.Routing.InheritanceTree)
		}

		// 制造订单
		orders := authorized.Group("/orders")
		{
			orders.GET("", h.Order.List)
			orders.POST("", h.Order.Create)
			orders.GET("/:id", h.Order.Get)
			orders.GET("/:id/tree", h.Order.GetTree)
			orders.GET("/:id/routing", h.Routing.ResolveForOrder)
			orders.POST("/:id/explode", h.Order.Explode)
			orders.POST("/:id/release", h.Order.Release)
			orders.POST("/:id/cancel", h.Order.Cancel)
			orders.POST("/:id/schedule", h.Schedule.ScheduleOrder)
			orders.GET("/:id/schedules", h.Schedule.ListByOrder)
			orders.POST("/:id/steps/:stepId/start", h.Execution.StartStep)
			orders.POST("/:id/steps/:stepId/complete", h.Execution.CompleteStep)
		}

		// 工序
		steps := authorized.Group("/steps")
		{
			steps.POST("/:id/queue", h.Execution.QueueStep)
			steps.POST("/:id/hold", h.Execution.HoldStep)
			steps.POST("/:id/resume", h.Execution.ResumeStep)
			steps.POST("/:id/skip", h.Execution.SkipStep)
			steps.GET("/:id/executions", h.Execution.ListExecutions)
		}

		// 执行记录
		executions := authorized.Group("/executions")
		{
			executions.POST("/:id/complete", h.Execution.CompleteExecution)
		}

		// 排程
		schedules := authorized.Group("/schedules")
		{
			schedules.PUT("/:id/reschedule", h.Schedule.Reschedule)
			schedules.POST("/:id/delay", h.Schedule.MarkDelayed)
		}

		// 工作单元
		workCells := authorized.Group("/work-cells")
		{
			workCells.GET("", h.WorkCell.List)
			workCells.POST("", h.WorkCell.Create)
			workCells.GET("/:id", h.WorkCell.Get)
			workCells.PUT("/:id", h.WorkCell.Update)
			workCells.PUT("/:id/active", h.WorkCell.SetActive)
			workCells.GET("/:id/load", h.Schedule.WorkCellLoad)
		}
	}
}
