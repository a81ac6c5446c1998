package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nutrivision-server-go/src/analysis"
	"nutrivision-server-go/src/configs"
	"nutrivision-server-go/src/configs/database"
	"nutrivision-server-go/src/core/utils"
	"nutrivision-server-go/src/metrics"
	"nutrivision-server-go/src/models"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, db *gorm.DB, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	// 初始化Gin引擎
	if logger.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")

	// 启动营养分析服务
	analysisService, err := analysis.NewDefaultAnalysisService(config, logger, db)
	if err != nil {
		logger.Error(fmt.Sprintf("营养分析服务初始化失败: %v", err))
		return nil, err
	}
	if err := analysisService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error(fmt.Sprintf("营养分析服务启动失败: %v", err))
		return nil, err
	}

	// 启动健康指标服务（需要数据库）
	if db != nil {
		metricsService := metrics.NewDefaultMetricsService(logger, db)
		if err := metricsService.Start(groupCtx, router, apiGroup); err != nil {
			logger.Error(fmt.Sprintf("健康指标服务启动失败: %v", err))
			return nil, err
		}
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://%s:%d", config.Server.IP, config.Server.Port))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(fmt.Sprintf("HTTP服务关闭失败: %v", err))
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("HTTP 服务启动失败: %v", err))
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(fmt.Sprintf("服务关闭过程中出现错误: %v", err))
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

func main() {
	// 加载 .env 文件（密钥、DATABASE_URL等）
	if err := godotenv.Load(); err != nil {
		fmt.Println("未找到 .env 文件，使用系统环境变量")
	}

	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()

	// 初始化数据库连接；未配置时仅关闭持久化相关功能
	var db *gorm.DB
	if os.Getenv("DATABASE_URL") != "" {
		var dbType string
		db, dbType, err = database.InitDB()
		if err != nil {
			logger.Error(fmt.Sprintf("数据库连接失败: %v", err))
			os.Exit(1)
		}
		if err := db.AutoMigrate(&models.User{}, &models.HealthMetric{}, &models.MealRecord{}); err != nil {
			logger.Error(fmt.Sprintf("数据库迁移失败: %v", err))
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("数据库连接成功, 类型: %s", dbType))
	} else {
		logger.Warn("DATABASE_URL 未设置，健康指标与餐食记录功能不可用")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, groupCtx := errgroup.WithContext(ctx)

	// 启动 Http 服务
	if _, err := StartHttpServer(config, logger, db, g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("启动 Http 服务失败: %v", err))
		os.Exit(1)
	}

	// 等待退出信号并优雅关闭
	GracefulShutdown(cancel, logger, g)
}
