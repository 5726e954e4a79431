package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/gin-gonic/gin"

	"finchat/internal/client"
	"finchat/internal/config"
	"finchat/internal/handler"
	"finchat/internal/service"
	"finchat/internal/storage"
	"finchat/internal/tools"
	"finchat/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 存储：已保存的 API Key 优先于配置文件
	store := storage.New(cfg.Storage)
	defer store.Close()
	service.LoadStoredKey(store, cfg)
	go storage.RunBackups(ctx, store, cfg.Storage.BackupInterval)

	// 行情工具，供模型在回答时调用
	var toolList []tool.BaseTool
	if cfg.Tools.Enabled {
		market := client.New(config.ClientConfig{
			BaseURL:        cfg.Tools.MarketBaseURL,
			RequestTimeout: cfg.Tools.Timeout,
		})
		toolList = tools.GetMarketTools(market)
		logger.Infof("已启用 %d 个行情工具，数据源 %s", len(toolList), cfg.Tools.MarketBaseURL)
	}

	// 初始化服务
	chatService := service.NewChatService(ctx, cfg, toolList...)
	settingsService := service.NewSettingsService(store, cfg, chatService)
	watchlistService := service.NewWatchlistService(store)

	// 创建路由
	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(ctx, cfg, handler.Handlers{
		Chat:      handler.NewChatHandler(chatService, cfg),
		Settings:  handler.NewSettingsHandler(settingsService),
		Watchlist: handler.NewWatchlistHandler(watchlistService),
	})

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("服务器启动在端口 %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}
	logger.Info("服务器已关闭")
}
