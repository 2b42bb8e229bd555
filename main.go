package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"policyguard-service/api"
	"policyguard-service/logger"
	"policyguard-service/service"
	"policyguard-service/service/config"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认依次尝试 config.yaml、config.json）")
	flag.Parse()

	var manager *config.ConfigManager
	if *configPath != "" {
		manager = config.NewConfigManager(*configPath)
	} else {
		manager = config.NewConfigManager()
	}
	if err := manager.LoadConfig(); err != nil {
		slog.Error("加载配置失败", "error", err)
		os.Exit(1)
	}
	cfg := manager.GetConfig()
	logger.InitLogger(cfg.Logging.Level)

	if err := service.InitServices(cfg); err != nil {
		slog.Error("服务初始化失败", "error", err)
		os.Exit(1)
	}
	defer service.Shutdown()

	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if cfg.Server.BaseContext != "" {
		mux.Route(cfg.Server.BaseContext, func(r chi.Router) {
			api.InitRoute(r, cfg)
			r.Handle("/metrics", promhttp.Handler())
		})
	} else {
		api.InitRoute(mux, cfg)
		mux.Handle("/metrics", promhttp.Handler())
	}

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(cfg.Server.Port), mux)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		slog.Info("收到退出信号，正在关闭服务")
		if err := s.GracefulStop(); err != nil {
			slog.Error("关闭HTTP服务失败", "error", err)
		}
	}()

	slog.Info("服务启动", "port", cfg.Server.Port, "base_context", cfg.Server.BaseContext)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
}
