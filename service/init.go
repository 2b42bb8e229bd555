/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移、各业务服务与基础设施的装配
 * @architecture 分层架构 - 服务层
 * @documentReference DESIGN.md
 * @stateFlow 打开数据库 -> 迁移与种子数据 -> 基础设施（Redis/Kafka/指标） -> 业务服务 -> 启动调度器
 * @rules 确保所有依赖服务正常启动后才提供API服务；Redis/Kafka 未启用时降级为进程内实现
 * @dependencies gorm.io/gorm, github.com/go-redis/redis/v8, github.com/prometheus/client_golang
 * @refs main.go, api/routes.go
 */

package service

import (
	"context"
	"fmt"
	"log/slog"

	"policyguard-service/service/config"
	"policyguard-service/service/database"
	"policyguard-service/service/detection"
	"policyguard-service/service/distributed_lock"
	"policyguard-service/service/event"
	"policyguard-service/service/explain"
	"policyguard-service/service/monitoring"
	"policyguard-service/service/rate_limiter"
	"policyguard-service/service/repository"
	"policyguard-service/service/rules"
	"policyguard-service/service/scan"
	"policyguard-service/service/schedule"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var (
	DB                    *gorm.DB
	GlobalConfig          *config.ApplicationConfig
	GlobalStore           *repository.GormStore
	GlobalRuleService     *rules.RuleService
	GlobalOrchestrator    *scan.Orchestrator
	GlobalExplainService  *explain.Service
	GlobalScheduleService *schedule.ScheduleService
	GlobalRateLimiter     rate_limiter.Limiter
	GlobalHealthChecker   *monitoring.HealthChecker
	GlobalPublisher       event.Publisher

	redisClient *redis.Client
)

// InitServices 按配置初始化全部服务
func InitServices(cfg *config.ApplicationConfig) error {
	GlobalConfig = cfg

	if err := initDatabase(cfg.Database); err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		client, err := distributed_lock.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		redisClient = client
		slog.Info("Redis连接成功", "addr", cfg.Redis.RedisAddr())
	}

	GlobalPublisher = event.NewPublisher(cfg.Kafka)

	metrics := monitoring.NewMetricsCollector(prometheus.DefaultRegisterer)
	if err := prometheus.Register(monitoring.NewOpenViolationsCollector(DB)); err != nil {
		slog.Warn("注册违规指标失败", "error", err)
	}

	GlobalStore = repository.NewGormStore(DB)
	GlobalRuleService = rules.NewRuleService(DB)
	detectors := detection.NewDetectors(cfg.Detectors, GlobalStore)
	GlobalOrchestrator = scan.NewOrchestrator(GlobalStore, GlobalRuleService.Repository(), detectors, scan.Options{
		Workers:         cfg.Scan.Workers,
		InsertBatchSize: cfg.Scan.InsertBatchSize,
		Logger:          slog.Default().With("component", "scan"),
		Publisher:       GlobalPublisher,
		Metrics:         metrics,
	})
	GlobalExplainService = explain.NewService(GlobalStore, GlobalRuleService.Repository(), cfg.Detectors)

	var lock distributed_lock.DistributedLock = distributed_lock.NewLocalLock()
	GlobalRateLimiter = rate_limiter.NoopLimiter{}
	if redisClient != nil {
		lock = distributed_lock.NewRedisLock(redisClient)
		GlobalRateLimiter = rate_limiter.NewRedisRateLimiter(redisClient)
	}

	GlobalScheduleService = schedule.NewScheduleService(DB, GlobalOrchestrator, lock, cfg.Scheduler.LockTTL,
		slog.Default().With("component", "schedule"))
	if cfg.Scheduler.Enabled {
		if err := GlobalScheduleService.Start(context.Background()); err != nil {
			slog.Error("启动扫描调度器失败", "error", err)
		}
	}

	GlobalHealthChecker = monitoring.NewHealthChecker(DB, redisClient)

	slog.Info("服务初始化完成",
		"detectors", len(detectors),
		"redis_enabled", redisClient != nil,
		"kafka_enabled", cfg.Kafka.Enabled)
	return nil
}

// initDatabase 初始化数据库连接并运行迁移
func initDatabase(cfg config.DatabaseConfig) error {
	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	DB = db

	slog.Info("开始运行数据库迁移...")
	if err := database.AutoMigrate(DB); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	if err := database.InitializeData(DB); err != nil {
		return fmt.Errorf("基础数据初始化失败: %w", err)
	}
	slog.Info("所有数据库迁移任务完成")
	return nil
}

// Shutdown 停止调度器并释放外部连接
func Shutdown() {
	if GlobalScheduleService != nil {
		GlobalScheduleService.Stop()
	}
	if GlobalPublisher != nil {
		if err := GlobalPublisher.Close(); err != nil {
			slog.Warn("关闭事件发布器失败", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Warn("关闭Redis连接失败", "error", err)
		}
	}
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	slog.Info("服务已关闭")
}
