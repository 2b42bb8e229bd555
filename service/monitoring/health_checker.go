/*
 * @module service/monitoring/health_checker
 * @description 就绪检查器，检查数据库与 Redis 依赖的可用性
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 逐项检查依赖 -> 汇总状态
 * @rules 任一依赖不可用时整体状态为 unhealthy；未启用的依赖不参与检查
 * @dependencies gorm.io/gorm, github.com/go-redis/redis/v8
 * @refs api/controllers/health_controller.go
 */

package monitoring

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 健康状态
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// DependencyHealth 依赖健康状态
type DependencyHealth struct {
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// HealthStatus 整体健康状态
type HealthStatus struct {
	Overall      string             `json:"overall"`
	Timestamp    time.Time          `json:"timestamp"`
	Dependencies []DependencyHealth `json:"dependencies"`
}

// HealthChecker 健康检查器
type HealthChecker struct {
	db      *gorm.DB
	redis   *redis.Client
	timeout time.Duration
}

// NewHealthChecker 创建健康检查器，redisClient 可为 nil
func NewHealthChecker(db *gorm.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redisClient,
		timeout: 3 * time.Second,
	}
}

// Check 执行依赖检查
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:   StatusHealthy,
		Timestamp: time.Now().UTC(),
	}

	status.Dependencies = append(status.Dependencies, h.probe(ctx, "database", h.pingDatabase))
	if h.redis != nil {
		status.Dependencies = append(status.Dependencies, h.probe(ctx, "redis", func(ctx context.Context) error {
			return h.redis.Ping(ctx).Err()
		}))
	}

	for _, dep := range status.Dependencies {
		if dep.Status != StatusHealthy {
			status.Overall = StatusUnhealthy
		}
	}
	return status
}

func (h *HealthChecker) probe(ctx context.Context, name string, fn func(context.Context) error) DependencyHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	dep := DependencyHealth{
		Name:         name,
		Status:       StatusHealthy,
		ResponseTime: time.Since(start),
	}
	if err != nil {
		dep.Status = StatusUnhealthy
		dep.ErrorMessage = err.Error()
	}
	return dep
}

func (h *HealthChecker) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
