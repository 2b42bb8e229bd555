/*
 * @module service/schedule/schedule_service
 * @description 周期扫描调度服务，管理扫描计划并按 Cron 表达式触发扫描
 * @architecture 基于 robfig/cron 的调度器模式
 * @documentReference DESIGN.md
 * @stateFlow 加载启用计划 -> 注册 Cron 条目 -> 到期获取分布式锁 -> 执行扫描 -> 更新 last_run/next_run
 * @rules Cron 使用标准五段格式（支持 @hourly 等描述符，UTC）；同一计划同一时刻只有一个实例执行
 * @dependencies github.com/robfig/cron/v3, gorm.io/gorm, service/distributed_lock
 * @refs service/scan/orchestrator.go, api/controllers/schedule_controller.go
 */

package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"policyguard-service/service/distributed_lock"
	"policyguard-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

var (
	// ErrScheduleNotFound 计划不存在
	ErrScheduleNotFound = errors.New("scan schedule not found")
	// ErrInvalidSchedule 计划定义非法
	ErrInvalidSchedule = errors.New("invalid scan schedule")
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scanner 扫描执行能力
type Scanner interface {
	RunScan(ctx context.Context, req models.ScanRequest) (*models.ScanSummary, error)
}

// CreateScheduleRequest 创建计划请求
type CreateScheduleRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	CronExpression string   `json:"cron_expression"`
	Collections    []string `json:"collections"`
	RuleIDs        []string `json:"rule_ids"`
	Enabled        *bool    `json:"enabled"`
}

// ScheduleService 调度服务
type ScheduleService struct {
	db      *gorm.DB
	scanner Scanner
	locks   *distributed_lock.LockExecutor
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduleService 创建调度服务
func NewScheduleService(db *gorm.DB, scanner Scanner, lock distributed_lock.DistributedLock, lockTTL time.Duration, logger *slog.Logger) *ScheduleService {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &ScheduleService{
		db:      db,
		scanner: scanner,
		locks:   distributed_lock.NewLockExecutor(lock),
		lockTTL: lockTTL,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		cron:    cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
		entries: make(map[string]cron.EntryID),
	}
}

// ValidateCronExpression 验证 Cron 表达式
func ValidateCronExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("cron表达式不能为空")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("cron表达式无效: %w", err)
	}
	return nil
}

// NextRun 计算下次执行时间
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron表达式无效: %w", err)
	}
	return sched.Next(from.UTC()), nil
}

// Start 加载全部启用计划并启动调度器
func (s *ScheduleService) Start(ctx context.Context) error {
	var schedules []models.ScanSchedule
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&schedules).Error; err != nil {
		return fmt.Errorf("获取扫描计划失败: %w", err)
	}

	for i := range schedules {
		if err := s.register(&schedules[i]); err != nil {
			s.logger.Error("注册扫描计划失败", "schedule_id", schedules[i].ID, "error", err)
		}
	}

	s.cron.Start()

	s.logger.Info("扫描调度器启动完成", "schedules", len(schedules))
	return nil
}

// Stop 停止调度器并等待执行中的扫描结束
func (s *ScheduleService) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("扫描调度器已停止")
}

// ListSchedules 获取租户的全部计划
func (s *ScheduleService) ListSchedules(ctx context.Context, tenantID string) ([]models.ScanSchedule, error) {
	var schedules []models.ScanSchedule
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at, id").Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("获取扫描计划列表失败: %w", err)
	}
	return schedules, nil
}

// CreateSchedule 创建计划，启用时立即注册
func (s *ScheduleService) CreateSchedule(ctx context.Context, tenantID string, req CreateScheduleRequest) (*models.ScanSchedule, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: 计划名称不能为空", ErrInvalidSchedule)
	}
	if err := ValidateCronExpression(req.CronExpression); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	sched := &models.ScanSchedule{
		TenantID:       tenantID,
		Name:           req.Name,
		Description:    req.Description,
		CronExpression: req.CronExpression,
		Collections:    models.JSONBStringArray(req.Collections),
		RuleIDs:        models.JSONBStringArray(req.RuleIDs),
		Enabled:        enabled,
	}
	if enabled {
		next, _ := NextRun(req.CronExpression, s.now())
		sched.NextRunAt = &next
	}

	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return nil, fmt.Errorf("创建扫描计划失败: %w", err)
	}

	if enabled {
		if err := s.register(sched); err != nil {
			s.logger.Error("注册扫描计划失败", "schedule_id", sched.ID, "error", err)
		}
	}
	s.logger.Info("扫描计划已创建", "tenant_id", tenantID, "schedule_id", sched.ID, "cron", sched.CronExpression)
	return sched, nil
}

// DeleteSchedule 删除计划并移除 Cron 条目
func (s *ScheduleService) DeleteSchedule(ctx context.Context, tenantID, id string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.ScanSchedule{})
	if result.Error != nil {
		return fmt.Errorf("删除扫描计划失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	s.unregister(id)
	return nil
}

// register 注册 Cron 条目，已存在时先移除
func (s *ScheduleService) register(sched *models.ScanSchedule) error {
	id := sched.ID
	s.unregister(id)

	entryID, err := s.cron.AddFunc(sched.CronExpression, func() {
		s.Execute(context.Background(), id)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}

	s.mu.Lock()
	s.entries[id] = entryID
	s.mu.Unlock()
	return nil
}

func (s *ScheduleService) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// Registered 已注册的计划数量
func (s *ScheduleService) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Execute 在分布式锁保护下执行一次计划；锁被其他实例持有时跳过
func (s *ScheduleService) Execute(ctx context.Context, scheduleID string) {
	logger := s.logger.With("schedule_id", scheduleID)

	executed, err := s.locks.ExecuteWithLock(ctx, scheduleID, s.lockTTL, func() error {
		return s.runSchedule(ctx, scheduleID)
	})
	if err != nil {
		logger.Error("计划扫描执行失败", "error", err)
		return
	}
	if !executed {
		logger.Info("计划扫描正由其他实例执行，跳过")
	}
}

func (s *ScheduleService) runSchedule(ctx context.Context, scheduleID string) error {
	var sched models.ScanSchedule
	if err := s.db.WithContext(ctx).Where("id = ?", scheduleID).First(&sched).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.unregister(scheduleID)
			return ErrScheduleNotFound
		}
		return fmt.Errorf("获取扫描计划失败: %w", err)
	}
	if !sched.Enabled {
		return nil
	}

	startedAt := s.now()
	summary, scanErr := s.scanner.RunScan(ctx, models.ScanRequest{
		TenantID:    sched.TenantID,
		Collections: sched.Collections,
		RuleIDs:     sched.RuleIDs,
	})

	updates := map[string]interface{}{
		"last_run_at": startedAt,
		"updated_at":  s.now(),
	}
	if next, err := NextRun(sched.CronExpression, startedAt); err == nil {
		updates["next_run_at"] = next
	}
	if summary != nil {
		updates["last_scan_run_id"] = summary.ScanRunID
	}
	if err := s.db.WithContext(ctx).Model(&models.ScanSchedule{}).Where("id = ?", scheduleID).Updates(updates).Error; err != nil {
		return fmt.Errorf("更新扫描计划失败: %w", err)
	}

	if scanErr != nil {
		return fmt.Errorf("执行计划扫描失败: %w", scanErr)
	}
	s.logger.Info("计划扫描完成",
		"schedule_id", scheduleID,
		"tenant_id", sched.TenantID,
		"scan_run_id", summary.ScanRunID,
		"violations", summary.TotalViolationsFound)
	return nil
}
