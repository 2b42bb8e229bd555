package repository

import (
	"context"
	"errors"
	"fmt"

	"policyguard-service/service/models"

	"gorm.io/gorm"
)

// CreateScanRun 创建扫描记录
func (s *GormStore) CreateScanRun(ctx context.Context, run *models.ScanRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("创建扫描记录失败: %w", err)
	}
	return nil
}

// FinalizeScanRun 将扫描记录写入终态；记录已是终态时返回 ErrRunNotActive
func (s *GormStore) FinalizeScanRun(ctx context.Context, run *models.ScanRun) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("扫描状态 %s 不是终态", run.Status)
	}
	result := s.db.WithContext(ctx).Model(&models.ScanRun{}).
		Where("id = ? AND tenant_id = ? AND status IN ?", run.ID, run.TenantID,
			[]models.ScanStatus{models.ScanStatusPending, models.ScanStatusRunning}).
		Updates(map[string]interface{}{
			"status":                 run.Status,
			"completed_at":           run.CompletedAt,
			"total_rules_executed":   run.TotalRulesExecuted,
			"total_violations_found": run.TotalViolationsFound,
			"rule_results":           run.RuleResults,
			"pattern_results":        run.PatternResults,
			"error_message":          run.ErrorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("更新扫描记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotActive
	}
	return nil
}

// GetScanRun 获取扫描记录
func (s *GormStore) GetScanRun(ctx context.Context, tenantID, id string) (*models.ScanRun, error) {
	var run models.ScanRun
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取扫描记录失败: %w", err)
	}
	return &run, nil
}

// ListScanRuns 分页获取扫描记录，按开始时间倒序
func (s *GormStore) ListScanRuns(ctx context.Context, tenantID string, page, size int) ([]models.ScanRun, int64, error) {
	page, size = normalizePage(page, size)
	db := s.db.WithContext(ctx).Model(&models.ScanRun{}).Where("tenant_id = ?", tenantID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计扫描记录失败: %w", err)
	}

	var runs []models.ScanRun
	err := db.Order("started_at DESC, id").Offset((page - 1) * size).Limit(size).Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("获取扫描记录列表失败: %w", err)
	}
	return runs, total, nil
}

// DeleteScanRun 删除扫描记录及其全部违规
func (s *GormStore) DeleteScanRun(ctx context.Context, tenantID, id string) (int64, error) {
	var deletedViolations int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.ScanRun{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		result = tx.Where("scan_run_id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Violation{})
		if result.Error != nil {
			return result.Error
		}
		deletedViolations = result.RowsAffected
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("删除扫描记录失败: %w", err)
	}
	return deletedViolations, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 500 {
		size = 50
	}
	return page, size
}
