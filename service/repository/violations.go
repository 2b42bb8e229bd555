package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"policyguard-service/service/models"

	"gorm.io/gorm"
)

// ListViolations 分页查询违规
func (s *GormStore) ListViolations(ctx context.Context, tenantID string, q models.ViolationQuery) ([]models.Violation, int64, error) {
	page, size := normalizePage(q.Page, q.Size)
	db := s.db.WithContext(ctx).Model(&models.Violation{}).Where("tenant_id = ?", tenantID)
	if q.ScanRunID != "" {
		db = db.Where("scan_run_id = ?", q.ScanRunID)
	}
	if q.RuleID != "" {
		db = db.Where("rule_id = ?", q.RuleID)
	}
	if q.Severity != "" {
		db = db.Where("severity = ?", q.Severity)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计违规失败: %w", err)
	}

	var violations []models.Violation
	err := db.Order("created_at DESC, id").Offset((page - 1) * size).Limit(size).Find(&violations).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询违规列表失败: %w", err)
	}
	return violations, total, nil
}

// GetViolation 获取违规详情
func (s *GormStore) GetViolation(ctx context.Context, tenantID, id string) (*models.Violation, error) {
	var v models.Violation
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取违规失败: %w", err)
	}
	return &v, nil
}

// ReviewViolation 复核流程更新违规状态
func (s *GormStore) ReviewViolation(ctx context.Context, tenantID, id string, review models.ViolationReview, now time.Time) (*models.Violation, error) {
	updates := map[string]interface{}{
		"status":      review.Status,
		"reviewed_by": review.ReviewedBy,
		"reviewed_at": now.UTC(),
		"updated_at":  now.UTC(),
	}
	if review.ReviewerNote != nil {
		updates["reviewer_note"] = *review.ReviewerNote
	}

	result := s.db.WithContext(ctx).Model(&models.Violation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("更新违规状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetViolation(ctx, tenantID, id)
}
