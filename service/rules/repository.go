/*
 * @module service/rules/repository
 * @description 规则仓库，为扫描引擎加载租户下启用的规则
 * @architecture 分层架构 - 数据访问层
 * @documentReference DESIGN.md
 * @stateFlow 扫描开始 -> 加载规则快照 -> 扫描期间不再读取规则表
 * @rules 只返回 enabled=true 且租户匹配的规则；零结果不是错误；顺序稳定
 * @dependencies gorm.io/gorm
 * @refs service/scan/orchestrator.go
 */

package rules

import (
	"context"
	"errors"
	"fmt"

	"policyguard-service/service/models"

	"gorm.io/gorm"
)

var (
	// ErrRuleNotFound 规则不存在
	ErrRuleNotFound = errors.New("rule not found")
	// ErrControlNotFound 控制项不存在
	ErrControlNotFound = errors.New("control not found")
	// ErrInvalidRule 规则定义非法
	ErrInvalidRule = errors.New("invalid rule")
)

// Repository 规则仓库
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建规则仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LoadEnabledRules 加载租户启用的规则，可按目标集合或规则ID白名单收窄
func (r *Repository) LoadEnabledRules(ctx context.Context, tenantID string, collections, ruleIDs []string) ([]models.Rule, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ? AND enabled = ?", tenantID, true)
	if len(collections) > 0 {
		query = query.Where("collection IN ?", collections)
	}
	if len(ruleIDs) > 0 {
		query = query.Where("id IN ?", ruleIDs)
	}

	var rules []models.Rule
	if err := query.Order("created_at, id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("加载启用规则失败: %w", err)
	}
	return rules, nil
}

// GetRule 获取租户下的规则
func (r *Repository) GetRule(ctx context.Context, tenantID, id string) (*models.Rule, error) {
	var rule models.Rule
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("获取规则失败: %w", err)
	}
	return &rule, nil
}

// GetControl 获取控制项
func (r *Repository) GetControl(ctx context.Context, controlID string) (*models.ControlMetadata, error) {
	var control models.ControlMetadata
	err := r.db.WithContext(ctx).Where("control_id = ?", controlID).First(&control).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrControlNotFound
		}
		return nil, fmt.Errorf("获取控制项失败: %w", err)
	}
	return &control, nil
}
