/*
 * @module service/rules/rule_service
 * @description 规则管理服务，提供规则增删改查、从控制项生成规则以及控制项目录查询
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 创建/更新前校验过滤条件结构 -> 持久化 -> 下一次扫描生效
 * @rules 过滤条件必须可解析；严重级别必须合法；所有操作按租户隔离
 * @dependencies gorm.io/gorm, policyguard-service/service/filter
 * @refs service/rules/control_mapper.go
 */

package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"policyguard-service/service/filter"
	"policyguard-service/service/models"

	"gorm.io/gorm"
)

// RuleService 规则管理服务
type RuleService struct {
	db   *gorm.DB
	repo *Repository
}

// NewRuleService 创建规则管理服务实例
func NewRuleService(db *gorm.DB) *RuleService {
	return &RuleService{
		db:   db,
		repo: NewRepository(db),
	}
}

// Repository 返回规则仓库
func (s *RuleService) Repository() *Repository {
	return s.repo
}

// RuleQuery 规则列表查询条件
type RuleQuery struct {
	Collection string
	ControlID  string
	Enabled    *bool
	Page       int
	Size       int
}

// RuleUpdate 规则部分更新，nil 字段保持不变
type RuleUpdate struct {
	Name            *string                `json:"name,omitempty"`
	Description     *string                `json:"description,omitempty"`
	Collection      *string                `json:"collection,omitempty"`
	Filter          map[string]interface{} `json:"filter,omitempty"`
	Severity        *string                `json:"severity,omitempty"`
	Enabled         *bool                  `json:"enabled,omitempty"`
	Framework       *string                `json:"framework,omitempty"`
	ControlID       *string                `json:"control_id,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	ThresholdParams map[string]interface{} `json:"threshold_params,omitempty"`
	Explanation     *string                `json:"explanation,omitempty"`
}

// ValidateRule 校验规则定义
func ValidateRule(rule *models.Rule) error {
	if strings.TrimSpace(rule.TenantID) == "" {
		return fmt.Errorf("%w: 租户不能为空", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: 规则名称不能为空", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Collection) == "" {
		return fmt.Errorf("%w: 目标集合不能为空", ErrInvalidRule)
	}
	if rule.Severity != "" && !rule.Severity.Valid() {
		return fmt.Errorf("%w: 无效的严重级别 %s", ErrInvalidRule, rule.Severity)
	}
	if err := filter.Validate(rule.Filter); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// CreateRule 创建规则
func (s *RuleService) CreateRule(ctx context.Context, rule *models.Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("创建规则失败: %w", err)
	}
	return nil
}

// CreateRuleFromControl 根据控制项目录生成规则
func (s *RuleService) CreateRuleFromControl(ctx context.Context, tenantID, controlID string) (*models.Rule, error) {
	control, err := s.repo.GetControl(ctx, controlID)
	if err != nil {
		return nil, err
	}
	rule := BuildRuleFromControl(control, tenantID)
	if err := s.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules 获取规则列表
func (s *RuleService) ListRules(ctx context.Context, tenantID string, q RuleQuery) ([]models.Rule, int64, error) {
	var rules []models.Rule
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Rule{}).Where("tenant_id = ?", tenantID)
	if q.Collection != "" {
		query = query.Where("collection = ?", q.Collection)
	}
	if q.ControlID != "" {
		query = query.Where("control_id = ?", q.ControlID)
	}
	if q.Enabled != nil {
		query = query.Where("enabled = ?", *q.Enabled)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计规则失败: %w", err)
	}

	page, size := q.Page, q.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	offset := (page - 1) * size
	if err := query.Offset(offset).Limit(size).Order("created_at DESC, id").Find(&rules).Error; err != nil {
		return nil, 0, fmt.Errorf("获取规则列表失败: %w", err)
	}

	return rules, total, nil
}

// GetRule 根据ID获取规则
func (s *RuleService) GetRule(ctx context.Context, tenantID, id string) (*models.Rule, error) {
	return s.repo.GetRule(ctx, tenantID, id)
}

// UpdateRule 更新规则
func (s *RuleService) UpdateRule(ctx context.Context, tenantID, id string, update RuleUpdate) (*models.Rule, error) {
	rule, err := s.repo.GetRule(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		rule.Name = *update.Name
	}
	if update.Description != nil {
		rule.Description = *update.Description
	}
	if update.Collection != nil {
		rule.Collection = *update.Collection
	}
	if update.Filter != nil {
		rule.Filter = models.JSONB(update.Filter)
	}
	if update.Severity != nil {
		sev, err := models.ParseSeverity(*update.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		rule.Severity = sev
	}
	if update.Enabled != nil {
		rule.Enabled = *update.Enabled
	}
	if update.Framework != nil {
		rule.Framework = *update.Framework
	}
	if update.ControlID != nil {
		rule.ControlID = *update.ControlID
	}
	if update.Tags != nil {
		rule.Tags = models.JSONBStringArray(update.Tags)
	}
	if update.ThresholdParams != nil {
		rule.ThresholdParams = models.JSONB(update.ThresholdParams)
	}
	if update.Explanation != nil {
		rule.Explanation = *update.Explanation
	}

	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	// Save 会写入零值字段（enabled=false）
	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return nil, fmt.Errorf("更新规则失败: %w", err)
	}
	return rule, nil
}

// DeleteRule 删除规则；进行中的扫描使用启动时的规则快照，不受影响
func (s *RuleService) DeleteRule(ctx context.Context, tenantID, id string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Rule{})
	if result.Error != nil {
		return fmt.Errorf("删除规则失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ListControls 获取控制项目录
func (s *RuleService) ListControls(ctx context.Context) ([]models.ControlMetadata, error) {
	var controls []models.ControlMetadata
	if err := s.db.WithContext(ctx).Order("control_id").Find(&controls).Error; err != nil {
		return nil, fmt.Errorf("获取控制项目录失败: %w", err)
	}
	return controls, nil
}

// IsNotFound 判断是否为规则/控制项不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) || errors.Is(err, ErrControlNotFound)
}
