/*
 * @module service/models/rule
 * @description 合规规则模型，规则是租户级别、针对单一目标集合的声明式过滤条件
 * @architecture 分层架构 - 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow 规则由外部创作流程创建/更新，扫描引擎只读
 * @rules 过滤条件仅做结构校验，不校验字段是否存在
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/rules, service/filter
 */

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Severity 严重级别，LOW < MEDIUM < HIGH < CRITICAL
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank 返回严重级别的排序值，未知级别为 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid 是否为合法的严重级别
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity 解析严重级别（大小写不敏感）
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("无效的严重级别: %s", s)
	}
	return sev, nil
}

// 常用目标集合
const (
	CollectionTransactions = "transactions"
	CollectionAccounts     = "accounts"
	CollectionPayroll      = "payroll"
)

// Rule 合规规则模型
type Rule struct {
	ID              string           `gorm:"type:uuid;primary_key" json:"id"`
	TenantID        string           `gorm:"not null;size:100;index:idx_rules_tenant_collection" json:"tenant_id"`
	PolicyID        *string          `gorm:"size:100" json:"policy_id,omitempty"`
	Name            string           `gorm:"not null;size:200" json:"name"`
	Description     string           `gorm:"type:text" json:"description"`
	Collection      string           `gorm:"not null;size:100;index:idx_rules_tenant_collection" json:"collection"`
	Filter          JSONB            `gorm:"type:jsonb;not null" json:"filter"`
	Severity        Severity         `gorm:"not null;size:20" json:"severity"`
	Enabled         bool             `gorm:"not null" json:"enabled"`
	Framework       string           `gorm:"size:50" json:"framework,omitempty"`
	ControlID       string           `gorm:"size:50;index" json:"control_id,omitempty"`
	Tags            JSONBStringArray `gorm:"type:jsonb" json:"tags"`
	ThresholdParams JSONB            `gorm:"type:jsonb" json:"threshold_params,omitempty"`
	Explanation     string           `gorm:"type:text" json:"explanation,omitempty"`
	CreatedAt       time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (Rule) TableName() string {
	return "rules"
}

// BeforeCreate 创建前钩子
func (r *Rule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Severity == "" {
		r.Severity = SeverityMedium
	}
	if r.Filter == nil {
		r.Filter = JSONB{}
	}
	return nil
}

// Summary 规则摘要 "名称: 描述"
func (r *Rule) Summary() string {
	return fmt.Sprintf("%s: %s", r.Name, r.Description)
}
