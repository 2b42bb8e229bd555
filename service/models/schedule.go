package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScanSchedule 周期扫描计划
type ScanSchedule struct {
	ID             string           `gorm:"type:uuid;primary_key" json:"id"`
	TenantID       string           `gorm:"not null;size:100;index" json:"tenant_id"`
	Name           string           `gorm:"not null;size:200" json:"name"`
	Description    string           `gorm:"type:text" json:"description"`
	CronExpression string           `gorm:"not null;size:100" json:"cron_expression"`
	Collections    JSONBStringArray `gorm:"type:jsonb" json:"collections"`
	RuleIDs        JSONBStringArray `gorm:"type:jsonb" json:"rule_ids"`
	Enabled        bool             `gorm:"not null" json:"enabled"`
	LastRunAt      *time.Time       `json:"last_run_at,omitempty"`
	LastScanRunID  *string          `gorm:"size:64" json:"last_scan_run_id,omitempty"`
	NextRunAt      *time.Time       `json:"next_run_at,omitempty"`
	CreatedAt      time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (ScanSchedule) TableName() string {
	return "scan_schedules"
}

// BeforeCreate 创建前钩子
func (s *ScanSchedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
