package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ViolationStatus 违规复核状态，与扫描运行状态相互独立
type ViolationStatus string

const (
	ViolationStatusOpen          ViolationStatus = "OPEN"
	ViolationStatusConfirmed     ViolationStatus = "CONFIRMED"
	ViolationStatusDismissed     ViolationStatus = "DISMISSED"
	ViolationStatusFalsePositive ViolationStatus = "FALSE_POSITIVE"
)

// ParseViolationStatus 解析复核状态
func ParseViolationStatus(s string) (ViolationStatus, error) {
	status := ViolationStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case ViolationStatusOpen, ViolationStatusConfirmed, ViolationStatusDismissed, ViolationStatusFalsePositive:
		return status, nil
	}
	return "", fmt.Errorf("无效的违规状态: %s", s)
}

// Violation 违规记录，由扫描期间的物化器创建
type Violation struct {
	ID           string          `gorm:"type:uuid;primary_key" json:"id"`
	TenantID     string          `gorm:"not null;size:100;index:idx_violations_tenant_run" json:"tenant_id"`
	ScanRunID    string          `gorm:"not null;size:64;index:idx_violations_tenant_run" json:"scan_run_id"`
	RuleID       string          `gorm:"not null;size:64;index" json:"rule_id"`
	RuleName     string          `gorm:"not null;size:200" json:"rule_name"`
	Collection   string          `gorm:"not null;size:100" json:"collection"`
	DocumentID   string          `gorm:"not null;size:200" json:"document_id"`
	DocumentData JSONB           `gorm:"type:jsonb" json:"document_data"`
	Severity     Severity        `gorm:"not null;size:20;index" json:"severity"`
	Status       ViolationStatus `gorm:"not null;size:20;index" json:"status"`
	Explanation  string          `gorm:"type:text" json:"explanation"`
	ReviewerNote *string         `gorm:"type:text" json:"reviewer_note,omitempty"`
	ReviewedBy   *string         `gorm:"size:100" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (Violation) TableName() string {
	return "violations"
}

// BeforeCreate 创建前钩子，新建违规一律为 OPEN
func (v *Violation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.Status = ViolationStatusOpen
	return nil
}

// ViolationReview 复核更新
type ViolationReview struct {
	Status       ViolationStatus `json:"status"`
	ReviewerNote *string         `json:"reviewer_note,omitempty"`
	ReviewedBy   string          `json:"reviewed_by"`
}

// ViolationQuery 违规列表查询条件
type ViolationQuery struct {
	ScanRunID string
	RuleID    string
	Severity  Severity
	Status    ViolationStatus
	Page      int
	Size      int
}
