/*
 * @module service/models/scan
 * @description 扫描运行记录模型及扫描请求/结果摘要
 * @architecture 分层架构 - 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow PENDING -> RUNNING -> COMPLETED | RUNNING -> FAILED
 * @rules 终态（COMPLETED/FAILED）不可再修改；只有编排器修改扫描记录
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/scan/orchestrator.go
 */

package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScanStatus 扫描运行状态
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "PENDING"
	ScanStatusRunning   ScanStatus = "RUNNING"
	ScanStatusCompleted ScanStatus = "COMPLETED"
	ScanStatusFailed    ScanStatus = "FAILED"
)

// Terminal 是否为终态
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// RuleScanResult 单条规则的执行结果
type RuleScanResult struct {
	RuleID          string `json:"rule_id"`
	RuleName        string `json:"rule_name"`
	Collection      string `json:"collection"`
	ViolationsFound int    `json:"violations_found"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// PatternScanResult 单个模式检测器的执行结果
type PatternScanResult struct {
	DetectorID      string `json:"detector_id"`
	DetectorName    string `json:"detector_name"`
	ViolationsFound int    `json:"violations_found"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// RuleScanResults 规则结果列表（JSONB 存储）
type RuleScanResults []RuleScanResult

// PatternScanResults 检测器结果列表（JSONB 存储）
type PatternScanResults []PatternScanResult

func (r *RuleScanResults) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	return scanJSON(value, r)
}

func (r RuleScanResults) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

func (p *PatternScanResults) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	return scanJSON(value, p)
}

func (p PatternScanResults) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// ScanRun 扫描运行记录
type ScanRun struct {
	ID                   string             `gorm:"type:uuid;primary_key" json:"id"`
	TenantID             string             `gorm:"not null;size:100;index" json:"tenant_id"`
	Status               ScanStatus         `gorm:"not null;size:20;index" json:"status"`
	StartedAt            time.Time          `gorm:"not null" json:"started_at"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
	CollectionsScanned   JSONBStringArray   `gorm:"type:jsonb" json:"collections_scanned"`
	TotalRulesExecuted   int                `gorm:"not null;default:0" json:"total_rules_executed"`
	TotalViolationsFound int                `gorm:"not null;default:0" json:"total_violations_found"`
	RuleResults          RuleScanResults    `gorm:"type:jsonb" json:"rule_results"`
	PatternResults       PatternScanResults `gorm:"type:jsonb" json:"pattern_results"`
	ErrorMessage         *string            `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (ScanRun) TableName() string {
	return "scan_runs"
}

// BeforeCreate 创建前钩子
func (s *ScanRun) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = ScanStatusPending
	}
	return nil
}

// ScanRequest 扫描请求
type ScanRequest struct {
	TenantID    string   `json:"tenant_id"`
	Collections []string `json:"collections,omitempty"`
	RuleIDs     []string `json:"rule_ids,omitempty"`
}

// ScanSummary 扫描结果摘要
type ScanSummary struct {
	ScanRunID            string              `json:"scan_run_id"`
	Status               ScanStatus          `json:"status"`
	TotalRulesExecuted   int                 `json:"total_rules_executed"`
	TotalViolationsFound int                 `json:"total_violations_found"`
	ExecutionTimeSeconds float64             `json:"execution_time_seconds"`
	RuleResults          []RuleScanResult    `json:"rule_results"`
	PatternResults       []PatternScanResult `json:"pattern_results"`
}
