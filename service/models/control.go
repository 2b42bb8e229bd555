package models

import (
	"time"
)

// ControlMetadata 合规控制项目录，用于从控制项生成规则以及解释中的数据集映射
type ControlMetadata struct {
	ControlID           string    `gorm:"primary_key;size:50" json:"control_id"`
	Title               string    `gorm:"not null;size:200" json:"title"`
	Description         string    `gorm:"type:text" json:"description"`
	RegulatoryReference string    `gorm:"size:200" json:"regulatory_reference"`
	RiskLevel           Severity  `gorm:"size:20" json:"risk_level"`
	Collection          string    `gorm:"size:100" json:"collection"`
	ThresholdParams     JSONB     `gorm:"type:jsonb" json:"threshold_params"`
	CreatedAt           time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (ControlMetadata) TableName() string {
	return "control_catalog"
}
