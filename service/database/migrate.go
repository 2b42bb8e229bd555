/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构并写入控制项目录
 * @architecture 数据访问层 - 迁移管理
 * @documentReference DESIGN.md
 * @stateFlow 应用启动时执行数据库迁移 -> 初始化基础数据
 * @rules 确保数据库结构与模型定义保持一致；基础数据写入可重复执行
 * @dependencies policyguard-service/service/models, gorm.io/gorm
 * @refs service/init.go
 */

package database

import (
	"fmt"
	"log/slog"

	"policyguard-service/service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	slog.Info("开始数据库迁移...")

	// 规则与扫描相关表
	err := db.AutoMigrate(
		&models.Rule{},
		&models.ScanRun{},
		&models.Violation{},
		&models.ScanSchedule{},
		&models.ControlMetadata{},
	)
	if err != nil {
		return fmt.Errorf("迁移规则与扫描表失败: %w", err)
	}

	// 租户业务数据表
	err = db.AutoMigrate(
		&models.Transaction{},
		&models.Account{},
		&models.GenericDocument{},
	)
	if err != nil {
		return fmt.Errorf("迁移业务数据表失败: %w", err)
	}

	slog.Info("数据库迁移完成")
	return nil
}

// InitializeData 初始化基础数据，已存在的控制项保持不变
func InitializeData(db *gorm.DB) error {
	slog.Info("开始初始化基础数据...")

	controls := DefaultControls()
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&controls).Error
	if err != nil {
		return fmt.Errorf("初始化控制项目录失败: %w", err)
	}

	slog.Info("基础数据初始化完成", "controls", len(controls))
	return nil
}
