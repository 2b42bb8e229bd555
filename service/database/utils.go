package database

import (
	"fmt"
	"log/slog"
	"strings"

	"policyguard-service/service/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置打开数据库连接，支持 postgres 与 sqlite
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.PostgresDSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// 内存库每个连接相互独立
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.Schema != "" && cfg.Schema != "public" {
			if err := CreateSchema(db, cfg.Schema); err != nil {
				return nil, err
			}
		}
	}

	slog.Info("数据库连接成功", "driver", cfg.Driver)
	return db, nil
}

// CheckSchemaExists 检查 schema 是否存在
func CheckSchemaExists(db *gorm.DB, schemaName string) bool {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", schemaName).Scan(&count)
	return count > 0
}

// CreateSchema 创建 schema（已存在时跳过）
func CreateSchema(db *gorm.DB, schemaName string) error {
	if CheckSchemaExists(db, schemaName) {
		return nil
	}
	slog.Info("开始创建 schema", "schema", schemaName)

	// 使用双引号避免保留关键字问题
	quoted := strings.ReplaceAll(schemaName, `"`, `""`)
	createSchemaSQL := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS \"%s\";", quoted)
	if err := db.Exec(createSchemaSQL).Error; err != nil {
		return fmt.Errorf("创建 schema %s 失败: %w", schemaName, err)
	}

	slog.Info("成功创建 schema", "schema", schemaName)
	return nil
}
