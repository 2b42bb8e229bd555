/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference DESIGN.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, decimal
 * @refs service/models
 */

package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"policyguard-service/service/database"
	"policyguard-service/service/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestTenant 默认测试租户
const TestTenant = "tenant-test"

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 内存库每个连接相互独立，限制为单连接
	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get sql db: %v", err))
	}
	sqlDB.SetMaxOpenConns(1)

	// 自动迁移所有模型
	if err := database.AutoMigrate(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"rules",
		"scan_runs",
		"violations",
		"scan_schedules",
		"control_catalog",
		"transactions",
		"accounts",
		"documents",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// RuleOption 规则选项函数类型
type RuleOption func(*models.Rule)

// CreateRule 创建测试规则，默认针对交易集合的现金大额规则
func (f *TestDataFactory) CreateRule(opts ...RuleOption) *models.Rule {
	rule := &models.Rule{
		TenantID:    TestTenant,
		Name:        "测试规则_" + generateSuffix(),
		Description: "这是一个测试规则",
		Collection:  models.CollectionTransactions,
		Filter: models.JSONB{
			"transaction_type": "CASH",
			"amount":           map[string]interface{}{"$gte": 1000000},
		},
		Severity: models.SeverityHigh,
		Enabled:  true,
		Tags:     models.JSONBStringArray{"test"},
	}

	// 应用选项
	for _, opt := range opts {
		opt(rule)
	}

	if err := f.DB.Create(rule).Error; err != nil {
		panic(fmt.Sprintf("failed to create test rule: %v", err))
	}
	return rule
}

// TransactionOption 交易选项函数类型
type TransactionOption func(*models.Transaction)

// WithAmount 设置交易金额
func WithAmount(amount float64) TransactionOption {
	return func(t *models.Transaction) { t.Amount = decimal.NewFromFloat(amount) }
}

// WithAccounts 设置交易的转出/转入账户
func WithAccounts(src, dst string) TransactionOption {
	return func(t *models.Transaction) {
		t.SrcAccount = src
		t.DstAccount = dst
	}
}

// WithTimestamp 设置交易时间
func WithTimestamp(ts time.Time) TransactionOption {
	return func(t *models.Transaction) { t.Timestamp = ts }
}

// WithType 设置交易类型
func WithType(txType string) TransactionOption {
	return func(t *models.Transaction) { t.TransactionType = txType }
}

// WithStatus 设置交易状态
func WithStatus(status string) TransactionOption {
	return func(t *models.Transaction) { t.Status = status }
}

// WithTenant 设置交易租户
func WithTenant(tenantID string) TransactionOption {
	return func(t *models.Transaction) { t.TenantID = tenantID }
}

// CreateTransaction 创建测试交易
func (f *TestDataFactory) CreateTransaction(opts ...TransactionOption) *models.Transaction {
	tx := &models.Transaction{
		TenantID:        TestTenant,
		TransactionID:   generateID("tx"),
		Timestamp:       time.Now().UTC(),
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		TransactionType: models.TransactionTypeCash,
		Channel:         "BRANCH",
		SrcAccount:      "A1",
		DstAccount:      "B1",
		Status:          models.TransactionStatusCompleted,
	}

	// 应用选项
	for _, opt := range opts {
		opt(tx)
	}

	if err := f.DB.Create(tx).Error; err != nil {
		panic(fmt.Sprintf("failed to create test transaction: %v", err))
	}

	return tx
}

// AccountOption 账户选项函数类型
type AccountOption func(*models.Account)

// CreateAccount 创建测试账户
func (f *TestDataFactory) CreateAccount(opts ...AccountOption) *models.Account {
	account := &models.Account{
		TenantID:    TestTenant,
		AccountID:   generateID("acc"),
		HolderName:  "测试账户",
		AccountType: "SAVINGS",
		Balance:     decimal.NewFromInt(1000),
		Status:      "ACTIVE",
		RiskScore:   10,
		Segment:     "RETAIL",
		Country:     "IN",
	}

	// 应用选项
	for _, opt := range opts {
		opt(account)
	}

	if err := f.DB.Create(account).Error; err != nil {
		panic(fmt.Sprintf("failed to create test account: %v", err))
	}

	return account
}

// CreateDocument 创建通用集合文档
func (f *TestDataFactory) CreateDocument(collection string, data map[string]interface{}) *models.GenericDocument {
	doc := &models.GenericDocument{
		TenantID:   TestTenant,
		Collection: collection,
		Data:       models.JSONB(data),
	}
	if err := f.DB.Create(doc).Error; err != nil {
		panic(fmt.Sprintf("failed to create test document: %v", err))
	}
	return doc
}

// ViolationOption 违规选项函数类型
type ViolationOption func(*models.Violation)

// CreateViolation 创建测试违规
func (f *TestDataFactory) CreateViolation(opts ...ViolationOption) *models.Violation {
	v := &models.Violation{
		TenantID:     TestTenant,
		ScanRunID:    generateID("run"),
		RuleID:       generateID("rule"),
		RuleName:     "测试规则",
		Collection:   models.CollectionTransactions,
		DocumentID:   generateID("doc"),
		DocumentData: models.JSONB{},
		Severity:     models.SeverityMedium,
		Explanation:  "测试违规",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(v)
	}

	// 创建钩子会把状态重置为 OPEN，其它状态创建后再更新
	status := v.Status
	if err := f.DB.Create(v).Error; err != nil {
		panic(fmt.Sprintf("failed to create test violation: %v", err))
	}
	if status != "" && status != models.ViolationStatusOpen {
		f.DB.Model(v).Update("status", status)
		v.Status = status
	}

	return v
}

// SeedControls 写入内置控制项目录
func (f *TestDataFactory) SeedControls() {
	if err := database.InitializeData(f.DB); err != nil {
		panic(fmt.Sprintf("failed to seed controls: %v", err))
	}
}

var idCounter atomic.Int64

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, idCounter.Add(1), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}
