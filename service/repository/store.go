/*
 * @module service/repository/store
 * @description 数据存储适配器，提供租户隔离的集合查询、交易/违规读取、违规批量写入与扫描记录读写
 * @architecture 分层架构 - 数据访问层
 * @documentReference DESIGN.md
 * @stateFlow 规则求值/模式检测读取 -> 物化器批量写入 -> 编排器更新扫描记录
 * @rules 所有查询必须带 tenant_id；扫描记录进入终态后不可再更新
 * @dependencies gorm.io/gorm, policyguard-service/service/filter
 * @refs service/scan, service/detection
 */

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"policyguard-service/service/filter"
	"policyguard-service/service/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrRunNotActive 扫描记录已处于终态
	ErrRunNotActive = errors.New("scan run is not active")
)

const queryBatchSize = 1000

// 可下推到 SQL 的等值字段（仅字符串值）
var (
	transactionColumns = map[string]bool{
		"transaction_id": true, "transaction_type": true, "status": true, "currency": true,
		"channel": true, "src_account": true, "dst_account": true, "country": true,
	}
	accountColumns = map[string]bool{
		"account_id": true, "account_type": true, "status": true, "segment": true, "country": true,
	}
)

// GormStore 基于 gorm 的存储实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建存储实例
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB 返回底层连接
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// CollectionExists 判断目标集合是否存在
func (s *GormStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	db := s.db.WithContext(ctx)
	switch collection {
	case models.CollectionTransactions:
		return db.Migrator().HasTable(&models.Transaction{}), nil
	case models.CollectionAccounts:
		return db.Migrator().HasTable(&models.Account{}), nil
	}

	if !db.Migrator().HasTable(&models.GenericDocument{}) {
		return false, nil
	}
	var count int64
	if err := db.Model(&models.GenericDocument{}).Where("collection = ?", collection).Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("检查集合 %s 失败: %w", collection, err)
	}
	return count > 0, nil
}

// QueryDocuments 在目标集合中查询满足表达式的文档
//
// 租户条件与字符串等值条件下推到 SQL，其余条件在内存中逐文档求值。
// 调用方负责把租户条件合并进 expr。
func (s *GormStore) QueryDocuments(ctx context.Context, tenantID, collection string, expr filter.Expr) ([]filter.Document, error) {
	pushdown := filter.EqualityConjuncts(expr)
	var matched []filter.Document

	collect := func(doc map[string]interface{}) {
		d := filter.Document(doc)
		if expr.Match(d) {
			matched = append(matched, d)
		}
	}

	db := s.db.WithContext(ctx)
	switch collection {
	case models.CollectionTransactions:
		var batch []models.Transaction
		q := applyPushdown(db.Model(&models.Transaction{}).Where("tenant_id = ?", tenantID), pushdown, transactionColumns)
		err := q.FindInBatches(&batch, queryBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				collect(batch[i].Document())
			}
			return nil
		}).Error
		if err != nil {
			return nil, fmt.Errorf("查询交易集合失败: %w", err)
		}
	case models.CollectionAccounts:
		var batch []models.Account
		q := applyPushdown(db.Model(&models.Account{}).Where("tenant_id = ?", tenantID), pushdown, accountColumns)
		err := q.FindInBatches(&batch, queryBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				collect(batch[i].Document())
			}
			return nil
		}).Error
		if err != nil {
			return nil, fmt.Errorf("查询账户集合失败: %w", err)
		}
	default:
		var batch []models.GenericDocument
		q := db.Model(&models.GenericDocument{}).Where("tenant_id = ? AND collection = ?", tenantID, collection)
		err := q.FindInBatches(&batch, queryBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				collect(batch[i].Document())
			}
			return nil
		}).Error
		if err != nil {
			return nil, fmt.Errorf("查询集合 %s 失败: %w", collection, err)
		}
	}
	return matched, nil
}

func applyPushdown(q *gorm.DB, pushdown map[string]interface{}, columns map[string]bool) *gorm.DB {
	for field, value := range pushdown {
		str, ok := value.(string)
		if !ok || !columns[field] {
			continue
		}
		q = q.Where(fmt.Sprintf("%s = ?", field), str)
	}
	return q
}

// TransactionQuery 交易查询条件
type TransactionQuery struct {
	TenantID string
	Since    time.Time
	Until    time.Time
	Statuses []string
	Types    []string
}

// ListTransactions 按时间窗口 [Since, Until] 读取交易，结果按时间升序
func (s *GormStore) ListTransactions(ctx context.Context, q TransactionQuery) ([]models.Transaction, error) {
	db := s.db.WithContext(ctx).Where("tenant_id = ?", q.TenantID)
	if !q.Since.IsZero() {
		db = db.Where("timestamp >= ?", q.Since.UTC())
	}
	if !q.Until.IsZero() {
		db = db.Where("timestamp <= ?", q.Until.UTC())
	}
	if len(q.Statuses) > 0 {
		db = db.Where("status IN ?", q.Statuses)
	}
	if len(q.Types) > 0 {
		db = db.Where("transaction_type IN ?", q.Types)
	}

	var txs []models.Transaction
	if err := db.Order("timestamp, id").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("读取交易失败: %w", err)
	}
	return txs, nil
}

// ListViolationsSince 读取指定时间之后、处于给定复核状态的违规
func (s *GormStore) ListViolationsSince(ctx context.Context, tenantID string, since time.Time, statuses []models.ViolationStatus) ([]models.Violation, error) {
	db := s.db.WithContext(ctx).Where("tenant_id = ? AND created_at >= ?", tenantID, since.UTC())
	if len(statuses) > 0 {
		db = db.Where("status IN ?", statuses)
	}
	var violations []models.Violation
	if err := db.Order("created_at, id").Find(&violations).Error; err != nil {
		return nil, fmt.Errorf("读取历史违规失败: %w", err)
	}
	return violations, nil
}

// InsertViolations 分批写入违规，返回已成功写入的数量
// 某一批失败时停止写入并返回错误，之前的批次不回滚
func (s *GormStore) InsertViolations(ctx context.Context, violations []models.Violation, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = len(violations)
	}
	created := 0
	for start := 0; start < len(violations); start += batchSize {
		end := start + batchSize
		if end > len(violations) {
			end = len(violations)
		}
		chunk := violations[start:end]
		if err := s.db.WithContext(ctx).Create(&chunk).Error; err != nil {
			return created, fmt.Errorf("批量写入违规失败（已写入 %d 条）: %w", created, err)
		}
		created += len(chunk)
	}
	return created, nil
}
