/*
 * @module service/models/transaction
 * @description 租户业务数据模型：交易、账户以及其它集合的通用文档
 * @architecture 分层架构 - 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow 数据由外部导入流程写入，扫描引擎只读
 * @rules 金额使用 decimal 存储；时间戳统一为 UTC；每条记录必须携带 tenant_id
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/shopspring/decimal
 * @refs service/repository, service/detection
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 交易类型与状态
const (
	TransactionTypeCash = "CASH"
	TransactionTypeWire = "WIRE"
	TransactionTypeACH  = "ACH"

	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusPending   = "PENDING"
	TransactionStatusFailed    = "FAILED"
)

// Transaction 交易记录
type Transaction struct {
	ID              string          `gorm:"type:uuid;primary_key" json:"id"`
	TenantID        string          `gorm:"not null;size:100;index:idx_tx_tenant_time" json:"tenant_id"`
	TransactionID   string          `gorm:"not null;size:100" json:"transaction_id"`
	Timestamp       time.Time       `gorm:"not null;index:idx_tx_tenant_time" json:"timestamp"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency        string          `gorm:"size:10" json:"currency"`
	TransactionType string          `gorm:"size:20;index" json:"transaction_type"`
	Channel         string          `gorm:"size:50" json:"channel"`
	SrcAccount      string          `gorm:"size:100;index" json:"src_account"`
	DstAccount      string          `gorm:"size:100" json:"dst_account"`
	Description     string          `gorm:"type:text" json:"description"`
	Status          string          `gorm:"size:20;index" json:"status"`
	Country         string          `gorm:"size:10" json:"country,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return CollectionTransactions
}

// BeforeCreate 创建前钩子
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.TransactionID == "" {
		t.TransactionID = t.ID
	}
	t.Timestamp = t.Timestamp.UTC()
	return nil
}

// Document 转换为扫描文档视图，金额以 float64 暴露给过滤条件
func (t *Transaction) Document() map[string]interface{} {
	return map[string]interface{}{
		"id":               t.ID,
		"tenant_id":        t.TenantID,
		"transaction_id":   t.TransactionID,
		"timestamp":        t.Timestamp.UTC(),
		"amount":           t.Amount.InexactFloat64(),
		"currency":         t.Currency,
		"transaction_type": t.TransactionType,
		"channel":          t.Channel,
		"src_account":      t.SrcAccount,
		"dst_account":      t.DstAccount,
		"description":      t.Description,
		"status":           t.Status,
		"country":          t.Country,
	}
}

// Account 账户记录
type Account struct {
	ID          string          `gorm:"type:uuid;primary_key" json:"id"`
	TenantID    string          `gorm:"not null;size:100;index" json:"tenant_id"`
	AccountID   string          `gorm:"not null;size:100;index" json:"account_id"`
	HolderName  string          `gorm:"size:200" json:"holder_name"`
	AccountType string          `gorm:"size:50" json:"account_type"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,2)" json:"balance"`
	Status      string          `gorm:"size:20" json:"status"`
	RiskScore   float64         `json:"risk_score"`
	Segment     string          `gorm:"size:50" json:"segment"`
	Country     string          `gorm:"size:10" json:"country"`
	IsPEP       bool            `json:"is_pep"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (Account) TableName() string {
	return CollectionAccounts
}

// BeforeCreate 创建前钩子
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// Document 转换为扫描文档视图
func (a *Account) Document() map[string]interface{} {
	return map[string]interface{}{
		"id":           a.ID,
		"tenant_id":    a.TenantID,
		"account_id":   a.AccountID,
		"holder_name":  a.HolderName,
		"account_type": a.AccountType,
		"balance":      a.Balance.InexactFloat64(),
		"status":       a.Status,
		"risk_score":   a.RiskScore,
		"segment":      a.Segment,
		"country":      a.Country,
		"is_pep":       a.IsPEP,
	}
}

// GenericDocument 其它集合（如 payroll）的通用文档，字段以 JSON 存储
type GenericDocument struct {
	ID         string    `gorm:"type:uuid;primary_key" json:"id"`
	TenantID   string    `gorm:"not null;size:100;index:idx_documents_tenant_collection" json:"tenant_id"`
	Collection string    `gorm:"not null;size:100;index:idx_documents_tenant_collection" json:"collection"`
	Data       JSONB     `gorm:"type:jsonb;not null" json:"data"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (GenericDocument) TableName() string {
	return "documents"
}

// BeforeCreate 创建前钩子
func (g *GenericDocument) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}

// Document 转换为扫描文档视图，存储 id 覆盖数据中的同名字段
func (g *GenericDocument) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(g.Data)+2)
	for k, v := range g.Data {
		doc[k] = v
	}
	doc["id"] = g.ID
	doc["tenant_id"] = g.TenantID
	return doc
}
