package scan

import (
	"context"
	"fmt"

	"policyguard-service/service/filter"
	"policyguard-service/service/models"
)

// DocumentStore 规则求值所需的文档读取能力
type DocumentStore interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	QueryDocuments(ctx context.Context, tenantID, collection string, expr filter.Expr) ([]filter.Document, error)
}

// Evaluator 规则求值器
type Evaluator struct {
	store DocumentStore
}

// NewEvaluator 创建规则求值器
func NewEvaluator(store DocumentStore) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate 返回目标集合中满足 租户条件 AND 规则过滤条件 的文档
// 目标集合不存在时返回空结果
func (e *Evaluator) Evaluate(ctx context.Context, rule *models.Rule) ([]filter.Document, error) {
	ruleExpr, err := filter.Parse(rule.Filter)
	if err != nil {
		return nil, fmt.Errorf("解析规则 %s 过滤条件失败: %w", rule.ID, err)
	}

	exists, err := e.store.CollectionExists(ctx, rule.Collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	expr := filter.Conjoin(filter.Equals{Field: "tenant_id", Value: rule.TenantID}, ruleExpr)
	docs, err := e.store.QueryDocuments(ctx, rule.TenantID, rule.Collection, expr)
	if err != nil {
		return nil, fmt.Errorf("执行规则 %s 查询失败: %w", rule.ID, err)
	}
	return docs, nil
}
