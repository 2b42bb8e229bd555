package scan

import (
	"context"
	"fmt"

	"policyguard-service/service/detection"
	"policyguard-service/service/filter"
	"policyguard-service/service/models"
)

// ViolationWriter 违规批量写入
type ViolationWriter interface {
	InsertViolations(ctx context.Context, violations []models.Violation, batchSize int) (int, error)
}

// Materializer 将规则命中文档或检测分组写为违规记录
type Materializer struct {
	writer    ViolationWriter
	batchSize int
}

// NewMaterializer 创建违规物化器
func NewMaterializer(writer ViolationWriter, batchSize int) *Materializer {
	return &Materializer{writer: writer, batchSize: batchSize}
}

// RuleExplanation 规则命中的说明文本
func RuleExplanation(rule *models.Rule) string {
	if rule.Explanation != "" {
		return rule.Explanation
	}
	return fmt.Sprintf("Document matched rule criteria: %s", rule.Name)
}

// FromDocuments 每个命中文档生成一条违规，返回写入数量
func (m *Materializer) FromDocuments(ctx context.Context, run *models.ScanRun, rule *models.Rule, docs []filter.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	explanation := RuleExplanation(rule)
	violations := make([]models.Violation, 0, len(docs))
	for _, doc := range docs {
		documentID := doc.ID()
		if documentID == "" {
			documentID = "unknown"
		}
		violations = append(violations, models.Violation{
			TenantID:     run.TenantID,
			ScanRunID:    run.ID,
			RuleID:       rule.ID,
			RuleName:     rule.Name,
			Collection:   rule.Collection,
			DocumentID:   documentID,
			DocumentData: models.JSONB(doc).Clone(),
			Severity:     rule.Severity,
			Status:       models.ViolationStatusOpen,
			Explanation:  explanation,
		})
	}
	return m.writer.InsertViolations(ctx, violations, m.batchSize)
}

// FromPatterns 每个检测分组生成一条违规，快照为分组的完整聚合数据
func (m *Materializer) FromPatterns(ctx context.Context, run *models.ScanRun, d detection.Detector, matches []detection.PatternMatch) (int, error) {
	if len(matches) == 0 {
		return 0, nil
	}
	violations := make([]models.Violation, 0, len(matches))
	for _, match := range matches {
		violations = append(violations, models.Violation{
			TenantID:     run.TenantID,
			ScanRunID:    run.ID,
			RuleID:       d.ID(),
			RuleName:     d.Name(),
			Collection:   d.Collection(),
			DocumentID:   match.GroupKey(),
			DocumentData: models.JSONB(match.DocumentData()),
			Severity:     d.Severity(),
			Status:       models.ViolationStatusOpen,
			Explanation:  match.Explanation(),
		})
	}
	return m.writer.InsertViolations(ctx, violations, m.batchSize)
}
