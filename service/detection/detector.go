/*
 * @module service/detection/detector
 * @description 模式检测引擎，六个相互独立的时间窗口分组阈值检测器
 * @architecture 分层架构 - 领域服务层
 * @documentReference DESIGN.md
 * @stateFlow 读取窗口内交易/违规 -> 分组聚合 -> 阈值判断 -> 输出 PatternMatch
 * @rules 检测器只读且按租户隔离；无分组命中时返回空结果；输出顺序确定
 * @dependencies github.com/shopspring/decimal, golang.org/x/text
 * @refs service/scan/orchestrator.go, service/explain
 */

package detection

import (
	"context"
	"time"

	"policyguard-service/service/config"
	"policyguard-service/service/models"
	"policyguard-service/service/repository"

	"github.com/shopspring/decimal"
)

// 检测器合成规则ID
const (
	DetectorStructuring      = "PATTERN_STRUCTURING"
	DetectorRapidTransfers   = "PATTERN_RAPID_TRANSFERS"
	DetectorHighRiskAccount  = "PATTERN_HIGH_RISK_ACCOUNT"
	DetectorUnusualFrequency = "PATTERN_UNUSUAL_FREQUENCY"
	DetectorRoundAmount      = "PATTERN_ROUND_AMOUNT"
	DetectorDailyStructuring = "PATTERN_DAILY_STRUCTURING"
)

// PatternMatch 检测器输出的单个分组
type PatternMatch interface {
	// GroupKey 分组键，作为违规的 document_id
	GroupKey() string
	// DocumentData 分组完整聚合数据，作为违规的 document_data 快照
	DocumentData() map[string]interface{}
	// Explanation 由分组字段生成的说明
	Explanation() string
}

// Detector 模式检测器
type Detector interface {
	ID() string
	Name() string
	Severity() models.Severity
	Collection() string
	Detect(ctx context.Context, tenantID string, now time.Time) ([]PatternMatch, error)
}

// TransactionSource 交易读取
type TransactionSource interface {
	ListTransactions(ctx context.Context, q repository.TransactionQuery) ([]models.Transaction, error)
}

// ViolationSource 历史违规读取
type ViolationSource interface {
	ListViolationsSince(ctx context.Context, tenantID string, since time.Time, statuses []models.ViolationStatus) ([]models.Violation, error)
}

// DataSource 检测器所需的全部读取能力
type DataSource interface {
	TransactionSource
	ViolationSource
}

// NewDetectors 按固定顺序创建启用的检测器
func NewDetectors(cfg config.DetectorsConfig, src DataSource) []Detector {
	var detectors []Detector
	if cfg.Structuring.Enabled {
		detectors = append(detectors, &StructuringDetector{meta: meta{DetectorStructuring}, cfg: cfg.Structuring, src: src})
	}
	if cfg.RapidTransfers.Enabled {
		detectors = append(detectors, &RapidTransfersDetector{meta: meta{DetectorRapidTransfers}, cfg: cfg.RapidTransfers, src: src})
	}
	if cfg.HighRiskAccount.Enabled {
		detectors = append(detectors, &HighRiskAccountDetector{meta: meta{DetectorHighRiskAccount}, cfg: cfg.HighRiskAccount, src: src})
	}
	if cfg.UnusualFrequency.Enabled {
		detectors = append(detectors, &UnusualFrequencyDetector{meta: meta{DetectorUnusualFrequency}, cfg: cfg.UnusualFrequency, src: src})
	}
	if cfg.RoundAmount.Enabled {
		detectors = append(detectors, &RoundAmountDetector{meta: meta{DetectorRoundAmount}, cfg: cfg.RoundAmount, src: src})
	}
	if cfg.DailyStructuring.Enabled {
		detectors = append(detectors, &DailyStructuringDetector{meta: meta{DetectorDailyStructuring}, cfg: cfg.DailyStructuring, src: src})
	}
	return detectors
}

// Info 检测器元数据，解释服务用它构造合成规则
type Info struct {
	ID          string
	Name        string
	Description string
	Severity    models.Severity
	Collection  string
}

// Catalog 全部检测器的元数据
func Catalog() []Info {
	return []Info{
		{DetectorStructuring, "Structuring Pattern", "Multiple completed transactions just below the reporting threshold from one account", models.SeverityCritical, models.CollectionTransactions},
		{DetectorRapidTransfers, "Rapid Transfers", "Repeated wire/ACH transfers between the same account pair in a short window", models.SeverityHigh, models.CollectionTransactions},
		{DetectorHighRiskAccount, "High-Risk Account", "Account accumulating many open or confirmed violations", models.SeverityHigh, "violations"},
		{DetectorUnusualFrequency, "Unusual Transaction Frequency", "Recent transaction count far above the account's historical average", models.SeverityMedium, models.CollectionTransactions},
		{DetectorRoundAmount, "Round Amount Clustering", "Repeated large transactions in exact round amounts", models.SeverityMedium, models.CollectionTransactions},
		{DetectorDailyStructuring, "Daily Structuring", "Several same-day transactions whose total stays under the reporting threshold", models.SeverityCritical, models.CollectionTransactions},
	}
}

// LookupInfo 按ID查找检测器元数据
func LookupInfo(id string) (Info, bool) {
	for _, info := range Catalog() {
		if info.ID == id {
			return info, true
		}
	}
	return Info{}, false
}

func infoOf(id string) Info {
	info, _ := LookupInfo(id)
	return info
}

// TransactionRef 分组内的交易摘要
type TransactionRef struct {
	TransactionID   string
	Amount          decimal.Decimal
	Timestamp       time.Time
	TransactionType string
}

func refOf(t *models.Transaction) TransactionRef {
	return TransactionRef{
		TransactionID:   t.TransactionID,
		Amount:          t.Amount,
		Timestamp:       t.Timestamp.UTC(),
		TransactionType: t.TransactionType,
	}
}

func (r TransactionRef) toMap(withType bool) map[string]interface{} {
	m := map[string]interface{}{
		"transaction_id": r.TransactionID,
		"amount":         r.Amount.InexactFloat64(),
		"timestamp":      r.Timestamp.Format(time.RFC3339),
	}
	if withType {
		m["transaction_type"] = r.TransactionType
	}
	return m
}

func refsToMaps(refs []TransactionRef, withType bool) []interface{} {
	out := make([]interface{}, len(refs))
	for i, r := range refs {
		out[i] = r.toMap(withType)
	}
	return out
}

func sumRefs(refs []TransactionRef) decimal.Decimal {
	total := decimal.Zero
	for _, r := range refs {
		total = total.Add(r.Amount)
	}
	return total
}

// inWindow 交易时间是否落在 [since, now]
func inWindow(ts, since, now time.Time) bool {
	return !ts.Before(since) && !ts.After(now)
}

// meta 检测器公共元数据方法
type meta struct {
	id string
}

func (m meta) ID() string                { return m.id }
func (m meta) Name() string              { return infoOf(m.id).Name }
func (m meta) Severity() models.Severity { return infoOf(m.id).Severity }
func (m meta) Collection() string        { return infoOf(m.id).Collection }

func completedOnly() []string {
	return []string{models.TransactionStatusCompleted}
}
