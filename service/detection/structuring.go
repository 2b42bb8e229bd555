package detection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"policyguard-service/service/config"
	"policyguard-service/service/models"
	"policyguard-service/service/repository"

	"github.com/shopspring/decimal"
)

// StructuringMatch 单账户窗口内多笔略低于申报阈值的交易
type StructuringMatch struct {
	AccountID        string
	TransactionCount int
	TotalAmount      decimal.Decimal
	Transactions     []TransactionRef
	TimeSpanHours    float64
}

func (m *StructuringMatch) GroupKey() string { return m.AccountID }

func (m *StructuringMatch) DocumentData() map[string]interface{} {
	return map[string]interface{}{
		"account_id":        m.AccountID,
		"transaction_count": m.TransactionCount,
		"total_amount":      m.TotalAmount.InexactFloat64(),
		"transactions":      refsToMaps(m.Transactions, true),
		"time_span_hours":   m.TimeSpanHours,
	}
}

func (m *StructuringMatch) Explanation() string {
	return fmt.Sprintf("Account %s made %d transactions just below the reporting threshold totalling %s within %s hours",
		m.AccountID, m.TransactionCount, FormatAmount(m.TotalAmount), FormatFloat(m.TimeSpanHours, 1))
}

// StructuringDetector 拆分交易检测器
type StructuringDetector struct {
	meta
	cfg config.StructuringConfig
	src TransactionSource
}

func (d *StructuringDetector) Detect(ctx context.Context, tenantID string, now time.Time) ([]PatternMatch, error) {
	since := now.Add(-time.Duration(d.cfg.WindowHours) * time.Hour)
	txs, err := d.src.ListTransactions(ctx, repository.TransactionQuery{
		TenantID: tenantID,
		Since:    since,
		Until:    now,
		Statuses: completedOnly(),
	})
	if err != nil {
		return nil, fmt.Errorf("读取拆分交易检测数据失败: %w", err)
	}
	groups := GroupStructuring(txs, d.cfg, now)
	matches := make([]PatternMatch, len(groups))
	for i, g := range groups {
		matches[i] = g
	}
	return matches, nil
}

// GroupStructuring 按转出账户分组，金额区间 [MinAmount, MaxAmount)
func GroupStructuring(txs []models.Transaction, cfg config.StructuringConfig, now time.Time) []*StructuringMatch {
	since := now.Add(-time.Duration(cfg.WindowHours) * time.Hour)
	minAmount := decimal.NewFromFloat(cfg.MinAmount)
	maxAmount := decimal.NewFromFloat(cfg.MaxAmount)

	byAccount := make(map[string][]TransactionRef)
	for i := range txs {
		t := &txs[i]
		if t.Status != models.TransactionStatusCompleted || t.SrcAccount == "" {
			continue
		}
		if !inWindow(t.Timestamp, since, now) {
			continue
		}
		if t.Amount.LessThan(minAmount) || !t.Amount.LessThan(maxAmount) {
			continue
		}
		byAccount[t.SrcAccount] = append(byAccount[t.SrcAccount], refOf(t))
	}

	var matches []*StructuringMatch
	for account, refs := range byAccount {
		if len(refs) < cfg.MinCount {
			continue
		}
		sortRefs(refs)
		matches = append(matches, &StructuringMatch{
			AccountID:        account,
			TransactionCount: len(refs),
			TotalAmount:      sumRefs(refs),
			Transactions:     refs,
			TimeSpanHours:    refs[len(refs)-1].Timestamp.Sub(refs[0].Timestamp).Hours(),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].AccountID < matches[j].AccountID })
	return matches
}

// sortRefs 按时间升序，同一时间按交易ID
func sortRefs(refs []TransactionRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if !refs[i].Timestamp.Equal(refs[j].Timestamp) {
			return refs[i].Timestamp.Before(refs[j].Timestamp)
		}
		return refs[i].TransactionID < refs[j].TransactionID
	})
}
