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

// dayLayout 日期分组键，按 UTC 自然日
const dayLayout = "2006-01-02"

// DailyStructuringMatch 单账户单日多笔交易且日合计低于申报阈值
type DailyStructuringMatch struct {
	AccountID        string
	Day              string
	TransactionCount int
	DailyTotal       decimal.Decimal
	Transactions     []TransactionRef
}

func (m *DailyStructuringMatch) GroupKey() string { return m.AccountID + ":" + m.Day }

func (m *DailyStructuringMatch) DocumentData() map[string]interface{} {
	return map[string]interface{}{
		"account_id":        m.AccountID,
		"day":               m.Day,
		"transaction_count": m.TransactionCount,
		"daily_total":       m.DailyTotal.InexactFloat64(),
		"transactions":      refsToMaps(m.Transactions, true),
	}
}

func (m *DailyStructuringMatch) Explanation() string {
	return fmt.Sprintf("Account %s made %d transactions on %s totalling %s, staying under the daily reporting threshold",
		m.AccountID, m.TransactionCount, m.Day, FormatAmount(m.DailyTotal))
}

// DailyStructuringDetector 单日拆分检测器
type DailyStructuringDetector struct {
	meta
	cfg config.DailyStructuringConfig
	src TransactionSource
}

func (d *DailyStructuringDetector) Detect(ctx context.Context, tenantID string, now time.Time) ([]PatternMatch, error) {
	txs, err := d.src.ListTransactions(ctx, repository.TransactionQuery{
		TenantID: tenantID,
		Since:    now.AddDate(0, 0, -d.cfg.WindowDays),
		Until:    now,
		Statuses: completedOnly(),
	})
	if err != nil {
		return nil, fmt.Errorf("读取单日拆分检测数据失败: %w", err)
	}
	groups := GroupDailyStructuring(txs, d.cfg, now)
	matches := make([]PatternMatch, len(groups))
	for i, g := range groups {
		matches[i] = g
	}
	return matches, nil
}

type accountDay struct {
	account, day string
}

// GroupDailyStructuring 按 (账户, UTC 日期) 分组
func GroupDailyStructuring(txs []models.Transaction, cfg config.DailyStructuringConfig, now time.Time) []*DailyStructuringMatch {
	since := now.AddDate(0, 0, -cfg.WindowDays)
	maxTotal := decimal.NewFromFloat(cfg.MaxDailyTotal)

	byDay := make(map[accountDay][]TransactionRef)
	for i := range txs {
		t := &txs[i]
		if t.Status != models.TransactionStatusCompleted || t.SrcAccount == "" {
			continue
		}
		if !inWindow(t.Timestamp, since, now) {
			continue
		}
		key := accountDay{t.SrcAccount, t.Timestamp.UTC().Format(dayLayout)}
		byDay[key] = append(byDay[key], refOf(t))
	}

	var matches []*DailyStructuringMatch
	for key, refs := range byDay {
		if len(refs) < cfg.MinCount {
			continue
		}
		total := sumRefs(refs)
		if !total.LessThan(maxTotal) {
			continue
		}
		sortRefs(refs)
		matches = append(matches, &DailyStructuringMatch{
			AccountID:        key.account,
			Day:              key.day,
			TransactionCount: len(refs),
			DailyTotal:       total,
			Transactions:     refs,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].DailyTotal.Equal(matches[j].DailyTotal) {
			return matches[i].DailyTotal.GreaterThan(matches[j].DailyTotal)
		}
		if matches[i].AccountID != matches[j].AccountID {
			return matches[i].AccountID < matches[j].AccountID
		}
		return matches[i].Day < matches[j].Day
	})
	return matches
}
