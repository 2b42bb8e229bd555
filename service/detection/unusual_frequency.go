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

// UnusualFrequencyMatch 近期交易次数显著高于历史基线的账户
type UnusualFrequencyMatch struct {
	AccountID              string
	RecentTransactionCount int
	HistoricalAvgPerWindow float64
	RecentTotalAmount      decimal.Decimal
	FrequencyMultiplier    float64
}

func (m *UnusualFrequencyMatch) GroupKey() string { return m.AccountID }

func (m *UnusualFrequencyMatch) DocumentData() map[string]interface{} {
	return map[string]interface{}{
		"account_id":               m.AccountID,
		"recent_transaction_count": m.RecentTransactionCount,
		"historical_avg_per_week":  m.HistoricalAvgPerWindow,
		"recent_total_amount":      m.RecentTotalAmount.InexactFloat64(),
		"frequency_multiplier":     m.FrequencyMultiplier,
	}
}

func (m *UnusualFrequencyMatch) Explanation() string {
	return fmt.Sprintf("Account %s made %d transactions in the recent window, %sx its historical average of %s (total %s)",
		m.AccountID, m.RecentTransactionCount, FormatFloat(m.FrequencyMultiplier, 1),
		FormatFloat(m.HistoricalAvgPerWindow, 2), FormatAmount(m.RecentTotalAmount))
}

// UnusualFrequencyDetector 异常频率检测器
type UnusualFrequencyDetector struct {
	meta
	cfg config.UnusualFrequencyConfig
	src TransactionSource
}

func (d *UnusualFrequencyDetector) Detect(ctx context.Context, tenantID string, now time.Time) ([]PatternMatch, error) {
	_, baselineStart := frequencyWindows(d.cfg, now)
	txs, err := d.src.ListTransactions(ctx, repository.TransactionQuery{
		TenantID: tenantID,
		Since:    baselineStart,
		Until:    now,
		Statuses: completedOnly(),
	})
	if err != nil {
		return nil, fmt.Errorf("读取异常频率检测数据失败: %w", err)
	}
	groups := GroupUnusualFrequency(txs, d.cfg, now)
	matches := make([]PatternMatch, len(groups))
	for i, g := range groups {
		matches[i] = g
	}
	return matches, nil
}

// frequencyWindows 近期窗口 [cutoff, now]，基线窗口 [baselineStart, cutoff)
func frequencyWindows(cfg config.UnusualFrequencyConfig, now time.Time) (cutoff, baselineStart time.Time) {
	cutoff = now.AddDate(0, 0, -cfg.WindowDays)
	baselineStart = cutoff.AddDate(0, 0, -cfg.WindowDays*cfg.BaselineWindows)
	return cutoff, baselineStart
}

type frequencyTally struct {
	recent      int
	historical  int
	recentTotal decimal.Decimal
}

// GroupUnusualFrequency 比较近期次数与基线窗口平均次数
func GroupUnusualFrequency(txs []models.Transaction, cfg config.UnusualFrequencyConfig, now time.Time) []*UnusualFrequencyMatch {
	if cfg.BaselineWindows <= 0 {
		return nil
	}
	cutoff, baselineStart := frequencyWindows(cfg, now)

	tallies := make(map[string]*frequencyTally)
	for i := range txs {
		t := &txs[i]
		if t.Status != models.TransactionStatusCompleted || t.SrcAccount == "" {
			continue
		}
		if t.Timestamp.Before(baselineStart) || t.Timestamp.After(now) {
			continue
		}
		tally, ok := tallies[t.SrcAccount]
		if !ok {
			tally = &frequencyTally{recentTotal: decimal.Zero}
			tallies[t.SrcAccount] = tally
		}
		if t.Timestamp.Before(cutoff) {
			tally.historical++
		} else {
			tally.recent++
			tally.recentTotal = tally.recentTotal.Add(t.Amount)
		}
	}

	var matches []*UnusualFrequencyMatch
	for account, tally := range tallies {
		avg := float64(tally.historical) / float64(cfg.BaselineWindows)
		if avg <= 0 || float64(tally.recent) < cfg.Multiplier*avg {
			continue
		}
		matches = append(matches, &UnusualFrequencyMatch{
			AccountID:              account,
			RecentTransactionCount: tally.recent,
			HistoricalAvgPerWindow: avg,
			RecentTotalAmount:      tally.recentTotal,
			FrequencyMultiplier:    float64(tally.recent) / avg,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FrequencyMultiplier != matches[j].FrequencyMultiplier {
			return matches[i].FrequencyMultiplier > matches[j].FrequencyMultiplier
		}
		return matches[i].AccountID < matches[j].AccountID
	})
	return matches
}
