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

// RoundAmountMatch 单账户多笔大额整数金额交易
type RoundAmountMatch struct {
	AccountID             string
	RoundTransactionCount int
	TotalRoundAmount      decimal.Decimal
	Transactions          []TransactionRef
}

func (m *RoundAmountMatch) GroupKey() string { return m.AccountID }

func (m *RoundAmountMatch) DocumentData() map[string]interface{} {
	return map[string]interface{}{
		"account_id":              m.AccountID,
		"round_transaction_count": m.RoundTransactionCount,
		"total_round_amount":      m.TotalRoundAmount.InexactFloat64(),
		"transactions":            refsToMaps(m.Transactions, true),
	}
}

func (m *RoundAmountMatch) Explanation() string {
	return fmt.Sprintf("Account %s made %d round-amount transactions totalling %s",
		m.AccountID, m.RoundTransactionCount, FormatAmount(m.TotalRoundAmount))
}

// RoundAmountDetector 整数金额聚集检测器
type RoundAmountDetector struct {
	meta
	cfg config.RoundAmountConfig
	src TransactionSource
}

func (d *RoundAmountDetector) Detect(ctx context.Context, tenantID string, now time.Time) ([]PatternMatch, error) {
	txs, err := d.src.ListTransactions(ctx, repository.TransactionQuery{
		TenantID: tenantID,
		Since:    now.AddDate(0, 0, -d.cfg.WindowDays),
		Until:    now,
		Statuses: completedOnly(),
	})
	if err != nil {
		return nil, fmt.Errorf("读取整数金额检测数据失败: %w", err)
	}
	groups := GroupRoundAmounts(txs, d.cfg, now)
	matches := make([]PatternMatch, len(groups))
	for i, g := range groups {
		matches[i] = g
	}
	return matches, nil
}

// GroupRoundAmounts 金额不低于 MinAmount 且能被 Modulus 整除的交易按账户分组
func GroupRoundAmounts(txs []models.Transaction, cfg config.RoundAmountConfig, now time.Time) []*RoundAmountMatch {
	if cfg.Modulus <= 0 {
		return nil
	}
	since := now.AddDate(0, 0, -cfg.WindowDays)
	minAmount := decimal.NewFromFloat(cfg.MinAmount)
	modulus := decimal.NewFromFloat(cfg.Modulus)

	byAccount := make(map[string][]TransactionRef)
	for i := range txs {
		t := &txs[i]
		if t.Status != models.TransactionStatusCompleted || t.SrcAccount == "" {
			continue
		}
		if !inWindow(t.Timestamp, since, now) || t.Amount.LessThan(minAmount) {
			continue
		}
		if !t.Amount.Mod(modulus).IsZero() {
			continue
		}
		byAccount[t.SrcAccount] = append(byAccount[t.SrcAccount], refOf(t))
	}

	var matches []*RoundAmountMatch
	for account, refs := range byAccount {
		if len(refs) < cfg.MinCount {
			continue
		}
		sortRefs(refs)
		matches = append(matches, &RoundAmountMatch{
			AccountID:             account,
			RoundTransactionCount: len(refs),
			TotalRoundAmount:      sumRefs(refs),
			Transactions:          refs,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].AccountID < matches[j].AccountID })
	return matches
}
