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

// RapidTransfersMatch 同一账户对之间的高频转账
type RapidTransfersMatch struct {
	SrcAccount    string
	DstAccount    string
	TransferCount int
	TotalAmount   decimal.Decimal
	AvgAmount     decimal.Decimal
	Transfers     []TransactionRef
}

func (m *RapidTransfersMatch) GroupKey() string { return m.SrcAccount + "->" + m.DstAccount }

func (m *RapidTransfersMatch) DocumentData() map[string]interface{} {
	return map[string]interface{}{
		"src_account":    m.SrcAccount,
		"dst_account":    m.DstAccount,
		"transfer_count": m.TransferCount,
		"total_amount":   m.TotalAmount.InexactFloat64(),
		"avg_amount":     m.AvgAmount.InexactFloat64(),
		"transfers":      refsToMaps(m.Transfers, false),
	}
}

func (m *RapidTransfersMatch) Explanation() string {
	return fmt.Sprintf("%d transfers from %s to %s totalling %s (average %s)",
		m.TransferCount, m.SrcAccount, m.DstAccount, FormatAmount(m.TotalAmount), FormatAmount(m.AvgAmount))
}

// RapidTransfersDetector 快速转账检测器
type RapidTransfersDetector struct {
	meta
	cfg config.RapidTransfersConfig
	src TransactionSource
}

func (d *RapidTransfersDetector) Detect(ctx context.Context, tenantID string, now time.Time) ([]PatternMatch, error) {
	since := now.Add(-time.Duration(d.cfg.WindowHours) * time.Hour)
	txs, err := d.src.ListTransactions(ctx, repository.TransactionQuery{
		TenantID: tenantID,
		Since:    since,
		Until:    now,
		Statuses: completedOnly(),
		Types:    d.cfg.TransferTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("读取快速转账检测数据失败: %w", err)
	}
	groups := GroupRapidTransfers(txs, d.cfg, now)
	matches := make([]PatternMatch, len(groups))
	for i, g := range groups {
		matches[i] = g
	}
	return matches, nil
}

type accountPair struct {
	src, dst string
}

// GroupRapidTransfers 按 (转出, 转入) 账户对分组
func GroupRapidTransfers(txs []models.Transaction, cfg config.RapidTransfersConfig, now time.Time) []*RapidTransfersMatch {
	since := now.Add(-time.Duration(cfg.WindowHours) * time.Hour)
	types := make(map[string]bool, len(cfg.TransferTypes))
	for _, t := range cfg.TransferTypes {
		types[t] = true
	}

	byPair := make(map[accountPair][]TransactionRef)
	for i := range txs {
		t := &txs[i]
		if t.Status != models.TransactionStatusCompleted || !types[t.TransactionType] {
			continue
		}
		if t.SrcAccount == "" || t.DstAccount == "" || !inWindow(t.Timestamp, since, now) {
			continue
		}
		key := accountPair{t.SrcAccount, t.DstAccount}
		byPair[key] = append(byPair[key], refOf(t))
	}

	var matches []*RapidTransfersMatch
	for pair, refs := range byPair {
		if len(refs) < cfg.MinTransfers {
			continue
		}
		sortRefs(refs)
		total := sumRefs(refs)
		matches = append(matches, &RapidTransfersMatch{
			SrcAccount:    pair.src,
			DstAccount:    pair.dst,
			TransferCount: len(refs),
			TotalAmount:   total,
			AvgAmount:     total.Div(decimal.NewFromInt(int64(len(refs)))).Round(2),
			Transfers:     refs,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].SrcAccount != matches[j].SrcAccount {
			return matches[i].SrcAccount < matches[j].SrcAccount
		}
		return matches[i].DstAccount < matches[j].DstAccount
	})
	return matches
}
