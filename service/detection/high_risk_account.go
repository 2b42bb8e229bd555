package detection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"policyguard-service/service/config"
	"policyguard-service/service/models"

	"github.com/spf13/cast"
)

// ViolationRef 高风险账户关联的违规摘要
type ViolationRef struct {
	ViolationID string
	RuleName    string
	Severity    models.Severity
	CreatedAt   time.Time
}

// HighRiskAccountMatch 违规累积过多的账户
type HighRiskAccountMatch struct {
	AccountID      string
	ViolationCount int
	CriticalCount  int
	HighCount      int
	RiskScore      int
	Violations     []ViolationRef
}

func (m *HighRiskAccountMatch) GroupKey() string { return m.AccountID }

func (m *HighRiskAccountMatch) DocumentData() map[string]interface{} {
	refs := make([]interface{}, len(m.Violations))
	for i, v := range m.Violations {
		refs[i] = map[string]interface{}{
			"violation_id": v.ViolationID,
			"rule_name":    v.RuleName,
			"severity":     string(v.Severity),
			"created_at":   v.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return map[string]interface{}{
		"account_id":      m.AccountID,
		"violation_count": m.ViolationCount,
		"critical_count":  m.CriticalCount,
		"high_count":      m.HighCount,
		"risk_score":      m.RiskScore,
		"violations":      refs,
	}
}

func (m *HighRiskAccountMatch) Explanation() string {
	return fmt.Sprintf("Account %s has %d open or confirmed violations (%d critical, %d high), risk score %d",
		m.AccountID, m.ViolationCount, m.CriticalCount, m.HighCount, m.RiskScore)
}

// HighRiskAccountDetector 高风险账户检测器
type HighRiskAccountDetector struct {
	meta
	cfg config.HighRiskAccountConfig
	src ViolationSource
}

func (d *HighRiskAccountDetector) Detect(ctx context.Context, tenantID string, now time.Time) ([]PatternMatch, error) {
	since := now.AddDate(0, 0, -d.cfg.WindowDays)
	violations, err := d.src.ListViolationsSince(ctx, tenantID, since,
		[]models.ViolationStatus{models.ViolationStatusOpen, models.ViolationStatusConfirmed})
	if err != nil {
		return nil, fmt.Errorf("读取高风险账户检测数据失败: %w", err)
	}
	groups := GroupHighRiskAccounts(violations, d.cfg, now)
	matches := make([]PatternMatch, len(groups))
	for i, g := range groups {
		matches[i] = g
	}
	return matches, nil
}

// accountOf 从违规快照中取账户标识，依次尝试 account_id、src_account、dst_account
func accountOf(v *models.Violation) string {
	for _, key := range []string{"account_id", "src_account", "dst_account"} {
		if s := cast.ToString(v.DocumentData[key]); s != "" {
			return s
		}
	}
	return ""
}

// GroupHighRiskAccounts 按账户聚合违规并计算风险分
func GroupHighRiskAccounts(violations []models.Violation, cfg config.HighRiskAccountConfig, now time.Time) []*HighRiskAccountMatch {
	since := now.AddDate(0, 0, -cfg.WindowDays)
	byAccount := make(map[string]*HighRiskAccountMatch)
	for i := range violations {
		v := &violations[i]
		if v.Status != models.ViolationStatusOpen && v.Status != models.ViolationStatusConfirmed {
			continue
		}
		if v.CreatedAt.Before(since) {
			continue
		}
		account := accountOf(v)
		if account == "" {
			continue
		}
		m, ok := byAccount[account]
		if !ok {
			m = &HighRiskAccountMatch{AccountID: account}
			byAccount[account] = m
		}
		m.ViolationCount++
		switch v.Severity {
		case models.SeverityCritical:
			m.CriticalCount++
		case models.SeverityHigh:
			m.HighCount++
		}
		m.Violations = append(m.Violations, ViolationRef{
			ViolationID: v.ID,
			RuleName:    v.RuleName,
			Severity:    v.Severity,
			CreatedAt:   v.CreatedAt,
		})
	}

	var matches []*HighRiskAccountMatch
	for _, m := range byAccount {
		if m.ViolationCount < cfg.MinViolations {
			continue
		}
		m.RiskScore = m.CriticalCount*cfg.CriticalWeight + m.HighCount*cfg.HighWeight + m.ViolationCount
		sort.SliceStable(m.Violations, func(i, j int) bool {
			return m.Violations[i].CreatedAt.Before(m.Violations[j].CreatedAt)
		})
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].RiskScore != matches[j].RiskScore {
			return matches[i].RiskScore > matches[j].RiskScore
		}
		return matches[i].AccountID < matches[j].AccountID
	})
	return matches
}
