package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"policyguard-service/service/config"
	"policyguard-service/service/detection"
	"policyguard-service/service/models"
	"policyguard-service/service/rules"
)

// ViolationReader 违规读取
type ViolationReader interface {
	GetViolation(ctx context.Context, tenantID, id string) (*models.Violation, error)
}

// RuleReader 规则与控制项读取
type RuleReader interface {
	GetRule(ctx context.Context, tenantID, id string) (*models.Rule, error)
	GetControl(ctx context.Context, controlID string) (*models.ControlMetadata, error)
}

// Service 违规解释服务
type Service struct {
	violations ViolationReader
	rules      RuleReader
	detectors  config.DetectorsConfig
}

// NewService 创建违规解释服务
func NewService(violations ViolationReader, rules RuleReader, detectors config.DetectorsConfig) *Service {
	return &Service{violations: violations, rules: rules, detectors: detectors}
}

// ExplainViolation 加载违规、来源规则与控制项后生成解释
func (s *Service) ExplainViolation(ctx context.Context, tenantID, violationID string) (*Explanation, error) {
	v, err := s.violations.GetViolation(ctx, tenantID, violationID)
	if err != nil {
		return nil, err
	}

	rule, err := s.ruleFor(ctx, tenantID, v)
	if err != nil {
		return nil, err
	}

	var control *models.ControlMetadata
	if rule.ControlID != "" && !IsPatternRule(rule.ControlID) {
		control, err = s.rules.GetControl(ctx, rule.ControlID)
		if err != nil && !errors.Is(err, rules.ErrControlNotFound) {
			return nil, fmt.Errorf("获取控制项失败: %w", err)
		}
	}
	return Explain(v, rule, control), nil
}

// ruleFor 模式违规使用检测器的合成规则；规则已删除时用违规自带信息构造
func (s *Service) ruleFor(ctx context.Context, tenantID string, v *models.Violation) (*models.Rule, error) {
	if info, ok := detection.LookupInfo(v.RuleID); ok {
		return SyntheticRule(info, s.detectors), nil
	}
	rule, err := s.rules.GetRule(ctx, tenantID, v.RuleID)
	if err == nil {
		return rule, nil
	}
	if errors.Is(err, rules.ErrRuleNotFound) {
		return &models.Rule{
			ID:         v.RuleID,
			TenantID:   v.TenantID,
			Name:       v.RuleName,
			Collection: v.Collection,
			Severity:   v.Severity,
		}, nil
	}
	return nil, fmt.Errorf("获取规则失败: %w", err)
}

// IsPatternRule 是否为检测器合成规则ID
func IsPatternRule(id string) bool {
	return strings.HasPrefix(id, "PATTERN_")
}

// SyntheticRule 由检测器元数据与当前参数构造合成规则
func SyntheticRule(info detection.Info, cfg config.DetectorsConfig) *models.Rule {
	return &models.Rule{
		ID:              info.ID,
		Name:            info.Name,
		Description:     info.Description,
		Collection:      info.Collection,
		Severity:        info.Severity,
		Enabled:         true,
		ControlID:       info.ID,
		ThresholdParams: detectorParams(info.ID, cfg),
	}
}

func detectorParams(id string, cfg config.DetectorsConfig) models.JSONB {
	switch id {
	case detection.DetectorStructuring:
		c := cfg.Structuring
		return models.JSONB{"window_hours": c.WindowHours, "min_amount": c.MinAmount, "max_amount": c.MaxAmount, "min_count": c.MinCount}
	case detection.DetectorRapidTransfers:
		c := cfg.RapidTransfers
		return models.JSONB{"window_hours": c.WindowHours, "min_transfers": c.MinTransfers, "transfer_types": c.TransferTypes}
	case detection.DetectorHighRiskAccount:
		c := cfg.HighRiskAccount
		return models.JSONB{"window_days": c.WindowDays, "min_violations": c.MinViolations, "critical_weight": c.CriticalWeight, "high_weight": c.HighWeight}
	case detection.DetectorUnusualFrequency:
		c := cfg.UnusualFrequency
		return models.JSONB{"window_days": c.WindowDays, "baseline_windows": c.BaselineWindows, "multiplier": c.Multiplier}
	case detection.DetectorRoundAmount:
		c := cfg.RoundAmount
		return models.JSONB{"window_days": c.WindowDays, "min_amount": c.MinAmount, "modulus": c.Modulus, "min_count": c.MinCount}
	case detection.DetectorDailyStructuring:
		c := cfg.DailyStructuring
		return models.JSONB{"window_days": c.WindowDays, "min_count": c.MinCount, "max_daily_total": c.MaxDailyTotal}
	}
	return models.JSONB{}
}
