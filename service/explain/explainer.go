/*
 * @module service/explain/explainer
 * @description 违规解释映射，根据违规快照、规则阈值与控制项元数据生成结构化说明
 * @architecture 分层架构 - 领域服务层
 * @documentReference DESIGN.md
 * @stateFlow 违规 + 规则 + 控制项 -> 规则摘要 / 数据集映射 / 原因列表 / 阈值对照
 * @rules 纯函数无副作用；未知控制项退化为通用原因；缺失字段使用默认值
 * @dependencies github.com/spf13/cast, golang.org/x/text
 * @refs service/detection, api/controllers/violation_controller.go
 */

package explain

import (
	"fmt"

	"policyguard-service/service/detection"
	"policyguard-service/service/models"

	"github.com/spf13/cast"
)

// DatasetMapping 控制项数据集映射
type DatasetMapping struct {
	ControlID           string `json:"control_id"`
	Title               string `json:"title"`
	RegulatoryReference string `json:"regulatory_reference"`
}

// ThresholdInfo 配置阈值与实际观测值对照
type ThresholdInfo struct {
	Configured map[string]interface{} `json:"configured"`
	Actual     map[string]interface{} `json:"actual"`
}

// Explanation 违规解释
type Explanation struct {
	RuleSummary    string          `json:"rule_summary"`
	DatasetMapping *DatasetMapping `json:"dataset_mapping"`
	Reasons        []string        `json:"reasons"`
	ThresholdInfo  ThresholdInfo   `json:"threshold_info"`
}

// fields 违规快照与阈值参数的取值辅助
type fields struct {
	doc    map[string]interface{}
	params map[string]interface{}
}

func (f fields) str(key, def string) string {
	if s := cast.ToString(f.doc[key]); s != "" {
		return s
	}
	return def
}

func (f fields) num(key string) float64 {
	return cast.ToFloat64(f.doc[key])
}

func (f fields) param(key string, def interface{}) interface{} {
	if v, ok := f.params[key]; ok && v != nil {
		return v
	}
	return def
}

func (f fields) paramNum(key string, def float64) float64 {
	return cast.ToFloat64(f.param(key, def))
}

func money(v float64) string {
	return detection.FormatFloat(v, 0)
}

type reasonBuilder func(f fields, rule *models.Rule) []string

var builders = map[string]reasonBuilder{
	"CTR-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Cash transaction of %s exceeds CTR threshold of %s", money(f.num("amount")), money(f.paramNum("amount_limit", 1000000))),
			fmt.Sprintf("Transaction type: %s", f.str("transaction_type", "CASH")),
			fmt.Sprintf("Account: %s", f.str("src_account", "Unknown")),
		}
	},
	"STR-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Transaction of %s falls in structuring range (%s - %s)",
				money(f.num("amount")), money(f.paramNum("min_amount", 900000)), money(f.paramNum("max_amount", 1000000))),
			"Potential smurfing pattern detected",
			fmt.Sprintf("Threshold: %v transactions in %v hours", f.param("min_count", 3), f.param("window_hours", 24)),
		}
	},
	"HR-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Account risk score of %v exceeds threshold of %v", f.num("risk_score"), f.param("risk_score_threshold", 70)),
			fmt.Sprintf("Account: %s", f.str("account_id", "Unknown")),
			fmt.Sprintf("Customer segment: %s", f.str("segment", "Unknown")),
		}
	},
	"SAN-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Transaction involves sanctioned jurisdiction: %s", f.str("country", "Unknown")),
			fmt.Sprintf("Account: %s", f.str("account_id", "Unknown")),
			"Requires immediate review and potential blocking",
		}
	},
	"VEL-01": func(f fields, _ *models.Rule) []string {
		return []string{
			"Unusual transaction velocity detected",
			fmt.Sprintf("Account: %s", f.str("account_id", f.str("src_account", "Unknown"))),
			fmt.Sprintf("Daily limit: %v transactions", f.param("daily_limit", 10)),
		}
	},
	"RRT-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Potential round-trip transaction of %s", money(f.num("amount"))),
			fmt.Sprintf("Detection window: %v hours", f.param("window_hours", 72)),
			"Source and destination accounts may be linked",
		}
	},
	"NW-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Large transaction of %s outside business hours", money(f.num("amount"))),
			fmt.Sprintf("Threshold: %s", money(f.paramNum("amount_limit", 500000))),
			fmt.Sprintf("Business hours: %v:00 - %v:00", f.param("business_hours_start", 6), f.param("business_hours_end", 22)),
		}
	},
	"CDD-01": func(f fields, _ *models.Rule) []string {
		return []string{
			"Customer due diligence refresh required",
			fmt.Sprintf("Account: %s", f.str("account_id", "Unknown")),
			"Risk level determines refresh frequency",
		}
	},
	"PAY-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Payroll anomaly detected: %s", money(f.num("salary_amount"))),
			fmt.Sprintf("Employee: %s", f.str("employee_id", "Unknown")),
			"Check for ghost employees or unusual salary spikes",
		}
	},
	"GEO-01": func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Transaction to high-risk jurisdiction: %s", f.str("country", "Unknown")),
			fmt.Sprintf("Amount: %s", money(f.num("amount"))),
			fmt.Sprintf("Threshold: %s", money(f.paramNum("amount_threshold", 100000))),
		}
	},
	detection.DetectorStructuring: func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Account %s made %v transactions totalling %s within %s hours",
				f.str("account_id", "Unknown"), f.num("transaction_count"), money(f.num("total_amount")),
				detection.FormatFloat(f.num("time_span_hours"), 1)),
			fmt.Sprintf("Each amount falls between %s and %s", money(f.paramNum("min_amount", 9000)), money(f.paramNum("max_amount", 10000))),
			"Potential structuring to avoid reporting threshold",
		}
	},
	detection.DetectorRapidTransfers: func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("%v transfers from %s to %s", f.num("transfer_count"), f.str("src_account", "Unknown"), f.str("dst_account", "Unknown")),
			fmt.Sprintf("Total %s, average %s", money(f.num("total_amount")), money(f.num("avg_amount"))),
			fmt.Sprintf("Threshold: %v transfers in %v hours", f.param("min_transfers", 5), f.param("window_hours", 24)),
		}
	},
	detection.DetectorHighRiskAccount: func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Account %s has %v open or confirmed violations", f.str("account_id", "Unknown"), f.num("violation_count")),
			fmt.Sprintf("Critical: %v, High: %v", f.num("critical_count"), f.num("high_count")),
			fmt.Sprintf("Risk score: %v", f.num("risk_score")),
		}
	},
	detection.DetectorUnusualFrequency: func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Account %s made %v transactions in the recent window", f.str("account_id", "Unknown"), f.num("recent_transaction_count")),
			fmt.Sprintf("Historical average: %s per window", detection.FormatFloat(f.num("historical_avg_per_week"), 2)),
			fmt.Sprintf("Frequency multiplier: %sx", detection.FormatFloat(f.num("frequency_multiplier"), 1)),
		}
	},
	detection.DetectorRoundAmount: func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Account %s made %v round-amount transactions", f.str("account_id", "Unknown"), f.num("round_transaction_count")),
			fmt.Sprintf("Total round amount: %s", money(f.num("total_round_amount"))),
			fmt.Sprintf("Amounts are multiples of %s", money(f.paramNum("modulus", 1000))),
		}
	},
	detection.DetectorDailyStructuring: func(f fields, _ *models.Rule) []string {
		return []string{
			fmt.Sprintf("Account %s made %v transactions on %s", f.str("account_id", "Unknown"), f.num("transaction_count"), f.str("day", "Unknown")),
			fmt.Sprintf("Daily total %s stays under %s", money(f.num("daily_total")), money(f.paramNum("max_daily_total", 10000))),
			"Potential same-day structuring",
		}
	},
}

// actualKeys 各控制项需要在阈值对照中回显的快照字段
var actualKeys = map[string][]string{
	"CTR-01":                           {"amount", "transaction_type"},
	"STR-01":                           {"amount", "transaction_type"},
	"RRT-01":                           {"amount", "transaction_type"},
	"NW-01":                            {"amount", "transaction_type"},
	"GEO-01":                           {"amount", "transaction_type", "country"},
	"HR-01":                            {"risk_score"},
	"SAN-01":                           {"country"},
	"PAY-01":                           {"salary_amount"},
	detection.DetectorStructuring:      {"transaction_count", "total_amount", "time_span_hours"},
	detection.DetectorRapidTransfers:   {"transfer_count", "total_amount", "avg_amount"},
	detection.DetectorHighRiskAccount:  {"violation_count", "critical_count", "high_count", "risk_score"},
	detection.DetectorUnusualFrequency: {"recent_transaction_count", "historical_avg_per_week", "frequency_multiplier"},
	detection.DetectorRoundAmount:      {"round_transaction_count", "total_round_amount"},
	detection.DetectorDailyStructuring: {"transaction_count", "daily_total"},
}

// Explain 生成违规解释，control 可为 nil
func Explain(v *models.Violation, rule *models.Rule, control *models.ControlMetadata) *Explanation {
	description := rule.Description
	if description == "" {
		description = "No description available"
	}

	params := map[string]interface{}(rule.ThresholdParams)
	if params == nil {
		params = map[string]interface{}{}
	}
	f := fields{doc: v.DocumentData, params: params}

	exp := &Explanation{
		RuleSummary: fmt.Sprintf("%s: %s", rule.Name, description),
		Reasons:     reasonsFor(rule, f),
		ThresholdInfo: ThresholdInfo{
			Configured: params,
			Actual:     actualValues(rule.ControlID, v.DocumentData),
		},
	}
	if control != nil {
		exp.DatasetMapping = &DatasetMapping{
			ControlID:           control.ControlID,
			Title:               control.Title,
			RegulatoryReference: control.RegulatoryReference,
		}
	}
	return exp
}

func reasonsFor(rule *models.Rule, f fields) []string {
	if rule.ControlID == "" {
		return []string{fmt.Sprintf("Document matched rule criteria: %s", rule.Name)}
	}
	if build, ok := builders[rule.ControlID]; ok {
		return build(f, rule)
	}
	severity := rule.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	return []string{
		fmt.Sprintf("Document matched rule: %s", rule.Name),
		fmt.Sprintf("Severity: %s", severity),
	}
}

func actualValues(controlID string, doc map[string]interface{}) map[string]interface{} {
	actual := map[string]interface{}{}
	for _, key := range actualKeys[controlID] {
		if v, ok := doc[key]; ok {
			actual[key] = v
		} else {
			actual[key] = nil
		}
	}
	return actual
}
