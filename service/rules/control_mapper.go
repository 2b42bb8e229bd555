package rules

import (
	"policyguard-service/service/models"
)

// paramOr 读取阈值参数，缺失时返回默认值
func paramOr(params models.JSONB, key string, def interface{}) interface{} {
	if v, ok := params[key]; ok && v != nil {
		return v
	}
	return def
}

// listParam 读取列表型阈值参数
func listParam(params models.JSONB, key string) []interface{} {
	switch v := params[key].(type) {
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return []interface{}{}
}

// FilterForControl 根据控制项与阈值参数构建过滤条件；租户条件由扫描时统一追加
func FilterForControl(controlID string, params models.JSONB) models.JSONB {
	switch controlID {
	case "CTR-01":
		return models.JSONB{
			"transaction_type": paramOr(params, "transaction_type", models.TransactionTypeCash),
			"amount":           map[string]interface{}{"$gte": paramOr(params, "amount_limit", 1000000)},
		}
	case "STR-01":
		return models.JSONB{
			"transaction_type": models.TransactionTypeCash,
			"amount": map[string]interface{}{
				"$gte": paramOr(params, "min_amount", 900000),
				"$lt":  paramOr(params, "max_amount", 1000000),
			},
		}
	case "HR-01":
		return models.JSONB{
			"risk_score": map[string]interface{}{"$gte": paramOr(params, "risk_score_threshold", 70)},
		}
	case "SAN-01":
		return models.JSONB{
			"country": map[string]interface{}{"$in": listParam(params, "sanctioned_countries")},
		}
	case "VEL-01":
		return models.JSONB{
			"transaction_type": map[string]interface{}{"$exists": true},
		}
	case "RRT-01":
		return models.JSONB{
			"amount": map[string]interface{}{"$gte": paramOr(params, "min_amount", 100000)},
		}
	case "NW-01":
		return models.JSONB{
			"amount": map[string]interface{}{"$gte": paramOr(params, "amount_limit", 500000)},
		}
	case "CDD-01":
		return models.JSONB{
			"status": "ACTIVE",
		}
	case "PAY-01":
		return models.JSONB{
			"salary_amount": map[string]interface{}{"$exists": true},
		}
	case "GEO-01":
		return models.JSONB{
			"country": map[string]interface{}{"$in": listParam(params, "high_risk_countries")},
			"amount":  map[string]interface{}{"$gte": paramOr(params, "amount_threshold", 100000)},
		}
	}
	return models.JSONB{}
}

// CollectionForControl 控制项对应的目标集合
func CollectionForControl(controlID string) string {
	switch controlID {
	case "HR-01", "SAN-01", "CDD-01":
		return models.CollectionAccounts
	case "PAY-01":
		return models.CollectionPayroll
	}
	return models.CollectionTransactions
}

// BuildRuleFromControl 将控制项转换为租户规则
func BuildRuleFromControl(control *models.ControlMetadata, tenantID string) *models.Rule {
	params := control.ThresholdParams
	if params == nil {
		params = models.JSONB{}
	}
	collection := control.Collection
	if collection == "" {
		collection = CollectionForControl(control.ControlID)
	}
	severity := control.RiskLevel
	if !severity.Valid() {
		severity = models.SeverityMedium
	}

	return &models.Rule{
		TenantID:        tenantID,
		Name:            control.Title,
		Description:     control.Description,
		Collection:      collection,
		Filter:          FilterForControl(control.ControlID, params),
		Severity:        severity,
		Enabled:         true,
		Framework:       "AML",
		ControlID:       control.ControlID,
		Tags:            models.JSONBStringArray{"dataset-recommendation", control.ControlID},
		ThresholdParams: params.Clone(),
		Explanation:     control.Description,
	}
}
