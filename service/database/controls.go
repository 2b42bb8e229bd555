package database

import (
	"policyguard-service/service/models"
)

// DefaultControls 内置的 AML 控制项目录
func DefaultControls() []models.ControlMetadata {
	return []models.ControlMetadata{
		{
			ControlID:           "CTR-01",
			Title:               "Large Cash Transaction Reporting",
			Description:         "Monitor and report cash transactions exceeding the reporting limit within a 24-hour period.",
			RegulatoryReference: "PMLA 2002, Section 12 - Cash Transaction Report (CTR)",
			RiskLevel:           models.SeverityHigh,
			Collection:          models.CollectionTransactions,
			ThresholdParams: models.JSONB{
				"amount_limit":     1000000,
				"window_hours":     24,
				"transaction_type": models.TransactionTypeCash,
			},
		},
		{
			ControlID:           "STR-01",
			Title:               "Structuring Detection (Smurfing)",
			Description:         "Detect multiple transactions just below reporting thresholds to evade CTR requirements.",
			RegulatoryReference: "FATF Recommendation 10 - Structuring/Smurfing Detection",
			RiskLevel:           models.SeverityCritical,
			Collection:          models.CollectionTransactions,
			ThresholdParams: models.JSONB{
				"min_count":    3,
				"min_amount":   900000,
				"max_amount":   1000000,
				"window_hours": 24,
			},
		},
		{
			ControlID:           "HR-01",
			Title:               "High-Risk Account Monitoring",
			Description:         "Enhanced monitoring for accounts with risk scores above 70, including PEPs and high-risk jurisdictions.",
			RegulatoryReference: "PMLA Rules 2005, Rule 9 - Enhanced Due Diligence",
			RiskLevel:           models.SeverityHigh,
			Collection:          models.CollectionAccounts,
			ThresholdParams: models.JSONB{
				"risk_score_threshold": 70,
				"transaction_limit":    500000,
			},
		},
		{
			ControlID:           "SAN-01",
			Title:               "Sanctions Screening",
			Description:         "Screen accounts against OFAC, UN, and local sanctions lists.",
			RegulatoryReference: "UNSC Sanctions, OFAC SDN List",
			RiskLevel:           models.SeverityCritical,
			Collection:          models.CollectionAccounts,
			ThresholdParams: models.JSONB{
				"sanctioned_countries": []interface{}{"NK", "IR", "SY"},
				"match_threshold":      0.85,
			},
		},
		{
			ControlID:           "VEL-01",
			Title:               "Transaction Velocity Monitoring",
			Description:         "Detect unusual transaction frequency: more than 10 transactions per day or 50 per week.",
			RegulatoryReference: "Basel AML Index - Velocity Checks",
			RiskLevel:           models.SeverityMedium,
			Collection:          models.CollectionTransactions,
			ThresholdParams: models.JSONB{
				"daily_limit":  10,
				"weekly_limit": 50,
			},
		},
		{
			ControlID:           "RRT-01",
			Title:               "Round-Trip Transaction Detection",
			Description:         "Identify circular money flows where funds return to origin within 72 hours.",
			RegulatoryReference: "FATF Recommendation 16 - Wire Transfers",
			RiskLevel:           models.SeverityHigh,
			Collection:          models.CollectionTransactions,
			ThresholdParams: models.JSONB{
				"window_hours": 72,
				"min_amount":   100000,
			},
		},
		{
			ControlID:           "NW-01",
			Title:               "Night/Weekend Transaction Monitoring",
			Description:         "Flag large transactions occurring outside business hours or on weekends.",
			RegulatoryReference: "RBI Master Direction - KYC",
			RiskLevel:           models.SeverityMedium,
			Collection:          models.CollectionTransactions,
			ThresholdParams: models.JSONB{
				"amount_limit":         500000,
				"business_hours_start": 6,
				"business_hours_end":   22,
			},
		},
		{
			ControlID:           "CDD-01",
			Title:               "Customer Due Diligence Refresh",
			Description:         "Ensure CDD is refreshed every 24, 12 or 6 months for low, medium and high risk customers.",
			RegulatoryReference: "PMLA Rules 2005, Rule 9 - CDD Procedures",
			RiskLevel:           models.SeverityMedium,
			Collection:          models.CollectionAccounts,
			ThresholdParams: models.JSONB{
				"low_risk_months":    24,
				"medium_risk_months": 12,
				"high_risk_months":   6,
			},
		},
		{
			ControlID:           "PAY-01",
			Title:               "Payroll Anomaly Detection",
			Description:         "Detect ghost employees sharing bank accounts and unusual salary spikes.",
			RegulatoryReference: "Internal Fraud Prevention - Payroll Controls",
			RiskLevel:           models.SeverityHigh,
			Collection:          models.CollectionPayroll,
			ThresholdParams: models.JSONB{
				"spike_threshold_percent": 50,
				"duplicate_account_check": true,
			},
		},
		{
			ControlID:           "GEO-01",
			Title:               "Geographic Risk Assessment",
			Description:         "Monitor transactions to or from high-risk jurisdictions on the FATF grey and black lists.",
			RegulatoryReference: "FATF High-Risk Jurisdictions",
			RiskLevel:           models.SeverityHigh,
			Collection:          models.CollectionTransactions,
			ThresholdParams: models.JSONB{
				"high_risk_countries": []interface{}{"AF", "MM", "PK"},
				"amount_threshold":    100000,
			},
		},
	}
}
