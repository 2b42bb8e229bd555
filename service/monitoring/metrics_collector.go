/*
 * @module service/monitoring/metrics_collector
 * @description 扫描引擎指标收集器，记录扫描次数、耗时、违规数量以及单元失败，并按严重级别统计待处理违规
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 扫描结束 -> 记录指标 -> /metrics 暴露；抓取时查询待处理违规数量
 * @rules 指标注册到传入的 Registerer；nil 收集器上的方法为空操作
 * @dependencies github.com/prometheus/client_golang, gorm.io/gorm
 * @refs service/scan/orchestrator.go, main.go
 */

package monitoring

import (
	"context"
	"log/slog"
	"time"

	"policyguard-service/service/models"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const namespace = "policyguard"

// 单元类型标签
const (
	UnitRule     = "rule"
	UnitDetector = "detector"
)

// MetricsCollector 扫描指标收集器
type MetricsCollector struct {
	scansTotal      *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	violationsTotal *prometheus.CounterVec
	unitErrorsTotal *prometheus.CounterVec
	unitDuration    *prometheus.HistogramVec
}

// NewMetricsCollector 创建指标收集器并注册到 reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	c := &MetricsCollector{
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total scan runs by final status",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Scan run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_created_total",
			Help:      "Violations created by unit kind",
		}, []string{"unit"}),
		unitErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_unit_errors_total",
			Help:      "Rule or detector executions that failed",
		}, []string{"unit"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_unit_duration_seconds",
			Help:      "Rule or detector execution time in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"unit"}),
	}
	if reg != nil {
		reg.MustRegister(c.scansTotal, c.scanDuration, c.violationsTotal, c.unitErrorsTotal, c.unitDuration)
	}
	return c
}

// ObserveScan 记录一次扫描结果
func (c *MetricsCollector) ObserveScan(status models.ScanStatus, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.scansTotal.WithLabelValues(string(status)).Inc()
	c.scanDuration.Observe(elapsed.Seconds())
}

// ObserveUnit 记录单条规则或检测器的执行
func (c *MetricsCollector) ObserveUnit(unit string, created int, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.unitDuration.WithLabelValues(unit).Observe(elapsed.Seconds())
	if created > 0 {
		c.violationsTotal.WithLabelValues(unit).Add(float64(created))
	}
	if err != nil {
		c.unitErrorsTotal.WithLabelValues(unit).Inc()
	}
}

// OpenViolationsCollector 抓取时按严重级别统计 OPEN 违规数量
type OpenViolationsCollector struct {
	db   *gorm.DB
	desc *prometheus.Desc
}

// NewOpenViolationsCollector 创建待处理违规统计收集器
func NewOpenViolationsCollector(db *gorm.DB) *OpenViolationsCollector {
	return &OpenViolationsCollector{
		db: db,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "open_violations"),
			"Open violations across tenants by severity",
			[]string{"severity"}, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *OpenViolationsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect 实现 prometheus.Collector
func (c *OpenViolationsCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.countBySeverity(context.Background())
	if err != nil {
		slog.Warn("统计待处理违规失败", "error", err)
		return
	}
	for _, sev := range []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[sev]), string(sev))
	}
}

type severityCount struct {
	Severity models.Severity
	Count    int64
}

func (c *OpenViolationsCollector) countBySeverity(ctx context.Context) (map[models.Severity]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rows []severityCount
	err := c.db.WithContext(ctx).Model(&models.Violation{}).
		Select("severity, count(*) as count").
		Where("status = ?", models.ViolationStatusOpen).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.Severity]int64, len(rows))
	for _, r := range rows {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}
