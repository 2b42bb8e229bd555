/*
 * @module service/scan/orchestrator
 * @description 扫描编排器，加载规则、并发执行规则求值与模式检测、物化违规并维护扫描记录状态
 * @architecture 分层架构 - 领域服务层
 * @documentReference DESIGN.md
 * @stateFlow 加载规则 -> 创建扫描记录(RUNNING) -> 规则并发求值 -> 检测器并发执行 -> 汇总 -> COMPLETED | FAILED
 * @rules 单条规则或单个检测器失败只记为零贡献结果；无启用规则时直接 COMPLETED 且不运行检测器；
 *        扫描不随调用方上下文取消而中断
 * @dependencies golang.org/x/sync/errgroup, log/slog
 * @refs service/detection, service/repository, service/event, service/monitoring
 */

package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"policyguard-service/service/detection"
	"policyguard-service/service/event"
	"policyguard-service/service/models"
	"policyguard-service/service/monitoring"

	"golang.org/x/sync/errgroup"
)

// ErrTenantRequired 扫描请求缺少租户
var ErrTenantRequired = errors.New("tenant id is required")

// RuleLoader 启用规则读取
type RuleLoader interface {
	LoadEnabledRules(ctx context.Context, tenantID string, collections, ruleIDs []string) ([]models.Rule, error)
}

// RunStore 扫描记录读写
type RunStore interface {
	CreateScanRun(ctx context.Context, run *models.ScanRun) error
	FinalizeScanRun(ctx context.Context, run *models.ScanRun) error
}

// Store 编排器依赖的全部存储能力
type Store interface {
	DocumentStore
	ViolationWriter
	RunStore
}

// UnitResult 单条规则或单个检测器的执行结果
type UnitResult struct {
	Count   int
	Err     error
	Elapsed time.Duration
}

// Options 编排器参数
type Options struct {
	Workers         int
	InsertBatchSize int
	Logger          *slog.Logger
	Publisher       event.Publisher
	Metrics         *monitoring.MetricsCollector
	Clock           func() time.Time
}

// Orchestrator 扫描编排器
type Orchestrator struct {
	store        Store
	rules        RuleLoader
	detectors    []detection.Detector
	evaluator    *Evaluator
	materializer *Materializer
	publisher    event.Publisher
	metrics      *monitoring.MetricsCollector
	workers      int
	logger       *slog.Logger
	clock        func() time.Time
}

// NewOrchestrator 创建扫描编排器
func NewOrchestrator(store Store, rules RuleLoader, detectors []detection.Detector, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = 500
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = event.NoopPublisher{}
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		store:        store,
		rules:        rules,
		detectors:    detectors,
		evaluator:    NewEvaluator(store),
		materializer: NewMaterializer(store, opts.InsertBatchSize),
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		workers:      opts.Workers,
		logger:       opts.Logger,
		clock:        opts.Clock,
	}
}

// RunScan 执行一次完整扫描
func (o *Orchestrator) RunScan(ctx context.Context, req models.ScanRequest) (*models.ScanSummary, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, ErrTenantRequired
	}
	ctx = context.WithoutCancel(ctx)
	logger := o.logger.With("tenant_id", req.TenantID)

	rules, err := o.rules.LoadEnabledRules(ctx, req.TenantID, req.Collections, req.RuleIDs)
	if err != nil {
		return nil, fmt.Errorf("加载启用规则失败: %w", err)
	}

	started := o.clock()
	if len(rules) == 0 {
		return o.completeEmpty(ctx, req.TenantID, started)
	}

	run := &models.ScanRun{
		TenantID:           req.TenantID,
		Status:             models.ScanStatusRunning,
		StartedAt:          started,
		CollectionsScanned: uniqueCollections(rules),
	}
	if err := o.store.CreateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("创建扫描记录失败: %w", err)
	}
	logger = logger.With("scan_run_id", run.ID)
	logger.Info("扫描开始", "rules", len(rules), "detectors", len(o.detectors))

	ruleResults := make([]UnitResult, len(rules))
	patternResults := make([]UnitResult, len(o.detectors))

	// 高风险账户检测读取违规表，规则阶段全部结束后再运行检测器
	rg := new(errgroup.Group)
	rg.SetLimit(o.workers)
	for i := range rules {
		i := i
		rg.Go(func() error {
			ruleResults[i] = o.runRule(ctx, logger, run, &rules[i])
			return nil
		})
	}
	_ = rg.Wait()

	dg := new(errgroup.Group)
	dg.SetLimit(o.workers)
	for i, d := range o.detectors {
		i, d := i, d
		dg.Go(func() error {
			patternResults[i] = o.runDetector(ctx, logger, run, d, started)
			return nil
		})
	}
	_ = dg.Wait()

	total := 0
	run.RuleResults = make(models.RuleScanResults, len(rules))
	for i, res := range ruleResults {
		run.RuleResults[i] = models.RuleScanResult{
			RuleID:          rules[i].ID,
			RuleName:        rules[i].Name,
			Collection:      rules[i].Collection,
			ViolationsFound: res.Count,
			ExecutionTimeMs: res.Elapsed.Milliseconds(),
		}
		total += res.Count
	}
	run.PatternResults = make(models.PatternScanResults, len(o.detectors))
	for i, res := range patternResults {
		run.PatternResults[i] = models.PatternScanResult{
			DetectorID:      o.detectors[i].ID(),
			DetectorName:    o.detectors[i].Name(),
			ViolationsFound: res.Count,
			ExecutionTimeMs: res.Elapsed.Milliseconds(),
		}
		total += res.Count
	}

	completed := o.clock()
	run.Status = models.ScanStatusCompleted
	run.CompletedAt = &completed
	run.TotalRulesExecuted = len(rules)
	run.TotalViolationsFound = total

	if err := o.store.FinalizeScanRun(ctx, run); err != nil {
		o.markFailed(ctx, logger, run, err)
		o.finish(ctx, logger, run)
		return nil, fmt.Errorf("更新扫描记录失败: %w", err)
	}

	logger.Info("扫描完成",
		"total_rules_executed", run.TotalRulesExecuted,
		"total_violations_found", run.TotalViolationsFound,
		"elapsed", completed.Sub(started))
	o.finish(ctx, logger, run)
	return summarize(run), nil
}

// completeEmpty 无启用规则时直接写入 COMPLETED 记录
func (o *Orchestrator) completeEmpty(ctx context.Context, tenantID string, started time.Time) (*models.ScanSummary, error) {
	run := &models.ScanRun{
		TenantID:           tenantID,
		Status:             models.ScanStatusCompleted,
		StartedAt:          started,
		CompletedAt:        &started,
		CollectionsScanned: models.JSONBStringArray{},
		RuleResults:        models.RuleScanResults{},
		PatternResults:     models.PatternScanResults{},
	}
	if err := o.store.CreateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("创建扫描记录失败: %w", err)
	}
	o.logger.Info("无启用规则，扫描直接完成", "tenant_id", tenantID, "scan_run_id", run.ID)
	o.finish(ctx, o.logger, run)
	return summarize(run), nil
}

func (o *Orchestrator) runRule(ctx context.Context, logger *slog.Logger, run *models.ScanRun, rule *models.Rule) UnitResult {
	start := time.Now()
	res := UnitResult{}

	docs, err := o.evaluator.Evaluate(ctx, rule)
	if err == nil {
		res.Count, err = o.materializer.FromDocuments(ctx, run, rule, docs)
	}
	res.Err = err
	res.Elapsed = time.Since(start)

	if err != nil {
		logger.Error("规则执行失败", "rule_id", rule.ID, "rule_name", rule.Name, "created", res.Count, "error", err)
	} else {
		logger.Debug("规则执行完成", "rule_id", rule.ID, "violations", res.Count, "elapsed", res.Elapsed)
	}
	o.metrics.ObserveUnit(monitoring.UnitRule, res.Count, res.Elapsed, err)
	return res
}

func (o *Orchestrator) runDetector(ctx context.Context, logger *slog.Logger, run *models.ScanRun, d detection.Detector, now time.Time) UnitResult {
	start := time.Now()
	res := UnitResult{}

	matches, err := d.Detect(ctx, run.TenantID, now)
	if err == nil {
		res.Count, err = o.materializer.FromPatterns(ctx, run, d, matches)
	}
	res.Err = err
	res.Elapsed = time.Since(start)

	if err != nil {
		logger.Error("模式检测失败", "detector_id", d.ID(), "created", res.Count, "error", err)
	} else {
		logger.Debug("模式检测完成", "detector_id", d.ID(), "violations", res.Count, "elapsed", res.Elapsed)
	}
	o.metrics.ObserveUnit(monitoring.UnitDetector, res.Count, res.Elapsed, err)
	return res
}

// markFailed 尝试将扫描记录写为 FAILED
func (o *Orchestrator) markFailed(ctx context.Context, logger *slog.Logger, run *models.ScanRun, cause error) {
	msg := cause.Error()
	failedAt := o.clock()
	run.Status = models.ScanStatusFailed
	run.CompletedAt = &failedAt
	run.ErrorMessage = &msg
	if err := o.store.FinalizeScanRun(ctx, run); err != nil {
		logger.Error("标记扫描失败状态失败", "error", err, "cause", cause)
		return
	}
	logger.Warn("扫描已标记为失败", "error", cause)
}

// finish 记录指标并发布终态事件
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, run *models.ScanRun) {
	elapsed := time.Duration(0)
	if run.CompletedAt != nil {
		elapsed = run.CompletedAt.Sub(run.StartedAt)
	}
	o.metrics.ObserveScan(run.Status, elapsed)
	if err := o.publisher.PublishScanCompleted(ctx, event.NewScanCompletedEvent(run)); err != nil {
		logger.Warn("发布扫描事件失败", "error", err)
	}
}

func summarize(run *models.ScanRun) *models.ScanSummary {
	elapsed := 0.0
	if run.CompletedAt != nil {
		elapsed = run.CompletedAt.Sub(run.StartedAt).Seconds()
	}
	return &models.ScanSummary{
		ScanRunID:            run.ID,
		Status:               run.Status,
		TotalRulesExecuted:   run.TotalRulesExecuted,
		TotalViolationsFound: run.TotalViolationsFound,
		ExecutionTimeSeconds: elapsed,
		RuleResults:          run.RuleResults,
		PatternResults:       run.PatternResults,
	}
}

// uniqueCollections 按首次出现顺序去重
func uniqueCollections(rules []models.Rule) models.JSONBStringArray {
	seen := make(map[string]bool)
	out := models.JSONBStringArray{}
	for _, r := range rules {
		if !seen[r.Collection] {
			seen[r.Collection] = true
			out = append(out, r.Collection)
		}
	}
	return out
}
