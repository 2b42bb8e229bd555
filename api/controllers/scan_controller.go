/*
 * @module api/controllers/scan_controller
 * @description 扫描控制器，提供触发扫描、扫描记录查询与删除接口
 * @architecture 分层架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 租户校验 -> 限流 -> 扫描编排 -> 响应返回
 * @rules 扫描同步执行并返回摘要；限流器异常时放行；删除扫描记录同时删除其违规
 * @dependencies service/scan, service/repository, service/rate_limiter
 * @refs api/routes.go
 */

package controllers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"policyguard-service/service/models"
	"policyguard-service/service/rate_limiter"
	"policyguard-service/service/repository"
	"policyguard-service/service/scan"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ScanRunner 扫描执行
type ScanRunner interface {
	RunScan(ctx context.Context, req models.ScanRequest) (*models.ScanSummary, error)
}

// ScanRunStore 扫描记录读写
type ScanRunStore interface {
	ListScanRuns(ctx context.Context, tenantID string, page, size int) ([]models.ScanRun, int64, error)
	GetScanRun(ctx context.Context, tenantID, id string) (*models.ScanRun, error)
	DeleteScanRun(ctx context.Context, tenantID, id string) (int64, error)
}

// ScanController 扫描控制器
type ScanController struct {
	runner    ScanRunner
	runs      ScanRunStore
	limiter   rate_limiter.Limiter
	perMinute int
}

// NewScanController 创建扫描控制器
func NewScanController(runner ScanRunner, runs ScanRunStore, limiter rate_limiter.Limiter, perMinute int) *ScanController {
	if limiter == nil {
		limiter = rate_limiter.NoopLimiter{}
	}
	return &ScanController{runner: runner, runs: runs, limiter: limiter, perMinute: perMinute}
}

// RunScanRequest 触发扫描请求，字段均可选
type RunScanRequest struct {
	Collections []string `json:"collections,omitempty"`
	RuleIDs     []string `json:"rule_ids,omitempty"`
}

// RunScan 触发一次扫描
// @Summary 触发扫描
// @Tags 扫描
// @Router /scans/run [post]
func (c *ScanController) RunScan(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req RunScanRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	result, err := c.limiter.CheckRateLimit(r.Context(), rate_limiter.ScanTriggerRules(tenantID, c.perMinute))
	if err != nil {
		slog.Warn("扫描限流检查失败，放行请求", "tenant_id", tenantID, "error", err)
	} else if !result.Allowed {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
		render.Render(w, r, ErrorResponse(http.StatusTooManyRequests, result.Message, nil))
		return
	}

	summary, err := c.runner.RunScan(r.Context(), models.ScanRequest{
		TenantID:    tenantID,
		Collections: req.Collections,
		RuleIDs:     req.RuleIDs,
	})
	if err != nil {
		if errors.Is(err, scan.ErrTenantRequired) {
			render.Render(w, r, BadRequestResponse("扫描请求无效", err))
			return
		}
		render.Render(w, r, InternalErrorResponse("执行扫描失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("扫描完成", summary))
}

// ListScanRuns 分页获取扫描记录
// @Summary 扫描记录列表
// @Tags 扫描
// @Router /scans/runs [get]
func (c *ScanController) ListScanRuns(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	page, size := pageParams(r)

	runs, total, err := c.runs.ListScanRuns(r.Context(), tenantID, page, size)
	if err != nil {
		render.Render(w, r, InternalErrorResponse("获取扫描记录列表失败", err))
		return
	}
	render.Render(w, r, PageResponse("获取扫描记录列表成功", runs, total, page, size))
}

// GetScanRun 获取扫描记录详情
// @Summary 扫描记录详情
// @Tags 扫描
// @Router /scans/runs/{id} [get]
func (c *ScanController) GetScanRun(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	run, err := c.runs.GetScanRun(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			render.Render(w, r, NotFoundResponse("扫描记录不存在", nil))
			return
		}
		render.Render(w, r, InternalErrorResponse("获取扫描记录失败", err))
		return
	}
	render.Render(w, r, SuccessResponse("获取扫描记录成功", run))
}

// DeleteScanRun 删除扫描记录及其违规
// @Summary 删除扫描记录
// @Tags 扫描
// @Router /scans/runs/{id} [delete]
func (c *ScanController) DeleteScanRun(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	deleted, err := c.runs.DeleteScanRun(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			render.Render(w, r, NotFoundResponse("扫描记录不存在", nil))
			return
		}
		render.Render(w, r, InternalErrorResponse("删除扫描记录失败", err))
		return
	}
	render.Render(w, r, SuccessResponse("删除扫描记录成功", map[string]interface{}{
		"violations_deleted": deleted,
	}))
}
