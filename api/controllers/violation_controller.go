/*
 * @module api/controllers/violation_controller
 * @description 违规控制器，提供违规查询、复核更新与解释接口
 * @architecture 分层架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow OPEN -> CONFIRMED | DISMISSED | FALSE_POSITIVE（可再次复核）
 * @rules 复核人优先取请求体，其次取 X-User-ID 请求头
 * @dependencies service/repository, service/explain
 * @refs api/routes.go
 */

package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"policyguard-service/api/middleware"
	"policyguard-service/service/explain"
	"policyguard-service/service/models"
	"policyguard-service/service/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ViolationStore 违规读写
type ViolationStore interface {
	ListViolations(ctx context.Context, tenantID string, q models.ViolationQuery) ([]models.Violation, int64, error)
	GetViolation(ctx context.Context, tenantID, id string) (*models.Violation, error)
	ReviewViolation(ctx context.Context, tenantID, id string, review models.ViolationReview, now time.Time) (*models.Violation, error)
}

// ViolationExplainer 违规解释
type ViolationExplainer interface {
	ExplainViolation(ctx context.Context, tenantID, violationID string) (*explain.Explanation, error)
}

// ViolationController 违规控制器
type ViolationController struct {
	store     ViolationStore
	explainer ViolationExplainer
	now       func() time.Time
}

// NewViolationController 创建违规控制器
func NewViolationController(store ViolationStore, explainer ViolationExplainer) *ViolationController {
	return &ViolationController{store: store, explainer: explainer, now: time.Now}
}

// ReviewViolationRequest 复核请求
type ReviewViolationRequest struct {
	Status       string  `json:"status" example:"CONFIRMED"`
	ReviewerNote *string `json:"reviewer_note,omitempty"`
	ReviewedBy   string  `json:"reviewed_by,omitempty"`
}

// ListViolations 分页查询违规
// @Summary 违规列表
// @Tags 违规
// @Param rule_id query string false "规则ID"
// @Param severity query string false "严重级别"
// @Param status query string false "复核状态"
// @Param scan_run_id query string false "扫描记录ID"
// @Router /violations [get]
func (c *ViolationController) ListViolations(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	page, size := pageParams(r)
	query := r.URL.Query()

	q := models.ViolationQuery{
		ScanRunID: query.Get("scan_run_id"),
		RuleID:    query.Get("rule_id"),
		Page:      page,
		Size:      size,
	}
	if v := query.Get("severity"); v != "" {
		sev, err := models.ParseSeverity(v)
		if err != nil {
			render.Render(w, r, BadRequestResponse("无效的严重级别", err))
			return
		}
		q.Severity = sev
	}
	if v := query.Get("status"); v != "" {
		status, err := models.ParseViolationStatus(v)
		if err != nil {
			render.Render(w, r, BadRequestResponse("无效的违规状态", err))
			return
		}
		q.Status = status
	}

	violations, total, err := c.store.ListViolations(r.Context(), tenantID, q)
	if err != nil {
		render.Render(w, r, InternalErrorResponse("获取违规列表失败", err))
		return
	}
	render.Render(w, r, PageResponse("获取违规列表成功", violations, total, page, size))
}

// GetViolation 获取违规详情
// @Summary 违规详情
// @Tags 违规
// @Router /violations/{id} [get]
func (c *ViolationController) GetViolation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	v, err := c.store.GetViolation(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		c.renderLookupError(w, r, "获取违规失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取违规成功", v))
}

// ReviewViolation 复核违规
// @Summary 复核违规
// @Tags 违规
// @Param review body ReviewViolationRequest true "复核信息"
// @Router /violations/{id} [patch]
func (c *ViolationController) ReviewViolation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req ReviewViolationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	status, err := models.ParseViolationStatus(req.Status)
	if err != nil {
		render.Render(w, r, BadRequestResponse("无效的违规状态", err))
		return
	}

	reviewer := strings.TrimSpace(req.ReviewedBy)
	if reviewer == "" {
		reviewer, _ = middleware.GetUserFromContext(r.Context())
	}
	if reviewer == "" {
		render.Render(w, r, BadRequestResponse("复核人不能为空", nil))
		return
	}

	v, err := c.store.ReviewViolation(r.Context(), tenantID, chi.URLParam(r, "id"), models.ViolationReview{
		Status:       status,
		ReviewerNote: req.ReviewerNote,
		ReviewedBy:   reviewer,
	}, c.now())
	if err != nil {
		c.renderLookupError(w, r, "复核违规失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("复核违规成功", v))
}

// GetExplanation 获取违规解释
// @Summary 违规解释
// @Tags 违规
// @Router /violations/{id}/explanation [get]
func (c *ViolationController) GetExplanation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	exp, err := c.explainer.ExplainViolation(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		c.renderLookupError(w, r, "生成违规解释失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("生成违规解释成功", exp))
}

func (c *ViolationController) renderLookupError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		render.Render(w, r, NotFoundResponse("违规不存在", nil))
		return
	}
	render.Render(w, r, InternalErrorResponse(msg, err))
}
