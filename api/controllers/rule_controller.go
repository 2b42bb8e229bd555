/*
 * @module api/controllers/rule_controller
 * @description 规则控制器，提供规则增删改查、按控制项生成规则与控制项目录接口
 * @architecture 分层架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 参数验证 -> 规则服务 -> 响应返回
 * @rules 过滤条件非法时返回400；租户不匹配视为不存在
 * @dependencies service/rules
 * @refs api/routes.go
 */

package controllers

import (
	"errors"
	"net/http"

	"policyguard-service/service/models"
	"policyguard-service/service/rules"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

// RuleController 规则控制器
type RuleController struct {
	ruleService *rules.RuleService
}

// NewRuleController 创建规则控制器
func NewRuleController(ruleService *rules.RuleService) *RuleController {
	return &RuleController{ruleService: ruleService}
}

// CreateRuleRequest 创建规则请求
type CreateRuleRequest struct {
	PolicyID        *string                `json:"policy_id,omitempty"`
	Name            string                 `json:"name" example:"大额现金交易"`
	Description     string                 `json:"description"`
	Collection      string                 `json:"collection" example:"transactions"`
	Filter          map[string]interface{} `json:"filter"`
	Severity        string                 `json:"severity" example:"HIGH"`
	Enabled         *bool                  `json:"enabled,omitempty"`
	Framework       string                 `json:"framework,omitempty"`
	ControlID       string                 `json:"control_id,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	ThresholdParams map[string]interface{} `json:"threshold_params,omitempty"`
	Explanation     string                 `json:"explanation,omitempty"`
}

// ListRules 获取规则列表
// @Summary 规则列表
// @Tags 规则
// @Param collection query string false "目标集合"
// @Param control_id query string false "控制项ID"
// @Param enabled query bool false "是否启用"
// @Router /rules [get]
func (c *RuleController) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	page, size := pageParams(r)
	query := r.URL.Query()

	q := rules.RuleQuery{
		Collection: query.Get("collection"),
		ControlID:  query.Get("control_id"),
		Page:       page,
		Size:       size,
	}
	if v := query.Get("enabled"); v != "" {
		enabled, err := cast.ToBoolE(v)
		if err != nil {
			render.Render(w, r, BadRequestResponse("enabled 参数无效", err))
			return
		}
		q.Enabled = &enabled
	}

	list, total, err := c.ruleService.ListRules(r.Context(), tenantID, q)
	if err != nil {
		render.Render(w, r, InternalErrorResponse("获取规则列表失败", err))
		return
	}
	render.Render(w, r, PageResponse("获取规则列表成功", list, total, page, size))
}

// CreateRule 创建规则
// @Summary 创建规则
// @Tags 规则
// @Param rule body CreateRuleRequest true "规则定义"
// @Router /rules [post]
func (c *RuleController) CreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req CreateRuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	rule := &models.Rule{
		TenantID:        tenantID,
		PolicyID:        req.PolicyID,
		Name:            req.Name,
		Description:     req.Description,
		Collection:      req.Collection,
		Filter:          models.JSONB(req.Filter),
		Enabled:         true,
		Framework:       req.Framework,
		ControlID:       req.ControlID,
		Tags:            models.JSONBStringArray(req.Tags),
		ThresholdParams: models.JSONB(req.ThresholdParams),
		Explanation:     req.Explanation,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Severity != "" {
		sev, err := models.ParseSeverity(req.Severity)
		if err != nil {
			render.Render(w, r, BadRequestResponse("无效的严重级别", err))
			return
		}
		rule.Severity = sev
	}

	if err := c.ruleService.CreateRule(r.Context(), rule); err != nil {
		c.renderRuleError(w, r, "创建规则失败", err)
		return
	}
	render.Render(w, r, CreatedResponse("创建规则成功", rule))
}

// CreateRuleFromControl 按控制项生成规则
// @Summary 按控制项生成规则
// @Tags 规则
// @Router /rules/from-control/{control_id} [post]
func (c *RuleController) CreateRuleFromControl(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	rule, err := c.ruleService.CreateRuleFromControl(r.Context(), tenantID, chi.URLParam(r, "control_id"))
	if err != nil {
		c.renderRuleError(w, r, "按控制项生成规则失败", err)
		return
	}
	render.Render(w, r, CreatedResponse("按控制项生成规则成功", rule))
}

// GetRule 获取规则详情
// @Summary 规则详情
// @Tags 规则
// @Router /rules/{id} [get]
func (c *RuleController) GetRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	rule, err := c.ruleService.GetRule(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		c.renderRuleError(w, r, "获取规则失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取规则成功", rule))
}

// UpdateRule 部分更新规则
// @Summary 更新规则
// @Tags 规则
// @Param rule body rules.RuleUpdate true "更新字段"
// @Router /rules/{id} [patch]
func (c *RuleController) UpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var update rules.RuleUpdate
	if err := render.DecodeJSON(r.Body, &update); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	rule, err := c.ruleService.UpdateRule(r.Context(), tenantID, chi.URLParam(r, "id"), update)
	if err != nil {
		c.renderRuleError(w, r, "更新规则失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("更新规则成功", rule))
}

// DeleteRule 删除规则
// @Summary 删除规则
// @Tags 规则
// @Router /rules/{id} [delete]
func (c *RuleController) DeleteRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	if err := c.ruleService.DeleteRule(r.Context(), tenantID, chi.URLParam(r, "id")); err != nil {
		c.renderRuleError(w, r, "删除规则失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("删除规则成功", nil))
}

// ListControls 获取控制项目录
// @Summary 控制项目录
// @Tags 规则
// @Router /controls [get]
func (c *RuleController) ListControls(w http.ResponseWriter, r *http.Request) {
	controls, err := c.ruleService.ListControls(r.Context())
	if err != nil {
		render.Render(w, r, InternalErrorResponse("获取控制项目录失败", err))
		return
	}
	render.Render(w, r, SuccessResponse("获取控制项目录成功", controls))
}

func (c *RuleController) renderRuleError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case rules.IsNotFound(err):
		render.Render(w, r, NotFoundResponse(msg, err))
	case errors.Is(err, rules.ErrInvalidRule):
		render.Render(w, r, BadRequestResponse(msg, err))
	default:
		render.Render(w, r, InternalErrorResponse(msg, err))
	}
}
