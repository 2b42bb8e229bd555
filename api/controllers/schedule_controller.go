/*
 * @module api/controllers/schedule_controller
 * @description 扫描计划控制器，提供计划的查询、创建与删除接口
 * @architecture 分层架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 参数验证 -> 调度服务 -> 响应返回
 * @rules Cron 表达式非法时返回400
 * @dependencies service/schedule
 * @refs api/routes.go
 */

package controllers

import (
	"errors"
	"net/http"

	"policyguard-service/service/schedule"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ScheduleController 扫描计划控制器
type ScheduleController struct {
	scheduleService *schedule.ScheduleService
}

// NewScheduleController 创建扫描计划控制器
func NewScheduleController(scheduleService *schedule.ScheduleService) *ScheduleController {
	return &ScheduleController{scheduleService: scheduleService}
}

// ListSchedules 获取扫描计划列表
// @Summary 扫描计划列表
// @Tags 扫描计划
// @Router /schedules [get]
func (c *ScheduleController) ListSchedules(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	list, err := c.scheduleService.ListSchedules(r.Context(), tenantID)
	if err != nil {
		render.Render(w, r, InternalErrorResponse("获取扫描计划列表失败", err))
		return
	}
	render.Render(w, r, SuccessResponse("获取扫描计划列表成功", list))
}

// CreateSchedule 创建扫描计划
// @Summary 创建扫描计划
// @Tags 扫描计划
// @Param schedule body schedule.CreateScheduleRequest true "计划定义"
// @Router /schedules [post]
func (c *ScheduleController) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req schedule.CreateScheduleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	sched, err := c.scheduleService.CreateSchedule(r.Context(), tenantID, req)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidSchedule) {
			render.Render(w, r, BadRequestResponse("创建扫描计划失败", err))
			return
		}
		render.Render(w, r, InternalErrorResponse("创建扫描计划失败", err))
		return
	}
	render.Render(w, r, CreatedResponse("创建扫描计划成功", sched))
}

// DeleteSchedule 删除扫描计划
// @Summary 删除扫描计划
// @Tags 扫描计划
// @Router /schedules/{id} [delete]
func (c *ScheduleController) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	if err := c.scheduleService.DeleteSchedule(r.Context(), tenantID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			render.Render(w, r, NotFoundResponse("扫描计划不存在", nil))
			return
		}
		render.Render(w, r, InternalErrorResponse("删除扫描计划失败", err))
		return
	}
	render.Render(w, r, SuccessResponse("删除扫描计划成功", nil))
}
