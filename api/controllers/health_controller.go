/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供存活与就绪检查
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求处理流程
 * @rules 存活检查不访问依赖；就绪检查探测数据库与Redis，任一失败返回503
 * @dependencies service/monitoring
 * @refs api/routes.go
 */

package controllers

import (
	"net/http"
	"time"

	"policyguard-service/service/monitoring"

	"github.com/go-chi/render"
)

// HealthController 健康检查控制器
type HealthController struct {
	checker *monitoring.HealthChecker
	version string
}

// NewHealthController 创建健康检查控制器实例
func NewHealthController(checker *monitoring.HealthChecker, version string) *HealthController {
	return &HealthController{checker: checker, version: version}
}

// HealthResponse 健康检查响应结构
type HealthResponse struct {
	Status       string                        `json:"status" example:"ok"`
	Timestamp    time.Time                     `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Version      string                        `json:"version" example:"1.0.0"`
	Service      string                        `json:"service" example:"policyguard-service"`
	Dependencies []monitoring.DependencyHealth `json:"dependencies,omitempty"`
}

// Health 存活检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   c.version,
		Service:   "policyguard-service",
	})
}

// Ready 就绪检查
// @Summary 就绪检查
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   c.version,
		Service:   "policyguard-service",
	}

	if c.checker != nil {
		status := c.checker.Check(r.Context())
		response.Dependencies = status.Dependencies
		if status.Overall != monitoring.StatusHealthy {
			response.Status = "not_ready"
			render.Status(r, http.StatusServiceUnavailable)
		}
	}

	render.JSON(w, r, response)
}
