/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式；业务接口按 X-Tenant-ID 隔离
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs main.go, service/init.go
 */

package api

import (
	"policyguard-service/api/controllers"
	"policyguard-service/api/middleware"
	"policyguard-service/service"
	"policyguard-service/service/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r chi.Router, cfg *config.ApplicationConfig) {
	// 基础中间件
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
		AllowedMethods:   cfg.Server.CORS.AllowedMethods,
		AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.NewTenantMiddleware().Middleware)

	// 健康检查
	healthController := controllers.NewHealthController(service.GlobalHealthChecker, cfg.App.Version)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 扫描
	r.Route("/scans", func(r chi.Router) {
		scanController := controllers.NewScanController(service.GlobalOrchestrator, service.GlobalStore,
			service.GlobalRateLimiter, cfg.Scan.RateLimitPerMinute)
		r.Post("/run", scanController.RunScan)
		r.Get("/runs", scanController.ListScanRuns)
		r.Get("/runs/{id}", scanController.GetScanRun)
		r.Delete("/runs/{id}", scanController.DeleteScanRun)
	})

	// 违规
	r.Route("/violations", func(r chi.Router) {
		violationController := controllers.NewViolationController(service.GlobalStore, service.GlobalExplainService)
		r.Get("/", violationController.ListViolations)
		r.Get("/{id}", violationController.GetViolation)
		r.Patch("/{id}", violationController.ReviewViolation)
		r.Get("/{id}/explanation", violationController.GetExplanation)
	})

	// 规则与控制项
	ruleController := controllers.NewRuleController(service.GlobalRuleService)
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", ruleController.ListRules)
		r.Post("/", ruleController.CreateRule)
		r.Post("/from-control/{control_id}", ruleController.CreateRuleFromControl)
		r.Get("/{id}", ruleController.GetRule)
		r.Patch("/{id}", ruleController.UpdateRule)
		r.Delete("/{id}", ruleController.DeleteRule)
	})
	r.Get("/controls", ruleController.ListControls)

	// 扫描计划
	r.Route("/schedules", func(r chi.Router) {
		scheduleController := controllers.NewScheduleController(service.GlobalScheduleService)
		r.Get("/", scheduleController.ListSchedules)
		r.Post("/", scheduleController.CreateSchedule)
		r.Delete("/{id}", scheduleController.DeleteSchedule)
	})
}
