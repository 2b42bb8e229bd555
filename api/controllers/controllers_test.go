/*
 * @module api/controllers/controllers_test
 * @description 控制器集成测试，基于内存 sqlite 与真实服务
 * @architecture 测试层
 * @stateFlow 测试准备 -> 请求构建 -> 响应验证
 * @rules 覆盖租户校验、扫描触发、违规复核、规则与计划管理
 * @dependencies testing, net/http/httptest, stretchr/testify
 */

package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"policyguard-service/api/middleware"
	"policyguard-service/service/config"
	"policyguard-service/service/detection"
	"policyguard-service/service/distributed_lock"
	"policyguard-service/service/explain"
	"policyguard-service/service/models"
	"policyguard-service/service/monitoring"
	"policyguard-service/service/rate_limiter"
	"policyguard-service/service/repository"
	"policyguard-service/service/rules"
	"policyguard-service/service/scan"
	"policyguard-service/service/schedule"
	"policyguard-service/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type denyLimiter struct{}

func (denyLimiter) CheckRateLimit(context.Context, []rate_limiter.RateLimitRule) (*rate_limiter.RateLimitResult, error) {
	return &rate_limiter.RateLimitResult{Allowed: false, Limit: 1, RateLimitType: rate_limiter.LimitTypeTenant, Message: "超过租户限流限制"}, nil
}

type mockScanRunner struct {
	mock.Mock
}

func (m *mockScanRunner) RunScan(ctx context.Context, req models.ScanRequest) (*models.ScanSummary, error) {
	args := m.Called(ctx, req)
	if summary, ok := args.Get(0).(*models.ScanSummary); ok {
		return summary, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRunScan_PassesFiltersAndMapsErrors(t *testing.T) {
	runner := new(mockScanRunner)
	controller := NewScanController(runner, nil, nil, 0)

	expected := models.ScanRequest{TenantID: "acme", Collections: []string{"payroll"}, RuleIDs: []string{"r1"}}
	runner.On("RunScan", mock.Anything, expected).Return(nil, errors.New("rule load failed")).Once()

	body := bytes.NewBufferString(`{"collections":["payroll"],"rule_ids":["r1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/scans/run", body)
	req = req.WithContext(context.WithValue(req.Context(), middleware.TenantKey, "acme"))
	w := httptest.NewRecorder()
	controller.RunScan(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Msg, "rule load failed")
	runner.AssertExpectations(t)
}

type ControllerTestSuite struct {
	suite.Suite
	testDB   *testutil.TestDB
	factory  *testutil.TestDataFactory
	store    *repository.GormStore
	ruleSvc  *rules.RuleService
	runner   *scan.Orchestrator
	schedSvc *schedule.ScheduleService
	router   *chi.Mux
}

func (s *ControllerTestSuite) SetupTest() {
	s.testDB = testutil.NewTestDB()
	s.factory = testutil.NewTestDataFactory(s.testDB.DB)
	s.factory.SeedControls()

	s.store = repository.NewGormStore(s.testDB.DB)
	s.ruleSvc = rules.NewRuleService(s.testDB.DB)
	detectorsCfg := config.DefaultDetectorsConfig()
	s.runner = scan.NewOrchestrator(s.store, s.ruleSvc.Repository(), detection.NewDetectors(detectorsCfg, s.store), scan.Options{Workers: 2})
	s.schedSvc = schedule.NewScheduleService(s.testDB.DB, s.runner, distributed_lock.NewLocalLock(), time.Minute, nil)

	s.router = s.buildRouter(rate_limiter.NoopLimiter{})
}

func (s *ControllerTestSuite) buildRouter(limiter rate_limiter.Limiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.NewTenantMiddleware().Middleware)

	health := NewHealthController(monitoring.NewHealthChecker(s.testDB.DB, nil), "test")
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	scans := NewScanController(s.runner, s.store, limiter, 10)
	r.Post("/scans/run", scans.RunScan)
	r.Get("/scans/runs", scans.ListScanRuns)
	r.Get("/scans/runs/{id}", scans.GetScanRun)
	r.Delete("/scans/runs/{id}", scans.DeleteScanRun)

	violations := NewViolationController(s.store, explain.NewService(s.store, s.ruleSvc.Repository(), config.DefaultDetectorsConfig()))
	r.Get("/violations", violations.ListViolations)
	r.Get("/violations/{id}", violations.GetViolation)
	r.Patch("/violations/{id}", violations.ReviewViolation)
	r.Get("/violations/{id}/explanation", violations.GetExplanation)

	ruleCtl := NewRuleController(s.ruleSvc)
	r.Get("/rules", ruleCtl.ListRules)
	r.Post("/rules", ruleCtl.CreateRule)
	r.Post("/rules/from-control/{control_id}", ruleCtl.CreateRuleFromControl)
	r.Get("/rules/{id}", ruleCtl.GetRule)
	r.Patch("/rules/{id}", ruleCtl.UpdateRule)
	r.Delete("/rules/{id}", ruleCtl.DeleteRule)
	r.Get("/controls", ruleCtl.ListControls)

	schedules := NewScheduleController(s.schedSvc)
	r.Get("/schedules", schedules.ListSchedules)
	r.Post("/schedules", schedules.CreateSchedule)
	r.Delete("/schedules/{id}", schedules.DeleteSchedule)
	return r
}

func (s *ControllerTestSuite) TearDownTest() {
	s.schedSvc.Stop()
	s.testDB.Close()
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, testutil.TestTenant)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *ControllerTestSuite) TestMissingTenant() {
	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *ControllerTestSuite) TestHealthAndReady() {
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(s.T(), http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "ready", resp.Status)
	require.Len(s.T(), resp.Dependencies, 1)
}

func (s *ControllerTestSuite) TestScanReviewAndExplain() {
	s.factory.CreateRule(func(r *models.Rule) { r.ControlID = "CTR-01" })
	s.factory.CreateTransaction(testutil.WithAmount(1500000))

	w, resp := s.do(http.MethodPost, "/scans/run", nil)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	summary := resp["data"].(map[string]interface{})
	assert.Equal(s.T(), "COMPLETED", summary["status"])
	assert.Equal(s.T(), 1.0, summary["total_violations_found"])
	runID := summary["scan_run_id"].(string)

	w, resp = s.do(http.MethodGet, "/violations?status=open&scan_run_id="+runID, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), 1.0, resp["total"])
	items := resp["data"].([]interface{})
	violationID := items[0].(map[string]interface{})["id"].(string)

	w, resp = s.do(http.MethodGet, "/violations/"+violationID+"/explanation", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	exp := resp["data"].(map[string]interface{})
	assert.NotEmpty(s.T(), exp["reasons"])

	w, _ = s.do(http.MethodPatch, "/violations/"+violationID, map[string]interface{}{"status": "CONFIRMED"})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code, "缺少复核人")

	w, resp = s.do(http.MethodPatch, "/violations/"+violationID, map[string]interface{}{
		"status": "CONFIRMED", "reviewed_by": "analyst", "reviewer_note": "checked",
	})
	require.Equal(s.T(), http.StatusOK, w.Code)
	reviewed := resp["data"].(map[string]interface{})
	assert.Equal(s.T(), "CONFIRMED", reviewed["status"])
	assert.Equal(s.T(), "analyst", reviewed["reviewed_by"])

	w, resp = s.do(http.MethodGet, "/scans/runs", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), 1.0, resp["total"])

	w, resp = s.do(http.MethodDelete, "/scans/runs/"+runID, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), 1.0, resp["data"].(map[string]interface{})["violations_deleted"])

	w, _ = s.do(http.MethodGet, "/scans/runs/"+runID, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *ControllerTestSuite) TestRunScan_RateLimited() {
	s.router = s.buildRouter(denyLimiter{})
	w, _ := s.do(http.MethodPost, "/scans/run", nil)
	assert.Equal(s.T(), http.StatusTooManyRequests, w.Code)
	assert.Equal(s.T(), "1", w.Header().Get("X-RateLimit-Limit"))
}

func (s *ControllerTestSuite) TestViolationNotFoundAndBadFilter() {
	w, _ := s.do(http.MethodGet, "/violations/missing", nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodGet, "/violations?severity=extreme", nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *ControllerTestSuite) TestRuleCRUD() {
	w, resp := s.do(http.MethodPost, "/rules", map[string]interface{}{
		"name":       "Large wires",
		"collection": "transactions",
		"filter":     map[string]interface{}{"transaction_type": "WIRE", "amount": map[string]interface{}{"$gt": 50000}},
		"severity":   "high",
	})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	rule := resp["data"].(map[string]interface{})
	ruleID := rule["id"].(string)
	assert.Equal(s.T(), "HIGH", rule["severity"])
	assert.Equal(s.T(), true, rule["enabled"])

	w, _ = s.do(http.MethodPost, "/rules", map[string]interface{}{
		"name": "bad", "collection": "transactions", "filter": map[string]interface{}{"$where": "1"},
	})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	w, resp = s.do(http.MethodPatch, "/rules/"+ruleID, map[string]interface{}{"enabled": false})
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), false, resp["data"].(map[string]interface{})["enabled"])

	w, resp = s.do(http.MethodGet, "/rules?enabled=false", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), 1.0, resp["total"])

	w, _ = s.do(http.MethodDelete, "/rules/"+ruleID, nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
	w, _ = s.do(http.MethodGet, "/rules/"+ruleID, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *ControllerTestSuite) TestRuleFromControlAndControls() {
	w, resp := s.do(http.MethodPost, "/rules/from-control/GEO-01", nil)
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(s.T(), "GEO-01", resp["data"].(map[string]interface{})["control_id"])

	w, _ = s.do(http.MethodPost, "/rules/from-control/NOPE-01", nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	w, resp = s.do(http.MethodGet, "/controls", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.NotEmpty(s.T(), resp["data"])
}

func (s *ControllerTestSuite) TestSchedules() {
	w, _ := s.do(http.MethodPost, "/schedules", map[string]interface{}{"name": "bad", "cron_expression": "sometimes"})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	w, resp := s.do(http.MethodPost, "/schedules", map[string]interface{}{"name": "nightly", "cron_expression": "0 2 * * *"})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	id := resp["data"].(map[string]interface{})["id"].(string)

	w, resp = s.do(http.MethodGet, "/schedules", nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Len(s.T(), resp["data"], 1)

	w, _ = s.do(http.MethodDelete, "/schedules/"+id, nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
	w, _ = s.do(http.MethodDelete, "/schedules/"+id, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}
