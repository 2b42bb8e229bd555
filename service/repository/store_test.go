package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"policyguard-service/service/filter"
	"policyguard-service/service/models"
	"policyguard-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	factory *testutil.TestDataFactory
	store   *GormStore
	ctx     context.Context
}

func (s *StoreTestSuite) SetupTest() {
	s.testDB = testutil.NewTestDB()
	s.factory = testutil.NewTestDataFactory(s.testDB.DB)
	s.store = NewGormStore(s.testDB.DB)
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	s.testDB.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestQueryDocuments_TransactionsTenantScoped() {
	s.factory.CreateTransaction(testutil.WithAmount(1500000))
	s.factory.CreateTransaction(testutil.WithAmount(500))
	s.factory.CreateTransaction(testutil.WithAmount(2000000), testutil.WithType(models.TransactionTypeWire))
	s.factory.CreateTransaction(testutil.WithAmount(3000000), testutil.WithTenant("other-tenant"))

	ruleExpr, err := filter.Parse(map[string]interface{}{
		"transaction_type": "CASH",
		"amount":           map[string]interface{}{"$gte": 1000000},
	})
	require.NoError(s.T(), err)
	expr := filter.Conjoin(filter.Equals{Field: "tenant_id", Value: testutil.TestTenant}, ruleExpr)

	docs, err := s.store.QueryDocuments(s.ctx, testutil.TestTenant, models.CollectionTransactions, expr)
	require.NoError(s.T(), err)
	require.Len(s.T(), docs, 1)
	assert.Equal(s.T(), 1500000.0, docs[0]["amount"])
	assert.NotEmpty(s.T(), docs[0].ID())
}

func (s *StoreTestSuite) TestQueryDocuments_GenericCollection() {
	s.factory.CreateDocument(models.CollectionPayroll, map[string]interface{}{"employee_id": "E1", "salary_amount": 120000})
	s.factory.CreateDocument(models.CollectionPayroll, map[string]interface{}{"employee_id": "E2"})

	exists, err := s.store.CollectionExists(s.ctx, models.CollectionPayroll)
	require.NoError(s.T(), err)
	assert.True(s.T(), exists)

	missing, err := s.store.CollectionExists(s.ctx, "vendors")
	require.NoError(s.T(), err)
	assert.False(s.T(), missing)

	expr := filter.Conjoin(
		filter.Equals{Field: "tenant_id", Value: testutil.TestTenant},
		filter.Exists{Field: "salary_amount", Want: true},
	)
	docs, err := s.store.QueryDocuments(s.ctx, testutil.TestTenant, models.CollectionPayroll, expr)
	require.NoError(s.T(), err)
	require.Len(s.T(), docs, 1)
	assert.Equal(s.T(), "E1", docs[0]["employee_id"])
}

func (s *StoreTestSuite) TestListTransactions_Window() {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s.factory.CreateTransaction(testutil.WithTimestamp(now.Add(-2 * time.Hour)))
	s.factory.CreateTransaction(testutil.WithTimestamp(now.Add(-48 * time.Hour)))
	s.factory.CreateTransaction(testutil.WithTimestamp(now.Add(-time.Hour)), testutil.WithStatus(models.TransactionStatusFailed))

	txs, err := s.store.ListTransactions(s.ctx, TransactionQuery{
		TenantID: testutil.TestTenant,
		Since:    now.Add(-24 * time.Hour),
		Statuses: []string{models.TransactionStatusCompleted},
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), txs, 1)
	assert.True(s.T(), txs[0].Timestamp.Equal(now.Add(-2*time.Hour)))
}

func (s *StoreTestSuite) TestInsertViolations_Batches() {
	violations := make([]models.Violation, 5)
	for i := range violations {
		violations[i] = models.Violation{
			TenantID:   testutil.TestTenant,
			ScanRunID:  "run-1",
			RuleID:     "rule-1",
			RuleName:   "规则",
			Collection: models.CollectionTransactions,
			DocumentID: "doc",
			Severity:   models.SeverityLow,
			Status:     models.ViolationStatusConfirmed,
			CreatedAt:  time.Now().UTC(),
			UpdatedAt:  time.Now().UTC(),
		}
	}

	created, err := s.store.InsertViolations(s.ctx, violations, 2)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 5, created)

	list, total, err := s.store.ListViolations(s.ctx, testutil.TestTenant, models.ViolationQuery{ScanRunID: "run-1"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(5), total)
	for _, v := range list {
		assert.Equal(s.T(), models.ViolationStatusOpen, v.Status)
	}
}

func (s *StoreTestSuite) TestFinalizeScanRun_TerminalIsImmutable() {
	run := &models.ScanRun{TenantID: testutil.TestTenant, Status: models.ScanStatusRunning, StartedAt: time.Now().UTC()}
	require.NoError(s.T(), s.store.CreateScanRun(s.ctx, run))

	completed := time.Now().UTC()
	run.Status = models.ScanStatusCompleted
	run.CompletedAt = &completed
	run.TotalRulesExecuted = 2
	run.RuleResults = models.RuleScanResults{{RuleID: "r1", RuleName: "n1", Collection: "transactions", ViolationsFound: 3, ExecutionTimeMs: 5}}
	require.NoError(s.T(), s.store.FinalizeScanRun(s.ctx, run))

	run.Status = models.ScanStatusFailed
	err := s.store.FinalizeScanRun(s.ctx, run)
	assert.True(s.T(), errors.Is(err, ErrRunNotActive))

	stored, err := s.store.GetScanRun(s.ctx, testutil.TestTenant, run.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.ScanStatusCompleted, stored.Status)
	assert.Equal(s.T(), 2, stored.TotalRulesExecuted)
	require.Len(s.T(), stored.RuleResults, 1)
	assert.Equal(s.T(), 3, stored.RuleResults[0].ViolationsFound)
}

func (s *StoreTestSuite) TestDeleteScanRun_CascadesViolations() {
	run := &models.ScanRun{TenantID: testutil.TestTenant, Status: models.ScanStatusRunning, StartedAt: time.Now().UTC()}
	require.NoError(s.T(), s.store.CreateScanRun(s.ctx, run))
	for i := 0; i < 3; i++ {
		s.factory.CreateViolation(func(v *models.Violation) { v.ScanRunID = run.ID })
	}
	s.factory.CreateViolation()

	deleted, err := s.store.DeleteScanRun(s.ctx, testutil.TestTenant, run.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(3), deleted)

	_, err = s.store.GetScanRun(s.ctx, testutil.TestTenant, run.ID)
	assert.True(s.T(), errors.Is(err, ErrNotFound))

	_, total, err := s.store.ListViolations(s.ctx, testutil.TestTenant, models.ViolationQuery{})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), total)

	_, err = s.store.DeleteScanRun(s.ctx, testutil.TestTenant, run.ID)
	assert.True(s.T(), errors.Is(err, ErrNotFound))
}

func (s *StoreTestSuite) TestReviewViolation() {
	v := s.factory.CreateViolation()
	note := "已核实"

	updated, err := s.store.ReviewViolation(s.ctx, testutil.TestTenant, v.ID, models.ViolationReview{
		Status:       models.ViolationStatusConfirmed,
		ReviewerNote: &note,
		ReviewedBy:   "analyst",
	}, time.Now())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.ViolationStatusConfirmed, updated.Status)
	require.NotNil(s.T(), updated.ReviewedBy)
	assert.Equal(s.T(), "analyst", *updated.ReviewedBy)

	_, err = s.store.ReviewViolation(s.ctx, "other-tenant", v.ID, models.ViolationReview{Status: models.ViolationStatusDismissed}, time.Now())
	assert.True(s.T(), errors.Is(err, ErrNotFound))
}
