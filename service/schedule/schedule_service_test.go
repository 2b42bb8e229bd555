package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"policyguard-service/service/distributed_lock"
	"policyguard-service/service/models"
	"policyguard-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeScanner struct {
	mu       sync.Mutex
	requests []models.ScanRequest
	err      error
}

func (f *fakeScanner) RunScan(_ context.Context, req models.ScanRequest) (*models.ScanSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ScanSummary{ScanRunID: "run-1", Status: models.ScanStatusCompleted, TotalViolationsFound: 2}, nil
}

func TestValidateCronExpression(t *testing.T) {
	assert.NoError(t, ValidateCronExpression("0 2 * * *"))
	assert.NoError(t, ValidateCronExpression("@hourly"))
	assert.Error(t, ValidateCronExpression(""))
	assert.Error(t, ValidateCronExpression("0 0 2 * * *"), "不支持秒字段")
	assert.Error(t, ValidateCronExpression("not a cron"))
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 6, 15, 12, 30, 0, 0, time.UTC)
	next, err := NextRun("0 2 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 16, 2, 0, 0, 0, time.UTC), next)
}

type ScheduleServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	scanner *fakeScanner
	lock    *distributed_lock.LocalLock
	service *ScheduleService
	now     time.Time
	ctx     context.Context
}

func (s *ScheduleServiceTestSuite) SetupTest() {
	s.testDB = testutil.NewTestDB()
	s.scanner = &fakeScanner{}
	s.lock = distributed_lock.NewLocalLock()
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.service = NewScheduleService(s.testDB.DB, s.scanner, s.lock, time.Minute, nil)
	s.service.now = func() time.Time { return s.now }
	s.ctx = context.Background()
}

func (s *ScheduleServiceTestSuite) TearDownTest() {
	s.service.Stop()
	s.testDB.Close()
}

func TestScheduleServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ScheduleServiceTestSuite))
}

func (s *ScheduleServiceTestSuite) create(enabled bool) *models.ScanSchedule {
	sched, err := s.service.CreateSchedule(s.ctx, testutil.TestTenant, CreateScheduleRequest{
		Name:           "nightly",
		CronExpression: "0 2 * * *",
		Collections:    []string{"transactions"},
		Enabled:        &enabled,
	})
	require.NoError(s.T(), err)
	return sched
}

func (s *ScheduleServiceTestSuite) TestCreateSchedule_RegistersEnabled() {
	sched := s.create(true)
	require.NotNil(s.T(), sched.NextRunAt)
	assert.Equal(s.T(), time.Date(2026, 6, 16, 2, 0, 0, 0, time.UTC), sched.NextRunAt.UTC())
	assert.Equal(s.T(), 1, s.service.Registered())

	s.create(false)
	assert.Equal(s.T(), 1, s.service.Registered())

	list, err := s.service.ListSchedules(s.ctx, testutil.TestTenant)
	require.NoError(s.T(), err)
	assert.Len(s.T(), list, 2)

	other, err := s.service.ListSchedules(s.ctx, "other-tenant")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), other)
}

func (s *ScheduleServiceTestSuite) TestCreateSchedule_RejectsInvalidCron() {
	_, err := s.service.CreateSchedule(s.ctx, testutil.TestTenant, CreateScheduleRequest{Name: "bad", CronExpression: "every day"})
	assert.ErrorIs(s.T(), err, ErrInvalidSchedule)
	_, err = s.service.CreateSchedule(s.ctx, testutil.TestTenant, CreateScheduleRequest{CronExpression: "@daily"})
	assert.Error(s.T(), err)
}

func (s *ScheduleServiceTestSuite) TestDeleteSchedule() {
	sched := s.create(true)

	assert.ErrorIs(s.T(), s.service.DeleteSchedule(s.ctx, "other-tenant", sched.ID), ErrScheduleNotFound)
	require.NoError(s.T(), s.service.DeleteSchedule(s.ctx, testutil.TestTenant, sched.ID))
	assert.Equal(s.T(), 0, s.service.Registered())
	assert.ErrorIs(s.T(), s.service.DeleteSchedule(s.ctx, testutil.TestTenant, sched.ID), ErrScheduleNotFound)
}

func (s *ScheduleServiceTestSuite) TestExecute_RunsScanAndUpdatesSchedule() {
	sched := s.create(true)

	s.service.Execute(s.ctx, sched.ID)

	require.Len(s.T(), s.scanner.requests, 1)
	assert.Equal(s.T(), testutil.TestTenant, s.scanner.requests[0].TenantID)
	assert.Equal(s.T(), []string{"transactions"}, s.scanner.requests[0].Collections)

	var stored models.ScanSchedule
	require.NoError(s.T(), s.testDB.DB.First(&stored, "id = ?", sched.ID).Error)
	require.NotNil(s.T(), stored.LastRunAt)
	assert.True(s.T(), s.now.Equal(stored.LastRunAt.UTC()))
	require.NotNil(s.T(), stored.LastScanRunID)
	assert.Equal(s.T(), "run-1", *stored.LastScanRunID)
}

func (s *ScheduleServiceTestSuite) TestExecute_SkipsWhenLocked() {
	sched := s.create(true)
	ok, _ := s.lock.TryLock(s.ctx, sched.ID, time.Minute)
	require.True(s.T(), ok)

	s.service.Execute(s.ctx, sched.ID)
	assert.Empty(s.T(), s.scanner.requests)
}

func (s *ScheduleServiceTestSuite) TestExecute_ScanFailureStillRecordsRun() {
	sched := s.create(true)
	s.scanner.err = errors.New("db down")

	s.service.Execute(s.ctx, sched.ID)

	var stored models.ScanSchedule
	require.NoError(s.T(), s.testDB.DB.First(&stored, "id = ?", sched.ID).Error)
	assert.NotNil(s.T(), stored.LastRunAt)
	assert.Nil(s.T(), stored.LastScanRunID)

	ok, _ := s.lock.TryLock(s.ctx, sched.ID, time.Minute)
	assert.True(s.T(), ok, "失败后锁应被释放")
}

func (s *ScheduleServiceTestSuite) TestExecute_DisabledScheduleDoesNothing() {
	sched := s.create(false)
	s.service.Execute(s.ctx, sched.ID)
	assert.Empty(s.T(), s.scanner.requests)
}

func (s *ScheduleServiceTestSuite) TestStart_LoadsEnabledSchedules() {
	require.NoError(s.T(), s.testDB.DB.Create(&models.ScanSchedule{
		TenantID: testutil.TestTenant, Name: "a", CronExpression: "@hourly", Enabled: true,
	}).Error)
	require.NoError(s.T(), s.testDB.DB.Create(&models.ScanSchedule{
		TenantID: testutil.TestTenant, Name: "b", CronExpression: "@hourly", Enabled: false,
	}).Error)

	require.NoError(s.T(), s.service.Start(s.ctx))
	assert.Equal(s.T(), 1, s.service.Registered())
}
