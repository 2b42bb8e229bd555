package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"policyguard-service/service/config"
	"policyguard-service/service/models"
	"policyguard-service/service/repository"
	"policyguard-service/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func tx(id, src, dst string, amount float64, ts time.Time, opts ...func(*models.Transaction)) models.Transaction {
	t := models.Transaction{
		TenantID:        testutil.TestTenant,
		TransactionID:   id,
		Timestamp:       ts,
		Amount:          decimal.NewFromFloat(amount),
		TransactionType: models.TransactionTypeCash,
		SrcAccount:      src,
		DstAccount:      dst,
		Status:          models.TransactionStatusCompleted,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func wire(t *models.Transaction)    { t.TransactionType = models.TransactionTypeWire }
func pending(t *models.Transaction) { t.Status = models.TransactionStatusPending }

func TestGroupStructuring(t *testing.T) {
	cfg := config.DefaultDetectorsConfig().Structuring
	txs := []models.Transaction{
		tx("t1", "A1", "B1", 9100, now.Add(-2*time.Hour)),
		tx("t2", "A1", "B1", 9300, now.Add(-90*time.Minute)),
		tx("t3", "A1", "B1", 9600, now.Add(-time.Hour)),
		tx("t4", "A1", "B1", 9999, now.Add(-30*time.Minute)),
		tx("t5", "A1", "B1", 10000, now.Add(-20*time.Minute)),
		tx("t6", "A1", "B1", 9500, now.Add(-48*time.Hour)),
		tx("t7", "A2", "B1", 9500, now.Add(-time.Hour)),
		tx("t8", "A2", "B1", 9500, now.Add(-time.Hour), pending),
		tx("t9", "A2", "B1", 9500, now.Add(-time.Hour)),
	}

	matches := GroupStructuring(txs, cfg, now)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "A1", m.GroupKey())
	assert.Equal(t, 4, m.TransactionCount)
	assert.True(t, m.TotalAmount.Equal(decimal.NewFromInt(37999)))
	assert.InDelta(t, 1.5, m.TimeSpanHours, 0.0001)

	data := m.DocumentData()
	assert.Equal(t, "A1", data["account_id"])
	assert.Equal(t, 37999.0, data["total_amount"])
	assert.Len(t, data["transactions"], 4)
	assert.Contains(t, m.Explanation(), "37,999.00")
}

func TestGroupStructuring_BelowMinCount(t *testing.T) {
	cfg := config.DefaultDetectorsConfig().Structuring
	txs := []models.Transaction{
		tx("t1", "A1", "B1", 9100, now.Add(-2*time.Hour)),
		tx("t2", "A1", "B1", 9300, now.Add(-time.Hour)),
		tx("t3", "A1", "B1", 500, now.Add(-time.Hour)),
	}
	assert.Empty(t, GroupStructuring(txs, cfg, now))
}

func TestGroupRapidTransfers(t *testing.T) {
	cfg := config.DefaultDetectorsConfig().RapidTransfers
	var txs []models.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, tx("w"+string(rune('a'+i)), "A1", "B2", 2000, now.Add(-time.Duration(i+1)*time.Hour), wire))
	}
	// 现金交易不计入
	txs = append(txs, tx("c1", "A1", "B2", 2000, now.Add(-time.Hour)))
	for i := 0; i < 4; i++ {
		txs = append(txs, tx("x"+string(rune('a'+i)), "A3", "B3", 100, now.Add(-time.Hour), wire))
	}

	matches := GroupRapidTransfers(txs, cfg, now)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "A1->B2", m.GroupKey())
	assert.Equal(t, 5, m.TransferCount)
	assert.True(t, m.TotalAmount.Equal(decimal.NewFromInt(10000)))
	assert.True(t, m.AvgAmount.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, "B2", m.DocumentData()["dst_account"])
}

func TestGroupHighRiskAccounts(t *testing.T) {
	cfg := config.DefaultDetectorsConfig().HighRiskAccount
	violation := func(id, account string, sev models.Severity, status models.ViolationStatus) models.Violation {
		return models.Violation{
			ID:           id,
			RuleName:     "rule",
			Severity:     sev,
			Status:       status,
			DocumentData: models.JSONB{"src_account": account},
			CreatedAt:    now.Add(-24 * time.Hour),
		}
	}
	violations := []models.Violation{
		violation("v1", "A1", models.SeverityCritical, models.ViolationStatusOpen),
		violation("v2", "A1", models.SeverityHigh, models.ViolationStatusConfirmed),
		violation("v3", "A1", models.SeverityLow, models.ViolationStatusOpen),
		violation("v4", "A1", models.SeverityLow, models.ViolationStatusOpen),
		violation("v5", "A1", models.SeverityMedium, models.ViolationStatusOpen),
		violation("v6", "A1", models.SeverityCritical, models.ViolationStatusDismissed),
		violation("v7", "A2", models.SeverityCritical, models.ViolationStatusOpen),
	}

	matches := GroupHighRiskAccounts(violations, cfg, now)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "A1", m.AccountID)
	assert.Equal(t, 5, m.ViolationCount)
	assert.Equal(t, 1, m.CriticalCount)
	assert.Equal(t, 1, m.HighCount)
	assert.Equal(t, 10+5+5, m.RiskScore)
}

func TestGroupUnusualFrequency(t *testing.T) {
	cfg := config.DefaultDetectorsConfig().UnusualFrequency
	var txs []models.Transaction
	// 基线四周共 4 笔，平均每周 1 笔
	for i := 0; i < 4; i++ {
		txs = append(txs, tx("h"+string(rune('a'+i)), "A1", "B1", 100, now.AddDate(0, 0, -8-7*i)))
	}
	for i := 0; i < 3; i++ {
		txs = append(txs, tx("r"+string(rune('a'+i)), "A1", "B1", 200, now.Add(-time.Duration(i+1)*time.Hour)))
	}
	// 没有历史基线的账户不参与
	txs = append(txs, tx("n1", "A2", "B1", 100, now.Add(-time.Hour)))

	matches := GroupUnusualFrequency(txs, cfg, now)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, 3, m.RecentTransactionCount)
	assert.InDelta(t, 1.0, m.HistoricalAvgPerWindow, 0.0001)
	assert.InDelta(t, 3.0, m.FrequencyMultiplier, 0.0001)
	assert.True(t, m.RecentTotalAmount.Equal(decimal.NewFromInt(600)))
}

func TestGroupRoundAmounts(t *testing.T) {
	cfg := config.DefaultDetectorsConfig().RoundAmount
	txs := []models.Transaction{
		tx("t1", "A1", "B1", 5000, now.AddDate(0, 0, -1)),
		tx("t2", "A1", "B1", 6000, now.AddDate(0, 0, -2)),
		tx("t3", "A1", "B1", 9000, now.AddDate(0, 0, -3)),
		tx("t4", "A1", "B1", 5500, now.AddDate(0, 0, -3)),
		tx("t5", "A1", "B1", 3000, now.AddDate(0, 0, -3)),
	}
	matches := GroupRoundAmounts(txs, cfg, now)
	require.Len(t, matches, 1)
	assert.Equal(t, 3, matches[0].RoundTransactionCount)
	assert.True(t, matches[0].TotalRoundAmount.Equal(decimal.NewFromInt(20000)))
	assert.Equal(t, 3, matches[0].DocumentData()["round_transaction_count"])
}

func TestGroupDailyStructuring(t *testing.T) {
	cfg := config.DefaultDetectorsConfig().DailyStructuring
	day := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		tx("t1", "A1", "B1", 3000, day.Add(9*time.Hour)),
		tx("t2", "A1", "B1", 3000, day.Add(11*time.Hour)),
		tx("t3", "A1", "B1", 3500, day.Add(15*time.Hour)),
		// 合计超过阈值的日期不命中
		tx("t4", "A2", "B1", 4000, day.Add(9*time.Hour)),
		tx("t5", "A2", "B1", 4000, day.Add(10*time.Hour)),
		tx("t6", "A2", "B1", 4000, day.Add(11*time.Hour)),
		// 跨 UTC 自然日分开计数
		tx("t7", "A3", "B1", 100, day.Add(23*time.Hour)),
		tx("t8", "A3", "B1", 100, day.Add(25*time.Hour)),
		tx("t9", "A3", "B1", 100, day.Add(26*time.Hour)),
	}
	matches := GroupDailyStructuring(txs, cfg, now)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "A1:2026-03-08", m.GroupKey())
	assert.Equal(t, 3, m.TransactionCount)
	assert.True(t, m.DailyTotal.Equal(decimal.NewFromInt(9500)))
}

func TestNewDetectors_OrderAndDisable(t *testing.T) {
	cfg := config.DefaultDetectorsConfig()
	detectors := NewDetectors(cfg, nil)
	require.Len(t, detectors, 6)
	ids := make([]string, len(detectors))
	for i, d := range detectors {
		ids[i] = d.ID()
	}
	assert.Equal(t, []string{
		DetectorStructuring, DetectorRapidTransfers, DetectorHighRiskAccount,
		DetectorUnusualFrequency, DetectorRoundAmount, DetectorDailyStructuring,
	}, ids)
	assert.Equal(t, models.SeverityCritical, detectors[0].Severity())
	assert.Equal(t, "violations", detectors[2].Collection())

	cfg.RapidTransfers.Enabled = false
	assert.Len(t, NewDetectors(cfg, nil), 5)
}

type failingSource struct{}

func (failingSource) ListTransactions(context.Context, repository.TransactionQuery) ([]models.Transaction, error) {
	return nil, errors.New("connection reset")
}

func (failingSource) ListViolationsSince(context.Context, string, time.Time, []models.ViolationStatus) ([]models.Violation, error) {
	return nil, errors.New("connection reset")
}

func TestDetect_SourceError(t *testing.T) {
	for _, d := range NewDetectors(config.DefaultDetectorsConfig(), failingSource{}) {
		_, err := d.Detect(context.Background(), testutil.TestTenant, now)
		assert.Error(t, err, d.ID())
	}
}

type DetectionStoreTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	factory *testutil.TestDataFactory
	store   *repository.GormStore
}

func (s *DetectionStoreTestSuite) SetupTest() {
	s.testDB = testutil.NewTestDB()
	s.factory = testutil.NewTestDataFactory(s.testDB.DB)
	s.store = repository.NewGormStore(s.testDB.DB)
}

func (s *DetectionStoreTestSuite) TearDownTest() {
	s.testDB.Close()
}

func TestDetectionStoreTestSuite(t *testing.T) {
	suite.Run(t, new(DetectionStoreTestSuite))
}

func (s *DetectionStoreTestSuite) TestStructuringDetect_IsIdempotentAndTenantScoped() {
	for i, amount := range []float64{9100, 9300, 9600, 9999} {
		s.factory.CreateTransaction(
			testutil.WithAmount(amount),
			testutil.WithAccounts("A1", "B1"),
			testutil.WithTimestamp(now.Add(-time.Duration(i+1)*30*time.Minute)),
		)
	}
	for i := 0; i < 3; i++ {
		s.factory.CreateTransaction(
			testutil.WithTenant("other-tenant"),
			testutil.WithAmount(9500),
			testutil.WithAccounts("Z9", "B1"),
			testutil.WithTimestamp(now.Add(-time.Hour)),
		)
	}

	detector := NewDetectors(config.DefaultDetectorsConfig(), s.store)[0]
	first, err := detector.Detect(context.Background(), testutil.TestTenant, now)
	require.NoError(s.T(), err)
	second, err := detector.Detect(context.Background(), testutil.TestTenant, now)
	require.NoError(s.T(), err)

	require.Len(s.T(), first, 1)
	assert.Equal(s.T(), "A1", first[0].GroupKey())
	assert.Equal(s.T(), 4, first[0].DocumentData()["transaction_count"])
	assert.Equal(s.T(), first[0].DocumentData(), second[0].DocumentData())
}

func (s *DetectionStoreTestSuite) TestDetect_EmptyTenant() {
	for _, d := range NewDetectors(config.DefaultDetectorsConfig(), s.store) {
		matches, err := d.Detect(context.Background(), "empty-tenant", now)
		require.NoError(s.T(), err)
		assert.Empty(s.T(), matches, d.ID())
	}
}
