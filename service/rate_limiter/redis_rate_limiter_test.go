package rate_limiter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"policyguard-service/service/config"
	"policyguard-service/service/distributed_lock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis 需要本地 Redis，不可用时跳过
func setupTestRedis(t *testing.T) *RedisRateLimiter {
	client, err := distributed_lock.NewRedisClient(config.RedisConfig{Host: "localhost", Port: 6379, DB: 15})
	if err != nil {
		t.Skipf("Redis不可用: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisRateLimiter(client)
}

func TestScanTriggerRules(t *testing.T) {
	rules := ScanTriggerRules("t1", 5)
	require.Len(t, rules, 2)
	assert.Equal(t, LimitTypeGlobal, rules[0].Type)
	assert.Equal(t, 50, rules[0].MaxRequests)
	assert.Equal(t, "t1", rules[1].TargetID)
	assert.Equal(t, 5, rules[1].MaxRequests)

	assert.Nil(t, ScanTriggerRules("t1", 0))
}

func TestSortRulesByPriority(t *testing.T) {
	sorted := sortRulesByPriority(ScanTriggerRules("t1", 5))
	assert.Equal(t, LimitTypeTenant, sorted[0].Type)
	assert.Equal(t, LimitTypeGlobal, sorted[1].Type)
}

func TestBuildRateLimitKey(t *testing.T) {
	now := time.Unix(1200, 0)
	assert.Equal(t, "policyguard:rate_limit:global:20", buildRateLimitKey(LimitTypeGlobal, "", 60, now))
	assert.Equal(t, "policyguard:rate_limit:tenant:t1:20", buildRateLimitKey(LimitTypeTenant, "t1", 60, now))
}

func TestBuildResult(t *testing.T) {
	now := time.Unix(1000, 0)
	rule := RateLimitRule{Type: LimitTypeTenant, TargetID: "t1", TimeWindow: 60, MaxRequests: 3}

	res := buildResult(rule, false, 3, 3, 20, now)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, int64(1020), res.ResetAt)
	assert.Equal(t, "超过租户限流限制", res.Message)
}

func TestNoopLimiter(t *testing.T) {
	res, err := NoopLimiter{}.CheckRateLimit(context.Background(), ScanTriggerRules("t1", 1))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, LimitTypeNone, res.RateLimitType)
}

func TestCheckRateLimit_TenantLimited(t *testing.T) {
	limiter := setupTestRedis(t)
	ctx := context.Background()
	tenant := fmt.Sprintf("tenant-%d", time.Now().UnixNano())
	rules := ScanTriggerRules(tenant, 2)
	defer func() {
		for _, r := range rules {
			_ = limiter.ResetRateLimit(ctx, r)
		}
	}()

	for i := 0; i < 2; i++ {
		res, err := limiter.CheckRateLimit(ctx, rules)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.CheckRateLimit(ctx, rules)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LimitTypeTenant, res.RateLimitType)
}

func TestCheckRateLimit_NoRules(t *testing.T) {
	limiter := setupTestRedis(t)
	res, err := limiter.CheckRateLimit(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, -1, res.Limit)
}
