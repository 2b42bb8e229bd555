/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的分布式限流服务，限制扫描触发频率，支持租户与全局两层限流
 * @architecture 工具层 - 提供分布式限流能力
 * @documentReference DESIGN.md
 * @stateFlow 检查限流规则 -> Redis计数 -> 判断是否超限
 * @rules 使用Redis INCR和EXPIRE实现固定窗口限流；租户层优先于全局层检查
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/controllers/scan_controller.go, service/init.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// 限流类型
const (
	LimitTypeTenant = "tenant"
	LimitTypeGlobal = "global"
	LimitTypeNone   = "none"
)

const keyPrefix = "policyguard:rate_limit"

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed       bool   `json:"allowed"`    // 是否允许请求
	Limit         int    `json:"limit"`      // 限制数量
	Remaining     int    `json:"remaining"`  // 剩余数量
	ResetAt       int64  `json:"reset_at"`   // 重置时间（Unix时间戳）
	RateLimitType string `json:"limit_type"` // 限流类型：tenant/global
	Message       string `json:"message"`    // 提示信息
}

// RateLimitRule 限流规则
type RateLimitRule struct {
	Type        string // tenant/global
	TargetID    string // 租户ID，全局时为空
	TimeWindow  int    // 时间窗口（秒）
	MaxRequests int    // 最大请求数
}

// Limiter 限流器接口
type Limiter interface {
	CheckRateLimit(ctx context.Context, rules []RateLimitRule) (*RateLimitResult, error)
}

// ScanTriggerRules 扫描触发限流规则：每个租户每分钟 perMinute 次，全局为其十倍
// perMinute <= 0 时不限流
func ScanTriggerRules(tenantID string, perMinute int) []RateLimitRule {
	if perMinute <= 0 {
		return nil
	}
	return []RateLimitRule{
		{Type: LimitTypeGlobal, TimeWindow: 60, MaxRequests: perMinute * 10},
		{Type: LimitTypeTenant, TargetID: tenantID, TimeWindow: 60, MaxRequests: perMinute},
	}
}

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRateLimiter 创建Redis限流器
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

// CheckRateLimit 检查是否超过限流（按优先级检查：租户 -> 全局）
func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, rules []RateLimitRule) (*RateLimitResult, error) {
	sortedRules := sortRulesByPriority(rules)

	var last *RateLimitResult
	for _, rule := range sortedRules {
		result, err := r.checkSingleRule(ctx, rule)
		if err != nil {
			return nil, err
		}
		// 任何一层超限，直接返回
		if !result.Allowed {
			return result, nil
		}
		last = result
	}

	if last != nil {
		return last, nil
	}

	return unlimited(), nil
}

// checkSingleRule 检查单个限流规则
func (r *RedisRateLimiter) checkSingleRule(ctx context.Context, rule RateLimitRule) (*RateLimitResult, error) {
	key := buildRateLimitKey(rule.Type, rule.TargetID, rule.TimeWindow, r.now())

	// 使用Lua脚本实现原子性限流检查
	script := `
		local key = KEYS[1]
		local max_requests = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])

		local current = redis.call('GET', key)
		if current == false then
			current = 0
		else
			current = tonumber(current)
		end

		if current >= max_requests then
			local ttl = redis.call('TTL', key)
			if ttl == -1 then
				ttl = window
			end
			return {0, current, max_requests, ttl}
		end

		local new_count = redis.call('INCR', key)
		if new_count == 1 then
			redis.call('EXPIRE', key, window)
		end

		local ttl = redis.call('TTL', key)
		if ttl == -1 then
			ttl = window
		end

		return {1, new_count, max_requests, ttl}
	`

	result, err := r.client.Eval(ctx, script, []string{key}, rule.MaxRequests, rule.TimeWindow).Result()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("限流脚本返回值异常: %v", result)
	}
	nums := make([]int, len(values))
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("限流脚本返回值异常: %v", result)
		}
		nums[i] = int(n)
	}

	return buildResult(rule, nums[0] == 1, nums[1], nums[2], nums[3], r.now()), nil
}

func buildResult(rule RateLimitRule, allowed bool, current, maxRequests, ttl int, now time.Time) *RateLimitResult {
	remaining := maxRequests - current
	if remaining < 0 {
		remaining = 0
	}

	message := "允许请求"
	if !allowed {
		message = fmt.Sprintf("超过%s限流限制", getRateLimitTypeName(rule.Type))
	}

	return &RateLimitResult{
		Allowed:       allowed,
		Limit:         maxRequests,
		Remaining:     remaining,
		ResetAt:       now.Add(time.Duration(ttl) * time.Second).Unix(),
		RateLimitType: rule.Type,
		Message:       message,
	}
}

func unlimited() *RateLimitResult {
	return &RateLimitResult{
		Allowed:       true,
		Limit:         -1,
		Remaining:     -1,
		RateLimitType: LimitTypeNone,
		Message:       "无限流规则",
	}
}

// buildRateLimitKey 构造限流Key
func buildRateLimitKey(limitType, targetID string, window int, now time.Time) string {
	if window <= 0 {
		window = 1
	}
	currentWindow := now.Unix() / int64(window)

	if limitType == LimitTypeGlobal {
		return fmt.Sprintf("%s:%s:%d", keyPrefix, limitType, currentWindow)
	}
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, limitType, targetID, currentWindow)
}

// sortRulesByPriority 按优先级排序规则：tenant > global
func sortRulesByPriority(rules []RateLimitRule) []RateLimitRule {
	priority := map[string]int{
		LimitTypeTenant: 2,
		LimitTypeGlobal: 1,
	}

	sorted := make([]RateLimitRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priority[sorted[i].Type] > priority[sorted[j].Type]
	})
	return sorted
}

// getRateLimitTypeName 获取限流类型名称
func getRateLimitTypeName(limitType string) string {
	switch limitType {
	case LimitTypeGlobal:
		return "全局"
	case LimitTypeTenant:
		return "租户"
	default:
		return "未知"
	}
}

// ResetRateLimit 重置限流计数（仅用于测试或管理）
func (r *RedisRateLimiter) ResetRateLimit(ctx context.Context, rule RateLimitRule) error {
	key := buildRateLimitKey(rule.Type, rule.TargetID, rule.TimeWindow, r.now())
	return r.client.Del(ctx, key).Err()
}

// NoopLimiter 未启用Redis时放行所有请求
type NoopLimiter struct{}

func (NoopLimiter) CheckRateLimit(context.Context, []RateLimitRule) (*RateLimitResult, error) {
	return unlimited(), nil
}
