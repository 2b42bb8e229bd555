/*
 * @module api/middleware/tenant
 * @description 租户识别中间件，从请求头提取租户ID与操作人并注入上下文
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @documentReference DESIGN.md
 * @stateFlow 白名单判断 -> 租户提取 -> 上下文注入 -> 下一个处理器
 * @rules 请求已由网关鉴权，这里只负责租户隔离；缺少租户头时返回400
 * @dependencies net/http, github.com/go-chi/render
 * @refs api/routes.go
 */

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	// TenantKey 租户ID在上下文中的键
	TenantKey ContextKey = "tenant_id"
	// UserKey 操作人在上下文中的键
	UserKey ContextKey = "user_id"

	// TenantHeader 租户请求头
	TenantHeader = "X-Tenant-ID"
	// UserHeader 操作人请求头
	UserHeader = "X-User-ID"
)

// TenantMiddleware 租户中间件
type TenantMiddleware struct {
	whitelistPaths []string
}

// NewTenantMiddleware 创建租户中间件，健康检查与指标路径无需租户
func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{
		whitelistPaths: []string{"/health", "/ready", "/metrics"},
	}
}

// AddWhitelistPath 添加白名单路径
func (m *TenantMiddleware) AddWhitelistPath(path string) {
	m.whitelistPaths = append(m.whitelistPaths, path)
}

// IsWhitelistPath 检查路径是否在白名单中（后缀匹配，兼容 BASE_CONTEXT 前缀）
func (m *TenantMiddleware) IsWhitelistPath(path string) bool {
	for _, whitelistPath := range m.whitelistPaths {
		if strings.HasSuffix(path, whitelistPath) {
			return true
		}
	}
	return false
}

// Middleware 中间件处理函数
func (m *TenantMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.IsWhitelistPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenantID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]interface{}{
				"status": http.StatusBadRequest,
				"msg":    "缺少租户标识 " + TenantHeader,
			})
			return
		}

		ctx := context.WithValue(r.Context(), TenantKey, tenantID)
		if user := strings.TrimSpace(r.Header.Get(UserHeader)); user != "" {
			ctx = context.WithValue(ctx, UserKey, user)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantFromContext 从上下文中获取租户ID
func GetTenantFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(TenantKey).(string)
	return tenantID, ok && tenantID != ""
}

// GetUserFromContext 从上下文中获取操作人
func GetUserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(UserKey).(string)
	return user, ok && user != ""
}
