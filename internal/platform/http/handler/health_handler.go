// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"lpr_backend/internal/api"
)

// Check は依存コンポーネントの疎通確認です。nilを返せば正常です。
type Check func(ctx context.Context) error

// checkTimeout は各Checkに与える時間の上限です。
const checkTimeout = 2 * time.Second

// HealthHandler は /healthz エンドポイントを処理します。
// 登録されたCheckはすべて非必須扱いで、失敗しても200を返し status を "degraded" にします。
type HealthHandler struct {
	checks map[string]Check
}

// NewHealthHandler はHealthHandlerを生成します。checksはnilでも構いません。
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health はHTTPメソッドに応じて適切にレスポンスし、キャッシュを防止します。
func (h *HealthHandler) Health(c *gin.Context) {
	// 明示的にキャッシュを防止
	c.Header("Cache-Control", "no-store")

	// すべてのGET/HEAD/OPTIONSリクエストに対して200または204を返す
	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, h.report(c.Request.Context()))
	}
}

func (h *HealthHandler) report(ctx context.Context) api.HealthResponse {
	r := api.HealthResponse{Status: "ok"}
	if len(h.checks) == 0 {
		return r
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	r.Checks = make(map[string]string, len(names))
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := h.checks[name](cctx)
		cancel()
		if err != nil {
			slog.Warn("health check failed", "check", name, "error", err)
			r.Checks[name] = "unavailable"
			r.Status = "degraded"
			continue
		}
		r.Checks[name] = "ok"
	}
	return r
}
