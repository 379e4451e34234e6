package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"lpr_backend/internal/api"
)

// CachePurger は結果キャッシュを削除します。
type CachePurger interface {
	Purge(ctx context.Context) (int, error)
}

// CacheHandler は結果キャッシュの管理エンドポイントを処理します。
type CacheHandler struct {
	purger CachePurger
}

// NewCacheHandler はCacheHandlerの新しいインスタンスを生成します。
func NewCacheHandler(purger CachePurger) *CacheHandler {
	return &CacheHandler{purger: purger}
}

// Purge はキャッシュ済みの認識結果をすべて削除します。
//
// エンドポイント: DELETE /v1/plates/cache
func (h *CacheHandler) Purge(c *gin.Context) {
	n, err := h.purger.Purge(c.Request.Context())
	if err != nil {
		slog.Error("キャッシュの削除に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to purge cache"})
		return
	}
	slog.Info("キャッシュを削除", "deleted", n)
	c.JSON(http.StatusOK, api.PurgeResponse{Deleted: n})
}
