package router

import (
	"github.com/gin-gonic/gin"

	"lpr_backend/internal/feature/recognition/transport/handler"
	platformhandler "lpr_backend/internal/platform/http/handler"
)

// maxMultipartMemory は画像上限（10MB）にフォームフィールド分の余裕を足した値です。
const maxMultipartMemory = 12 << 20

// NewRouter はHTTPルートを登録したginエンジンを生成します。
// cacheHandler がnilの場合、キャッシュ管理のルートは登録しません。
func NewRouter(health *platformhandler.HealthHandler, recognition *handler.RecognitionHandler,
	cacheHandler *handler.CacheHandler) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = maxMultipartMemory

	// 導通確認用
	r.GET("/healthz", health.Health)
	r.HEAD("/healthz", health.Health)
	r.OPTIONS("/healthz", health.Health)

	v1 := r.Group("/v1/plates")
	{
		v1.POST("/recognize", recognition.Recognize)
		v1.GET("/stats", recognition.Stats)
		if cacheHandler != nil {
			v1.DELETE("/cache", cacheHandler.Purge)
		}
	}

	return r
}
