// Package handler はrecognitionフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lpr_backend/internal/api"
	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

// RetryAfterSeconds は503/504で返す再試行までの秒数です。
const RetryAfterSeconds = 1

// PlateRecognizer はナンバープレート認識のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type PlateRecognizer interface {
	Process(ctx context.Context, imageData []byte, opts usecase.Options) (*entity.RecognitionResult, error)
}

// StatsProvider はパイプラインの資源使用状況を返します。
type StatsProvider interface {
	Stats() usecase.Stats
}

// RecognitionHandler はナンバープレート認識のHTTPリクエストを処理します。
type RecognitionHandler struct {
	uc       PlateRecognizer
	stats    StatsProvider
	defaults usecase.Options
}

// NewRecognitionHandler はRecognitionHandlerの新しいインスタンスを生成します。
// defaults はフォームで指定されなかったオプションに使われます。
func NewRecognitionHandler(uc PlateRecognizer, stats StatsProvider, defaults usecase.Options) *RecognitionHandler {
	return &RecognitionHandler{uc: uc, stats: stats, defaults: defaults}
}

// Recognize は画像をアップロードしてナンバープレートを認識します。
//
// エンドポイント: POST /v1/plates/recognize
// Content-Type: multipart/form-data
// フィールド: image（画像ファイル、最大10MB）, confidence_threshold, overlap_threshold,
// max_dimension, drop_threshold, debug（いずれも任意）
func (h *RecognitionHandler) Recognize(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		slog.Warn("画像ファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "image file is required"})
		return
	}

	opts, err := h.parseOptions(c)
	if err != nil {
		slog.Warn("認識オプションが不正", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	f, err := file.Open()
	if err != nil {
		slog.Error("画像ファイルのオープンに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	// 上限+1バイトまで読み、サイズ超過の判定はパイプラインに任せる
	imageData, err := io.ReadAll(io.LimitReader(f, usecase.MaxImageSize+1))
	if err != nil {
		slog.Error("画像データの読み取りに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}

	result, err := h.uc.Process(c.Request.Context(), imageData, opts)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(result))
}

// Stats はパイプラインの資源使用状況を返します。
//
// エンドポイント: GET /v1/plates/stats
func (h *RecognitionHandler) Stats(c *gin.Context) {
	s := h.stats.Stats()
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, api.StatsResponse{
		ActiveInvocations: s.ActiveInvocations,
		PeakInvocations:   s.PeakInvocations,
		MaxInvocations:    s.MaxInvocations,
		LiveBuffers:       s.LiveBuffers,
		OCRWorkers:        s.OCRWorkers,
	})
}

// writeError はパイプラインのエラーをHTTPステータスに変換します。内部の詳細はログにのみ出力します。
func (h *RecognitionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidOptions):
		slog.Warn("認識オプションが不正", "error", err)
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDecode):
		slog.Warn("画像のデコードに失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unsupported or corrupt image"})
	case errors.Is(err, domain.ErrDetection):
		slog.Error("ナンバープレート検出に失敗", "error", err)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "plate detection failed"})
	case errors.Is(err, domain.ErrResourceExhausted):
		slog.Warn("同時実行数の上限に到達", "error", err)
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "server is busy, retry later"})
	case errors.Is(err, domain.ErrTimeout):
		slog.Warn("認識がタイムアウト", "error", err)
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		c.JSON(http.StatusGatewayTimeout, api.ErrorResponse{Error: "recognition timed out, retry later"})
	case errors.Is(err, context.Canceled):
		slog.Info("クライアントがリクエストを中断", "error", err)
		c.Status(http.StatusRequestTimeout)
	default:
		slog.Error("ナンバープレート認識に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal server error"})
	}
}

// parseOptions はフォームの値でデフォルトのOptionsを上書きします。
func (h *RecognitionHandler) parseOptions(c *gin.Context) (usecase.Options, error) {
	opts := h.defaults
	floats := []struct {
		field string
		dst   *float64
	}{
		{"confidence_threshold", &opts.ConfidenceThreshold},
		{"overlap_threshold", &opts.OverlapThreshold},
		{"drop_threshold", &opts.DropThreshold},
	}
	for _, f := range floats {
		v, ok := c.GetPostForm(f.field)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("%s must be a number", f.field)
		}
		*f.dst = parsed
	}
	if v, ok := c.GetPostForm("max_dimension"); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("max_dimension must be an integer")
		}
		opts.MaxDimension = parsed
	}
	if v, ok := c.GetPostForm("debug"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("debug must be a boolean")
		}
		opts.Debug = parsed
	}
	return opts, nil
}

func toResponse(r *entity.RecognitionResult) api.RecognitionResponse {
	plates := make([]api.PlateResponse, 0, len(r.Plates))
	for _, p := range r.Plates {
		plates = append(plates, api.PlateResponse{
			Text:                p.Text,
			Confidence:          p.Confidence,
			DetectionConfidence: p.DetectionConfidence,
			BBox:                api.BoundingBox{X: p.Box.X, Y: p.Box.Y, W: p.Box.Width, H: p.Box.Height},
		})
	}
	errs := make([]api.StageErrorResponse, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, api.StageErrorResponse{Stage: string(e.Stage), Index: e.Index, Message: e.Message})
	}
	return api.RecognitionResponse{
		Plates: plates,
		Errors: errs,
		Timing: api.TimingResponse{TotalMs: r.Timing.TotalMs, DetectionMs: r.Timing.DetectionMs},
	}
}
