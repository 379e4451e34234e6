package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
)

const instrumentationName = "lpr_backend/recognition"

var tracer = otel.Tracer(instrumentationName)

// Detector は正規化済み画像からナンバープレート領域を検出します。
// ローカルモデルとリモートサービスの2つの実装があり、構築時に一度だけ選ばれます。
type Detector interface {
	// Detect は検出結果を返します。検出0件はエラーではありません。
	Detect(ctx context.Context, img *entity.Image, params DetectParams) ([]entity.Detection, error)
}

// CropDumper はデバッグ用にクロップを永続化します。
type CropDumper interface {
	Dump(ctx context.Context, requestID string, crops []*entity.CropRegion) error
}

// PipelineConfig はパイプラインの資源管理に関する設定です。
type PipelineConfig struct {
	MaxConcurrentRequests int
	AdmissionPolicy       AdmissionPolicy
	AdmissionWait         time.Duration
	RequestTimeout        time.Duration // 0の場合は呼び出し側のctxのみ
	CropPadding           float64
	MaxImageSize          int
	Recognizer            RecognizerConfig
}

// PipelineOption はPipelineの任意設定です。
type PipelineOption func(*Pipeline)

// WithReclaimer はステージ境界で呼ぶReclaimerを設定します。
func WithReclaimer(r Reclaimer) PipelineOption {
	return func(p *Pipeline) { p.reclaimer = r }
}

// WithCropDumper はOptions.Debugが有効なときに使うCropDumperを設定します。
func WithCropDumper(d CropDumper) PipelineOption {
	return func(p *Pipeline) { p.dumper = d }
}

// WithClock は時刻の取得元を差し替えます（テスト用）。
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithRequestIDs はリクエストIDの生成元を差し替えます。
func WithRequestIDs(newID func() string) PipelineOption {
	return func(p *Pipeline) { p.newID = newID }
}

// WithStateObserver は状態遷移の通知先を設定します。
func WithStateObserver(o StateObserver) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// WithBufferPool は共有するBufferPoolを設定します。
func WithBufferPool(b *BufferPool) PipelineOption {
	return func(p *Pipeline) { p.buffers = b }
}

// Pipeline は 画像正規化 → 検出 → 切り出し → OCR → 集約 の2段階認識パイプラインです。
type Pipeline struct {
	detector   Detector
	recognizer *TextRecognizer
	aggregator ResultAggregator
	admission  *Admission
	buffers    *BufferPool
	ingestor   *Ingestor
	cropper    *CropExtractor

	timeout   time.Duration
	reclaimer Reclaimer
	dumper    CropDumper
	now       func() time.Time
	newID     func() string
	observer  StateObserver
}

// NewPipeline はDetectorとOCREngineからPipelineを生成します。
func NewPipeline(detector Detector, engine OCREngine, cfg PipelineConfig, opts ...PipelineOption) (*Pipeline, error) {
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if engine == nil {
		return nil, errors.New("ocr engine is required")
	}
	recognizer, err := NewTextRecognizer(engine, cfg.Recognizer)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		detector:   detector,
		recognizer: recognizer,
		admission:  NewAdmission(cfg.MaxConcurrentRequests, cfg.AdmissionPolicy, cfg.AdmissionWait),
		timeout:    cfg.RequestTimeout,
		reclaimer:  NoReclaim,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffers == nil {
		p.buffers = NewBufferPool()
	}
	p.ingestor = NewIngestor(p.buffers, cfg.MaxImageSize)
	p.cropper = NewCropExtractor(p.buffers, cfg.CropPadding)
	return p, nil
}

// Close はOCRワーカーとエンジンキューを停止します。
func (p *Pipeline) Close() {
	p.recognizer.Close()
}

// Stats はパイプラインの資源使用状況です。
type Stats struct {
	ActiveInvocations int64 `json:"active_invocations"`
	PeakInvocations   int64 `json:"peak_invocations"`
	MaxInvocations    int64 `json:"max_invocations"`
	LiveBuffers       int64 `json:"live_buffers"`
	OCRWorkers        int   `json:"ocr_workers"`
}

// Stats は現在の資源使用状況を返します。
func (p *Pipeline) Stats() Stats {
	return Stats{
		ActiveInvocations: p.admission.Active(),
		PeakInvocations:   p.admission.Peak(),
		MaxInvocations:    p.admission.Capacity(),
		LiveBuffers:       p.buffers.Live(),
		OCRWorkers:        p.recognizer.Workers(),
	}
}

// Process は画像バイト列からナンバープレートを認識します。
// 成功時はプレート0件や部分エラーを含みうるRecognitionResultを、失敗時は
// ErrDecode / ErrDetection / ErrResourceExhausted / ErrTimeout のいずれかをラップしたエラーを返します。
func (p *Pipeline) Process(ctx context.Context, imageData []byte, opts Options) (*entity.RecognitionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	release, err := p.admission.Acquire(ctx)
	if err != nil {
		return nil, abortError(err)
	}
	defer release()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	requestID := p.newID()
	logger := slog.With("request_id", requestID)
	ctx, span := tracer.Start(ctx, "recognition.process", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.Int("image.bytes", len(imageData)),
	))
	defer span.End()

	start := p.now()
	sm := newStateMachine(requestID, p.observer)

	fail := func(err error) (*entity.RecognitionResult, error) {
		sm.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("recognition failed", "state", sm.current, "error", err)
		return nil, err
	}

	// Ingested
	img, err := p.ingest(ctx, imageData, opts.MaxDimension)
	if err != nil {
		return fail(err)
	}
	if err := p.boundary(ctx); err != nil {
		img.Release()
		return fail(err)
	}

	// Detected
	sm.advance(StateDetected)
	detStart := p.now()
	dets, err := p.detect(ctx, img, opts)
	detElapsed := p.now().Sub(detStart)
	if err != nil {
		img.Release()
		return fail(err)
	}
	if err := p.boundary(ctx); err != nil {
		img.Release()
		return fail(err)
	}

	// Cropped: 画像の世代はクロップ生成後すぐに解放する
	sm.advance(StateCropped)
	crops, cropErrs := p.crop(ctx, img, dets)
	img.Release()
	boxes := make(map[int]entity.BoundingBox, len(crops))
	for _, c := range crops {
		boxes[c.Index] = c.Box
	}
	if opts.Debug && p.dumper != nil {
		if err := p.dumper.Dump(ctx, requestID, crops); err != nil {
			logger.Warn("failed to dump debug crops", "error", err)
		}
	}
	if err := p.boundary(ctx); err != nil {
		for _, c := range crops {
			c.Release()
		}
		return fail(err)
	}

	// Recognized: クロップの所有権はTextRecognizerに移る
	sm.advance(StateRecognized)
	ocr, ocrErrs := p.recognize(ctx, crops, opts.DropThreshold)
	if err := p.boundary(ctx); err != nil {
		return fail(err)
	}

	// Aggregated
	sm.advance(StateAggregated)
	timing := entity.Timing{
		TotalMs:     millis(p.now().Sub(start)),
		DetectionMs: millis(detElapsed),
	}
	result := p.aggregator.Aggregate(dets, boxes, ocr, append(cropErrs, ocrErrs...), timing)

	sm.advance(StateCompleted)
	span.SetAttributes(
		attribute.Int("plates", len(result.Plates)),
		attribute.Int("stage_errors", len(result.Errors)),
	)
	logger.Info("recognition completed",
		"detections", len(dets),
		"plates", len(result.Plates),
		"stage_errors", len(result.Errors),
		"total_ms", timing.TotalMs,
		"detection_ms", timing.DetectionMs,
	)
	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context, data []byte, maxDimension int) (*entity.Image, error) {
	_, span := tracer.Start(ctx, "recognition.ingest")
	defer span.End()
	img, err := p.ingestor.Ingest(data, maxDimension)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("image.width", img.Width()), attribute.Int("image.height", img.Height()))
	return img, nil
}

func (p *Pipeline) detect(ctx context.Context, img *entity.Image, opts Options) ([]entity.Detection, error) {
	ctx, span := tracer.Start(ctx, "recognition.detect")
	defer span.End()

	raw, err := p.detector.Detect(ctx, img, DetectParams{
		ConfidenceThreshold: opts.ConfidenceThreshold,
		OverlapThreshold:    opts.OverlapThreshold,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, abortError(ctxErr)
		}
		if errors.Is(err, domain.ErrDetection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDetection, err)
	}
	dets := FilterAndSuppress(raw, img.Bounds(), opts.ConfidenceThreshold, opts.OverlapThreshold)
	span.SetAttributes(attribute.Int("detections.raw", len(raw)), attribute.Int("detections.kept", len(dets)))
	return dets, nil
}

func (p *Pipeline) crop(ctx context.Context, img *entity.Image, dets []entity.Detection) ([]*entity.CropRegion, []entity.StageError) {
	_, span := tracer.Start(ctx, "recognition.crop")
	defer span.End()
	return p.cropper.Extract(img, dets)
}

func (p *Pipeline) recognize(ctx context.Context, crops []*entity.CropRegion, dropThreshold float64) ([]entity.OCRResult, []entity.StageError) {
	ctx, span := tracer.Start(ctx, "recognition.ocr")
	defer span.End()
	return p.recognizer.Recognize(ctx, crops, dropThreshold)
}

// boundary はステージ境界でメモリを回収し、期限切れを確認します。
func (p *Pipeline) boundary(ctx context.Context) error {
	p.reclaimer.Reclaim()
	if err := ctx.Err(); err != nil {
		return abortError(err)
	}
	return nil
}

// abortError はctx由来のエラーをErrTimeoutに変換します。それ以外はそのまま返します。
func abortError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("recognition canceled: %w", err)
	default:
		return err
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
