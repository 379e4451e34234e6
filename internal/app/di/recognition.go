// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/redis/go-redis/v9"

	"lpr_backend/internal/feature/recognition/adapters/debugdump"
	"lpr_backend/internal/feature/recognition/adapters/gemini"
	"lpr_backend/internal/feature/recognition/adapters/remote"
	"lpr_backend/internal/feature/recognition/adapters/tesseract"
	"lpr_backend/internal/feature/recognition/adapters/vision"
	"lpr_backend/internal/feature/recognition/adapters/yolo"
	"lpr_backend/internal/feature/recognition/usecase"
	"lpr_backend/internal/platform/cache"
	"lpr_backend/internal/platform/config"
	infrahttp "lpr_backend/internal/platform/http"
)

// CloseFunc releases a component created by this package.
type CloseFunc func() error

func noClose() error { return nil }

// NewDetector creates the detector selected by cfg.Detector.
// The variant is fixed for the lifetime of the returned detector.
func NewDetector(cfg config.Config) (usecase.Detector, CloseFunc, error) {
	switch cfg.Detector {
	case config.DetectorLocal:
		d, err := yolo.NewLocalDetector(yolo.Config{
			ModelPath: cfg.DetectorModelPath,
			InputSize: cfg.DetectorInputSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	case config.DetectorRemote:
		client := infrahttp.NewHTTPClient(cfg.RemoteTimeout, infrahttp.ClientOptions{MaxConnsPerHost: cfg.DetectWorkers})
		d, err := remote.NewRemoteDetector(remote.Config{
			BaseURL:           cfg.RemoteURL,
			Model:             cfg.RemoteModel,
			APIKey:            cfg.RemoteAPIKey,
			Timeout:           cfg.RemoteTimeout,
			RequestsPerMinute: cfg.RemoteRPM,
			Workers:           cfg.DetectWorkers,
		}, client)
		if err != nil {
			return nil, nil, err
		}
		return d, func() error { d.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown detector %q", cfg.Detector)
	}
}

// NewOCREngine creates the OCR engine selected by cfg.OCREngine.
func NewOCREngine(ctx context.Context, cfg config.Config) (usecase.OCREngine, CloseFunc, error) {
	switch cfg.OCREngine {
	case config.OCRTesseract:
		// one client per queue worker
		workers := usecase.WorkerCount(cfg.ThreadFraction, runtime.NumCPU())
		e, err := tesseract.NewEngine(cfg.OCRLanguage, workers)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	case config.OCRVision:
		e, err := vision.NewEngine(ctx)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	case config.OCRGemini:
		e, err := gemini.NewEngine(ctx)
		if err != nil {
			return nil, nil, err
		}
		return e, noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown ocr engine %q", cfg.OCREngine)
	}
}

// PipelineConfig maps the server configuration onto the pipeline's resource settings.
func PipelineConfig(cfg config.Config) usecase.PipelineConfig {
	return usecase.PipelineConfig{
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		AdmissionPolicy:       usecase.AdmissionPolicy(cfg.AdmissionPolicy),
		AdmissionWait:         cfg.AdmissionWait,
		RequestTimeout:        cfg.RequestTimeout,
		CropPadding:           cfg.CropPadding,
		MaxImageSize:          usecase.MaxImageSize,
		Recognizer: usecase.RecognizerConfig{
			ThreadFraction: cfg.ThreadFraction,
			BatchSize:      cfg.BatchSize,
			QueueDepth:     cfg.QueueDepth,
		},
	}
}

// DefaultOptions returns the per-invocation defaults used when a request omits a field.
func DefaultOptions(cfg config.Config) usecase.Options {
	return usecase.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		OverlapThreshold:    cfg.OverlapThreshold,
		MaxDimension:        cfg.MaxDimension,
		DropThreshold:       cfg.DropThreshold,
		Debug:               cfg.DebugMode,
	}
}

// NewPipeline assembles the recognition pipeline around a detector and OCR engine.
func NewPipeline(cfg config.Config, detector usecase.Detector, engine usecase.OCREngine) (*usecase.Pipeline, error) {
	reclaimer := usecase.NoReclaim
	if cfg.ReclaimMemory {
		reclaimer = usecase.FreeOSMemory
	}
	return usecase.NewPipeline(detector, engine, PipelineConfig(cfg),
		usecase.WithReclaimer(reclaimer),
		usecase.WithCropDumper(debugdump.NewDumper(cfg.DebugDir)),
	)
}

// NewResultCache wraps the pipeline with the Redis result cache.
// A nil rdb yields a pass-through decorator.
func NewResultCache(rdb *redis.Client, cfg config.Config, inner cache.PlateRecognizer) *cache.CachingRecognizer {
	return cache.NewCachingRecognizer(rdb, cfg.ResultCacheTTL, inner, cache.DefaultNamespace)
}

// Recognition bundles the assembled recognition feature.
type Recognition struct {
	Pipeline *usecase.Pipeline
	Cached   *cache.CachingRecognizer
	closers  []CloseFunc
}

// NewRecognition builds the detector, OCR engine, pipeline and result cache from cfg.
func NewRecognition(ctx context.Context, cfg config.Config, rdb *redis.Client) (*Recognition, error) {
	detector, closeDetector, err := NewDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}
	engine, closeEngine, err := NewOCREngine(ctx, cfg)
	if err != nil {
		_ = closeDetector()
		return nil, fmt.Errorf("create ocr engine: %w", err)
	}
	pipeline, err := NewPipeline(cfg, detector, engine)
	if err != nil {
		_ = closeEngine()
		_ = closeDetector()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	slog.Info("recognition pipeline ready",
		"detector", cfg.Detector,
		"ocr_engine", cfg.OCREngine,
		"ocr_workers", pipeline.Stats().OCRWorkers,
		"max_concurrent_requests", cfg.MaxConcurrentRequests,
		"result_cache", rdb != nil,
	)
	return &Recognition{
		Pipeline: pipeline,
		Cached:   NewResultCache(rdb, cfg, pipeline),
		closers:  []CloseFunc{closeEngine, closeDetector},
	}, nil
}

// Close stops the pipeline workers and then releases the engine and detector.
func (r *Recognition) Close() error {
	r.Pipeline.Close()
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
