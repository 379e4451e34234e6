package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpr_backend/internal/feature/recognition/adapters/remote"
	"lpr_backend/internal/feature/recognition/usecase"
	"lpr_backend/internal/platform/config"
)

func baseConfig() config.Config {
	return config.Config{
		Detector:              config.DetectorRemote,
		RemoteURL:             "http://localhost:9",
		RemoteModel:           "plates/1",
		RemoteAPIKey:          "secret",
		RemoteTimeout:         time.Second,
		DetectWorkers:         2,
		OCREngine:             config.OCRTesseract,
		ThreadFraction:        0.6,
		BatchSize:             4,
		ConfidenceThreshold:   0.5,
		OverlapThreshold:      0.25,
		MaxDimension:          960,
		DropThreshold:         0.35,
		CropPadding:           0.1,
		MaxConcurrentRequests: 3,
		AdmissionPolicy:       "reject",
		AdmissionWait:         2 * time.Second,
		RequestTimeout:        20 * time.Second,
		DebugMode:             true,
		ResultCacheTTL:        time.Minute,
	}
}

func TestNewDetector_Remote(t *testing.T) {
	t.Parallel()

	d, closeFn, err := NewDetector(baseConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	assert.IsType(t, &remote.RemoteDetector{}, d)
}

func TestNewDetector_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown variant", func(c *config.Config) { c.Detector = "cloud" }},
		{"remote without key", func(c *config.Config) { c.RemoteAPIKey = "" }},
		{"local without model", func(c *config.Config) { c.Detector = config.DetectorLocal; c.DetectorModelPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig()
			tt.mutate(&cfg)
			d, closeFn, err := NewDetector(cfg)
			assert.Error(t, err)
			assert.Nil(t, d)
			assert.Nil(t, closeFn)
		})
	}
}

func TestNewOCREngine_Unknown(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.OCREngine = "easyocr"
	e, closeFn, err := NewOCREngine(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown ocr engine")
	assert.Nil(t, e)
	assert.Nil(t, closeFn)
}

func TestPipelineConfig(t *testing.T) {
	t.Parallel()

	pc := PipelineConfig(baseConfig())
	assert.Equal(t, 3, pc.MaxConcurrentRequests)
	assert.Equal(t, usecase.AdmissionReject, pc.AdmissionPolicy)
	assert.Equal(t, 2*time.Second, pc.AdmissionWait)
	assert.Equal(t, 20*time.Second, pc.RequestTimeout)
	assert.Equal(t, usecase.MaxImageSize, pc.MaxImageSize)
	assert.Equal(t, 4, pc.Recognizer.BatchSize)
	assert.Equal(t, 0.6, pc.Recognizer.ThreadFraction)
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions(baseConfig())
	assert.Equal(t, usecase.Options{
		ConfidenceThreshold: 0.5,
		OverlapThreshold:    0.25,
		MaxDimension:        960,
		DropThreshold:       0.35,
		Debug:               true,
	}, opts)
	assert.NoError(t, opts.Validate())
}
