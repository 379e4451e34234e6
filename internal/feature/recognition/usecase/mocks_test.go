package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

// mockDetector はDetectorインターフェースのモック実装です。
type mockDetector struct {
	DetectFunc func(ctx context.Context, img *entity.Image, params usecase.DetectParams) ([]entity.Detection, error)
	calls      atomic.Int32
}

// Detect はDetectFuncが設定されていればそれを呼び出し、呼び出し回数を記録します。
func (m *mockDetector) Detect(ctx context.Context, img *entity.Image, params usecase.DetectParams) ([]entity.Detection, error) {
	m.calls.Add(1)
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, img, params)
	}
	return nil, errors.New("DetectFunc is not implemented")
}

// fixedDetector は常に同じ検出結果を返すモックを生成します。
func fixedDetector(dets ...entity.Detection) *mockDetector {
	return &mockDetector{
		DetectFunc: func(context.Context, *entity.Image, usecase.DetectParams) ([]entity.Detection, error) {
			return append([]entity.Detection(nil), dets...), nil
		},
	}
}

// mockEngine はOCREngineインターフェースのモック実装です。
type mockEngine struct {
	RecognizeFunc func(ctx context.Context, img image.Image) ([]entity.TextLine, error)
}

// Recognize はRecognizeFuncが設定されていればそれを呼び出します。
func (m *mockEngine) Recognize(ctx context.Context, img image.Image) ([]entity.TextLine, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, img)
	}
	return nil, errors.New("RecognizeFunc is not implemented")
}

// widthEngine はクロップの幅ごとに決めた読み取り結果を返すエンジンです。
// 幅が登録されていないクロップにはエラーを返します。
func widthEngine(byWidth map[int]entity.TextLine) *mockEngine {
	return &mockEngine{
		RecognizeFunc: func(_ context.Context, img image.Image) ([]entity.TextLine, error) {
			line, ok := byWidth[img.Bounds().Dx()]
			if !ok {
				return nil, errors.New("corrupt buffer")
			}
			return []entity.TextLine{line}, nil
		},
	}
}

// stepClock は呼ばれるたびに step だけ進む決定的な時計です。
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// encodePNG はw×hのPNG画像を生成します。
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// encodeGrayPNG は大きな画像用に単色のグレースケールPNGを生成します。
func encodeGrayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func det(x, y, w, h int, conf float64) entity.Detection {
	return entity.Detection{Box: entity.BoundingBox{X: x, Y: y, Width: w, Height: h}, Confidence: conf, Class: "plate"}
}
