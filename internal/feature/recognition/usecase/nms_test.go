package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

// wide は全テストケースの矩形を含む画像範囲です。
var wide = entity.BoundingBox{Width: 1000, Height: 1000}

func TestFilterAndSuppress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		dets       []entity.Detection
		confidence float64
		overlap    float64
		want       []entity.Detection
	}{
		{
			name:       "overlapping boxes keep the higher confidence",
			dets:       []entity.Detection{det(10, 10, 100, 40, 0.6), det(12, 11, 100, 40, 0.9)},
			confidence: 0.4,
			overlap:    0.3,
			want:       []entity.Detection{det(12, 11, 100, 40, 0.9)},
		},
		{
			name:       "disjoint boxes are sorted by confidence",
			dets:       []entity.Detection{det(0, 0, 50, 20, 0.5), det(200, 0, 50, 20, 0.8), det(400, 0, 50, 20, 0.7)},
			confidence: 0.4,
			overlap:    0.3,
			want:       []entity.Detection{det(200, 0, 50, 20, 0.8), det(400, 0, 50, 20, 0.7), det(0, 0, 50, 20, 0.5)},
		},
		{
			name:       "below confidence threshold is dropped",
			dets:       []entity.Detection{det(0, 0, 50, 20, 0.39), det(200, 0, 50, 20, 0.4)},
			confidence: 0.4,
			overlap:    0.3,
			want:       []entity.Detection{det(200, 0, 50, 20, 0.4)},
		},
		{
			name:       "overlap at threshold is kept",
			dets:       []entity.Detection{det(0, 0, 100, 10, 0.9), det(50, 0, 100, 10, 0.8)},
			confidence: 0,
			overlap:    1.0 / 3.0,
			want:       []entity.Detection{det(0, 0, 100, 10, 0.9), det(50, 0, 100, 10, 0.8)},
		},
		{
			name:       "ties keep input order",
			dets:       []entity.Detection{det(0, 0, 10, 10, 0.7), det(100, 0, 10, 10, 0.7)},
			confidence: 0.4,
			overlap:    0.3,
			want:       []entity.Detection{det(0, 0, 10, 10, 0.7), det(100, 0, 10, 10, 0.7)},
		},
		{
			name:       "empty input",
			dets:       nil,
			confidence: 0.4,
			overlap:    0.3,
			want:       []entity.Detection{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, usecase.FilterAndSuppress(tt.dets, wide, tt.confidence, tt.overlap))
		})
	}
}

func TestFilterAndSuppress_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	dets := []entity.Detection{det(0, 0, 10, 10, 0.5), det(100, 0, 10, 10, 0.9)}
	orig := append([]entity.Detection(nil), dets...)

	usecase.FilterAndSuppress(dets, wide, 0.4, 0.3)

	assert.Equal(t, orig, dets)
}

// TestFilterAndSuppress_ClipsBeforeSuppression は画像外にはみ出した重複矩形が
// 切り詰め後のIoUで抑制されることを検証します。
func TestFilterAndSuppress_ClipsBeforeSuppression(t *testing.T) {
	t.Parallel()

	bounds := entity.BoundingBox{Width: 100, Height: 100}
	dets := []entity.Detection{det(10, 10, 50, 20, 0.9), det(10, 10, 500, 20, 0.8)}

	got := usecase.FilterAndSuppress(dets, bounds, 0.4, 0.3)

	assert.Equal(t, []entity.Detection{det(10, 10, 50, 20, 0.9)}, got)
}

func TestFilterAndSuppress_ClipsToImage(t *testing.T) {
	t.Parallel()

	bounds := entity.BoundingBox{Width: 100, Height: 100}
	dets := []entity.Detection{
		det(-20, 80, 60, 40, 0.9),
		det(300, 300, 50, 20, 0.7),
	}

	got := usecase.FilterAndSuppress(dets, bounds, 0.4, 0.3)

	// 画像外の矩形は面積0のまま残り、切り出し段階でErrCropになる
	assert.Equal(t, []entity.Detection{
		det(0, 80, 40, 20, 0.9),
		{Box: entity.BoundingBox{X: 300, Y: 300}, Confidence: 0.7, Class: "plate"},
	}, got)
}
