package usecase_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

func testImage(w, h int) *entity.Image {
	px := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			px.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return entity.NewImage(px, nil)
}

func TestCropExtractor_Extract(t *testing.T) {
	t.Parallel()

	pool := usecase.NewBufferPool()
	img := testImage(400, 200)
	dets := []entity.Detection{
		det(10, 20, 100, 40, 0.9),   // 内側
		det(350, 180, 100, 40, 0.8), // 右下にはみ出す
		det(500, 500, 50, 20, 0.7),  // 画像外
		det(-20, -10, 120, 50, 0.6), // 左上にはみ出す
	}

	crops, errs := usecase.NewCropExtractor(pool, 0).Extract(img, dets)

	require.Len(t, crops, 3)
	assert.Equal(t, []int{0, 1, 3}, []int{crops[0].Index, crops[1].Index, crops[2].Index})
	assert.Equal(t, entity.BoundingBox{X: 10, Y: 20, Width: 100, Height: 40}, crops[0].Box)
	assert.Equal(t, entity.BoundingBox{X: 350, Y: 180, Width: 50, Height: 20}, crops[1].Box)
	assert.Equal(t, entity.BoundingBox{X: 0, Y: 0, Width: 100, Height: 40}, crops[2].Box)

	require.Len(t, errs, 1)
	assert.Equal(t, entity.StageCrop, errs[0].Stage)
	assert.Equal(t, 2, errs[0].Index)
	assert.Contains(t, errs[0].Message, "crop")

	// 切り出した画素は元画像と一致し、バッファは独立している
	assert.Equal(t, img.Pixels.RGBAAt(10, 20), crops[0].Pixels.RGBAAt(0, 0))
	assert.Equal(t, img.Pixels.RGBAAt(109, 59), crops[0].Pixels.RGBAAt(99, 39))
	assert.Equal(t, int64(3), pool.Live())

	for _, c := range crops {
		c.Release()
	}
	assert.Zero(t, pool.Live())
}

func TestCropExtractor_Extract_Padding(t *testing.T) {
	t.Parallel()

	pool := usecase.NewBufferPool()
	img := testImage(400, 200)

	crops, errs := usecase.NewCropExtractor(pool, usecase.DefaultCropPadding).Extract(img, []entity.Detection{
		det(100, 50, 200, 60, 0.9),
		det(0, 0, 200, 60, 0.8),
	})
	require.Empty(t, errs)
	require.Len(t, crops, 2)
	defer func() {
		for _, c := range crops {
			c.Release()
		}
	}()

	// 5%の余白: 幅200 → 左右10px, 高さ60 → 上下3px
	assert.Equal(t, image.Rect(0, 0, 220, 66), crops[0].Pixels.Rect)
	assert.Equal(t, img.Pixels.RGBAAt(90, 47), crops[0].Pixels.RGBAAt(0, 0))
	// 画像端では余白もクリップされる
	assert.Equal(t, image.Rect(0, 0, 210, 63), crops[1].Pixels.Rect)
	// Boxは余白を含まない
	assert.Equal(t, entity.BoundingBox{X: 100, Y: 50, Width: 200, Height: 60}, crops[0].Box)
}

func TestCropExtractor_Extract_UpscalesSmallCrops(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		box  entity.Detection
		want image.Rectangle
	}{
		{"short crop", det(0, 0, 40, 10, 0.9), image.Rect(0, 0, 120, 30)},
		{"narrow crop", det(0, 0, 20, 30, 0.9), image.Rect(0, 0, 80, 120)},
		{"large enough", det(0, 0, 80, 30, 0.9), image.Rect(0, 0, 80, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pool := usecase.NewBufferPool()
			crops, errs := usecase.NewCropExtractor(pool, 0).Extract(testImage(400, 200), []entity.Detection{tt.box})
			require.Empty(t, errs)
			require.Len(t, crops, 1)
			defer crops[0].Release()
			assert.Equal(t, tt.want, crops[0].Pixels.Rect)
		})
	}
}
