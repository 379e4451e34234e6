package usecase

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
)

const (
	// DefaultCropPadding は各辺に加える余白（ボックス寸法に対する比率）です。
	DefaultCropPadding = 0.05
	// MinCropWidth, MinCropHeight はOCRに渡すクロップの最小サイズです。これより小さいクロップは拡大されます。
	MinCropWidth  = 80
	MinCropHeight = 30
)

// CropExtractor は検出結果から独立したバッファを持つクロップを切り出します。
type CropExtractor struct {
	buffers *BufferPool
	padding float64
}

// NewCropExtractor はCropExtractorの新しいインスタンスを生成します。負のpaddingは0として扱います。
func NewCropExtractor(buffers *BufferPool, padding float64) *CropExtractor {
	return &CropExtractor{buffers: buffers, padding: max(padding, 0)}
}

// Extract はdetsの各ボックスを画像範囲にクリップし、余白を付けて切り出します。
// 面積0になったボックスはスキップし、ErrCropとして記録します。
// 戻り値のCropRegion.Boxは余白を含まないクリップ済みのボックスです。
func (x *CropExtractor) Extract(img *entity.Image, dets []entity.Detection) ([]*entity.CropRegion, []entity.StageError) {
	bounds := img.Bounds()
	crops := make([]*entity.CropRegion, 0, len(dets))
	var errs []entity.StageError

	for i, d := range dets {
		box := d.Box.Clip(bounds)
		if box.Area() == 0 {
			errs = append(errs, entity.StageError{
				Stage:   entity.StageCrop,
				Index:   i,
				Message: fmt.Sprintf("%v: box %+v lies outside %dx%d image", domain.ErrCrop, d.Box, bounds.Width, bounds.Height),
			})
			continue
		}

		padX := int(float64(box.Width) * x.padding)
		padY := int(float64(box.Height) * x.padding)
		padded := entity.BoundingBox{
			X:      box.X - padX,
			Y:      box.Y - padY,
			Width:  box.Width + 2*padX,
			Height: box.Height + 2*padY,
		}.Clip(bounds)

		src := image.Rect(padded.X, padded.Y, padded.X+padded.Width, padded.Y+padded.Height)
		w, h := minCropSize(padded.Width, padded.Height)
		dst, release := x.buffers.newRGBA(w, h)
		if w == padded.Width && h == padded.Height {
			draw.Draw(dst, dst.Rect, img.Pixels, src.Min, draw.Src)
		} else {
			draw.CatmullRom.Scale(dst, dst.Rect, img.Pixels, src, draw.Src, nil)
		}
		crops = append(crops, entity.NewCropRegion(i, box, dst, release))
	}
	return crops, errs
}

// minCropSize は最小サイズに満たないクロップの拡大後サイズを返します。
func minCropSize(w, h int) (int, int) {
	if w >= MinCropWidth && h >= MinCropHeight {
		return w, h
	}
	scale := math.Max(float64(MinCropWidth)/float64(w), float64(MinCropHeight)/float64(h))
	return int(math.Ceil(float64(w) * scale)), int(math.Ceil(float64(h) * scale))
}
