package entity

import "image"

// CropRegion はDetectionから切り出した部分画像です。
// 元画像とは独立したバッファを所有し、Index は元の検出結果の順序を指します。
type CropRegion struct {
	Index   int
	Box     BoundingBox // パディングを含まない切り詰め後の矩形、元画像座標系
	Pixels  *image.RGBA
	release func()
}

// NewCropRegion はバッファ返却関数付きのCropRegionを生成します。
func NewCropRegion(index int, box BoundingBox, px *image.RGBA, release func()) *CropRegion {
	return &CropRegion{Index: index, Box: box, Pixels: px, release: release}
}

// Release はクロップのバッファをプールへ返却します。
func (c *CropRegion) Release() {
	if c == nil || c.Pixels == nil {
		return
	}
	if c.release != nil {
		c.release()
		c.release = nil
	}
	c.Pixels = nil
}

// TextLine はOCRエンジンが返す1行分の生テキストです。
type TextLine struct {
	Text       string
	Confidence float64 // 0.0 ~ 1.0
}

// OCRResult は1つのクロップに対する正規化済みの認識結果です。
type OCRResult struct {
	Index      int    // 元の検出結果のインデックス
	Text       string // 大文字・英数字のみ
	RawText    string
	Confidence float64
}
