// Package entity はrecognitionフィーチャーのドメインモデルを定義します。
package entity

import "image"

// Image は正規化済みの画像を表します。
// Pixels はRGBA（4チャンネル）レイアウトで、プールから借りたバッファを保持します。
type Image struct {
	Pixels  *image.RGBA
	release func()
}

// NewImage はバッファ返却関数付きのImageを生成します。release はnilでも構いません。
func NewImage(px *image.RGBA, release func()) *Image {
	return &Image{Pixels: px, release: release}
}

// Width は画像の幅を返します。
func (i *Image) Width() int { return i.Pixels.Rect.Dx() }

// Height は画像の高さを返します。
func (i *Image) Height() int { return i.Pixels.Rect.Dy() }

// Bounds は画像全体を覆うBoundingBoxを返します。
func (i *Image) Bounds() BoundingBox {
	return BoundingBox{X: 0, Y: 0, Width: i.Width(), Height: i.Height()}
}

// Release はピクセルバッファをプールへ返却します。二重呼び出しは無視されます。
func (i *Image) Release() {
	if i == nil || i.Pixels == nil {
		return
	}
	if i.release != nil {
		i.release()
		i.release = nil
	}
	i.Pixels = nil
}
