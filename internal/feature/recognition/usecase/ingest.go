package usecase

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
)

// maxDecodedPixels はデコードを許可する最大ピクセル数です（約1億画素）。
const maxDecodedPixels = 100_000_000

// Ingestor は画像バイト列をデコードし、長辺をmaxDimension以下に縮小します。
type Ingestor struct {
	buffers *BufferPool
	maxSize int
}

// NewIngestor はIngestorの新しいインスタンスを生成します。maxSizeが0以下ならMaxImageSizeを使います。
func NewIngestor(buffers *BufferPool, maxSize int) *Ingestor {
	if maxSize <= 0 {
		maxSize = MaxImageSize
	}
	return &Ingestor{buffers: buffers, maxSize: maxSize}
}

// Ingest は画像をデコードして正規化済みのImageを返します。
// 失敗時は domain.ErrDecode をラップしたエラーを返し、バッファは確保されたまま残りません。
func (in *Ingestor) Ingest(data []byte, maxDimension int) (*entity.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image data is empty", domain.ErrDecode)
	}
	if len(data) > in.maxSize {
		return nil, fmt.Errorf("%w: image size exceeds maximum of %d bytes", domain.ErrDecode, in.maxSize)
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("%w: %s image has zero area (%dx%d)", domain.ErrDecode, format, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxDecodedPixels {
		return nil, fmt.Errorf("%w: %s image is too large (%dx%d)", domain.ErrDecode, format, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	sb := src.Bounds()
	if sb.Empty() {
		return nil, fmt.Errorf("%w: decoded %s image is empty", domain.ErrDecode, format)
	}

	w, h := ScaledSize(sb.Dx(), sb.Dy(), maxDimension)
	dst, release := in.buffers.newRGBA(w, h)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Rect, src, sb.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Rect, src, sb, draw.Src, nil)
	}
	return entity.NewImage(dst, release), nil
}

// ScaledSize は長辺がmaxDimensionを超える場合に、縦横比を保った縮小後のサイズを返します。
// 短辺は四捨五入（0.5は切り上げ）で、最小1ピクセルです。
func ScaledSize(w, h, maxDimension int) (int, int) {
	long, short := w, h
	if h > w {
		long, short = h, w
	}
	if long <= maxDimension {
		return w, h
	}
	scaled := max((2*short*maxDimension+long)/(2*long), 1)
	if w >= h {
		return maxDimension, scaled
	}
	return scaled, maxDimension
}
