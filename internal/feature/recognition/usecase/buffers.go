package usecase

import (
	"image"
	"sync"
	"sync/atomic"
)

// BufferPool は画像・クロップのピクセルバッファを再利用するプールです。
// Live は貸し出し中のバッファ数で、呼び出し完了後は0に戻ります。
type BufferPool struct {
	pool sync.Pool
	live atomic.Int64
}

// NewBufferPool は空のBufferPoolを生成します。
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Get は長さnのバッファと、それを返却する関数を返します。返却関数は何度呼んでも1回だけ効きます。
func (p *BufferPool) Get(n int) ([]byte, func()) {
	var buf []byte
	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= n {
		buf = (*v)[:n]
	} else {
		buf = make([]byte, n)
	}
	p.live.Add(1)

	var once sync.Once
	return buf, func() {
		once.Do(func() {
			p.live.Add(-1)
			p.pool.Put(&buf)
		})
	}
}

// Live は現在貸し出し中のバッファ数を返します。
func (p *BufferPool) Live() int64 {
	return p.live.Load()
}

// newRGBA はプールのバッファを使ったw×hのRGBA画像を生成します。
// 中身は未初期化なので、呼び出し側は draw.Src で全面を上書きすること。
func (p *BufferPool) newRGBA(w, h int) (*image.RGBA, func()) {
	buf, release := p.Get(4 * w * h)
	return &image.RGBA{
		Pix:    buf,
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}, release
}
