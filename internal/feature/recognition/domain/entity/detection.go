package entity

// BoundingBox は画像上の矩形領域（左上座標と幅・高さ、ピクセル単位）です。
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Area は矩形の面積を返します。
func (b BoundingBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Clip は矩形を bounds の内側に切り詰めます。重なりがない場合は面積0の矩形を返します。
func (b BoundingBox) Clip(bounds BoundingBox) BoundingBox {
	x0, y0 := max(b.X, bounds.X), max(b.Y, bounds.Y)
	x1 := min(b.X+b.Width, bounds.X+bounds.Width)
	y1 := min(b.Y+b.Height, bounds.Y+bounds.Height)
	if x1 <= x0 || y1 <= y0 {
		return BoundingBox{X: x0, Y: y0}
	}
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// IoU は2つの矩形のIntersection over Unionを返します。
func (b BoundingBox) IoU(o BoundingBox) float64 {
	inter := b.Clip(o).Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	return float64(inter) / float64(union)
}

// Detection はDetectorが検出したナンバープレート候補です。
type Detection struct {
	Box        BoundingBox
	Confidence float64 // 0.0 ~ 1.0
	Class      string
}
