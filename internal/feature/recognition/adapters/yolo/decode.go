package yolo

import (
	"fmt"
	"math"

	"lpr_backend/internal/feature/recognition/domain/entity"
)

// letterboxGeometry はモデル入力へのリサイズとパディング量です。
type letterboxGeometry struct {
	scale  float64
	width  int
	height int
	padX   int
	padY   int
}

// newLetterbox はアスペクト比を保って w×h を size×size の正方形に収める変換を計算します。
func newLetterbox(w, h, size int) letterboxGeometry {
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return letterboxGeometry{
		scale:  scale,
		width:  nw,
		height: nh,
		padX:   (size - nw) / 2,
		padY:   (size - nh) / 2,
	}
}

// toImage はモデル入力座標の矩形(中心座標)を元画像の座標に戻します。
func (g letterboxGeometry) toImage(cx, cy, w, h float64) entity.BoundingBox {
	x := (cx - w/2 - float64(g.padX)) / g.scale
	y := (cy - h/2 - float64(g.padY)) / g.scale
	return entity.BoundingBox{
		X:      int(math.Round(x)),
		Y:      int(math.Round(y)),
		Width:  int(math.Round(w / g.scale)),
		Height: int(math.Round(h / g.scale)),
	}
}

// decodeOutput はYOLOv8形式の出力テンソル [1, 4+C, N] をDetectionに変換します。
// 行0~3は中心x, 中心y, 幅, 高さで、残りの行はクラスごとのスコアです。
// 信頼度が minConfidence 未満の候補は捨てます。NMSは呼び出し側で行います。
func decodeOutput(data []float32, dims []int, g letterboxGeometry, classes []string, minConfidence float64) ([]entity.Detection, error) {
	if len(dims) != 3 || dims[0] != 1 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	rows, n := dims[1], dims[2]
	if len(data) < rows*n {
		return nil, fmt.Errorf("output has %d values, want %d", len(data), rows*n)
	}

	var dets []entity.Detection
	for i := range n {
		best, bestClass := float32(0), 0
		for c := 4; c < rows; c++ {
			if s := data[c*n+i]; s > best {
				best, bestClass = s, c-4
			}
		}
		conf := float64(best)
		if conf < minConfidence || conf > 1 {
			continue
		}
		box := g.toImage(float64(data[i]), float64(data[n+i]), float64(data[2*n+i]), float64(data[3*n+i]))
		if box.Width <= 0 || box.Height <= 0 {
			continue
		}
		dets = append(dets, entity.Detection{Box: box, Confidence: conf, Class: className(classes, bestClass)})
	}
	return dets, nil
}

func className(classes []string, i int) string {
	if i < len(classes) {
		return classes[i]
	}
	return fmt.Sprintf("class_%d", i)
}
