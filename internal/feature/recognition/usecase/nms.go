package usecase

import (
	"cmp"
	"slices"

	"lpr_backend/internal/feature/recognition/domain/entity"
)

// FilterAndSuppress は信頼度がconfidence未満の検出を除外し、矩形を bounds に切り詰め、
// 信頼度の降順に並べた上でNon-Maximum Suppressionを行います。
// 採用済みの矩形とのIoUがoverlapを超える矩形は捨てられます。IoUは切り詰め後の矩形で計算します。
// 切り詰めて面積0になった矩形は残し、CropExtractorがErrCropとして記録します。
// 同じ信頼度の検出は入力順を保ちます。入力スライスは変更しません。
func FilterAndSuppress(dets []entity.Detection, bounds entity.BoundingBox, confidence, overlap float64) []entity.Detection {
	candidates := make([]entity.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= confidence {
			d.Box = d.Box.Clip(bounds)
			candidates = append(candidates, d)
		}
	}
	slices.SortStableFunc(candidates, func(a, b entity.Detection) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	kept := make([]entity.Detection, 0, len(candidates))
	for _, c := range candidates {
		suppressed := false
		for _, k := range kept {
			if c.Box.IoU(k.Box) > overlap {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}
