package usecase

import (
	"cmp"
	"slices"

	"lpr_backend/internal/feature/recognition/domain/entity"
)

var stageOrder = map[entity.Stage]int{
	entity.StageIngest:      0,
	entity.StageDetection:   1,
	entity.StageCrop:        2,
	entity.StageRecognition: 3,
}

// ResultAggregator はクロップごとのOCR結果を1つのRecognitionResultにまとめます。
type ResultAggregator struct{}

// Aggregate は残ったOCR結果をすべてプレートとして返します。
// プレートは検出信頼度の降順（OCR信頼度ではない）、同値は検出順です。
// boxesは検出インデックスからクリップ済みボックスへの対応です。
func (ResultAggregator) Aggregate(
	dets []entity.Detection,
	boxes map[int]entity.BoundingBox,
	ocr []entity.OCRResult,
	errs []entity.StageError,
	timing entity.Timing,
) *entity.RecognitionResult {
	type ranked struct {
		index int
		plate entity.Plate
	}
	rs := make([]ranked, 0, len(ocr))
	for _, o := range ocr {
		det := dets[o.Index]
		box, ok := boxes[o.Index]
		if !ok {
			box = det.Box
		}
		rs = append(rs, ranked{index: o.Index, plate: entity.Plate{
			Text:                o.Text,
			Confidence:          o.Confidence,
			DetectionConfidence: det.Confidence,
			Box:                 box,
		}})
	}
	slices.SortStableFunc(rs, func(a, b ranked) int {
		if c := cmp.Compare(b.plate.DetectionConfidence, a.plate.DetectionConfidence); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})

	plates := make([]entity.Plate, 0, len(rs))
	for _, r := range rs {
		plates = append(plates, r.plate)
	}

	ordered := make([]entity.StageError, len(errs))
	copy(ordered, errs)
	slices.SortStableFunc(ordered, func(a, b entity.StageError) int {
		if c := cmp.Compare(stageOrder[a.Stage], stageOrder[b.Stage]); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})

	return &entity.RecognitionResult{
		Plates: plates,
		Errors: ordered,
		Timing: timing,
	}
}
