package entity

// Stage はパイプラインの処理段階を表します。
type Stage string

const (
	StageIngest      Stage = "ingest"
	StageDetection   Stage = "detection"
	StageCrop        Stage = "crop"
	StageRecognition Stage = "recognition"
)

// StageError は呼び出し全体を失敗させない段階別エラーです。
type StageError struct {
	Stage   Stage  `json:"stage"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// Plate は認識されたナンバープレート1件です。
type Plate struct {
	Text                string      `json:"text"`
	Confidence          float64     `json:"confidence"`
	DetectionConfidence float64     `json:"detection_confidence"`
	Box                 BoundingBox `json:"bbox"`
}

// Timing はパイプラインの所要時間（ミリ秒）です。
type Timing struct {
	TotalMs     float64 `json:"total_ms"`
	DetectionMs float64 `json:"detection_ms"`
}

// RecognitionResult は1回の呼び出しの最終結果です。
type RecognitionResult struct {
	Plates []Plate      `json:"plates"`
	Errors []StageError `json:"errors"`
	Timing Timing       `json:"timing"`
}
