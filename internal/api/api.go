// Package api はHTTPインターフェースで共有するJSONのリクエスト・レスポンス型を定義します。
package api

// ErrorResponse はエラー時のレスポンスです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// BoundingBox は画像上の矩形です。
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// PlateResponse は認識されたナンバープレート1件です。
type PlateResponse struct {
	Text                string      `json:"text"`
	Confidence          float64     `json:"confidence"`
	DetectionConfidence float64     `json:"detection_confidence"`
	BBox                BoundingBox `json:"bbox"`
}

// StageErrorResponse は処理を止めなかった段階別エラーです。
type StageErrorResponse struct {
	Stage   string `json:"stage"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// TimingResponse は処理時間（ミリ秒）です。
type TimingResponse struct {
	TotalMs     float64 `json:"total_ms"`
	DetectionMs float64 `json:"detection_ms"`
}

// RecognitionResponse は POST /v1/plates/recognize のレスポンスです。
type RecognitionResponse struct {
	Plates []PlateResponse      `json:"plates"`
	Errors []StageErrorResponse `json:"errors"`
	Timing TimingResponse       `json:"timing"`
}

// StatsResponse は GET /v1/plates/stats のレスポンスです。
type StatsResponse struct {
	ActiveInvocations int64 `json:"active_invocations"`
	PeakInvocations   int64 `json:"peak_invocations"`
	MaxInvocations    int64 `json:"max_invocations"`
	LiveBuffers       int64 `json:"live_buffers"`
	OCRWorkers        int   `json:"ocr_workers"`
}

// HealthResponse は GET /healthz のレスポンスです。
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// PurgeResponse は DELETE /v1/plates/cache のレスポンスです。
type PurgeResponse struct {
	Deleted int `json:"deleted"`
}
