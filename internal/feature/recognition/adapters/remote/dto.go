package remote

// predictResponse は検出サービスのレスポンスです。座標はボックス中心です。
type predictResponse struct {
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}
