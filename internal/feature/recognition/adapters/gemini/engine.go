// Package gemini はGoogle Gemini APIのマルチモーダル入力を使用したOCRエンジンを提供します。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"strings"

	"google.golang.org/genai"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

const (
	// DefaultModel はGemini APIのデフォルトモデルです。
	DefaultModel = "gemini-2.5-flash"
	// ReadPlatePrompt はナンバープレートを読み取らせるプロンプトです。
	ReadPlatePrompt = "This image is a cropped vehicle license plate. " +
		"Read the plate characters exactly as printed, letters and digits only. " +
		"Return the plate text and your confidence between 0 and 1. " +
		"If no plate text is legible, return an empty text with confidence 0."
)

// contentGenerator は genai.Models のうちEngineが使うメソッドです。
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Engine はGeminiに画像を渡してプレート文字列を読み取らせます。
type Engine struct {
	models contentGenerator
	model  string
}

// EngineがOCREngineを実装していることをコンパイル時に検証します。
var _ usecase.OCREngine = (*Engine)(nil)

// NewEngine はADCを使用してEngineの新しいインスタンスを生成します。
// 環境変数 GOOGLE_GENAI_USE_VERTEXAI, GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION が必要です。
func NewEngine(ctx context.Context) (*Engine, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Engine{models: client.Models, model: DefaultModel}, nil
}

// readingSchema はモデルに返させるJSONの形です。
var readingSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"text":       {Type: genai.TypeString},
		"confidence": {Type: genai.TypeNumber},
	},
	Required: []string{"text", "confidence"},
}

type reading struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognize はクロップ画像とプロンプトを送り、JSONで返された読み取り結果を返します。
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]entity.TextLine, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(buf.Bytes(), "image/png"),
			genai.NewPartFromText(ReadPlatePrompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   readingSchema,
	}

	resp, err := e.models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API request failed: %w", err)
	}
	return parseReading(resp.Text())
}

// parseReading はモデルの応答JSONをTextLineに変換します。空のテキストは読み取り無しとして扱います。
func parseReading(raw string) ([]entity.TextLine, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var r reading
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("malformed gemini response: %w", err)
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return []entity.TextLine{}, nil
	}
	return []entity.TextLine{{Text: text, Confidence: min(max(r.Confidence, 0), 1)}}, nil
}
