// Package vision はGoogle Cloud Vision APIを使用したOCRエンジンを提供します。
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

// Engine はVision APIのTEXT_DETECTIONでクロップ画像の文字を読み取ります。
type Engine struct {
	client *gvision.ImageAnnotatorClient
}

// EngineがOCREngineを実装していることをコンパイル時に検証します。
var _ usecase.OCREngine = (*Engine)(nil)

// NewEngine はADCを使用してEngineの新しいインスタンスを生成します。
func NewEngine(ctx context.Context) (*Engine, error) {
	client, err := gvision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &Engine{client: client}, nil
}

// Close はVision APIクライアントを解放します。
func (e *Engine) Close() error {
	return e.client.Close()
}

// Recognize はクロップ画像をPNGで送信し、ブロック単位のテキストを返します。
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]entity.TextLine, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision API request failed: %w", err)
	}

	if len(resp.Responses) == 0 {
		return nil, nil
	}

	if resp.Responses[0].Error != nil {
		return nil, fmt.Errorf("vision API error: %s", resp.Responses[0].Error.Message)
	}

	return linesFromResponse(resp.Responses[0]), nil
}

// linesFromResponse はFullTextAnnotationのブロックを1行ずつのTextLineに変換します。
// ブロック情報が無い場合は全文の注釈を信頼度1として扱います。
func linesFromResponse(res *visionpb.AnnotateImageResponse) []entity.TextLine {
	var lines []entity.TextLine
	if full := res.GetFullTextAnnotation(); full != nil {
		for _, page := range full.GetPages() {
			for _, block := range page.GetBlocks() {
				text := blockText(block)
				if text == "" {
					continue
				}
				lines = append(lines, entity.TextLine{Text: text, Confidence: float64(block.GetConfidence())})
			}
		}
	}
	if len(lines) > 0 {
		return lines
	}

	if ann := res.GetTextAnnotations(); len(ann) > 0 {
		for _, field := range strings.Fields(ann[0].GetDescription()) {
			lines = append(lines, entity.TextLine{Text: field, Confidence: 1})
		}
	}
	return lines
}

func blockText(block *visionpb.Block) string {
	var words []string
	for _, para := range block.GetParagraphs() {
		for _, word := range para.GetWords() {
			var sb strings.Builder
			for _, sym := range word.GetSymbols() {
				sb.WriteString(sym.GetText())
			}
			if sb.Len() > 0 {
				words = append(words, sb.String())
			}
		}
	}
	return strings.Join(words, " ")
}
