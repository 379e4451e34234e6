package gemini

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"lpr_backend/internal/feature/recognition/domain/entity"
)

type mockGenerator struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateContentFunc(ctx, model, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestEngine_Recognize(t *testing.T) {
	t.Parallel()

	var gotModel string
	var gotParts int
	var gotMIME string
	engine := &Engine{
		model: DefaultModel,
		models: &mockGenerator{
			GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				gotModel = model
				gotParts = len(contents[0].Parts)
				gotMIME = config.ResponseMIMEType
				return textResponse(`{"text":"KA01AB1234","confidence":0.92}`), nil
			},
		},
	}

	lines, err := engine.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 80, 30)))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, gotModel)
	assert.Equal(t, 2, gotParts)
	assert.Equal(t, "application/json", gotMIME)
	assert.Equal(t, []entity.TextLine{{Text: "KA01AB1234", Confidence: 0.92}}, lines)
}

func TestEngine_Recognize_APIError(t *testing.T) {
	t.Parallel()

	apiErr := errors.New("quota exceeded")
	engine := &Engine{
		model: DefaultModel,
		models: &mockGenerator{
			GenerateContentFunc: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return nil, apiErr
			},
		},
	}

	_, err := engine.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 80, 30)))
	assert.ErrorIs(t, err, apiErr)
}

func TestParseReading(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    []entity.TextLine
		wantErr bool
	}{
		{name: "plain json", raw: `{"text":"ABC123","confidence":0.8}`, want: []entity.TextLine{{Text: "ABC123", Confidence: 0.8}}},
		{name: "fenced json", raw: "```json\n{\"text\":\"XYZ9\",\"confidence\":0.5}\n```", want: []entity.TextLine{{Text: "XYZ9", Confidence: 0.5}}},
		{name: "confidence clamped", raw: `{"text":"ABC","confidence":1.7}`, want: []entity.TextLine{{Text: "ABC", Confidence: 1}}},
		{name: "empty text", raw: `{"text":"  ","confidence":0}`, want: []entity.TextLine{}},
		{name: "malformed", raw: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseReading(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
