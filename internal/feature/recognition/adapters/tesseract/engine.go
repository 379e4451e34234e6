// Package tesseract はgosseract(Tesseract)を使ったOCRエンジンを提供します。
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

const (
	// DefaultLanguage はTesseractの既定言語です。
	DefaultLanguage = "eng"
	// plateWhitelist はナンバープレートに現れる文字です。
	plateWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Engine はTesseractでクロップ画像を1行のテキストとして読み取ります。
// gosseract.Client は並行利用できないため、アイドルなクライアントを貸し出して使い回します。
type Engine struct {
	language string
	idle     chan *gosseract.Client

	mu     sync.Mutex
	closed bool
}

// EngineがOCREngineを実装していることをコンパイル時に検証します。
var _ usecase.OCREngine = (*Engine)(nil)

// NewEngine は指定言語のEngineを生成します。maxIdle はEngineQueueのワーカー数に合わせます。
// 言語データが無い場合はエラーを返します。
func NewEngine(language string, maxIdle int) (*Engine, error) {
	if language == "" {
		language = DefaultLanguage
	}
	e := &Engine{language: language, idle: make(chan *gosseract.Client, max(1, maxIdle))}

	// 設定の妥当性は最初のクライアントで検証する
	c, err := e.newClient()
	if err != nil {
		return nil, err
	}
	e.idle <- c
	return e, nil
}

func (e *Engine) newClient() (*gosseract.Client, error) {
	c := gosseract.NewClient()
	if err := c.SetLanguage(e.language); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set tesseract language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := c.SetWhitelist(plateWhitelist); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set whitelist: %w", err)
	}
	return c, nil
}

func (e *Engine) acquire() (*gosseract.Client, error) {
	select {
	case c := <-e.idle:
		return c, nil
	default:
		return e.newClient()
	}
}

func (e *Engine) release(c *gosseract.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		select {
		case e.idle <- c:
			return
		default:
		}
	}
	_ = c.Close()
}

// Close はアイドルなクライアントをすべて解放します。使用中のクライアントは返却時に解放されます。
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []string
	for {
		select {
		case c := <-e.idle:
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		default:
			if len(errs) > 0 {
				return fmt.Errorf("close tesseract clients: %s", strings.Join(errs, "; "))
			}
			return nil
		}
	}
}

// Recognize はクロップ画像の単語を信頼度付きで返します。
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]entity.TextLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	c, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer e.release(c)

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	return wordsToLines(boxes), nil
}

// wordsToLines は単語ごとの結果をTextLineに変換します。信頼度は0~100から0~1に換算します。
func wordsToLines(boxes []gosseract.BoundingBox) []entity.TextLine {
	lines := make([]entity.TextLine, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		conf := b.Confidence / 100
		lines = append(lines, entity.TextLine{Text: word, Confidence: min(max(conf, 0), 1)})
	}
	return lines
}
