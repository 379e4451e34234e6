// Package yolo はOpenCV DNNでYOLOv8のONNXモデルを実行するローカル検出器を提供します。
// ネットワークI/Oは行いません。
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

const (
	// DefaultInputSize はモデルの入力解像度です。
	DefaultInputSize = 640
	// DefaultClass は単一クラスモデルのクラス名です。
	DefaultClass = "license_plate"
)

// letterboxのパディング色（Ultralyticsの既定値）
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// Config はLocalDetectorの設定です。
type Config struct {
	ModelPath string
	InputSize int
	Classes   []string
}

// LocalDetector はプロセス内でONNXモデルを実行してプレート領域を検出します。
// gocv.Net はスレッドセーフではないため、推論はミューテックスで直列化します。
type LocalDetector struct {
	mu      sync.Mutex
	net     gocv.Net
	size    int
	classes []string
}

// LocalDetectorがDetectorを実装していることをコンパイル時に検証します。
var _ usecase.Detector = (*LocalDetector)(nil)

// NewLocalDetector はモデルファイルを読み込んでLocalDetectorを生成します。
func NewLocalDetector(cfg Config) (*LocalDetector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("local detector requires a model path")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if len(cfg.Classes) == 0 {
		cfg.Classes = []string{DefaultClass}
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detection model %q", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		_ = net.Close()
		return nil, fmt.Errorf("set dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		_ = net.Close()
		return nil, fmt.Errorf("set dnn target: %w", err)
	}
	return &LocalDetector{net: net, size: cfg.InputSize, classes: cfg.Classes}, nil
}

// Close はモデルを解放します。
func (d *LocalDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Detect は画像をletterboxしてモデルに入力し、検出結果を元画像の座標で返します。
func (d *LocalDetector) Detect(ctx context.Context, img *entity.Image, params usecase.DetectParams) ([]entity.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := gocv.ImageToMatRGB(img.Pixels)
	if err != nil {
		return nil, fmt.Errorf("%w: convert image: %v", domain.ErrDetection, err)
	}
	defer src.Close()

	g := newLetterbox(img.Width(), img.Height(), d.size)
	input := gocv.NewMat()
	defer input.Close()
	if err := d.letterbox(src, &input, g); err != nil {
		return nil, fmt.Errorf("%w: letterbox: %v", domain.ErrDetection, err)
	}

	// ImageToMatRGBはBGR順のMatを返すため、RGBへの入れ替えを指定する
	blob := gocv.BlobFromImage(input, 1.0/255.0, image.Pt(d.size, d.size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	if err := d.net.SetInput(blob, ""); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: set input: %v", domain.ErrDetection, err)
	}
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", domain.ErrDetection, err)
	}
	dets, err := decodeOutput(data, out.Size(), g, d.classes, params.ConfidenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDetection, err)
	}
	return dets, nil
}

func (d *LocalDetector) letterbox(src gocv.Mat, dst *gocv.Mat, g letterboxGeometry) error {
	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(src, &resized, image.Pt(g.width, g.height), 0, 0, gocv.InterpolationLinear); err != nil {
		return err
	}
	return gocv.CopyMakeBorder(resized, dst,
		g.padY, d.size-g.height-g.padY,
		g.padX, d.size-g.width-g.padX,
		gocv.BorderConstant, padColor)
}
