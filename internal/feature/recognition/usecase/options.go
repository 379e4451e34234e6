// Package usecase はナンバープレート認識パイプラインのビジネスロジックを実装します。
package usecase

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultConfidenceThreshold は検出結果を採用する最小信頼度です。
	DefaultConfidenceThreshold = 0.4
	// DefaultOverlapThreshold はNMSで重複とみなすIoUの閾値です。
	DefaultOverlapThreshold = 0.3
	// DefaultMaxDimension は正規化後の画像の長辺の上限（ピクセル）です。
	DefaultMaxDimension = 1280
	// DefaultDropThreshold はOCR結果を破棄する信頼度の閾値です。
	DefaultDropThreshold = 0.3
	// MaxImageSize は受け付ける画像データの最大サイズ（10MB）です。
	MaxImageSize = 10 * 1024 * 1024
)

// ErrInvalidOptions は呼び出しオプションが範囲外であることを示します。
var ErrInvalidOptions = errors.New("invalid recognition options")

// Options は1回の呼び出しに対するパラメータです。
type Options struct {
	ConfidenceThreshold float64
	OverlapThreshold    float64
	MaxDimension        int
	DropThreshold       float64
	Debug               bool // trueの場合、クロップをデバッグ用に保存します
}

// DefaultOptions はデフォルト値で埋めたOptionsを返します。
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		OverlapThreshold:    DefaultOverlapThreshold,
		MaxDimension:        DefaultMaxDimension,
		DropThreshold:       DefaultDropThreshold,
	}
}

// Validate は各パラメータが許容範囲内かを検証します。
func (o Options) Validate() error {
	thresholds := []struct {
		name  string
		value float64
	}{
		{"confidence_threshold", o.ConfidenceThreshold},
		{"overlap_threshold", o.OverlapThreshold},
		{"drop_threshold", o.DropThreshold},
	}
	for _, th := range thresholds {
		if math.IsNaN(th.value) || th.value < 0 || th.value > 1 {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidOptions, th.name, th.value)
		}
	}
	if o.MaxDimension < 1 {
		return fmt.Errorf("%w: max_dimension must be positive, got %d", ErrInvalidOptions, o.MaxDimension)
	}
	return nil
}

// DetectParams はDetectorに渡す閾値です。
type DetectParams struct {
	ConfidenceThreshold float64
	OverlapThreshold    float64
}
