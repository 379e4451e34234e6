// Package domain はrecognitionフィーチャーのドメインエラーを定義します。
package domain

import "errors"

// 呼び出しを中断するエラー（ErrDecode, ErrDetection, ErrResourceExhausted, ErrTimeout）と、
// 結果のErrorsに記録されるだけのエラー（ErrCrop, ErrRecognition）があります。
var (
	// ErrDecode は画像が壊れている、または未対応の形式であることを示します。
	ErrDecode = errors.New("image decode failed")

	// ErrDetection はローカルモデルまたはリモート検出サービスの失敗（タイムアウトを含む）を示します。
	ErrDetection = errors.New("plate detection failed")

	// ErrCrop は面積0または範囲外のバウンディングボックスを示します。
	ErrCrop = errors.New("crop region is empty")

	// ErrRecognition は1つのクロップに対するOCRエンジンの失敗を示します。
	ErrRecognition = errors.New("text recognition failed")

	// ErrResourceExhausted は同時実行数の上限により受け付けられなかったことを示します。
	ErrResourceExhausted = errors.New("too many concurrent recognitions")

	// ErrTimeout は呼び出しごとの期限を超過したことを示します。
	ErrTimeout = errors.New("recognition deadline exceeded")
)
