// Package remote はホスティングされた物体検出サービスを使うDetector実装を提供します。
package remote

import "time"

// Config はリモート検出サービスの接続設定です。
type Config struct {
	BaseURL           string        // 例: "https://detect.roboflow.com"
	Model             string        // 例: "license-plate-recognition-rxg4e/4"
	APIKey            string        // 認証用のAPIキー
	Timeout           time.Duration // 1回のHTTPリクエストのタイムアウト
	MaxBackoff        time.Duration // リトライ前の待機時間の上限
	RequestsPerMinute int           // 0以下なら無制限
	Workers           int           // 検出I/O専用プールのサイズ
}

const (
	// DefaultTimeout はHTTPリクエストのデフォルトタイムアウトです。
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBackoff はリトライ待機時間のデフォルト上限です。
	DefaultMaxBackoff = 2 * time.Second
	// DefaultWorkers は検出I/Oプールのデフォルトサイズです。
	DefaultWorkers = 4
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	return c
}
