package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/panjf2000/ants/v2"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
	"lpr_backend/internal/shared/ratelimiter"
)

// maxAttempts は最初の試行とリトライ1回の合計です。
const maxAttempts = 2

// ErrUnauthorized はAPIキーが拒否されたことを示します。リトライしません。
var ErrUnauthorized = errors.New("detection service rejected credentials")

// RemoteDetector は外部の検出サービスにHTTPで画像を送り、プレート領域を取得します。
type RemoteDetector struct {
	cfg     Config
	client  *http.Client
	pool    *ants.Pool
	limiter ratelimiter.RateLimiterInterface
}

// RemoteDetectorがDetectorを実装していることをコンパイル時に検証します。
var _ usecase.Detector = (*RemoteDetector)(nil)

// NewRemoteDetector は指定された設定とHTTPクライアントでRemoteDetectorを生成します。
// 検出のネットワークI/OはOCRワーカーとは別の専用プールで実行されます。
func NewRemoteDetector(cfg Config, client *http.Client) (*RemoteDetector, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, errors.New("remote detector requires base url and model")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("remote detector requires an api key")
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create detection pool: %w", err)
	}
	var limiter ratelimiter.RateLimiterInterface
	if cfg.RequestsPerMinute > 0 {
		limiter = ratelimiter.NewRateLimiter(cfg.RequestsPerMinute, time.Minute)
	}
	return &RemoteDetector{cfg: cfg, client: client, pool: pool, limiter: limiter}, nil
}

// Close は検出プールを解放します。
func (d *RemoteDetector) Close() {
	d.pool.Release()
}

type detectOutcome struct {
	dets []entity.Detection
	err  error
}

// Detect は画像をJPEGにエンコードして検出サービスへ送信します。
// ネットワーク障害と5xxは1回だけリトライし、4xx（認証エラーを含む）はリトライしません。
func (d *RemoteDetector) Detect(ctx context.Context, img *entity.Image, params usecase.DetectParams) ([]entity.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.Pixels, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("%w: encode image: %v", domain.ErrDetection, err)
	}
	payload := base64.StdEncoding.EncodeToString(buf.Bytes())

	done := make(chan detectOutcome, 1)
	err := d.pool.Submit(func() {
		dets, err := d.detectWithRetry(ctx, payload, params)
		done <- detectOutcome{dets: dets, err: err}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: submit detection: %v", domain.ErrDetection, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrDetection, out.err)
		}
		return out.dets, nil
	}
}

func (d *RemoteDetector) detectWithRetry(ctx context.Context, payload string, params usecase.DetectParams) ([]entity.Detection, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(500*time.Millisecond, d.cfg.MaxBackoff)
	b.MaxInterval = d.cfg.MaxBackoff

	attempt := 0
	return backoff.Retry(ctx, func() ([]entity.Detection, error) {
		attempt++
		dets, err := d.predict(ctx, payload, params)
		if err != nil {
			slog.Warn("remote detection attempt failed", "attempt", attempt, "error", err)
		}
		return dets, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxAttempts))
}

// predict は1回分のHTTPリクエストを実行します。リトライすべきでないエラーはbackoff.Permanentで包みます。
func (d *RemoteDetector) predict(ctx context.Context, payload string, params usecase.DetectParams) ([]entity.Detection, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	q := url.Values{}
	q.Set("api_key", d.cfg.APIKey)
	q.Set("confidence", percent(params.ConfidenceThreshold))
	q.Set("overlap", percent(params.OverlapThreshold))
	q.Set("format", "json")
	u := fmt.Sprintf("%s/%s?%s", strings.TrimRight(d.cfg.BaseURL, "/"), strings.Trim(d.cfg.Model, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		// ネットワーク障害・クライアントタイムアウトはリトライ対象
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: http %d", ErrUnauthorized, res.StatusCode))
	case res.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("detection service http %d", res.StatusCode)
	case res.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("detection service http %d: %s", res.StatusCode, bytes.TrimSpace(msg)))
	}

	var body predictResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed detection response: %w", err))
	}

	dets := make([]entity.Detection, 0, len(body.Predictions))
	for i, p := range body.Predictions {
		if p.Width < 0 || p.Height < 0 || p.Confidence < 0 || p.Confidence > 1 {
			return nil, backoff.Permanent(fmt.Errorf("malformed prediction %d: %+v", i, p))
		}
		dets = append(dets, entity.Detection{
			Box: entity.BoundingBox{
				X:      int(math.Round(p.X - p.Width/2)),
				Y:      int(math.Round(p.Y - p.Height/2)),
				Width:  int(math.Round(p.Width)),
				Height: int(math.Round(p.Height)),
			},
			Confidence: p.Confidence,
			Class:      p.Class,
		})
	}
	return dets, nil
}

// percent は0~1の閾値をサービスが期待する0~100の整数文字列に変換します。
func percent(v float64) string {
	return strconv.Itoa(int(math.Round(v * 100)))
}
