package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"lpr_backend/internal/feature/recognition/domain"
)

// AdmissionPolicy は上限到達時の振る舞いです。
type AdmissionPolicy string

const (
	// AdmissionQueue は空きが出るまで最大wait時間だけ待ちます。
	AdmissionQueue AdmissionPolicy = "queue"
	// AdmissionReject は即座にErrResourceExhaustedを返します。
	AdmissionReject AdmissionPolicy = "reject"
)

// DefaultMaxConcurrentRequests は同時に処理できる呼び出し数のデフォルトです。
const DefaultMaxConcurrentRequests = 2

// Admission はバッファを保持する呼び出しの同時実行数をセマフォで制限します。
type Admission struct {
	sem      *semaphore.Weighted
	capacity int64
	policy   AdmissionPolicy
	wait     time.Duration

	active atomic.Int64
	peak   atomic.Int64
	gauge  metric.Int64UpDownCounter
}

// NewAdmission はAdmissionの新しいインスタンスを生成します。capacityが0以下ならデフォルト値を使います。
func NewAdmission(capacity int, policy AdmissionPolicy, wait time.Duration) *Admission {
	if capacity <= 0 {
		capacity = DefaultMaxConcurrentRequests
	}
	if policy != AdmissionReject {
		policy = AdmissionQueue
	}
	gauge, err := otel.Meter(instrumentationName).Int64UpDownCounter(
		"recognition.active_invocations",
		metric.WithDescription("Recognition invocations currently holding image buffers"),
	)
	if err != nil {
		slog.Warn("failed to create active invocation counter", "error", err)
	}
	return &Admission{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		policy:   policy,
		wait:     wait,
		gauge:    gauge,
	}
}

// Acquire は実行枠を1つ確保し、解放関数を返します。
// 枠が取れない場合は domain.ErrResourceExhausted、待機中にctxが終了した場合はctx.Err()を返します。
func (a *Admission) Acquire(ctx context.Context) (func(), error) {
	switch a.policy {
	case AdmissionReject:
		if !a.sem.TryAcquire(1) {
			return nil, fmt.Errorf("%w: %d invocations already running", domain.ErrResourceExhausted, a.capacity)
		}
	default:
		wctx := ctx
		if a.wait > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, a.wait)
			defer cancel()
		}
		if err := a.sem.Acquire(wctx, 1); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: no slot freed within %s", domain.ErrResourceExhausted, a.wait)
		}
	}

	n := a.active.Add(1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	a.add(ctx, 1)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.active.Add(-1)
			a.add(context.Background(), -1)
			a.sem.Release(1)
		})
	}, nil
}

func (a *Admission) add(ctx context.Context, n int64) {
	if a.gauge != nil {
		a.gauge.Add(ctx, n)
	}
}

// Active は現在実行中の呼び出し数を返します。
func (a *Admission) Active() int64 { return a.active.Load() }

// Peak はこれまでの最大同時実行数を返します。
func (a *Admission) Peak() int64 { return a.peak.Load() }

// Capacity は同時実行数の上限を返します。
func (a *Admission) Capacity() int64 { return a.capacity }
