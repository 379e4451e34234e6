package usecase

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
)

const (
	// DefaultThreadFraction は利用可能なCPUのうちOCRに割り当てる比率です。
	DefaultThreadFraction = 0.6
	// MinThreads はOCRワーカー数の下限です。
	MinThreads = 2
	// DefaultBatchSize は1タスクで処理するクロップ数の上限です。
	DefaultBatchSize = 6
)

// RecognizerConfig はTextRecognizerのスレッド数・バッチサイズの設定です。
type RecognizerConfig struct {
	ThreadFraction float64
	BatchSize      int
	QueueDepth     int // 0の場合はワーカー数の2倍
	NumCPU         int // 0の場合は runtime.NumCPU()
}

// WorkerCount はfraction×cpusを切り捨てた値を返します。MinThreads未満にはなりません。
func WorkerCount(fraction float64, cpus int) int {
	return max(int(math.Floor(fraction*float64(cpus))), MinThreads)
}

// TextRecognizer はクロップをバッチに分けてワーカープールで処理し、共有エンジンのキュー経由でOCRを行います。
type TextRecognizer struct {
	pool      *ants.Pool
	queue     *EngineQueue
	batchSize int
	workers   int
}

// NewTextRecognizer はエンジンと設定からTextRecognizerを生成します。
func NewTextRecognizer(engine OCREngine, cfg RecognizerConfig) (*TextRecognizer, error) {
	if cfg.ThreadFraction <= 0 {
		cfg.ThreadFraction = DefaultThreadFraction
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.NumCPU <= 0 {
		cfg.NumCPU = runtime.NumCPU()
	}
	workers := WorkerCount(cfg.ThreadFraction, cfg.NumCPU)
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 2 * workers
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create ocr worker pool: %w", err)
	}
	return &TextRecognizer{
		pool:      pool,
		queue:     NewEngineQueue(engine, workers, cfg.QueueDepth),
		batchSize: cfg.BatchSize,
		workers:   workers,
	}, nil
}

// Workers はOCRワーカー数を返します。
func (r *TextRecognizer) Workers() int { return r.workers }

// Close はワーカープールとエンジンキューを停止します。
func (r *TextRecognizer) Close() {
	r.pool.Release()
	r.queue.Close()
}

type cropOutcome struct {
	result *entity.OCRResult
	err    *entity.StageError
}

// Recognize は全クロップを認識し、dropThreshold未満の結果を捨てて返します。
// クロップの所有権はこのメソッドに移り、各クロップはスコアリング直後に解放されます。
// エンジンの失敗はクロップ単位のStageErrorとして返し、他のクロップの処理は続けます。
func (r *TextRecognizer) Recognize(ctx context.Context, crops []*entity.CropRegion, dropThreshold float64) ([]entity.OCRResult, []entity.StageError) {
	outcomes := make([]cropOutcome, len(crops))

	var wg sync.WaitGroup
	for start := 0; start < len(crops); start += r.batchSize {
		end := min(start+r.batchSize, len(crops))
		batch := crops[start:end]
		offset := start

		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			for j, crop := range batch {
				outcomes[offset+j] = r.score(ctx, crop, dropThreshold)
			}
		})
		if err != nil {
			wg.Done()
			for j, crop := range batch {
				crop.Release()
				outcomes[offset+j] = failure(crop.Index, err)
			}
		}
	}
	wg.Wait()

	var results []entity.OCRResult
	var errs []entity.StageError
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			errs = append(errs, *o.err)
		case o.result != nil:
			results = append(results, *o.result)
		}
	}
	return results, errs
}

// score は1つのクロップを認識します。ctxが終了している場合は何も記録しません。
func (r *TextRecognizer) score(ctx context.Context, crop *entity.CropRegion, dropThreshold float64) cropOutcome {
	index := crop.Index
	if ctx.Err() != nil {
		crop.Release()
		return cropOutcome{}
	}

	lines, err := r.queue.Recognize(ctx, crop)
	if err != nil {
		if ctx.Err() != nil {
			return cropOutcome{}
		}
		return failure(index, err)
	}

	text, raw, conf, ok := selectPlateText(lines)
	if !ok || conf < dropThreshold {
		return cropOutcome{}
	}
	return cropOutcome{result: &entity.OCRResult{
		Index:      index,
		Text:       text,
		RawText:    raw,
		Confidence: conf,
	}}
}

func failure(index int, err error) cropOutcome {
	return cropOutcome{err: &entity.StageError{
		Stage:   entity.StageRecognition,
		Index:   index,
		Message: fmt.Sprintf("%v: %v", domain.ErrRecognition, err),
	}}
}
