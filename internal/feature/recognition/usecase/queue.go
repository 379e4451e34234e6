package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"lpr_backend/internal/feature/recognition/domain/entity"
)

// OCREngine はクロップ画像から文字列を読み取るエンジンです。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type OCREngine interface {
	// Recognize は画像中のテキスト行を信頼度（0.0 ~ 1.0）付きで返します。
	Recognize(ctx context.Context, img image.Image) ([]entity.TextLine, error)
}

// ErrQueueClosed はクローズ済みのEngineQueueに投入されたことを示します。
var ErrQueueClosed = errors.New("ocr engine queue is closed")

type engineJob struct {
	ctx   context.Context
	crop  *entity.CropRegion
	reply chan engineReply
}

type engineReply struct {
	lines []entity.TextLine
	err   error
}

// EngineQueue は共有OCRエンジンへのアクセスを深さ固定のキューで直列化します。
// 投入されたクロップの所有権はキューに移り、スコアリング後にワーカーが解放します。
type EngineQueue struct {
	engine OCREngine
	jobs   chan engineJob
	quit   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	// sendMu は投入とCloseを排他します。投入はRLock、quitのクローズはLockで行います。
	sendMu sync.RWMutex
}

// NewEngineQueue はworkers個のワーカーと深さdepthのキューを持つEngineQueueを生成します。
func NewEngineQueue(engine OCREngine, workers, depth int) *EngineQueue {
	workers = max(workers, 1)
	depth = max(depth, 1)
	q := &EngineQueue{
		engine: engine,
		jobs:   make(chan engineJob, depth),
		quit:   make(chan struct{}),
	}
	q.wg.Add(workers)
	for range workers {
		go q.work()
	}
	return q
}

// Recognize はクロップをキューに投入し、結果を待ちます。
// 投入前にctxが終了した場合はクロップを呼び出し側で解放します。投入後にctxが終了した場合、
// エンジン呼び出しは完了まで走りますが結果は捨てられます。
func (q *EngineQueue) Recognize(ctx context.Context, crop *entity.CropRegion) ([]entity.TextLine, error) {
	reply := make(chan engineReply, 1)
	if err := q.enqueue(ctx, engineJob{ctx: ctx, crop: crop, reply: reply}); err != nil {
		crop.Release()
		return nil, err
	}

	select {
	case r := <-reply:
		return r.lines, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue はジョブを投入します。Closeの後に投入されたジョブがキューに残ることはありません。
func (q *EngineQueue) enqueue(ctx context.Context, job engineJob) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()

	select {
	case <-q.quit:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- job:
		return nil
	}
}

// Close はワーカーを停止し、未処理のジョブを解放します。
// 投入中の呼び出しが終わるのを待ってからquitを閉じるため、残ったジョブはすべてここで回収されます。
func (q *EngineQueue) Close() {
	q.once.Do(func() {
		q.sendMu.Lock()
		close(q.quit)
		q.sendMu.Unlock()
		q.wg.Wait()
		for {
			select {
			case job := <-q.jobs:
				job.crop.Release()
				job.reply <- engineReply{err: ErrQueueClosed}
			default:
				return
			}
		}
	})
}

func (q *EngineQueue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case job := <-q.jobs:
			job.reply <- q.run(job)
		}
	}
}

func (q *EngineQueue) run(job engineJob) (r engineReply) {
	defer job.crop.Release()
	if err := job.ctx.Err(); err != nil {
		return engineReply{err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("ocr engine panicked", "index", job.crop.Index, "panic", p)
			r = engineReply{err: fmt.Errorf("engine panic: %v", p)}
		}
	}()
	lines, err := q.engine.Recognize(job.ctx, job.crop.Pixels)
	return engineReply{lines: lines, err: err}
}
