package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

func TestWorkerCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fraction float64
		cpus     int
		want     int
	}{
		{0.6, 8, 4},
		{0.6, 16, 9},
		{0.6, 2, 2},
		{0.6, 1, 2},
		{1, 16, 16},
		{0.1, 64, 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v_of_%d", tt.fraction, tt.cpus), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, usecase.WorkerCount(tt.fraction, tt.cpus))
		})
	}
}

func newRecognizer(t *testing.T, engine usecase.OCREngine, batch int) *usecase.TextRecognizer {
	t.Helper()
	r, err := usecase.NewTextRecognizer(engine, usecase.RecognizerConfig{BatchSize: batch, NumCPU: 4})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestTextRecognizer_Workers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, newRecognizer(t, &mockEngine{}, 0).Workers())
}

// TestTextRecognizer_Recognize_OneFailure はk個中1個のクロップでエンジンが失敗した場合に、
// k-1件の結果と1件のRecognitionエラーが返ることを検証します。
func TestTextRecognizer_Recognize_OneFailure(t *testing.T) {
	t.Parallel()

	pool := usecase.NewBufferPool()
	engine := widthEngine(map[int]entity.TextLine{
		100: {Text: "ABC100", Confidence: 0.9},
		101: {Text: "ABC101", Confidence: 0.8},
		103: {Text: "ABC103", Confidence: 0.7},
	})
	crops := []*entity.CropRegion{
		pooledCrop(pool, 0, 100, 40),
		pooledCrop(pool, 1, 101, 40),
		pooledCrop(pool, 2, 102, 40),
		pooledCrop(pool, 3, 103, 40),
	}

	results, errs := newRecognizer(t, engine, 2).Recognize(context.Background(), crops, 0.3)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"ABC100", "ABC101", "ABC103"}, []string{results[0].Text, results[1].Text, results[2].Text})
	assert.Equal(t, []int{0, 1, 3}, []int{results[0].Index, results[1].Index, results[2].Index})
	require.Len(t, errs, 1)
	assert.Equal(t, entity.StageRecognition, errs[0].Stage)
	assert.Equal(t, 2, errs[0].Index)
	assert.Contains(t, errs[0].Message, domain.ErrRecognition.Error())
	assert.Zero(t, pool.Live())
}

func TestTextRecognizer_Recognize_DropThreshold(t *testing.T) {
	t.Parallel()

	pool := usecase.NewBufferPool()
	engine := widthEngine(map[int]entity.TextLine{
		100: {Text: "KEEP01", Confidence: 0.31},
		101: {Text: "DROP01", Confidence: 0.29},
		102: {Text: "X", Confidence: 0.99},
	})
	crops := []*entity.CropRegion{
		pooledCrop(pool, 0, 100, 40),
		pooledCrop(pool, 1, 101, 40),
		pooledCrop(pool, 2, 102, 40),
	}

	results, errs := newRecognizer(t, engine, 0).Recognize(context.Background(), crops, 0.3)

	assert.Empty(t, errs)
	require.Len(t, results, 1)
	assert.Equal(t, "KEEP01", results[0].Text)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Confidence, 0.3)
	}
	assert.Zero(t, pool.Live())
}

func TestTextRecognizer_Recognize_ManyBatches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	engine := &mockEngine{
		RecognizeFunc: func(_ context.Context, img image.Image) ([]entity.TextLine, error) {
			calls.Add(1)
			return []entity.TextLine{{Text: fmt.Sprintf("W%d", img.Bounds().Dx()), Confidence: 0.9}}, nil
		},
	}
	pool := usecase.NewBufferPool()
	crops := make([]*entity.CropRegion, 13)
	for i := range crops {
		crops[i] = pooledCrop(pool, i, 100+i, 40)
	}

	results, errs := newRecognizer(t, engine, usecase.DefaultBatchSize).Recognize(context.Background(), crops, 0.3)

	assert.Empty(t, errs)
	require.Len(t, results, 13)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("W%d", 100+i), r.Text)
	}
	assert.Equal(t, int32(13), calls.Load())
	assert.Zero(t, pool.Live())
}

func TestTextRecognizer_Recognize_CanceledContext(t *testing.T) {
	t.Parallel()

	pool := usecase.NewBufferPool()
	engine := &mockEngine{
		RecognizeFunc: func(context.Context, image.Image) ([]entity.TextLine, error) {
			return nil, errors.New("must not be called")
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, errs := newRecognizer(t, engine, 0).Recognize(ctx, []*entity.CropRegion{
		pooledCrop(pool, 0, 100, 40),
		pooledCrop(pool, 1, 100, 40),
	}, 0.3)

	assert.Empty(t, results)
	assert.Empty(t, errs)
	assert.Zero(t, pool.Live())
}
