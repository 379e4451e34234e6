package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpr_backend/internal/feature/recognition/domain"
	"lpr_backend/internal/feature/recognition/usecase"
)

func TestAdmission_Reject(t *testing.T) {
	t.Parallel()

	a := usecase.NewAdmission(1, usecase.AdmissionReject, 0)
	release, err := a.Acquire(context.Background())
	require.NoError(t, err)

	_, err = a.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrResourceExhausted)

	release()
	release()
	assert.Zero(t, a.Active())

	release, err = a.Acquire(context.Background())
	require.NoError(t, err)
	release()
	assert.Equal(t, int64(1), a.Peak())
}

func TestAdmission_QueueTimesOut(t *testing.T) {
	t.Parallel()

	a := usecase.NewAdmission(1, usecase.AdmissionQueue, 20*time.Millisecond)
	release, err := a.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = a.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrResourceExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestAdmission_QueueWaitsForSlot(t *testing.T) {
	t.Parallel()

	a := usecase.NewAdmission(1, usecase.AdmissionQueue, time.Second)
	release, err := a.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		release()
	}()

	second, err := a.Acquire(context.Background())
	require.NoError(t, err)
	second()
}

func TestAdmission_CallerContextCanceled(t *testing.T) {
	t.Parallel()

	a := usecase.NewAdmission(1, usecase.AdmissionQueue, time.Second)
	release, err := a.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrResourceExhausted)
}

func TestAdmission_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	a := usecase.NewAdmission(3, usecase.AdmissionQueue, 0)
	assert.Equal(t, int64(3), a.Capacity())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := a.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			assert.LessOrEqual(t, a.Active(), int64(3))
			time.Sleep(time.Millisecond)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, a.Peak(), int64(3))
	assert.Zero(t, a.Active())
}

func TestNewAdmission_Defaults(t *testing.T) {
	t.Parallel()

	a := usecase.NewAdmission(0, "unknown", 0)
	assert.Equal(t, int64(usecase.DefaultMaxConcurrentRequests), a.Capacity())
}
