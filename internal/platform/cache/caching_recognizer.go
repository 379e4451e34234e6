// Package cache provides a Redis-backed result cache for the recognition pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

const (
	// DefaultTTL is how long a recognition result stays cached.
	DefaultTTL = 5 * time.Minute
	// DefaultNamespace prefixes every cache key.
	DefaultNamespace = "plates"
)

// PlateRecognizer is the subset of the pipeline the cache decorates.
type PlateRecognizer interface {
	Process(ctx context.Context, imageData []byte, opts usecase.Options) (*entity.RecognitionResult, error)
}

// CachingRecognizer decorates a PlateRecognizer with a Redis result cache.
// Identical image bytes with identical options produce identical results, so
// repeated uploads are answered from Redis. Failures, debug invocations and
// results carrying recognition-stage errors (transient OCR failures) are never
// cached. It is not a persistence layer: entries expire after ttl.
//
// A cache hit reports its own timing: TotalMs is the time spent answering from
// Redis and DetectionMs is 0, since no detection ran for the request.
type CachingRecognizer struct {
	inner     PlateRecognizer
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCachingRecognizer decorates a PlateRecognizer with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "plates".
// A nil rdb disables caching.
func NewCachingRecognizer(rdb *redis.Client, ttl time.Duration, inner PlateRecognizer, namespace string) *CachingRecognizer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &CachingRecognizer{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// Process returns a cached result when available, otherwise runs the pipeline
// and stores a successful result.
func (c *CachingRecognizer) Process(ctx context.Context, imageData []byte, opts usecase.Options) (*entity.RecognitionResult, error) {
	// Debug runs must reach the pipeline so crops get written.
	if c.rdb == nil || opts.Debug {
		return c.inner.Process(ctx, imageData, opts)
	}

	start := time.Now()
	key := c.cacheKey(imageData, opts)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out entity.RecognitionResult
		if err := json.Unmarshal(b, &out); err == nil && out.Plates != nil && out.Errors != nil {
			slog.Debug("recognition cache hit", "key", key)
			out.Timing = entity.Timing{TotalMs: float64(time.Since(start)) / float64(time.Millisecond)}
			return &out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to the pipeline
	out, err := c.inner.Process(ctx, imageData, opts)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort). OCR failures may be transient, so a retry must reach the pipeline.
	if hasRecognitionErrors(out) {
		slog.Debug("recognition result not cached", "key", key, "stage_errors", len(out.Errors))
		return out, nil
	}
	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			slog.Warn("failed to cache recognition result", "key", key, "error", err)
		}
	}

	return out, nil
}

func hasRecognitionErrors(r *entity.RecognitionResult) bool {
	for _, e := range r.Errors {
		if e.Stage == entity.StageRecognition {
			return true
		}
	}
	return false
}

// Purge removes every cached result in the namespace and returns how many keys were deleted.
func (c *CachingRecognizer) Purge(ctx context.Context) (int, error) {
	if c.rdb == nil {
		return 0, nil
	}
	return c.deleteByPattern(ctx, c.namespace+":*")
}

// cacheKey generates a cache key from the image digest and the options that affect the result.
func (c *CachingRecognizer) cacheKey(imageData []byte, opts usecase.Options) string {
	sum := sha256.Sum256(imageData)
	return fmt.Sprintf("%s:%s:c%s:o%s:m%d:d%s",
		c.namespace,
		hex.EncodeToString(sum[:]),
		formatFloat(opts.ConfidenceThreshold),
		formatFloat(opts.OverlapThreshold),
		opts.MaxDimension,
		formatFloat(opts.DropThreshold),
	)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingRecognizer) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
