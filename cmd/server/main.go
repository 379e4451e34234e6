package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"lpr_backend/internal/app/di"
	"lpr_backend/internal/app/router"
	"lpr_backend/internal/feature/recognition/transport/handler"
	"lpr_backend/internal/platform/config"
	platformhandler "lpr_backend/internal/platform/http/handler"
	infraredis "lpr_backend/internal/platform/redis"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis（任意）
	var rdb *redisv9.Client
	if cfg.RedisEnabled() {
		tmp, err := infraredis.NewRedisClient(ctx, infraredis.Options{Addr: cfg.RedisAddr(), Password: cfg.RedisPassword})
		if err != nil {
			slog.Warn("Redis unavailable. Running without result cache.", "error", err)
		} else {
			rdb = tmp
			defer func() {
				if err := rdb.Close(); err != nil {
					slog.Error("Failed to close Redis client", "error", err)
				}
			}()
		}
	}

	// Detector / OCR / Pipeline
	rec, err := di.NewRecognition(ctx, cfg, rdb)
	if err != nil {
		slog.Error("failed to build recognition pipeline", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			slog.Error("failed to release recognition pipeline", "error", err)
		}
	}()

	// Handler
	checks := map[string]platformhandler.Check{}
	var cacheH *handler.CacheHandler
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		cacheH = handler.NewCacheHandler(rec.Cached)
	}
	healthH := platformhandler.NewHealthHandler(checks)
	recognitionH := handler.NewRecognitionHandler(rec.Cached, rec.Pipeline, di.DefaultOptions(cfg))

	// ルータ生成
	r := router.NewRouter(healthH, recognitionH, cacheH)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// 認識のタイムアウトに加えてアップロードとレスポンスの余裕を持たせる
		WriteTimeout: cfg.RequestTimeout + cfg.AdmissionWait + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}
