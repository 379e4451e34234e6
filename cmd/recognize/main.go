// Command recognize はコマンドライン引数で渡した画像ファイルに対して認識パイプラインを実行し、
// 1ファイルにつき1行のJSONを標準出力へ書き出します。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"lpr_backend/internal/app/di"
	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/platform/config"
)

type line struct {
	File   string                    `json:"file"`
	Result *entity.RecognitionResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall time limit for the batch")
	debug := flag.Bool("debug", false, "write crops to DEBUG_DIR")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: recognize [-timeout 5m] [-debug] image...")
		return 2
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rec, err := di.NewRecognition(ctx, cfg, nil)
	if err != nil {
		slog.Error("failed to build recognition pipeline", "error", err)
		return 1
	}
	defer func() {
		if err := rec.Close(); err != nil {
			slog.Error("failed to release recognition pipeline", "error", err)
		}
	}()

	opts := di.DefaultOptions(cfg)
	opts.Debug = opts.Debug || *debug

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, path := range flag.Args() {
		out := line{File: path}
		data, err := os.ReadFile(path)
		if err == nil {
			out.Result, err = rec.Pipeline.Process(ctx, data, opts)
		}
		if err != nil {
			failed++
			out.Error = err.Error()
		}
		if err := enc.Encode(out); err != nil {
			slog.Error("failed to write result", "file", path, "error", err)
		}
	}

	slog.Info("recognize finished", "files", flag.NArg(), "failed", failed)
	if failed > 0 {
		return 1
	}
	return 0
}
