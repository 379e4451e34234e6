// Package debugdump はデバッグモードで切り出したクロップ画像をファイルに保存します。
package debugdump

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lpr_backend/internal/feature/recognition/domain/entity"
	"lpr_backend/internal/feature/recognition/usecase"
)

// DefaultDir はクロップの保存先ディレクトリです。
const DefaultDir = "debug_crops"

// Dumper はクロップをJPEGとして dir に書き出します。
type Dumper struct {
	dir string
	now func() time.Time
}

// DumperがCropDumperを実装していることをコンパイル時に検証します。
var _ usecase.CropDumper = (*Dumper)(nil)

// NewDumper はDumperを生成します。dir が空の場合はDefaultDirを使います。
func NewDumper(dir string) *Dumper {
	if dir == "" {
		dir = DefaultDir
	}
	return &Dumper{dir: dir, now: time.Now}
}

// FileName はクロップの保存ファイル名 plate_<yyyymmdd_hhmmss>_<index>_original.jpg を返します。
func FileName(t time.Time, index int) string {
	return fmt.Sprintf("plate_%s_%d_original.jpg", t.Format("20060102_150405"), index)
}

// Dump はクロップを保存します。1枚の失敗で残りの保存は止めません。
func (d *Dumper) Dump(ctx context.Context, requestID string, crops []*entity.CropRegion) error {
	if len(crops) == 0 {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create debug dir: %w", err)
	}

	ts := d.now()
	var errs []error
	for _, c := range crops {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(d.dir, FileName(ts, c.Index))
		if err := writeJPEG(path, c); err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Debug("saved debug crop", "request_id", requestID, "index", c.Index, "path", path)
	}
	return errors.Join(errs...)
}

func writeJPEG(path string, c *entity.CropRegion) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := jpeg.Encode(f, c.Pixels, &jpeg.Options{Quality: 95}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
