// Package results keeps finalized session stats.
package results

import (
	"context"
	"errors"

	"github.com/kiliankoe/playtutor/internal/game"
)

type Recorder interface {
	Record(ctx context.Context, r game.Result) error
}

// FileRecorder appends readable summaries to a text file.
type FileRecorder struct {
	Path string
}

func (f FileRecorder) Record(ctx context.Context, r game.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return game.ExportResult(r, f.Path)
}

// Multi records to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, r game.Result) error {
	var errs []error
	for _, rec := range m {
		if err := rec.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
