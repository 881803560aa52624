// Package sink makes finalized archives available to the user.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/common"
	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const (
	dirPerm    = 0o755
	filePerm   = 0o644
	partialExt = ".part"
)

// fsSink writes archives as <dir>/<name>.zip. The file appears only once it is complete.
type fsSink struct {
	fs  afero.Fs
	dir string
	log *slog.Logger
}

func NewFSSink(dir string, log *slog.Logger) *fsSink {
	return NewFSSinkWithFS(afero.NewOsFs(), dir, log)
}

func NewFSSinkWithFS(fs afero.Fs, dir string, log *slog.Logger) *fsSink {
	return &fsSink{
		fs:  fs,
		dir: dir,
		log: log.With(slog.String("item", "FSSink")),
	}
}

func (s *fsSink) Deliver(ctx context.Context, artifact *entity.ArchiveArtifact) (*entity.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDelivery, err)
	}

	if err := s.fs.MkdirAll(s.dir, dirPerm); err != nil {
		return nil, storageError("cannot create directory "+s.dir, err)
	}

	path := filepath.Join(s.dir, artifact.FileName())
	partial := path + partialExt

	if err := afero.WriteFile(s.fs, partial, artifact.Data, filePerm); err != nil {
		s.fs.Remove(partial)

		return nil, storageError("cannot write "+partial, err)
	}

	if err := s.fs.Rename(partial, path); err != nil {
		s.fs.Remove(partial)

		return nil, storageError("cannot move archive to "+path, err)
	}

	s.log.Info("Archive saved", slog.String("path", path), slog.Int("size", len(artifact.Data)))

	return &entity.Delivery{Location: path}, nil
}

func storageError(msg string, err error) error {
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%w: %w: %s: %w", common.ErrDelivery, common.ErrStorageFull, msg, err)
	case os.IsPermission(err), errors.Is(err, syscall.EROFS):
		return fmt.Errorf("%w: %w: %s: %w", common.ErrDelivery, common.ErrStorageUnwritable, msg, err)
	}

	return fmt.Errorf("%w: %s: %w", common.ErrDelivery, msg, err)
}
