package desktop

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// FileDownloader saves exported transcripts into a directory.
type FileDownloader struct {
	fs  afero.Fs
	dir string
}

// NewFileDownloader writes into dir on fs. A nil fs means the host filesystem.
func NewFileDownloader(fs afero.Fs, dir string) *FileDownloader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		dir = "."
	}
	return &FileDownloader{fs: fs, dir: dir}
}

// Path returns where filename ends up.
func (d *FileDownloader) Path(filename string) string {
	return filepath.Join(d.dir, filepath.Base(filename))
}

// Save implements chat.Downloader. An existing file is overwritten.
func (d *FileDownloader) Save(ctx context.Context, filename string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.fs.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create export dir %s", d.dir)
	}

	path := d.Path(filename)
	if err := afero.WriteFile(d.fs, path, payload, os.FileMode(0o644)); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	log.Debug().Str("path", path).Int("bytes", len(payload)).Msg("transcript written")
	return nil
}
