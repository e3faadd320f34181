package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
)

// FileShareDownloader copies files from a mounted share or local directory.
type FileShareDownloader struct{}

// NewFileShareDownloader creates a file-share downloader.
func NewFileShareDownloader() *FileShareDownloader {
	return &FileShareDownloader{}
}

// Download copies source to target.
func (d *FileShareDownloader) Download(ctx context.Context, source, target string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkOverwrite(target, overwrite); err != nil {
		return err
	}

	path := manifest.LocalPath(source)
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			log.Warnf("error closing file %q: %v", path, cerr)
		}
	}()

	n, err := writeStream(target, in)
	if err != nil {
		return err
	}
	log.Debugf("copied %d bytes from %s to %s", n, path, target)
	return nil
}

// DownloadBytes reads source into memory.
func (d *FileShareDownloader) DownloadBytes(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := manifest.LocalPath(source)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return content, nil
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
