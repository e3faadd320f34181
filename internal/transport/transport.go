// Package transport fetches manifests, artifacts and their files from a file share or web server.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/types"
)

const (
	DefaultTimeout    = 60 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
	// DefaultMaxBytes bounds in-memory downloads.
	DefaultMaxBytes = 1 << 30
)

var (
	// ErrTargetExists is returned when overwrite is false and the target already exists.
	ErrTargetExists = errors.New("target file already exists")
	// ErrCredentialsRequired is returned for a web host that requires authentication
	// when no credentials are configured.
	ErrCredentialsRequired = errors.New("file host requires authentication but no credentials are configured")
)

// Downloader copies remote files. The file-share and HTTP variants share this contract.
type Downloader interface {
	// Download writes source to target, creating parent directories as needed.
	Download(ctx context.Context, source, target string, overwrite bool) error
	// DownloadBytes returns the content of source.
	DownloadBytes(ctx context.Context, source string) ([]byte, error)
}

// Options configures the HTTP downloader.
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	MaxBytes   int64
	Username   string
	Password   string
	Token      string
	UserAgent  string
}

// DefaultOptions returns the defaults used when the agent config leaves http.* unset.
func DefaultOptions() Options {
	return Options{
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
		MaxBytes:   DefaultMaxBytes,
		UserAgent:  "autodeploy",
	}
}

// HasCredentials reports whether basic auth or a bearer token is configured.
func (o Options) HasCredentials() bool {
	return o.Token != "" || o.Username != ""
}

// ForHost returns the downloader for a file host.
func ForHost(host manifest.FileHost, opts Options) (Downloader, error) {
	switch host.HostType {
	case types.FileHostFileServer:
		return NewFileShareDownloader(), nil
	case types.FileHostWebServer:
		if host.RequiresAuthentication && !opts.HasCredentials() {
			return nil, ErrCredentialsRequired
		}
		return NewHTTPDownloader(opts), nil
	default:
		return nil, fmt.Errorf("unsupported file host type '%s'", host.HostType)
	}
}

// DownloadAsync runs Download in a goroutine. The channel receives exactly one value.
func DownloadAsync(ctx context.Context, d Downloader, source, target string, overwrite bool) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- d.Download(ctx, source, target, overwrite)
	}()
	return done
}

func checkOverwrite(target string, overwrite bool) error {
	if overwrite {
		return nil
	}
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%s: %w", target, ErrTargetExists)
	}
	return nil
}

// writeStream copies r into a temp file next to target and renames it into place, so a
// failed transfer never leaves a partial file at target.
func writeStream(target string, r io.Reader) (int64, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory %q: %w", dir, err)
	}

	out, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create destination file in %q: %w", dir, err)
	}
	tmpName := out.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Warnf("error removing partial download %q: %v", tmpName, err)
		}
	}()

	n, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("failed to write %q: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close %q: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return n, fmt.Errorf("failed to set permissions on %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return n, fmt.Errorf("failed to move download into %q: %w", target, err)
	}
	committed = true
	return n, nil
}

// WriteFile writes content to target through the same temp-and-rename path as a download.
func WriteFile(target string, content []byte, overwrite bool) error {
	if err := checkOverwrite(target, overwrite); err != nil {
		return err
	}
	_, err := writeStream(target, bytesReader(content))
	return err
}
