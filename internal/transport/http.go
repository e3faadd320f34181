package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// StatusError is an unexpected HTTP response status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d for %s", e.StatusCode, e.URL)
}

// retryable reports whether a retry may succeed.
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// HTTPDownloader fetches files from a web server, retrying transient failures with
// exponential backoff.
type HTTPDownloader struct {
	client *http.Client
	opts   Options
}

// NewHTTPDownloader creates an HTTP downloader. Zero option values fall back to the defaults.
func NewHTTPDownloader(opts Options) *HTTPDownloader {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaults.MaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	return &HTTPDownloader{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Download streams url to target.
func (d *HTTPDownloader) Download(ctx context.Context, url, target string, overwrite bool) error {
	if err := checkOverwrite(target, overwrite); err != nil {
		return err
	}
	log.Debugf("starting download from %s", url)

	err := d.retry(ctx, url, func(body io.Reader) error {
		_, err := writeStream(target, body)
		return err
	})
	if err != nil {
		return err
	}
	log.Debugf("successfully downloaded %s to %s", url, target)
	return nil
}

// DownloadBytes reads url into memory, up to Options.MaxBytes.
func (d *HTTPDownloader) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := d.retry(ctx, url, func(body io.Reader) error {
		b, err := io.ReadAll(io.LimitReader(body, d.opts.MaxBytes+1))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if int64(len(b)) > d.opts.MaxBytes {
			return backoff.Permanent(fmt.Errorf("response from %s exceeds %d bytes", url, d.opts.MaxBytes))
		}
		data = b
		return nil
	})
	return data, err
}

func (d *HTTPDownloader) retry(ctx context.Context, url string, consume func(io.Reader) error) error {
	expBackOff := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     d.opts.RetryDelay,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, uint64(d.opts.Retries)), ctx)

	operation := func() error {
		return d.fetchOnce(ctx, url, consume)
	}
	notify := func(err error, next time.Duration) {
		log.Warnf("download of %s failed, retrying after %v: %v", url, next, err)
	}
	return backoff.RetryNotify(operation, expBackOff, notify)
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, url string, consume func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	switch {
	case d.opts.Token != "":
		req.Header.Set("Authorization", "Bearer "+d.opts.Token)
	case d.opts.Username != "":
		req.SetBasicAuth(d.opts.Username, d.opts.Password)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if statusErr.retryable() {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}
	return consume(resp.Body)
}
