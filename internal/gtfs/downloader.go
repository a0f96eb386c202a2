package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const userAgent = "subwaywatch/1.0"

// Downloader fetches the static GTFS archive with conditional requests.
type Downloader struct {
	client     *http.Client
	url        string
	dir        string // where downloaded archives are written
	maxElapsed time.Duration
	logger     *slog.Logger
}

// NewDownloader creates a Downloader for the given GTFS URL.
func NewDownloader(url, dir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		client:     &http.Client{Timeout: 5 * time.Minute},
		url:        url,
		dir:        dir,
		maxElapsed: 2 * time.Minute,
		logger:     logger,
	}
}

// CheckResult holds the result of a conditional check.
type CheckResult struct {
	NeedsUpdate  bool
	LastModified string
	ETag         string
}

// Check sends a HEAD request with If-Modified-Since / If-None-Match.
func (d *Downloader) Check(ctx context.Context, lastModified, etag string) (*CheckResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		d.logger.Info("static GTFS not modified")
		return &CheckResult{NeedsUpdate: false}, nil
	}

	return &CheckResult{
		NeedsUpdate:  true,
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}, nil
}

// Download fetches the archive into a temp file under the download dir,
// retrying transient failures with exponential backoff.
func (d *Downloader) Download(ctx context.Context) (path string, lastModified string, etag string, err error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", "", "", fmt.Errorf("create dir: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = d.maxElapsed

	notify := func(err error, wait time.Duration) {
		d.logger.Warn("static GTFS download failed, retrying", "error", err, "wait", wait)
	}
	hdr, err := backoff.RetryNotifyWithData(func() (http.Header, error) {
		return d.fetch(ctx, &path)
	}, backoff.WithContext(b, ctx), notify)
	if err != nil {
		return "", "", "", err
	}
	return path, hdr.Get("Last-Modified"), hdr.Get("ETag"), nil
}

// fetch performs a single GET. Client errors are not retried.
func (d *Downloader) fetch(ctx context.Context, path *string) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	d.logger.Info("downloading static GTFS", "url", d.url)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	tmpFile, err := os.CreateTemp(d.dir, "gtfs-*.zip")
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create temp file: %w", err))
	}
	defer tmpFile.Close()

	written, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("write file: %w", err)
	}

	*path = tmpFile.Name()
	d.logger.Info("static GTFS downloaded",
		"path", filepath.Base(*path),
		"size_mb", fmt.Sprintf("%.1f", float64(written)/(1024*1024)),
	)
	return resp.Header, nil
}
