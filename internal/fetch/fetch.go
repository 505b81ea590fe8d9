// Package fetch downloads binary assets with byte-range resume.
//
// Downloads stream into a ".part" sibling of the destination and are
// renamed into place only once complete, so the destination path is always
// either absent or a finished artifact. A leftover ".part" file is the only
// crash-recovery state; a later fetch resumes from its current size.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/vmunix/odgo/internal/ffmpeg"
)

// ErrTransfer indicates a transport-level download failure. It is fatal to
// the current loan; retry policy lives in the HTTP client's transport, not
// here.
var ErrTransfer = errors.New("fetch: transfer failed")

// Result reports what a fetch did.
type Result int

const (
	// Created means the destination was downloaded by this call.
	Created Result = iota
	// AlreadyExists means the destination was already present and was left
	// untouched. Re-fetching license-gated assets can spend limited
	// fulfillment quota, so an existing file is never re-validated.
	AlreadyExists
)

// Task describes one binary fetch.
type Task struct {
	URL          string
	Dest         string
	ExpectedSize int64       // 0 means unknown
	Headers      http.Header // extra request headers
	RemuxAudio   bool        // normalize encoder artifacts after download
}

// ProgressFunc receives transfer progress. total is 0 when unknown.
type ProgressFunc func(done, total int64)

// Fetcher downloads assets sequentially.
type Fetcher struct {
	client   *http.Client
	runner   ffmpeg.Runner // required only for RemuxAudio tasks
	progress ProgressFunc  // nil disables reporting
	logger   *slog.Logger
}

// New creates a Fetcher.
func New(client *http.Client, runner ffmpeg.Runner, progress ProgressFunc, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, runner: runner, progress: progress, logger: logger}
}

// Fetch downloads task.URL to task.Dest, resuming a partial transfer when a
// ".part" file is present.
func (f *Fetcher) Fetch(ctx context.Context, task Task) (Result, error) {
	if _, err := os.Stat(task.Dest); err == nil {
		f.logger.Info("already saved", "path", task.Dest)
		return AlreadyExists, nil
	}

	partPath := task.Dest + ".part"
	var offset int64
	if info, err := os.Stat(partPath); err == nil {
		offset = info.Size()
	}

	offset, err := f.download(ctx, task, partPath, offset)
	if err != nil {
		return 0, err
	}

	if task.ExpectedSize > 0 && offset != task.ExpectedSize {
		return 0, fmt.Errorf("%w: %s: got %d bytes, expected %d",
			ErrTransfer, task.URL, offset, task.ExpectedSize)
	}

	if task.RemuxAudio && f.runner != nil {
		f.remux(ctx, partPath, task.Dest)
		return Created, nil
	}

	if err := os.Rename(partPath, task.Dest); err != nil {
		return 0, fmt.Errorf("fetch: finalize %s: %w", task.Dest, err)
	}
	return Created, nil
}

// download streams the response body into partPath and returns the file's
// resulting size.
func (f *Fetcher) download(ctx context.Context, task Task, partPath string, offset int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch: build request for %s: %w", task.URL, err)
	}
	for k, vs := range task.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrTransfer, task.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case offset > 0 && resp.StatusCode == http.StatusOK:
		// server ignored the range request; start over
		offset = 0
	case offset > 0 && resp.StatusCode != http.StatusPartialContent:
		return 0, fmt.Errorf("%w: %s: resume got HTTP %d", ErrTransfer, task.URL, resp.StatusCode)
	case offset == 0 && resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: %s: HTTP %d", ErrTransfer, task.URL, resp.StatusCode)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if offset == 0 {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	out, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("fetch: open %s: %w", partPath, err)
	}

	written, copyErr := io.Copy(out, f.progressReader(resp.Body, offset, task.ExpectedSize))
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		// keep the partial file for a future resume
		return 0, fmt.Errorf("%w: %s: %v", ErrTransfer, task.URL, copyErr)
	}
	return offset + written, nil
}

// remux runs a copy-codec remux from partPath into dest. A failed remux
// falls back to a plain rename rather than discarding the download.
func (f *Fetcher) remux(ctx context.Context, partPath, dest string) {
	if err := f.runner.Run(ctx, ffmpeg.RemuxCopyArgs(partPath, dest)); err != nil {
		f.logger.Warn("remux failed, keeping original download", "path", dest, "error", err)
		if err := os.Rename(partPath, dest); err != nil {
			f.logger.Warn("rename after failed remux", "path", dest, "error", err)
		}
		return
	}
	if err := os.Remove(partPath); err != nil {
		f.logger.Warn("remove temp after remux", "path", partPath, "error", err)
	}
}

// progressReader wraps body so progress callbacks fire as bytes arrive.
func (f *Fetcher) progressReader(body io.Reader, initial, total int64) io.Reader {
	if f.progress == nil {
		return body
	}
	return &progressReader{r: body, done: initial, total: total, fn: f.progress}
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}
	return n, err
}
