package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes the external tools. The exit code is the sole
// success/failure signal.
type Runner interface {
	// Run invokes ffmpeg with the given arguments.
	Run(ctx context.Context, args []string) error
	// Probe invokes ffprobe and returns its stdout.
	Probe(ctx context.Context, args []string) ([]byte, error)
}

// ExecRunner runs ffmpeg/ffprobe as blocking child processes.
type ExecRunner struct {
	FFmpeg   string // binary name or path, default "ffmpeg"
	FFprobe  string // default "ffprobe"
	LogLevel string // ffmpeg -loglevel value, default "fatal"
	Logger   *slog.Logger
}

// NewExecRunner creates an ExecRunner with defaults applied.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{
		FFmpeg:   "ffmpeg",
		FFprobe:  "ffprobe",
		LogLevel: "fatal",
		Logger:   logger,
	}
}

// Run invokes ffmpeg. Tool stderr is captured and included in the error so
// operators see the encoder's own diagnostics on failure.
func (r *ExecRunner) Run(ctx context.Context, args []string) error {
	full := append([]string{"-loglevel", r.LogLevel}, args...)
	r.Logger.Debug("running ffmpeg", "args", strings.Join(full, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.FFmpeg, full...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Probe invokes ffprobe and returns its stdout.
func (r *ExecRunner) Probe(ctx context.Context, args []string) ([]byte, error) {
	r.Logger.Debug("running ffprobe", "args", strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.FFprobe, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
