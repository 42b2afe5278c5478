package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrInvalidDuration is returned when ffprobe reports a duration that is not a finite positive number.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrInvalidOffset is returned when a negative seek offset is requested.
	ErrInvalidOffset = errors.New("invalid offset: must not be negative")
	// ErrNoFrame is returned when ffmpeg exits cleanly but writes no image,
	// which is what happens when seeking past the last frame.
	ErrNoFrame = errors.New("ffmpeg produced no frame")
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg and ffprobe CLIs.
// It keeps no per-call state, so concurrent calls with distinct output
// paths do not interfere with each other.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	// timeout bounds every single invocation. Zero means no bound.
	timeout time.Duration
}

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithFFprobePath overrides the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithTimeout bounds each ffmpeg/ffprobe invocation.
func WithTimeout(d time.Duration) Option {
	return func(p *FFmpegProcessor) {
		p.timeout = d
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetMediaDuration returns the duration in seconds of a media file.
// It uses ffprobe to extract the container duration metadata.
func (p *FFmpegProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}

	return parseDuration(stdout.String())
}

// parseDuration parses the single value printed by ffprobe.
func parseDuration(out string) (float64, error) {
	raw := strings.TrimSpace(out)
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0, fmt.Errorf("%w: got %q", ErrInvalidDuration, raw)
	}
	return duration, nil
}

// ExtractFrame writes the frame nearest to offsetSec into dst.
// Input seeking (-ss before -i) keeps extraction fast on long videos.
func (p *FFmpegProcessor) ExtractFrame(ctx context.Context, src string, offsetSec int, dst string) error {
	if offsetSec < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidOffset, offsetSec)
	}

	args := []string{
		"-y",                           // Overwrite output file without asking
		"-ss", strconv.Itoa(offsetSec), // Seek before decoding
		"-i", src, // Input file
		"-frames:v", "1", // Output single frame (image)
		"-q:v", "2", // JPEG quality
		dst, // Output file
	}

	if err := p.runFFmpeg(ctx, args); err != nil {
		return err
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w at %ds", ErrNoFrame, offsetSec)
	}
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

func (p *FFmpegProcessor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Short returns the last non-empty stderr line, which is usually the one
// worth showing to a person.
func (e *FFmpegError) Short() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return e.Err.Error()
}
