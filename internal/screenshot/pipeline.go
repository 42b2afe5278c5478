// Package screenshot turns one uploaded video into a set of evenly spaced
// still frames and hands them to a delivery channel.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maauso/screenshot-bot/internal/media"
)

// MaxCount is the largest number of screenshots a single request may ask for.
const MaxCount = 20

// ErrInvalidRequest is returned when a Request fails validation.
var ErrInvalidRequest = errors.New("invalid screenshot request")

// Outcome is the terminal state of a pipeline run.
type Outcome int

const (
	// OutcomeDelivered means at least one screenshot was produced and handed to delivery.
	OutcomeDelivered Outcome = iota
	// OutcomeNoDuration means the video duration could not be determined.
	OutcomeNoDuration
	// OutcomeNoScreenshots means every extraction failed.
	OutcomeNoScreenshots
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeNoDuration:
		return "no_duration"
	case OutcomeNoScreenshots:
		return "no_screenshots"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Request describes one screenshot job. The pipeline takes ownership of
// SourcePath and deletes it before Run returns.
type Request struct {
	UserID     int64
	SourcePath string `validate:"required"`
	Count      int    `validate:"min=1,max=20"`
}

// Screenshot is one successfully extracted frame.
type Screenshot struct {
	// Index is the 1-based position of the frame in the request.
	Index int
	// Offset is the timestamp of the frame in whole seconds.
	Offset int
	// Path is the temporary image file. It is removed when Run returns.
	Path string
	// Caption is set on the first screenshot only.
	Caption string
}

// Result summarises a pipeline run.
type Result struct {
	Outcome   Outcome
	Duration  float64
	Offsets   []int
	Succeeded int
	Failed    int
}

// Delivery receives the user-visible results of a run. Every method is
// called at most once per run except FrameFailed, which is called once per
// failed offset in offset order.
type Delivery interface {
	DurationUnavailable(ctx context.Context) error
	FrameFailed(ctx context.Context, offset int, err error) error
	NoScreenshots(ctx context.Context) error
	SendScreenshots(ctx context.Context, shots []Screenshot) error
}

// FileRemover deletes temporary files. Missing files are not an error.
type FileRemover interface {
	CleanupTemp(ctx context.Context, paths []string) error
}

// Archiver keeps a copy of delivered screenshots.
type Archiver interface {
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)
	UploadToS3(ctx context.Context, key string, data io.Reader) (string, error)
}

// Pipeline runs duration probing, frame extraction, delivery and cleanup.
type Pipeline struct {
	processor media.Processor
	remover   FileRemover
	archiver  Archiver
	tempDir   string
	logger    *slog.Logger
	validate  *validator.Validate

	// maxConcurrentFrames limits parallel ffmpeg invocations.
	maxConcurrentFrames int
	// newName returns the unique part of a temp image name.
	newName func() string
}

// NewPipeline creates a Pipeline that writes temp images into tempDir.
func NewPipeline(processor media.Processor, remover FileRemover, tempDir string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		processor:           processor,
		remover:             remover,
		tempDir:             tempDir,
		logger:              logger,
		validate:            validator.New(),
		maxConcurrentFrames: 1,
		newName:             uuid.NewString,
	}
}

// SetMaxConcurrentFrames configures how many frames may be extracted in parallel.
func (p *Pipeline) SetMaxConcurrentFrames(n int) {
	if n > 0 {
		p.maxConcurrentFrames = n
	}
}

// SetArchiver enables archiving of delivered screenshots. A nil archiver disables it.
func (p *Pipeline) SetArchiver(a Archiver) {
	p.archiver = a
}

// Offsets returns n timestamps, in whole seconds, spread evenly strictly
// inside a video of the given duration: floor(duration*i/(n+1)) for i in 1..n.
func Offsets(duration float64, n int) []int {
	if n <= 0 || duration <= 0 {
		return nil
	}
	offsets := make([]int, n)
	for i := 1; i <= n; i++ {
		offsets[i-1] = int(math.Floor(duration * float64(i) / float64(n+1)))
	}
	return offsets
}

// Caption formats the label shown under the first screenshot.
func Caption(offset int) string {
	return fmt.Sprintf("🕒 %ds", offset)
}

type frame struct {
	offset int
	path   string
	err    error
}

// Run executes one request. The source file and every temp image are
// deleted before Run returns, whatever the outcome. The returned error is
// non-nil when the request is invalid or the final delivery call failed.
func (p *Pipeline) Run(ctx context.Context, req Request, delivery Delivery) (Result, error) {
	var temps []string
	defer func() {
		p.cleanup(ctx, req, append([]string{req.SourcePath}, temps...))
	}()

	if err := p.validate.Struct(req); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	logger := p.logger.With(
		slog.Int64("user_id", req.UserID),
		slog.Int("count", req.Count),
	)

	duration, err := p.processor.GetMediaDuration(ctx, req.SourcePath)
	if err != nil || duration <= 0 {
		logger.Warn("video duration unavailable",
			slog.Float64("duration", duration),
			slog.Any("error", err),
		)
		res := Result{Outcome: OutcomeNoDuration}
		if err := delivery.DurationUnavailable(ctx); err != nil {
			return res, fmt.Errorf("deliver duration failure: %w", err)
		}
		return res, nil
	}

	offsets := Offsets(duration, req.Count)
	frames := make([]frame, len(offsets))
	for i, offset := range offsets {
		path := filepath.Join(p.tempDir, fmt.Sprintf("screenshot_%d_%d_%s.jpg", req.UserID, i+1, p.newName()))
		frames[i] = frame{offset: offset, path: path}
		temps = append(temps, path)
	}

	p.extractAll(ctx, req.SourcePath, frames)

	res := Result{Outcome: OutcomeDelivered, Duration: duration, Offsets: offsets}
	shots := make([]Screenshot, 0, len(frames))
	for i, f := range frames {
		if f.err != nil {
			res.Failed++
			logger.Warn("frame extraction failed",
				slog.Int("offset", f.offset),
				slog.String("error", f.err.Error()),
			)
			if err := delivery.FrameFailed(ctx, f.offset, f.err); err != nil {
				logger.Warn("report frame failure", slog.String("error", err.Error()))
			}
			continue
		}
		shot := Screenshot{Index: i + 1, Offset: f.offset, Path: f.path}
		if len(shots) == 0 {
			shot.Caption = Caption(f.offset)
		}
		shots = append(shots, shot)
	}
	res.Succeeded = len(shots)

	if len(shots) == 0 {
		res.Outcome = OutcomeNoScreenshots
		logger.Warn("no screenshots generated", slog.Float64("duration", duration))
		if err := delivery.NoScreenshots(ctx); err != nil {
			return res, fmt.Errorf("deliver empty result: %w", err)
		}
		return res, nil
	}

	if err := delivery.SendScreenshots(ctx, shots); err != nil {
		logger.Error("screenshot delivery failed",
			slog.Int("succeeded", res.Succeeded),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("deliver screenshots: %w", err)
	}

	logger.Info("screenshots delivered",
		slog.Float64("duration", duration),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
	)
	p.archive(ctx, req.UserID, shots)
	return res, nil
}

// extractAll fills in the err field of every frame. Results stay at their
// index so the caller sees them in offset order.
func (p *Pipeline) extractAll(ctx context.Context, src string, frames []frame) {
	workers := min(p.maxConcurrentFrames, len(frames))
	if workers <= 1 {
		for i := range frames {
			frames[i].err = p.processor.ExtractFrame(ctx, src, frames[i].offset, frames[i].path)
		}
		return
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range frames {
		wg.Add(1)
		sem <- struct{}{}
		go func(f *frame) {
			defer wg.Done()
			defer func() { <-sem }()
			f.err = p.processor.ExtractFrame(ctx, src, f.offset, f.path)
		}(&frames[i])
	}
	wg.Wait()
}

func (p *Pipeline) archive(ctx context.Context, userID int64, shots []Screenshot) {
	if p.archiver == nil {
		return
	}
	for _, shot := range shots {
		key := fmt.Sprintf("screenshots/%d/%s", userID, filepath.Base(shot.Path))
		if err := p.archiveOne(ctx, key, shot.Path); err != nil {
			p.logger.Warn("archive screenshot",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pipeline) archiveOne(ctx context.Context, key, path string) error {
	r, err := p.archiver.LoadTemp(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()
	_, err = p.archiver.UploadToS3(ctx, key, r)
	return err
}

func (p *Pipeline) cleanup(ctx context.Context, req Request, paths []string) {
	if req.SourcePath == "" {
		paths = paths[1:]
	}
	if len(paths) == 0 {
		return
	}
	if err := p.remover.CleanupTemp(context.WithoutCancel(ctx), paths); err != nil {
		p.logger.Warn("cleanup screenshot files",
			slog.Int64("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
	}
}
