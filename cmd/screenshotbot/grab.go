package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/screenshot-bot/internal/bootstrap"
	"github.com/maauso/screenshot-bot/internal/config"
	"github.com/maauso/screenshot-bot/internal/screenshot"
	"github.com/maauso/screenshot-bot/internal/storage"
)

type grabOptions struct {
	count       int
	outDir      string
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	concurrency int
	verbose     bool
}

func newGrabCmd() *cobra.Command {
	opts := grabOptions{}

	cmd := &cobra.Command{
		Use:   "grab <video>",
		Short: "Extract screenshots from a local video without Telegram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return grab(ctx, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 5, "number of screenshots (1-20)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "directory to write screenshots into")
	cmd.Flags().StringVar(&opts.ffmpegPath, "ffmpeg", "ffmpeg", "path to the ffmpeg binary")
	cmd.Flags().StringVar(&opts.ffprobePath, "ffprobe", "ffprobe", "path to the ffprobe binary")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "timeout for each ffmpeg invocation")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 1, "frames extracted in parallel")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline progress")

	return cmd
}

func grab(ctx context.Context, video string, opts grabOptions, out io.Writer) error {
	logLevel := "warn"
	if opts.verbose {
		logLevel = "debug"
	}
	cfg := &config.Config{
		FFmpegPath:          opts.ffmpegPath,
		FFprobePath:         opts.ffprobePath,
		FFmpegTimeout:       opts.timeout,
		MaxConcurrentFrames: opts.concurrency,
		LogLevel:            logLevel,
	}
	logger := cfg.NewLogger()

	if err := os.MkdirAll(opts.outDir, 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "screenshotbot-grab-")
	if err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()
	cfg.TempDir = tempDir

	store, err := storage.NewLocalStorage(tempDir)
	if err != nil {
		return fmt.Errorf("create local storage: %w", err)
	}

	// The pipeline deletes its source, so it works on a copy.
	src, err := os.Open(video) // #nosec G304 - path comes from the command line
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	sourcePath, err := store.SaveTemp(ctx, filepath.Base(video), src)
	_ = src.Close()
	if err != nil {
		return fmt.Errorf("copy video: %w", err)
	}

	pipeline := bootstrap.NewPipeline(cfg, store, logger)
	delivery := &dirDelivery{dir: opts.outDir, out: out}

	result, err := pipeline.Run(ctx, screenshot.Request{
		SourcePath: sourcePath,
		Count:      opts.count,
	}, delivery)
	if err != nil {
		return err
	}

	logger.Info("grab finished",
		slog.String("outcome", result.Outcome.String()),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	if result.Outcome != screenshot.OutcomeDelivered {
		return fmt.Errorf("no screenshots produced: %s", result.Outcome)
	}
	return nil
}

// dirDelivery copies screenshots into a directory and reports progress
// as plain text.
type dirDelivery struct {
	dir string
	out io.Writer
}

func (d *dirDelivery) DurationUnavailable(_ context.Context) error {
	_, err := fmt.Fprintln(d.out, "could not determine video duration")
	return err
}

func (d *dirDelivery) FrameFailed(_ context.Context, offset int, err error) error {
	_, werr := fmt.Fprintf(d.out, "failed to extract frame at %ds: %v\n", offset, err)
	return werr
}

func (d *dirDelivery) NoScreenshots(_ context.Context) error {
	_, err := fmt.Fprintln(d.out, "no screenshots could be generated")
	return err
}

func (d *dirDelivery) SendScreenshots(_ context.Context, shots []screenshot.Screenshot) error {
	for _, shot := range shots {
		name := fmt.Sprintf("screenshot_%02d_%ds.jpg", shot.Index, shot.Offset)
		dst := filepath.Join(d.dir, name)
		if err := copyFile(shot.Path, dst); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(d.out, "%s\t%s\n", dst, screenshot.Caption(shot.Offset)); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - path is produced by the pipeline
	if err != nil {
		return fmt.Errorf("open screenshot: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - path is built from the output flag
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}
