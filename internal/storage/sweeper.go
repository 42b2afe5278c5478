package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweeper periodically removes stale files from a temp directory. Pending
// uploads do not survive a restart, so anything left behind by a crash is
// only reachable this way.
type Sweeper struct {
	dir      string
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
	pending  PendingUploads
}

// PendingUploads are temp files still waiting for a user's answer. The
// sweeper expires them through their owner instead of deleting them
// underneath it.
type PendingUploads interface {
	ExpireBefore(ctx context.Context, cutoff time.Time) int
	Holds(path string) bool
}

// NewSweeper creates a Sweeper for dir. Files older than maxAge are removed
// every interval.
func NewSweeper(dir string, interval, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		dir:      dir,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}
}

// SetPending makes the sweeper expire stale uploads through p and leave
// the files p still holds alone.
func (s *Sweeper) SetPending(p PendingUploads) {
	s.pending = p
}

// Start runs the sweep loop until ctx is cancelled. It returns immediately
// when interval or maxAge is not positive.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 || s.maxAge <= 0 {
		s.logger.Info("temp sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("temp sweeper started",
		slog.String("dir", s.dir),
		slog.Duration("interval", s.interval),
		slog.Duration("max_age", s.maxAge),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("temp sweeper stopped", slog.String("dir", s.dir))
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes regular files in the directory whose modification time is
// older than maxAge and returns how many were deleted. Pending uploads
// stored before the cutoff are expired first.
func (s *Sweeper) Sweep() int {
	cutoff := s.now().Add(-s.maxAge)

	if s.pending != nil {
		s.pending.ExpireBefore(context.Background(), cutoff)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("read temp directory",
			slog.String("dir", s.dir),
			slog.String("error", err.Error()),
		)
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if s.pending != nil && s.pending.Holds(path) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove stale file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("removed stale temp files",
			slog.String("dir", s.dir),
			slog.Int("count", deleted),
		)
	}
	return deleted
}
