// Package session tracks each user's single pending upload between the
// moment the video is downloaded and the moment a screenshot count is picked.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FileRemover deletes files that a session owned. Removing a file that no
// longer exists must not be an error.
type FileRemover interface {
	CleanupTemp(ctx context.Context, paths []string) error
}

// Store maps a user to the path of their pending upload. All operations are
// serialised by one mutex; file deletion happens outside of it.
type Store struct {
	mu      sync.Mutex
	pending map[int64]pendingUpload
	remover FileRemover
	logger  *slog.Logger
	now     func() time.Time
}

type pendingUpload struct {
	path     string
	storedAt time.Time
}

// NewStore creates an empty Store. Files of superseded or cancelled
// sessions are deleted through remover.
func NewStore(remover FileRemover, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pending: make(map[int64]pendingUpload),
		remover: remover,
		logger:  logger,
		now:     time.Now,
	}
}

// Put records path as the user's pending upload, replacing any previous
// one. The replaced file is deleted. It reports whether a session was replaced.
func (s *Store) Put(ctx context.Context, userID int64, path string) bool {
	s.mu.Lock()
	previous, replaced := s.pending[userID]
	s.pending[userID] = pendingUpload{path: path, storedAt: s.now()}
	s.mu.Unlock()

	if replaced && previous.path != path {
		s.logger.Info("pending upload superseded",
			slog.Int64("user_id", userID),
			slog.String("path", previous.path),
		)
		_ = s.remove(ctx, userID, previous.path)
	}
	return replaced
}

// Take atomically removes and returns the user's pending upload. Of any
// number of concurrent callers for the same session, exactly one gets ok=true.
// The caller owns the returned file from then on.
func (s *Store) Take(userID int64) (path string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	upload, ok := s.pending[userID]
	if ok {
		delete(s.pending, userID)
	}
	return upload.path, ok
}

// Cancel drops the user's pending upload and deletes its file. It reports
// false when there was nothing to cancel.
func (s *Store) Cancel(ctx context.Context, userID int64) (bool, error) {
	path, ok := s.Take(userID)
	if !ok {
		return false, nil
	}
	return true, s.remove(ctx, userID, path)
}

// Len returns the number of pending uploads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Drain removes every pending upload and deletes their files. It is meant
// for shutdown and returns how many sessions were dropped.
func (s *Store) Drain(ctx context.Context) int {
	s.mu.Lock()
	paths := make([]string, 0, len(s.pending))
	for userID, upload := range s.pending {
		paths = append(paths, upload.path)
		delete(s.pending, userID)
	}
	s.mu.Unlock()

	if len(paths) > 0 {
		if err := s.remover.CleanupTemp(context.WithoutCancel(ctx), paths); err != nil {
			s.logger.Warn("drain pending uploads", slog.String("error", err.Error()))
		}
	}
	return len(paths)
}

// ExpireBefore drops every pending upload stored before cutoff and deletes
// its file. The user then gets the same answer as for a missing upload.
func (s *Store) ExpireBefore(ctx context.Context, cutoff time.Time) int {
	s.mu.Lock()
	var paths []string
	for userID, upload := range s.pending {
		if upload.storedAt.Before(cutoff) {
			paths = append(paths, upload.path)
			delete(s.pending, userID)
		}
	}
	s.mu.Unlock()

	if len(paths) > 0 {
		s.logger.Info("pending uploads expired", slog.Int("count", len(paths)))
		if err := s.remover.CleanupTemp(context.WithoutCancel(ctx), paths); err != nil {
			s.logger.Warn("delete expired uploads", slog.String("error", err.Error()))
		}
	}
	return len(paths)
}

// Holds reports whether path belongs to a pending upload.
func (s *Store) Holds(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, upload := range s.pending {
		if upload.path == path {
			return true
		}
	}
	return false
}

func (s *Store) remove(ctx context.Context, userID int64, path string) error {
	err := s.remover.CleanupTemp(context.WithoutCancel(ctx), []string{path})
	if err != nil {
		s.logger.Warn("delete pending upload",
			slog.Int64("user_id", userID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return err
}
