package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_Sweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	stale := filepath.Join(dir, "stale.mp4")
	fresh := filepath.Join(dir, "fresh.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0600))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0600))
	require.NoError(t, os.Chtimes(stale, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0750))

	s := NewSweeper(dir, time.Minute, time.Hour, discardLogger())
	s.now = func() time.Time { return now }

	assert.Equal(t, 1, s.Sweep())
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "subdir"))

	assert.Equal(t, 0, s.Sweep())
}

func TestSweeper_MissingDirectory(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "gone"), time.Minute, time.Hour, discardLogger())
	assert.Equal(t, 0, s.Sweep())
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	s := NewSweeper(t.TempDir(), 10*time.Millisecond, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	s := NewSweeper(t.TempDir(), 0, time.Hour, discardLogger())

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}

// fakePending holds a fixed set of paths and records expiry cutoffs.
type fakePending struct {
	held    map[string]bool
	cutoffs []time.Time
}

func (f *fakePending) ExpireBefore(_ context.Context, cutoff time.Time) int {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 0
}

func (f *fakePending) Holds(path string) bool {
	return f.held[path]
}

func TestSweeper_KeepsPendingUploads(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	pendingPath := filepath.Join(dir, "pending.mp4")
	orphan := filepath.Join(dir, "orphan.mp4")
	for _, p := range []string{pendingPath, orphan} {
		require.NoError(t, os.WriteFile(p, []byte("video"), 0600))
		require.NoError(t, os.Chtimes(p, old, old))
	}

	pending := &fakePending{held: map[string]bool{pendingPath: true}}
	s := NewSweeper(dir, time.Minute, time.Hour, discardLogger())
	s.now = func() time.Time { return now }
	s.SetPending(pending)

	assert.Equal(t, 1, s.Sweep())
	assert.FileExists(t, pendingPath)
	assert.NoFileExists(t, orphan)
	require.Len(t, pending.cutoffs, 1)
	assert.Equal(t, now.Add(-time.Hour), pending.cutoffs[0])
}
