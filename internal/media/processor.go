// Package media wraps the ffmpeg and ffprobe command line tools used to
// inspect videos and pull still frames out of them.
package media

import "context"

// DurationProber reports the playable duration of a media file.
type DurationProber interface {
	// GetMediaDuration returns the duration of the file at path in seconds.
	// Any failure (missing streams, corrupt container, non-zero exit,
	// unparsable output) is returned as an error.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}

// FrameExtractor pulls single still frames out of a video.
type FrameExtractor interface {
	// ExtractFrame writes exactly one image taken at offsetSec of src to dst,
	// overwriting dst if it already exists. An offset at or past the end of
	// the video is reported as an error.
	ExtractFrame(ctx context.Context, src string, offsetSec int, dst string) error
}

// Processor is the full set of operations backed by ffmpeg.
type Processor interface {
	DurationProber
	FrameExtractor
}
