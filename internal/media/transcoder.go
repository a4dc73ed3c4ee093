// Package media adapts operator-supplied video to the transport's
// video-note constraints: at most 50 MB, at most 60 seconds, square
// aspect. Videos outside those bounds are capped and center-cropped.
package media

import (
	"context"
	"errors"
)

// Transport limits for video notes.
const (
	MaxVideoNoteBytes   = 50 << 20
	MaxVideoNoteSeconds = 60.0
	// aspectTolerancePx is the allowed width/height difference before a
	// crop is required.
	aspectTolerancePx = 10
)

// ErrMediaConstraint is returned when a video still violates the
// transport limits after transcoding.
var ErrMediaConstraint = errors.New("video exceeds transport constraints")

// Info describes a probed video file.
type Info struct {
	Duration float64
	Width    int
	Height   int
	Size     int64
}

// Transcoder probes and reshapes video files for video-note delivery.
type Transcoder interface {
	// Probe returns duration, dimensions and file size of the video.
	Probe(ctx context.Context, path string) (Info, error)
	// SquareVideoNote returns the path of a video that satisfies the
	// video-note constraints, transcoding into a new temp file when the
	// source needs capping or cropping. It returns ErrMediaConstraint if
	// the result still exceeds MaxVideoNoteBytes. When the source is
	// already compliant it is returned unchanged.
	SquareVideoNote(ctx context.Context, path string) (string, error)
}
