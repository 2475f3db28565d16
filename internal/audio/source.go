// Package audio loads the soundtrack of a conversion and reports its duration.
package audio

import (
	"context"
	"errors"
)

// Static errors for audio probing.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoDuration is returned when no duration could be read from the file.
	ErrNoDuration = errors.New("could not determine audio duration")
	// ErrInvalidDuration is returned when the reported duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
)

// Source is an audio file together with its duration in seconds.
type Source struct {
	Path     string
	Duration float64
}

// Prober inspects an audio file.
type Prober interface {
	// Probe returns the Source for path. It fails if the file cannot be
	// decoded or reports a non-positive duration.
	Probe(ctx context.Context, path string) (Source, error)
}
