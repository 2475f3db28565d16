// Package media composes a still image and an audio track into a video.
package media

import (
	"context"
	"math"

	"github.com/maauso/stillcast/internal/audio"
)

// Clip is a still-image video source with an attached soundtrack.
// Its duration is always the soundtrack's duration.
type Clip struct {
	ImagePath string
	Audio     audio.Source
}

// NewClip attaches src to the image at imagePath.
func NewClip(imagePath string, src audio.Source) Clip {
	return Clip{ImagePath: imagePath, Audio: src}
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	return c.Audio.Duration
}

// FrameCount returns how many frames the clip needs at fps.
func (c Clip) FrameCount(fps int) int {
	if fps <= 0 || c.Duration() <= 0 {
		return 0
	}
	return int(math.Ceil(c.Duration() * float64(fps)))
}

// EncodeResult describes a finished encode.
type EncodeResult struct {
	// Codec is the video codec that produced the file.
	Codec string
	// Frames is the number of video frames written.
	Frames int
}

// Encoder writes a Clip to a video file.
type Encoder interface {
	// Encode renders clip into output. The video track is the single still
	// frame and the audio track is the full soundtrack.
	Encode(ctx context.Context, clip Clip, output string) (EncodeResult, error)
}
