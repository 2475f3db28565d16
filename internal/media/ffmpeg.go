package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// Static errors for media operations.
var (
	// ErrInvalidDuration is returned when duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrInvalidFrameRate is returned when the frame rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
	// ErrNoImage is returned when the clip has no image.
	ErrNoImage = errors.New("clip has no image")
)

// EncodeOptions is the fixed encoder configuration.
type EncodeOptions struct {
	// VideoCodec is the preferred encoder, typically a hardware one.
	VideoCodec string
	// FallbackVideoCodec is tried once if VideoCodec fails. Empty disables it.
	FallbackVideoCodec string
	// AudioCodec encodes the soundtrack.
	AudioCodec string
	// FrameRate is frames per second. The image never changes, so 1 keeps
	// the frame count and encode time minimal.
	FrameRate int
}

// DefaultEncodeOptions returns the hardware HEVC at 1 fps configuration.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		VideoCodec:         "hevc_nvenc",
		FallbackVideoCodec: "libx264",
		AudioCodec:         "aac",
		FrameRate:          1,
	}
}

// FFmpegProcessor implements Encoder using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	opts       EncodeOptions
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
// Zero-valued options are filled from DefaultEncodeOptions, except
// FallbackVideoCodec which stays empty when unset.
func NewFFmpegProcessor(ffmpegPath string, opts EncodeOptions) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	def := DefaultEncodeOptions()
	if opts.VideoCodec == "" {
		opts.VideoCodec = def.VideoCodec
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = def.AudioCodec
	}
	if opts.FrameRate == 0 {
		opts.FrameRate = def.FrameRate
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, opts: opts}
}

// Options returns the encoder configuration in use.
func (p *FFmpegProcessor) Options() EncodeOptions {
	return p.opts
}

// Encode renders clip into output. It first tries the configured video
// codec and falls back to FallbackVideoCodec if that fails.
func (p *FFmpegProcessor) Encode(ctx context.Context, clip Clip, output string) (EncodeResult, error) {
	if clip.ImagePath == "" {
		return EncodeResult{}, ErrNoImage
	}
	if clip.Duration() <= 0 {
		return EncodeResult{}, fmt.Errorf("%w: got %.3f", ErrInvalidDuration, clip.Duration())
	}
	if p.opts.FrameRate <= 0 {
		return EncodeResult{}, fmt.Errorf("%w: got %d", ErrInvalidFrameRate, p.opts.FrameRate)
	}

	result := EncodeResult{
		Codec:  p.opts.VideoCodec,
		Frames: clip.FrameCount(p.opts.FrameRate),
	}

	err := p.runFFmpeg(ctx, p.buildArgs(clip, output, p.opts.VideoCodec))
	if err == nil {
		return result, nil
	}

	fallback := p.opts.FallbackVideoCodec
	if fallback == "" || fallback == p.opts.VideoCodec || ctx.Err() != nil {
		return EncodeResult{}, err
	}

	// Primary codec failed (e.g. no NVIDIA GPU), retry with the software codec
	if err := p.runFFmpeg(ctx, p.buildArgs(clip, output, fallback)); err != nil {
		return EncodeResult{}, err
	}
	result.Codec = fallback
	return result, nil
}

// buildArgs returns the ffmpeg arguments for encoding clip with codec.
func (p *FFmpegProcessor) buildArgs(clip Clip, output, codec string) []string {
	fps := strconv.Itoa(p.opts.FrameRate)
	return []string{
		"-y",          // Overwrite output file without asking
		"-loop", "1", // Repeat the still image
		"-framerate", fps, // Input frame rate of the looped image
		"-i", clip.ImagePath,
		"-i", clip.Audio.Path,
		"-map", "0:v:0",
		"-map", "1:a:0",
		// yuv420p needs even dimensions
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p",
		"-c:v", codec,
		"-r", fps,
		"-c:a", p.opts.AudioCodec,
		"-t", strconv.FormatFloat(clip.Duration(), 'f', 3, 64), // Pin length to the audio
		"-movflags", "+faststart",
		output,
	}
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
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

// Verify interface implementation at compile time.
var _ Encoder = (*FFmpegProcessor)(nil)
