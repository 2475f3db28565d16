// Package compose turns a still image and an audio track into an MP4 whose
// length matches the audio.
package compose

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/stillcast/internal/audio"
	"github.com/maauso/stillcast/internal/imageprep"
	"github.com/maauso/stillcast/internal/media"
)

// Normalizer prepares the image for the encoder.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (imageprep.Image, error)
}

// Disposer gets rid of a derived file, e.g. by moving it to the trash.
type Disposer interface {
	Dispose(ctx context.Context, path string) error
}

// Publisher uploads a finished video and returns its URL.
type Publisher interface {
	UploadToS3(ctx context.Context, key string, data io.Reader) (string, error)
}

// Result describes a finished conversion.
type Result struct {
	OutputPath string
	// Duration is the audio duration in seconds, which is also the video's.
	Duration float64
	Frames   int
	Codec    string
	// DerivedImage is the converted image, empty when none was needed.
	DerivedImage string
	// Disposed reports whether DerivedImage was successfully removed.
	Disposed bool
	// VideoURL is set when the video was published.
	VideoURL string
}

// Composer runs the conversion pipeline.
type Composer struct {
	normalizer Normalizer
	prober     audio.Prober
	encoder    media.Encoder
	disposer   Disposer
	publisher  Publisher
	validate   *validator.Validate
	logger     *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithPublisher enables Request.Publish.
func WithPublisher(p Publisher) Option {
	return func(c *Composer) {
		c.publisher = p
	}
}

// NewComposer creates a Composer.
func NewComposer(
	normalizer Normalizer,
	prober audio.Prober,
	encoder media.Encoder,
	disposer Disposer,
	logger *slog.Logger,
	opts ...Option,
) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Composer{
		normalizer: normalizer,
		prober:     prober,
		encoder:    encoder,
		disposer:   disposer,
		validate:   newValidator(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the request without touching the filesystem. Errors are
// *MissingPathError or *UnsupportedFormatError, image first, then audio,
// then output.
func (c *Composer) Validate(req Request) error {
	return validateRequest(c.validate, req)
}

// Convert validates req, normalizes the image, probes the audio, encodes the
// video and disposes of any derived image. Disposal runs on every exit path
// after normalization and never affects the returned error.
func (c *Composer) Convert(ctx context.Context, req Request) (*Result, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}

	logger := c.logger.With(
		slog.String("image", req.ImagePath),
		slog.String("audio", req.AudioPath),
		slog.String("output", req.OutputPath),
	)

	img, err := c.normalizer.Normalize(ctx, req.ImagePath)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: err}
	}

	res := &Result{OutputPath: req.OutputPath}
	if img.Derived {
		res.DerivedImage = img.Path
		logger.Debug("converted image for encoding", slog.String("derived", img.Path))
		defer func() {
			res.Disposed = c.dispose(context.WithoutCancel(ctx), logger, img.Path)
		}()
	}

	src, err := c.prober.Probe(ctx, req.AudioPath)
	if err != nil {
		return nil, &StageError{Stage: StageProbe, Err: err}
	}

	clip := media.NewClip(img.Path, src)
	res.Duration = clip.Duration()

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, &StageError{Stage: StageOutputDir, Err: err}
	}

	enc, err := c.encoder.Encode(ctx, clip, req.OutputPath)
	if err != nil {
		return nil, &StageError{Stage: StageEncode, Err: err}
	}
	res.Codec = enc.Codec
	res.Frames = enc.Frames

	logger.Info("video created",
		slog.Float64("duration_sec", res.Duration),
		slog.Int("frames", res.Frames),
		slog.String("codec", res.Codec),
	)

	if req.Publish {
		url, err := c.publish(ctx, req.OutputPath)
		if err != nil {
			return nil, &StageError{Stage: StagePublish, Err: err}
		}
		res.VideoURL = url
		logger.Info("video published", slog.String("url", url))
	}

	return res, nil
}

func (c *Composer) publish(ctx context.Context, output string) (string, error) {
	if c.publisher == nil {
		return "", ErrNoPublisher
	}

	f, err := os.Open(output) // #nosec G304 - output was just written by the encoder
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = f.Close() }()

	return c.publisher.UploadToS3(ctx, filepath.Base(output), f)
}

// dispose removes a derived file. Failures are logged, never returned.
func (c *Composer) dispose(ctx context.Context, logger *slog.Logger, path string) bool {
	if _, err := os.Stat(path); err != nil {
		logger.Warn("derived image does not exist", slog.String("path", path))
		return false
	}
	if c.disposer == nil {
		logger.Warn("no disposer configured, leaving derived image", slog.String("path", path))
		return false
	}
	if err := c.disposer.Dispose(ctx, path); err != nil {
		logger.Warn("failed to dispose of derived image",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return false
	}
	logger.Info("derived image disposed", slog.String("path", path))
	return true
}
