// Package bootstrap wires the conversion pipeline from configuration.
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/maauso/stillcast/internal/audio"
	"github.com/maauso/stillcast/internal/compose"
	"github.com/maauso/stillcast/internal/config"
	"github.com/maauso/stillcast/internal/imageprep"
	"github.com/maauso/stillcast/internal/job"
	"github.com/maauso/stillcast/internal/media"
	"github.com/maauso/stillcast/internal/storage"
	"github.com/maauso/stillcast/internal/trash"
)

// Dependencies holds the initialized components shared by the CLI and the
// HTTP server.
type Dependencies struct {
	Storage     storage.Storage
	Composer    *compose.Composer
	Conversions *job.ConversionService
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	normalizer := imageprep.New(store,
		imageprep.WithScratchDir(cfg.ScratchDir),
		imageprep.WithQuality(cfg.JPEGQuality),
	)
	prober := audio.NewFFprobeProber(cfg.FFprobePath, cfg.FFmpegPath)
	encoder := media.NewFFmpegProcessor(cfg.FFmpegPath, media.EncodeOptions{
		VideoCodec:         cfg.VideoCodec,
		FallbackVideoCodec: cfg.FallbackVideoCodec,
		AudioCodec:         cfg.AudioCodec,
		FrameRate:          cfg.FrameRate,
	})
	encOpts := encoder.Options()
	logger.Debug("encoder configured",
		slog.String("video_codec", encOpts.VideoCodec),
		slog.String("fallback_video_codec", encOpts.FallbackVideoCodec),
		slog.String("audio_codec", encOpts.AudioCodec),
		slog.Int("frame_rate", encOpts.FrameRate),
	)

	var opts []compose.Option
	if cfg.S3Enabled() {
		opts = append(opts, compose.WithPublisher(store))
	}

	composer := compose.NewComposer(
		normalizer,
		prober,
		encoder,
		initDisposer(cfg, store, logger),
		logger,
		opts...,
	)

	conversions := job.NewConversionService(
		job.NewMemoryRepository(),
		composer,
		logger,
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
	)

	return &Dependencies{
		Storage:     store,
		Composer:    composer,
		Conversions: conversions,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(cfg.ScratchDir, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured", slog.String("temp_dir", localStore.TempDir()))
	return localStore, nil
}

// initDisposer picks where derived images go once a conversion is done.
func initDisposer(cfg *config.Config, store storage.Storage, logger *slog.Logger) compose.Disposer {
	if strings.ToLower(cfg.Disposal) == config.DisposalDelete {
		return store
	}

	t := trash.New(cfg.TrashDir)
	switch {
	case !t.Available():
		logger.Warn("no trash available on this platform, derived images will be kept")
	case t.Dir() == "":
		logger.Debug("derived images go to the recycle bin")
	default:
		logger.Debug("derived images go to the trash", slog.String("trash_dir", t.Dir()))
	}
	return t
}
