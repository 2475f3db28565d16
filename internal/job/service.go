package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/stillcast/internal/compose"
)

// Error codes recorded on failed jobs and returned by the HTTP layer.
const (
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeMissingPath       = "MISSING_PATH"
	CodeImageConversion   = "IMAGE_CONVERSION_FAILED"
	CodeAudioProbe        = "AUDIO_PROBE_FAILED"
	CodeOutputDir         = "OUTPUT_DIR_FAILED"
	CodeEncode            = "ENCODE_FAILED"
	CodePublish           = "PUBLISH_FAILED"
	CodeConversion        = "CONVERSION_FAILED"
)

var stageCodes = map[compose.Stage]string{
	compose.StageNormalize: CodeImageConversion,
	compose.StageProbe:     CodeAudioProbe,
	compose.StageOutputDir: CodeOutputDir,
	compose.StageEncode:    CodeEncode,
	compose.StagePublish:   CodePublish,
}

// ErrorCode maps a conversion error to a stable code for API clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, compose.ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, compose.ErrMissingPath):
		return CodeMissingPath
	}
	if code, ok := stageCodes[compose.FailedStage(err)]; ok {
		return code
	}
	return CodeConversion
}

// ErrShuttingDown is returned for jobs that were still waiting for a slot
// when the service began shutting down. Such jobs stay IN_QUEUE.
var ErrShuttingDown = errors.New("conversion service is shutting down")

// Converter runs a single conversion. compose.Composer implements it.
type Converter interface {
	Validate(req compose.Request) error
	Convert(ctx context.Context, req compose.Request) (*compose.Result, error)
}

// ConversionService accepts conversion requests as jobs and runs them with
// bounded concurrency.
type ConversionService struct {
	repo      Repository
	converter Converter
	logger    *slog.Logger
	// slots limits how many conversions encode at once.
	slots chan struct{}

	// Background jobs started with Submit.
	wg         sync.WaitGroup
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	quit       chan struct{}
	quitOnce   sync.Once
}

// ServiceOption configures a ConversionService.
type ServiceOption func(*ConversionService)

// WithMaxConcurrentJobs sets how many jobs may run at the same time.
// Values below 1 are ignored.
func WithMaxConcurrentJobs(n int) ServiceOption {
	return func(s *ConversionService) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// NewConversionService creates a new ConversionService. One job runs at a
// time unless WithMaxConcurrentJobs says otherwise.
func NewConversionService(repo Repository, converter Converter, logger *slog.Logger, opts ...ServiceOption) *ConversionService {
	if logger == nil {
		logger = slog.Default()
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	s := &ConversionService{
		repo:       repo,
		converter:  converter,
		logger:     logger,
		slots:      make(chan struct{}, 1),
		jobCtx:     jobCtx,
		cancelJobs: cancel,
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates req and persists a new IN_QUEUE job for it.
// Validation errors are returned unchanged so callers can match them with
// errors.Is against compose.ErrUnsupportedFormat and compose.ErrMissingPath.
func (s *ConversionService) CreateJob(ctx context.Context, req compose.Request) (*Job, error) {
	if err := s.converter.Validate(req); err != nil {
		return nil, err
	}

	job := New(req)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("image", req.ImagePath),
		slog.String("audio", req.AudioPath),
		slog.String("output", req.OutputPath),
		slog.Bool("publish", req.Publish),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("save job: %w", err)
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *ConversionService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, oldest first.
func (s *ConversionService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// ProcessJob waits for a free slot, then runs the conversion for the job
// with the given ID and records its outcome. The returned error is the
// conversion error, if any; it is also stored on the job.
func (s *ConversionService) ProcessJob(ctx context.Context, jobID string) error {
	select {
	case <-s.quit:
		return ErrShuttingDown
	default:
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrShuttingDown
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("find job: %w", err)
	}

	logger := s.logger.With(slog.String("job_id", job.ID))

	if err := job.Start(); err != nil {
		return fmt.Errorf("start job %s: %w", job.ID, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	logger.Info("job started")

	res, convErr := s.converter.Convert(ctx, job.Request())
	if convErr != nil {
		code := ErrorCode(convErr)
		if err := job.Fail(convErr.Error(), code); err != nil {
			return fmt.Errorf("fail job %s: %w", job.ID, err)
		}
		logger.Error("job failed",
			slog.String("code", code),
			slog.String("error", convErr.Error()),
		)
	} else {
		if err := job.Complete(res); err != nil {
			return fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		logger.Info("job completed",
			slog.String("output", job.OutputPath),
			slog.String("codec", job.Codec),
		)
	}

	// Record the outcome even when ctx was cancelled mid-conversion.
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		return errors.Join(convErr, fmt.Errorf("save job: %w", err))
	}
	return convErr
}

// Submit runs ProcessJob for jobID in the background. The job outlives the
// request that created it; Shutdown waits for it.
func (s *ConversionService) Submit(jobID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.ProcessJob(s.jobCtx, jobID); err != nil {
			s.logger.Error("background job failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Shutdown stops queued jobs from starting and waits for running ones to
// finish. If ctx expires first, running conversions are cancelled and
// Shutdown returns ctx.Err() once they have unwound.
func (s *ConversionService) Shutdown(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelJobs()
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached, cancelling running jobs")
		s.cancelJobs()
		<-done
		return ctx.Err()
	}
}
