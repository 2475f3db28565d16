// Package job provides the Job aggregate for tracking conversions submitted
// over HTTP. A Job moves IN_QUEUE -> RUNNING -> COMPLETED or FAILED and is
// never cancelled once accepted.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/stillcast/internal/compose"
	"github.com/maauso/stillcast/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for a free conversion slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the conversion is in progress.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the video was written.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the conversion returned an error.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is the server-side record of one conversion.
type Job struct {
	mu sync.RWMutex

	ID     string
	Status Status

	// Request
	ImagePath  string
	AudioPath  string
	OutputPath string
	Publish    bool

	// Result, set on completion.
	Duration     float64
	Frames       int
	Codec        string
	DerivedImage string
	Disposed     bool
	VideoURL     string

	// Error and ErrorCode are set when the job failed.
	Error     string
	ErrorCode string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a Job for req with a generated ID in IN_QUEUE status.
func New(req compose.Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a Job with the specified ID.
// Useful for testing or when the ID is generated externally.
func NewWithID(jobID string, req compose.Request) *Job {
	now := time.Now()
	return &Job{
		ID:         jobID,
		Status:     StatusInQueue,
		ImagePath:  req.ImagePath,
		AudioPath:  req.AudioPath,
		OutputPath: req.OutputPath,
		Publish:    req.Publish,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Request rebuilds the conversion request the job was created from.
func (j *Job) Request() compose.Request {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return compose.Request{
		ImagePath:  j.ImagePath,
		AudioPath:  j.AudioPath,
		OutputPath: j.OutputPath,
		Publish:    j.Publish,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records res and transitions the job to COMPLETED.
func (j *Job) Complete(res *compose.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	if res != nil {
		j.OutputPath = res.OutputPath
		j.Duration = res.Duration
		j.Frames = res.Frames
		j.Codec = res.Codec
		j.DerivedImage = res.DerivedImage
		j.Disposed = res.Disposed
		j.VideoURL = res.VideoURL
	}
	return nil
}

// Fail transitions the job to FAILED with an error message and code.
func (j *Job) Fail(errMsg, code string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	j.ErrorCode = code
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:           j.ID,
		Status:       j.Status,
		ImagePath:    j.ImagePath,
		AudioPath:    j.AudioPath,
		OutputPath:   j.OutputPath,
		Publish:      j.Publish,
		Duration:     j.Duration,
		Frames:       j.Frames,
		Codec:        j.Codec,
		DerivedImage: j.DerivedImage,
		Disposed:     j.Disposed,
		VideoURL:     j.VideoURL,
		Error:        j.Error,
		ErrorCode:    j.ErrorCode,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
