package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/stillcast/internal/mediatype"
)

// Static errors for request validation.
var (
	// ErrUnsupportedFormat is returned when a path has an extension that is
	// not accepted for its role.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMissingPath is returned when one of the request paths is empty.
	ErrMissingPath = errors.New("missing path")
	// ErrNoPublisher is returned when publishing is requested but not wired.
	ErrNoPublisher = errors.New("no publisher configured")
)

// UnsupportedFormatError reports which path was rejected and what is allowed.
type UnsupportedFormatError struct {
	Kind    mediatype.Kind
	Path    string
	Allowed []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported %s format %q: please use %s", e.Kind, e.Path, humanList(e.Allowed))
}

func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// MissingPathError reports a request field that was not set.
type MissingPathError struct {
	Kind mediatype.Kind
}

func (e *MissingPathError) Error() string {
	return fmt.Sprintf("no %s file selected", e.Kind)
}

func (e *MissingPathError) Unwrap() error {
	return ErrMissingPath
}

// Stage names the pipeline step an error came from.
type Stage string

// Pipeline stages, in execution order.
const (
	StageNormalize Stage = "normalize image"
	StageProbe     Stage = "probe audio"
	StageOutputDir Stage = "create output directory"
	StageEncode    Stage = "encode video"
	StagePublish   Stage = "publish"
)

// StageError wraps a failure from one of the media steps of Convert.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage err came from, or "" when err is not a
// StageError.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsValidationError reports whether err was caused by a bad request rather
// than by the media libraries.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrMissingPath)
}

// humanList renders [".jpg", ".png"] as "JPG or PNG".
func humanList(exts []string) string {
	names := make([]string, len(exts))
	for i, e := range exts {
		names[i] = strings.ToUpper(strings.TrimPrefix(e, "."))
	}
	switch len(names) {
	case 0:
		return "nothing"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}
