package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// FFprobeProber implements Prober with ffprobe, falling back to parsing
// ffmpeg's banner when ffprobe is not installed.
type FFprobeProber struct {
	ffprobePath string
	ffmpegPath  string
}

// NewFFprobeProber creates a new FFprobeProber.
// Empty paths default to "ffprobe" and "ffmpeg" (found in PATH).
func NewFFprobeProber(ffprobePath, ffmpegPath string) *FFprobeProber {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFprobeProber{ffprobePath: ffprobePath, ffmpegPath: ffmpegPath}
}

// Probe implements Prober.Probe.
func (p *FFprobeProber) Probe(ctx context.Context, path string) (Source, error) {
	duration, err := p.probeFFprobe(ctx, path)
	if missingBinary(err) {
		duration, err = p.probeFFmpeg(ctx, path)
	}
	if err != nil {
		return Source{}, err
	}
	if duration <= 0 {
		return Source{}, fmt.Errorf("%w: got %.3f for %s", ErrInvalidDuration, duration, path)
	}
	return Source{Path: path, Duration: duration}, nil
}

// probeFFprobe reads format=duration with ffprobe.
func (p *FFprobeProber) probeFFprobe(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if missingBinary(err) {
			return 0, err
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" || out == "N/A" {
		return 0, fmt.Errorf("%w: %s", ErrNoDuration, path)
	}

	duration, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", out, err)
	}
	return duration, nil
}

// probeFFmpeg runs ffmpeg against a null muxer and parses the
// "Duration: HH:MM:SS.ms" line it writes to stderr.
func (p *FFprobeProber) probeFFmpeg(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner",
		"-i", path,
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg exits non-zero for unreadable input; the banner decides.
	runErr := cmd.Run()
	if runErr != nil && ctx.Err() != nil {
		return 0, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}

	duration, err := parseDuration(stderr.String())
	if err != nil && runErr != nil {
		return 0, fmt.Errorf("%w: ffmpeg: %w", err, runErr)
	}
	return duration, err
}

// missingBinary reports whether err means the executable could not be found,
// either on PATH or at an explicit location.
func missingBinary(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// parseDuration extracts the first "Duration: HH:MM:SS.frac" from ffmpeg output.
func parseDuration(output string) (float64, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, ErrNoDuration
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat(matches[4], 64)

	// The fractional part has variable precision.
	divisor := 1.0
	for range len(matches[4]) {
		divisor *= 10
	}

	return hours*3600 + minutes*60 + seconds + frac/divisor, nil
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobeProber)(nil)
