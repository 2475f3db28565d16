package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/stillcast/internal/compose"
)

// sandbox points every directory the CLI may write to into t.TempDir.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SCRATCH_DIR", filepath.Join(dir, "scratch"))
	t.Setenv("TRASH_DIR", filepath.Join(dir, "trash"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("FFPROBE_PATH", "stillcast-no-such-ffprobe")
	t.Setenv("FFMPEG_PATH", "stillcast-no-such-ffmpeg")
	return dir
}

func TestRun_Usage(t *testing.T) {
	var stderr bytes.Buffer

	assert.Equal(t, exitOK, run(context.Background(), nil, &stderr))
	assert.Contains(t, stderr.String(), "stillcast convert")

	stderr.Reset()
	assert.Equal(t, exitUsage, run(context.Background(), []string{"transcode"}, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "transcode"`)
}

func TestParseConvertArgs(t *testing.T) {
	var stderr bytes.Buffer

	ca, err := parseConvertArgs([]string{"-image", "a.png", "-audio", "/music/b.wav", "-output-dir", "/videos", "-publish"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, compose.Request{
		ImagePath:  "a.png",
		AudioPath:  "/music/b.wav",
		OutputPath: filepath.Join("/videos", "b.mp4"),
		Publish:    true,
	}, ca.request())

	_, err = parseConvertArgs([]string{"-image", "a.png", "-output", "x.mp4", "-output-dir", "/videos"}, &stderr)
	assert.Error(t, err)

	_, err = parseConvertArgs([]string{"-image", "a.png", "extra"}, &stderr)
	assert.Error(t, err)

	_, err = parseConvertArgs([]string{"-bogus"}, &stderr)
	assert.Error(t, err)
}

func TestConvert_UnsupportedImageExitsWithUsage(t *testing.T) {
	dir := sandbox(t)
	var stderr bytes.Buffer

	code := run(context.Background(), []string{"convert",
		"-image", filepath.Join(dir, "photo.gif"),
		"-audio", filepath.Join(dir, "song.mp3"),
		"-output", filepath.Join(dir, "out.mp4"),
	}, &stderr)

	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "unsupported image format")
	assert.NoFileExists(t, filepath.Join(dir, "out.mp4"))
}

func TestConvert_UnsupportedOutputExitsWithUsage(t *testing.T) {
	dir := sandbox(t)
	var stderr bytes.Buffer

	code := run(context.Background(), []string{"convert",
		"-image", filepath.Join(dir, "photo.jpg"),
		"-audio", filepath.Join(dir, "song.mp3"),
		"-output", filepath.Join(dir, "out.mov"),
	}, &stderr)

	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "unsupported output format")
}

func TestConvert_MissingOutputExitsWithUsage(t *testing.T) {
	dir := sandbox(t)
	var stderr bytes.Buffer

	code := run(context.Background(), []string{"convert",
		"-image", filepath.Join(dir, "photo.jpg"),
		"-audio", filepath.Join(dir, "song.mp3"),
	}, &stderr)

	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "no output file selected")
}

func TestConvert_MediaErrorExitsWithFailure(t *testing.T) {
	dir := sandbox(t)
	img := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(img, []byte("not really a jpeg"), 0o600))
	var stderr bytes.Buffer

	code := run(context.Background(), []string{"convert",
		"-image", img,
		"-audio", filepath.Join(dir, "song.mp3"),
		"-output", filepath.Join(dir, "out.mp4"),
	}, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "probe audio")
}

func TestConvert_InvalidConfig(t *testing.T) {
	sandbox(t)
	t.Setenv("FRAME_RATE", "0")
	var stderr bytes.Buffer

	code := run(context.Background(), []string{"convert", "-image", "a.jpg", "-audio", "a.mp3", "-output", "a.mp4"}, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "load config")
}
