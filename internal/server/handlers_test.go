package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/stillcast/internal/compose"
	"github.com/maauso/stillcast/internal/job"
	"github.com/maauso/stillcast/internal/mediatype"
)

// mockConverter implements job.Converter for testing.
type mockConverter struct {
	mock.Mock
}

func (m *mockConverter) Validate(req compose.Request) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *mockConverter) Convert(ctx context.Context, req compose.Request) (*compose.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compose.Result), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, opts ...HandlerOption) (*Handlers, *mockConverter, *job.ConversionService) {
	t.Helper()
	conv := &mockConverter{}
	svc := job.NewConversionService(job.NewMemoryRepository(), conv, testLogger())

	// Disable async processing by default; tests opt back in explicitly.
	opts = append([]HandlerOption{WithAsyncProcessing(false)}, opts...)
	return NewHandlers(svc, testLogger(), opts...), conv, svc
}

func postConversion(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	bodyJSON, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/conversions", bytes.NewReader(bodyJSON))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateConversion_Success(t *testing.T) {
	h, conv, svc := newTestHandlers(t)

	want := compose.Request{
		ImagePath:  "/data/photo.png",
		AudioPath:  "/data/song.mp3",
		OutputPath: "/data/out.mp4",
	}
	conv.On("Validate", want).Return(nil)

	rec := postConversion(t, h.CreateConversion, CreateConversionRequest{
		ImagePath:  want.ImagePath,
		AudioPath:  want.AudioPath,
		OutputPath: want.OutputPath,
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "IN_QUEUE", resp.Status)

	saved, err := svc.GetJob(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, want, saved.Request())
	conv.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything)
}

func TestCreateConversion_OutputDir(t *testing.T) {
	h, conv, svc := newTestHandlers(t)

	want := compose.Request{
		ImagePath:  "/data/photo.jpg",
		AudioPath:  "/data/Track 01.wav",
		OutputPath: "/videos/Track 01.mp4",
		Publish:    true,
	}
	conv.On("Validate", want).Return(nil)

	rec := postConversion(t, h.CreateConversion, CreateConversionRequest{
		ImagePath: want.ImagePath,
		AudioPath: want.AudioPath,
		OutputDir: "/videos",
		Publish:   true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	saved, err := svc.GetJob(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "/videos/Track 01.mp4", saved.OutputPath)
	assert.True(t, saved.Publish)
}

func TestCreateConversion_InvalidJSON(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/conversions", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.CreateConversion(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestCreateConversion_ContentType(t *testing.T) {
	body, err := json.Marshal(CreateConversionRequest{ImagePath: "i.jpg", AudioPath: "a.mp3", OutputPath: "o.mp4"})
	require.NoError(t, err)

	tests := []struct {
		name        string
		contentType string
		wantStatus  int
	}{
		{"json", "application/json", http.StatusAccepted},
		{"json with charset", "application/json; charset=utf-8", http.StatusAccepted},
		{"plain text", "text/plain", http.StatusUnsupportedMediaType},
		{"form", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"missing", "", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, conv, svc := newTestHandlers(t)
			conv.On("Validate", mock.Anything).Return(nil)

			req := httptest.NewRequest(http.MethodPost, "/conversions", bytes.NewReader(body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.CreateConversion(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnsupportedMediaType {
				assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", decodeError(t, rec).Code)
				jobs, _ := svc.ListJobs(context.Background())
				assert.Empty(t, jobs)
			}
		})
	}
}

func TestRouter_DefaultConfigRejectsCrossSitePost(t *testing.T) {
	h, conv, svc := newTestHandlers(t)
	conv.On("Validate", mock.Anything).Return(nil)
	router := NewRouter(h, testLogger(), DefaultConfig())

	body := `{"image_path":"/etc/x.jpg","audio_path":"/etc/x.mp3","output_path":"/home/u/Videos/important.mp4"}`
	req := httptest.NewRequest(http.MethodPost, "/conversions", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	jobs, _ := svc.ListJobs(context.Background())
	assert.Empty(t, jobs)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateConversion_ValidationError(t *testing.T) {
	tests := []struct {
		name string
		body CreateConversionRequest
	}{
		{"missing image", CreateConversionRequest{AudioPath: "a.mp3", OutputPath: "o.mp4"}},
		{"missing audio", CreateConversionRequest{ImagePath: "i.jpg", OutputPath: "o.mp4"}},
		{"missing output", CreateConversionRequest{ImagePath: "i.jpg", AudioPath: "a.mp3"}},
		{"both outputs", CreateConversionRequest{ImagePath: "i.jpg", AudioPath: "a.mp3", OutputPath: "o.mp4", OutputDir: "/out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, conv, _ := newTestHandlers(t)

			rec := postConversion(t, h.CreateConversion, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
			conv.AssertNotCalled(t, "Validate", mock.Anything)
		})
	}
}

func TestCreateConversion_UnsupportedFormat(t *testing.T) {
	h, conv, svc := newTestHandlers(t)

	req := compose.Request{ImagePath: "/data/photo.gif", AudioPath: "/data/song.mp3", OutputPath: "/data/out.mp4"}
	verr := &compose.UnsupportedFormatError{Kind: mediatype.KindImage, Path: req.ImagePath, Allowed: mediatype.ImageExts}
	conv.On("Validate", req).Return(verr)

	rec := postConversion(t, h.CreateConversion, CreateConversionRequest{
		ImagePath:  req.ImagePath,
		AudioPath:  req.AudioPath,
		OutputPath: req.OutputPath,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "UNSUPPORTED_FORMAT", resp.Code)
	assert.Equal(t, verr.Error(), resp.Error)

	jobs, _ := svc.ListJobs(context.Background())
	assert.Empty(t, jobs)
}

func TestCreateConversion_ProcessesInBackground(t *testing.T) {
	h, conv, svc := newTestHandlers(t, WithAsyncProcessing(true))

	req := compose.Request{ImagePath: "/data/photo.jpg", AudioPath: "/data/song.mp3", OutputPath: "/data/out.mp4"}
	conv.On("Validate", req).Return(nil)
	conv.On("Convert", mock.Anything, req).Return(&compose.Result{
		OutputPath: req.OutputPath,
		Duration:   2.5,
		Frames:     3,
		Codec:      "libx264",
	}, nil)

	rec := postConversion(t, h.CreateConversion, CreateConversionRequest{
		ImagePath:  req.ImagePath,
		AudioPath:  req.AudioPath,
		OutputPath: req.OutputPath,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	require.Eventually(t, func() bool {
		j, err := svc.GetJob(context.Background(), resp.ID)
		return err == nil && j.Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetConversion_Completed(t *testing.T) {
	h, conv, svc := newTestHandlers(t)
	ctx := context.Background()

	req := compose.Request{ImagePath: "/data/photo.png", AudioPath: "/data/song.mp3", OutputPath: "/data/out.mp4", Publish: true}
	conv.On("Validate", req).Return(nil)
	conv.On("Convert", mock.Anything, req).Return(&compose.Result{
		OutputPath:   req.OutputPath,
		Duration:     4.2,
		Frames:       5,
		Codec:        "hevc_nvenc",
		DerivedImage: "/data/photo-123.jpg",
		Disposed:     true,
		VideoURL:     "https://bucket.s3.us-east-1.amazonaws.com/out.mp4",
	}, nil)

	created, err := svc.CreateJob(ctx, req)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessJob(ctx, created.ID))

	httpReq := httptest.NewRequest(http.MethodGet, "/conversions/"+created.ID, nil)
	httpReq.SetPathValue("id", created.ID)
	rec := httptest.NewRecorder()

	h.GetConversion(rec, httpReq)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, created.ID, resp.ID)
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.True(t, resp.Done)
	assert.Equal(t, 4.2, resp.DurationSec)
	assert.Equal(t, 5, resp.Frames)
	assert.Equal(t, "hevc_nvenc", resp.Codec)
	assert.True(t, resp.Disposed)
	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/out.mp4", resp.VideoURL)
	assert.NotNil(t, resp.StartedAt)
	assert.NotNil(t, resp.CompletedAt)
	assert.Empty(t, resp.Error)
}

func TestGetConversion_Failed(t *testing.T) {
	h, conv, svc := newTestHandlers(t)
	ctx := context.Background()

	req := compose.Request{ImagePath: "/data/photo.jpg", AudioPath: "/data/song.wav", OutputPath: "/data/out.mp4"}
	convErr := &compose.StageError{Stage: compose.StageProbe, Err: assert.AnError}
	conv.On("Validate", req).Return(nil)
	conv.On("Convert", mock.Anything, req).Return(nil, convErr)

	created, _ := svc.CreateJob(ctx, req)
	_ = svc.ProcessJob(ctx, created.ID)

	httpReq := httptest.NewRequest(http.MethodGet, "/conversions/"+created.ID, nil)
	httpReq.SetPathValue("id", created.ID)
	rec := httptest.NewRecorder()

	h.GetConversion(rec, httpReq)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "FAILED", resp.Status)
	assert.True(t, resp.Done)
	assert.Equal(t, job.CodeAudioProbe, resp.ErrorCode)
	assert.Equal(t, convErr.Error(), resp.Error)
}

func TestGetConversion_NotFound(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/conversions/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()

	h.GetConversion(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetConversion_MissingID(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/conversions/", nil)
	rec := httptest.NewRecorder()

	h.GetConversion(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_JOB_ID", decodeError(t, rec).Code)
}

func TestListConversions(t *testing.T) {
	h, conv, svc := newTestHandlers(t)
	ctx := context.Background()
	conv.On("Validate", mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodGet, "/conversions", nil)
	rec := httptest.NewRecorder()
	h.ListConversions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// An empty list is rendered as [] rather than null.
	assert.JSONEq(t, `{"conversions":[]}`, rec.Body.String())

	_, _ = svc.CreateJob(ctx, compose.Request{ImagePath: "a.jpg", AudioPath: "a.mp3", OutputPath: "a.mp4"})
	_, _ = svc.CreateJob(ctx, compose.Request{ImagePath: "b.jpg", AudioPath: "b.mp3", OutputPath: "b.mp4"})

	rec = httptest.NewRecorder()
	h.ListConversions(rec, req)

	var resp ListConversionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversions, 2)
	assert.False(t, resp.Conversions[0].Done)
	assert.Equal(t, "IN_QUEUE", resp.Conversions[0].Status)
}

func TestRouter_Integration(t *testing.T) {
	h, conv, _ := newTestHandlers(t)
	conv.On("Validate", mock.Anything).Return(nil)

	router := NewRouter(h, testLogger(), DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	body, _ := json.Marshal(CreateConversionRequest{ImagePath: "i.jpg", AudioPath: "a.mp3", OutputPath: "o.mp4"})
	req = httptest.NewRequest(http.MethodPost, "/conversions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var createResp CreateConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&createResp))

	req = httptest.NewRequest(http.MethodGet, "/conversions/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/conversions", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/conversions/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLoggingMiddleware_KeepsRequestID(t *testing.T) {
	handler := LoggingMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/conversions", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}
