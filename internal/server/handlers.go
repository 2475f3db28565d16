package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/stillcast/internal/compose"
	"github.com/maauso/stillcast/internal/job"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.ConversionService
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateConversion only records the job and returns.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ConversionService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateConversion handles POST /conversions requests.
func (h *Handlers) CreateConversion(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r.Header.Get("Content-Type")) {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json", "UNSUPPORTED_MEDIA_TYPE")
		return
	}

	var req CreateConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	output := req.OutputPath
	if output == "" {
		output = compose.OutputPathFor(req.AudioPath, req.OutputDir)
	}
	convReq := compose.Request{
		ImagePath:  req.ImagePath,
		AudioPath:  req.AudioPath,
		OutputPath: output,
		Publish:    req.Publish,
	}

	created, err := h.service.CreateJob(r.Context(), convReq)
	if err != nil {
		switch {
		case errors.Is(err, compose.ErrUnsupportedFormat):
			writeError(w, http.StatusUnprocessableEntity, err.Error(), job.CodeUnsupportedFormat)
		case errors.Is(err, compose.ErrMissingPath):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		default:
			h.logger.Error("failed to create job",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		}
		return
	}

	if h.enableAsyncProcess {
		h.service.Submit(created.ID)
	}

	h.logger.Info("conversion accepted",
		slog.String("job_id", created.ID),
		slog.String("output", output),
	)

	writeJSON(w, http.StatusAccepted, CreateConversionResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// isJSON reports whether contentType names application/json.
// Parameters such as charset are allowed.
func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// GetConversion handles GET /conversions/{id} requests.
func (h *Handlers) GetConversion(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toConversionResponse(found))
}

// ListConversions handles GET /conversions requests.
func (h *Handlers) ListConversions(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListConversionsResponse{Conversions: make([]ConversionResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Conversions = append(resp.Conversions, toConversionResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toConversionResponse(j *job.Job) ConversionResponse {
	return ConversionResponse{
		ID:           j.ID,
		Status:       string(j.GetStatus()),
		Done:         j.IsTerminal(),
		ImagePath:    j.ImagePath,
		AudioPath:    j.AudioPath,
		OutputPath:   j.OutputPath,
		Publish:      j.Publish,
		DurationSec:  j.Duration,
		Frames:       j.Frames,
		Codec:        j.Codec,
		DerivedImage: j.DerivedImage,
		Disposed:     j.Disposed,
		VideoURL:     j.VideoURL,
		Error:        j.Error,
		ErrorCode:    j.ErrorCode,
		CreatedAt:    j.CreatedAt,
		StartedAt:    optionalTime(j.StartedAt),
		CompletedAt:  optionalTime(j.CompletedAt),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
