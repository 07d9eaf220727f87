package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CandleNFT/forge/internal/models"
	"github.com/CandleNFT/forge/internal/orchestrator"
	"github.com/CandleNFT/forge/internal/ratelimit"
	"github.com/CandleNFT/forge/internal/store"
	"github.com/CandleNFT/forge/internal/telemetry"
)

const maxBodyBytes = 64 << 10

// Server wires HTTP handlers for the build API.
type Server struct {
	builds  *orchestrator.Service
	limiter *ratelimit.TokenBucket
	log     *slog.Logger
}

// New constructs the API server. limiter may be nil.
func New(builds *orchestrator.Service, limiter *ratelimit.TokenBucket, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		builds:  builds,
		limiter: limiter,
		log:     log,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api/build", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleGetByQuery)
		r.Get("/{id}", s.handleGetByPath)
	})
	return r
}

type createRequest struct {
	Prompt     string `json:"prompt"`
	Credential string `json:"credential"`
	Style      string `json:"style"`
	ColorTheme string `json:"colorTheme"`
}

type buildConfig struct {
	Prompt     string `json:"prompt"`
	Style      string `json:"style"`
	ColorTheme string `json:"colorTheme"`
}

type createResponse struct {
	JobID         string      `json:"jobId"`
	Message       string      `json:"message"`
	Mode          models.Mode `json:"mode"`
	EstimatedTime int         `json:"estimatedTime"`
	Config        buildConfig `json:"config"`
}

type statusResponse struct {
	JobID       string            `json:"jobId"`
	Status      models.JobStatus  `json:"status"`
	Step        int               `json:"step"`
	CurrentStep int               `json:"currentStep"`
	Steps       []models.StepInfo `json:"steps"`
	URL         string            `json:"url,omitempty"`
	DeployedAt  *time.Time        `json:"deployedAt,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), clientKey(r))
		switch {
		case err != nil:
			s.log.Warn("rate limiter unavailable, allowing request", "error", err)
		case !allowed:
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	job, err := s.builds.Create(r.Context(), orchestrator.CreateRequest{
		Prompt:     req.Prompt,
		Credential: req.Credential,
		Style:      req.Style,
		ColorTheme: req.ColorTheme,
	})
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, orchestrator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		s.log.Error("create build", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	estimate := orchestrator.SimulatedDuration()
	if job.Mode == models.ModeAgent {
		estimate = 2 * time.Minute
	}
	writeJSON(w, http.StatusAccepted, createResponse{
		JobID:         job.ID,
		Message:       "Build started",
		Mode:          job.Mode,
		EstimatedTime: int(estimate / time.Second),
		Config: buildConfig{
			Prompt:     job.PromptPreview(),
			Style:      job.Style,
			ColorTheme: job.ColorTheme,
		},
	})
}

func (s *Server) handleGetByQuery(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("jobId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}
	s.writeStatus(w, id)
}

func (s *Server) handleGetByPath(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, chi.URLParam(r, "id"))
}

func (s *Server) writeStatus(w http.ResponseWriter, id string) {
	job, err := s.builds.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := statusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Step:        job.Step,
		CurrentStep: job.CurrentStep(),
		Steps:       job.Steps(),
		URL:         job.Result.URL,
		Error:       job.Error,
	}
	if !job.Result.DeployedAt.IsZero() {
		deployed := job.Result.DeployedAt
		resp.DeployedAt = &deployed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.builds.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"jobs":        stats.Jobs,
		"byStatus":    stats.ByStatus,
		"activeTasks": stats.ActiveTasks,
		"gateway":     stats.Gateway,
	})
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
