// Package orchestrator runs build jobs: it validates and records requests,
// picks the agent or simulated path, and drives each job to a terminal status
// in its own goroutine.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CandleNFT/forge/internal/agent"
	"github.com/CandleNFT/forge/internal/config"
	"github.com/CandleNFT/forge/internal/models"
	"github.com/CandleNFT/forge/internal/store"
	"github.com/CandleNFT/forge/internal/telemetry"
)

const (
	defaultStyle      = "minimal"
	defaultColorTheme = "purple"

	// sideEffectTimeout bounds audit and report writes.
	sideEffectTimeout = 10 * time.Second
)

// AgentClient spawns remote agent sessions and reads their latest output.
type AgentClient interface {
	Spawn(ctx context.Context, req agent.SpawnRequest) (string, error)
	FetchLatest(ctx context.Context, sessionRef string) (string, error)
}

// AuditSink records job transitions.
type AuditSink interface {
	Append(ctx context.Context, job models.BuildJob, event, detail string) error
}

// ReportArchiver stores a report for each terminal job.
type ReportArchiver interface {
	Store(ctx context.Context, job models.BuildJob) (string, error)
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces wall time, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithAgentClient overrides the gateway client built from config.
func WithAgentClient(c AgentClient) Option {
	return func(s *Service) { s.agent = c }
}

// WithAuditSink enables the transition audit trail.
func WithAuditSink(a AuditSink) Option {
	return func(s *Service) { s.audit = a }
}

// WithArchiver enables build report archiving.
func WithArchiver(a ReportArchiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// CreateRequest is a build submission.
type CreateRequest struct {
	Prompt     string
	Credential string
	Style      string
	ColorTheme string
}

// Stats is a point-in-time view used by health checks.
type Stats struct {
	Jobs        int                      `json:"jobs"`
	ByStatus    map[models.JobStatus]int `json:"byStatus"`
	ActiveTasks int64                    `json:"activeTasks"`
	Gateway     bool                     `json:"gateway"`
}

// Service owns the job store and every per-job task.
type Service struct {
	cfg      config.Config
	store    *store.JobStore
	clock    clockwork.Clock
	agent    AgentClient
	audit    AuditSink
	archiver ReportArchiver
	log      *slog.Logger
	siteURL  *regexp.Regexp

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int64
}

// New constructs the orchestrator. Builds run through the gateway when both
// GATEWAY_URL and GATEWAY_TOKEN are configured, otherwise through the simulator.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.cfg.PollInterval <= 0 {
		s.cfg.PollInterval = 5 * time.Second
	}
	if s.cfg.BuildTimeout <= 0 {
		s.cfg.BuildTimeout = 600 * time.Second
	}
	if s.agent == nil && cfg.GatewayConfigured() {
		s.agent = agent.NewClient(cfg.GatewayURL, cfg.GatewayToken, cfg.GatewayRequestTimeout)
	}
	re, err := compileSitePattern(cfg.SiteURLPattern)
	if err != nil {
		return nil, err
	}
	s.siteURL = re
	s.store = store.NewJobStore(s.clock)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Create validates the request, records a pending job and starts its task.
// It returns as soon as the job exists.
func (s *Service) Create(_ context.Context, req CreateRequest) (models.BuildJob, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return models.BuildJob{}, &ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	if strings.TrimSpace(req.Credential) == "" {
		return models.BuildJob{}, &ValidationError{Field: "credential", Message: "credential is required"}
	}
	if s.ctx.Err() != nil {
		return models.BuildJob{}, ErrClosed
	}
	if req.Style == "" {
		req.Style = defaultStyle
	}
	if req.ColorTheme == "" {
		req.ColorTheme = defaultColorTheme
	}

	mode := models.ModeSimulated
	if s.cfg.GatewayConfigured() && s.agent != nil {
		mode = models.ModeAgent
	}

	job, err := s.store.Create(store.CreateJobParams{
		Prompt:     req.Prompt,
		Credential: req.Credential,
		Style:      req.Style,
		ColorTheme: req.ColorTheme,
		Mode:       mode,
	})
	if err != nil {
		return models.BuildJob{}, err
	}
	telemetry.BuildsCreated.WithLabelValues(string(mode)).Inc()
	s.log.Info("build job created",
		"job_id", job.ID,
		"mode", mode,
		"style", job.Style,
		"color_theme", job.ColorTheme,
		"prompt_len", len(job.Prompt),
		"credential", job.RedactedCredential(),
	)

	if mode == models.ModeAgent {
		s.startTask(job, s.runAgent)
	} else {
		s.startTask(job, s.runSimulation)
	}
	return job, nil
}

// Get returns the current snapshot of a job without waiting on its task.
func (s *Service) Get(id string) (models.BuildJob, error) {
	return s.store.Get(id)
}

// ActiveTasks reports how many per-job tasks are still running.
func (s *Service) ActiveTasks() int64 {
	return s.active.Load()
}

// Stats summarises the registry for health checks.
func (s *Service) Stats() Stats {
	return Stats{
		Jobs:        s.store.Len(),
		ByStatus:    s.store.Counts(),
		ActiveTasks: s.ActiveTasks(),
		Gateway:     s.cfg.GatewayConfigured(),
	}
}

// Close stops every running task and waits for them to exit.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) startTask(job models.BuildJob, run func(ctx context.Context, job models.BuildJob)) {
	s.wg.Add(1)
	s.active.Add(1)
	telemetry.ActiveTasks.Inc()
	go func() {
		defer func() {
			s.active.Add(-1)
			telemetry.ActiveTasks.Dec()
			s.wg.Done()
		}()
		s.record(s.ctx, job, "created", string(job.Mode))
		run(s.ctx, job)
	}()
}

// transition applies fn to the job and reports whether the job is terminal
// afterwards. A job that went terminal through another writer reports true and
// fn is not applied.
func (s *Service) transition(ctx context.Context, id, event string, fn func(j *models.BuildJob) error) (models.BuildJob, bool) {
	job, err := s.store.Mutate(id, fn)
	switch {
	case err == nil:
	case errors.Is(err, errUnchanged):
		return job, false
	case errors.Is(err, store.ErrTerminal):
		s.log.Debug("transition skipped on terminal job", "job_id", id, "event", event, "status", job.Status)
		return job, true
	case errors.Is(err, store.ErrNotFound):
		s.log.Error("job vanished", "job_id", id, "event", event)
		return job, true
	default:
		s.log.Error("job transition rejected", "job_id", id, "event", event, "error", err)
		return job, job.Status.Terminal()
	}

	s.record(ctx, job, event, job.Error)
	if job.Status.Terminal() {
		s.finish(ctx, job, event)
	}
	return job, job.Status.Terminal()
}

func (s *Service) fail(ctx context.Context, id, event, reason string) {
	s.transition(ctx, id, event, func(j *models.BuildJob) error {
		j.Status = models.StatusFailed
		j.Error = reason
		return nil
	})
}

func (s *Service) complete(ctx context.Context, id, url string) bool {
	now := s.clock.Now().UTC()
	_, terminal := s.transition(ctx, id, "completed", func(j *models.BuildJob) error {
		j.Status = models.StatusComplete
		j.Step = models.FinalStep
		j.Result = models.Result{URL: url, DeployedAt: now}
		return nil
	})
	return terminal
}

func (s *Service) finish(ctx context.Context, job models.BuildJob, event string) {
	if job.Status == models.StatusComplete {
		telemetry.BuildsCompleted.WithLabelValues(string(job.Mode)).Inc()
		s.log.Info("build complete", "job_id", job.ID, "mode", job.Mode, "url", job.Result.URL)
	} else {
		telemetry.BuildsFailed.WithLabelValues(event).Inc()
		s.log.Warn("build failed", "job_id", job.ID, "mode", job.Mode, "error", job.Error)
	}

	if s.archiver == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	loc, err := s.archiver.Store(actx, job)
	if err != nil {
		s.log.Warn("archive build report", "job_id", job.ID, "error", err)
		return
	}
	s.log.Debug("build report archived", "job_id", job.ID, "location", loc)
}

func (s *Service) record(ctx context.Context, job models.BuildJob, event, detail string) {
	if s.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := s.audit.Append(actx, job, event, detail); err != nil {
		s.log.Warn("append audit event", "job_id", job.ID, "event", event, "error", err)
	}
}
