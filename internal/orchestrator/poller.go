package orchestrator

import (
	"context"
	"time"

	"github.com/CandleNFT/forge/internal/agent"
	"github.com/CandleNFT/forge/internal/models"
	"github.com/CandleNFT/forge/internal/telemetry"
)

// Elapsed-time thresholds used to infer progress from free-form agent output.
const (
	constructAfter = 30 * time.Second
	styleAfter     = 60 * time.Second
)

func inferStep(elapsed time.Duration) int {
	switch {
	case elapsed >= styleAfter:
		return 3
	case elapsed >= constructAfter:
		return 2
	default:
		return 1
	}
}

// runAgent spawns the remote session and then polls it until the job is terminal.
func (s *Service) runAgent(ctx context.Context, job models.BuildJob) {
	ref, err := s.agent.Spawn(ctx, agent.SpawnRequest{
		Task:           agent.BuildTask(job.Prompt, job.Style, job.ColorTheme, job.Credential),
		Label:          agent.Label(job.ID),
		TimeoutSeconds: int(s.cfg.BuildTimeout / time.Second),
	})
	if err != nil {
		s.log.Error("spawn agent session", "job_id", job.ID, "error", err)
		s.fail(ctx, job.ID, "dispatch_failed", models.ErrorDispatchFailed)
		return
	}

	_, terminal := s.transition(ctx, job.ID, "dispatched", func(j *models.BuildJob) error {
		j.Status = models.StatusBuilding
		j.Step = max(j.Step, 1)
		j.SessionRef = ref
		return nil
	})
	if terminal {
		return
	}
	s.log.Info("agent session spawned", "job_id", job.ID, "session", ref)
	s.poll(ctx, job.ID, ref)
}

// poll ticks until pollOnce reports the job terminal or ctx is cancelled.
// The ticker is stopped on return so nothing fires for a finished job.
func (s *Service) poll(ctx context.Context, id, ref string) {
	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		if s.pollOnce(ctx, id, ref) {
			return
		}
	}
}

func (s *Service) pollOnce(ctx context.Context, id, ref string) bool {
	msg, err := s.agent.FetchLatest(ctx, ref)
	switch {
	case err != nil && ctx.Err() != nil:
		return true
	case err != nil:
		telemetry.PollErrors.Inc()
		s.log.Warn("poll agent session, retrying next tick", "job_id", id, "error", err)
	default:
		if url := s.siteURL.FindString(msg); url != "" {
			return s.complete(ctx, id, url)
		}
	}

	job, err := s.store.Get(id)
	if err != nil || job.Status.Terminal() {
		return true
	}

	elapsed := s.clock.Since(job.StartedAt)
	if elapsed >= s.cfg.BuildTimeout {
		s.log.Warn("build exceeded timeout", "job_id", id, "elapsed", elapsed.String(), "error", ErrTimeout)
		s.fail(ctx, id, "timed_out", models.ErrorTimedOut)
		return true
	}

	step := inferStep(elapsed)
	if step <= job.Step {
		return false
	}
	_, terminal := s.transition(ctx, id, "step", func(j *models.BuildJob) error {
		if step <= j.Step {
			return errUnchanged
		}
		j.Step = step
		return nil
	})
	return terminal
}
