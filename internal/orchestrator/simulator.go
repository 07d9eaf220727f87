package orchestrator

import (
	"context"
	"time"

	"github.com/CandleNFT/forge/internal/models"
)

type scriptStep struct {
	after  time.Duration
	status models.JobStatus
	step   int
}

// simulationScript walks a job from step 1 to a deployed site in 10 seconds.
var simulationScript = []scriptStep{
	{after: 2 * time.Second, status: models.StatusBuilding, step: 2},
	{after: 3 * time.Second, status: models.StatusBuilding, step: 3},
	{after: 3 * time.Second, status: models.StatusDeploying, step: models.FinalStep},
	{after: 2 * time.Second, status: models.StatusComplete, step: models.FinalStep},
}

// SimulatedDuration is the total scripted time of a simulated build.
func SimulatedDuration() time.Duration {
	var total time.Duration
	for _, st := range simulationScript {
		total += st.after
	}
	return total
}

// runSimulation drives a job through the fixed script without external calls.
func (s *Service) runSimulation(ctx context.Context, job models.BuildJob) {
	_, terminal := s.transition(ctx, job.ID, "started", func(j *models.BuildJob) error {
		j.Status = models.StatusBuilding
		j.Step = 1
		return nil
	})
	if terminal {
		return
	}

	for _, st := range simulationScript {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(st.after):
		}

		if st.status == models.StatusComplete {
			s.complete(ctx, job.ID, SimulatedSiteURL(job.Prompt))
			return
		}
		next := st
		if _, terminal := s.transition(ctx, job.ID, "step", func(j *models.BuildJob) error {
			j.Status = next.status
			j.Step = next.step
			return nil
		}); terminal {
			return
		}
	}
}
