package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/CandleNFT/forge/internal/models"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when mutating a job that already completed or failed.
	ErrTerminal = errors.New("job is terminal")
	// ErrInvalidTransition is returned when a mutation would move status or step backwards.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// JobStore is the in-memory registry of build jobs. The map lock is only held
// for lookups and inserts; each job carries its own lock so that work on one
// job never stalls reads of another.
type JobStore struct {
	clock clockwork.Clock

	mu   sync.RWMutex
	jobs map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	job models.BuildJob
}

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	Prompt     string
	Credential string
	Style      string
	ColorTheme string
	Mode       models.Mode
}

// NewJobStore builds an empty store. A nil clock means wall time.
func NewJobStore(clock clockwork.Clock) *JobStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JobStore{
		clock: clock,
		jobs:  make(map[string]*entry),
	}
}

// Create inserts a pending job under a fresh id.
func (s *JobStore) Create(p CreateJobParams) (models.BuildJob, error) {
	job := models.BuildJob{
		Status:     models.StatusPending,
		Mode:       p.Mode,
		Prompt:     p.Prompt,
		Style:      p.Style,
		ColorTheme: p.ColorTheme,
		Credential: p.Credential,
		StartedAt:  s.clock.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := uuid.NewString()
		if _, taken := s.jobs[id]; taken {
			continue
		}
		job.ID = id
		s.jobs[id] = &entry{job: job}
		return job, nil
	}
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(id string) (models.BuildJob, error) {
	e, err := s.lookup(id)
	if err != nil {
		return models.BuildJob{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, nil
}

// Mutate applies fn to the job atomically with respect to other mutations of
// the same job. Terminal jobs are never handed to fn. If fn returns an error or
// leaves the job in a state that breaks the lifecycle rules, the job is left
// unchanged.
func (s *JobStore) Mutate(id string, fn func(job *models.BuildJob) error) (models.BuildJob, error) {
	e, err := s.lookup(id)
	if err != nil {
		return models.BuildJob{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.job
	if before.Status.Terminal() {
		return before, ErrTerminal
	}
	next := before
	if err := fn(&next); err != nil {
		return before, err
	}
	if err := validateTransition(before, next); err != nil {
		return before, err
	}
	if next.Status.Terminal() && next.FinishedAt == nil {
		now := s.clock.Now().UTC()
		next.FinishedAt = &now
	}
	e.job = next
	return next, nil
}

// Len reports how many jobs are tracked.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Counts tallies jobs by status.
func (s *JobStore) Counts() map[models.JobStatus]int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make(map[models.JobStatus]int)
	for _, e := range entries {
		e.mu.Lock()
		out[e.job.Status]++
		e.mu.Unlock()
	}
	return out
}

func (s *JobStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func validateTransition(before, next models.BuildJob) error {
	if next.ID != before.ID || !next.StartedAt.Equal(before.StartedAt) {
		return fmt.Errorf("%w: identity fields are immutable", ErrInvalidTransition)
	}
	if next.Status.Rank() < before.Status.Rank() || next.Status.Rank() < 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Status, next.Status)
	}
	if next.Step < before.Step {
		return fmt.Errorf("%w: step %d -> %d", ErrInvalidTransition, before.Step, next.Step)
	}
	if (next.Status == models.StatusComplete) != (next.Result.URL != "") {
		return fmt.Errorf("%w: result url must be set exactly when complete", ErrInvalidTransition)
	}
	if (next.Status == models.StatusFailed) != (next.Error != "") {
		return fmt.Errorf("%w: error must be set exactly when failed", ErrInvalidTransition)
	}
	return nil
}
