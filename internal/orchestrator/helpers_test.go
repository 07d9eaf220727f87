package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/CandleNFT/forge/internal/agent"
	"github.com/CandleNFT/forge/internal/config"
	"github.com/CandleNFT/forge/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeAgent replays scripted messages; each fetch is signalled on fetched.
type fakeAgent struct {
	mu        sync.Mutex
	spawnErr  error
	spawned   []agent.SpawnRequest
	messages  []string
	failFirst int
	fetches   int
	fetched   chan struct{}
}

func newFakeAgent(messages ...string) *fakeAgent {
	return &fakeAgent{messages: messages, fetched: make(chan struct{}, 1024)}
}

func (f *fakeAgent) Spawn(_ context.Context, req agent.SpawnRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, req)
	if f.spawnErr != nil {
		return "", f.spawnErr
	}
	return "sess-1", nil
}

func (f *fakeAgent) FetchLatest(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.fetches++
	n := f.fetches
	var msg string
	if len(f.messages) > 0 {
		idx := n - 1 - f.failFirst
		if idx >= len(f.messages) {
			idx = len(f.messages) - 1
		}
		if idx >= 0 {
			msg = f.messages[idx]
		}
	}
	fail := n <= f.failFirst
	f.mu.Unlock()

	f.fetched <- struct{}{}
	if fail {
		return "", errors.New("connection reset")
	}
	return msg, nil
}

func (f *fakeAgent) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeAgent) waitFetch(t *testing.T) {
	t.Helper()
	select {
	case <-f.fetched:
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for a poll tick")
	}
}

type auditEntry struct {
	event  string
	status models.JobStatus
	step   int
}

type fakeAudit struct {
	mu     sync.Mutex
	events map[string][]auditEntry
}

func (a *fakeAudit) Append(_ context.Context, job models.BuildJob, event, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.events == nil {
		a.events = make(map[string][]auditEntry)
	}
	a.events[job.ID] = append(a.events[job.ID], auditEntry{event: event, status: job.Status, step: job.Step})
	return nil
}

func (a *fakeAudit) trail(id string) []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auditEntry(nil), a.events[id]...)
}

type fakeArchiver struct {
	mu   sync.Mutex
	jobs []models.BuildJob
}

func (a *fakeArchiver) Store(_ context.Context, job models.BuildJob) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job)
	return "mem://" + job.ID, nil
}

func (a *fakeArchiver) stored() []models.BuildJob {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.BuildJob(nil), a.jobs...)
}

func gatewayConfig() config.Config {
	return config.Config{
		GatewayURL:   "http://gateway.test",
		GatewayToken: "gw-token",
		PollInterval: 5 * time.Second,
		BuildTimeout: 600 * time.Second,
	}
}

func newTestService(t *testing.T, cfg config.Config, opts ...Option) (*Service, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	svc, err := New(cfg, append([]Option{WithClock(fc)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, fc
}

func validRequest() CreateRequest {
	return CreateRequest{Prompt: "A coffee shop site", Credential: "tok_abc"}
}

func blockUntilWaiting(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1), "task never waited on the clock")
}

func requireInvariants(t *testing.T, job models.BuildJob) {
	t.Helper()
	require.Equal(t, job.Status == models.StatusComplete, job.Result.URL != "", "url iff complete: %+v", job)
	require.Equal(t, job.Status == models.StatusFailed, job.Error != "", "error iff failed: %+v", job)
}

func eventually(t *testing.T, svc *Service, id string, cond func(models.BuildJob) bool) models.BuildJob {
	t.Helper()
	var last models.BuildJob
	require.Eventually(t, func() bool {
		job, err := svc.Get(id)
		if err != nil {
			return false
		}
		last = job
		return cond(job)
	}, waitFor, tick, "job never reached expected state")
	return last
}
