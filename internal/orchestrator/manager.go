package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vidsight/internal/config"
	"vidsight/internal/jobs"
	"vidsight/internal/logging"
	"vidsight/internal/metrics"
	"vidsight/internal/notifications"
	"vidsight/internal/pipeline"
	"vidsight/internal/step"
)

// ErrJobFinished is returned by Cancel when the job is already terminal.
var ErrJobFinished = errors.New("job already finished")

// Manager coordinates job processing using the registered step executors.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	registry step.Registry
	graph    *pipeline.Graph
	logger   *slog.Logger
	notifier notifications.Service
	hub      *notifications.Hub
	recorder *metrics.Recorder
	policy   step.Policy

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	stepTimeout        time.Duration
	heartbeatTimeout   time.Duration
	retention          time.Duration
	workerCount        int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  map[string]context.CancelFunc
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithNotifier overrides the push-notification service (used in tests).
func WithNotifier(n notifications.Service) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithGraph overrides the default step graph.
func WithGraph(g *pipeline.Graph) Option {
	return func(m *Manager) { m.graph = g }
}

// WithPolicy overrides the retry policy.
func WithPolicy(p step.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// NewManager constructs an orchestrator over the given store and executors.
func NewManager(cfg *config.Config, store *jobs.Store, registry step.Registry, hub *notifications.Hub, recorder *metrics.Recorder, logger *slog.Logger, opts ...Option) *Manager {
	if hub == nil {
		hub = notifications.NewHub(cfg.Notifications.SubscriberBuffer)
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		registry:           registry,
		graph:              pipeline.Default(),
		logger:             logging.NewComponentLogger(logger, "orchestrator"),
		notifier:           notifications.NewService(cfg),
		hub:                hub,
		recorder:           recorder,
		policy:             policyFromConfig(cfg),
		pollInterval:       time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		stepTimeout:        time.Duration(cfg.Workflow.StepTimeout) * time.Second,
		heartbeatTimeout:   time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
		retention:          time.Duration(cfg.Workflow.JobRetentionDays) * 24 * time.Hour,
		workerCount:        cfg.Workflow.JobWorkerCount,
		active:             make(map[string]context.CancelFunc),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	if m.errorRetryInterval <= 0 {
		m.errorRetryInterval = 5 * time.Second
	}
	if m.workerCount <= 0 {
		m.workerCount = 1
	}
	hub.OnDrop(recorder.EventDropped)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func policyFromConfig(cfg *config.Config) step.Policy {
	policy := step.DefaultPolicy()
	if cfg.Retry.TransientMaxAttempts > 0 {
		policy.TransientMaxAttempts = cfg.Retry.TransientMaxAttempts
	}
	if cfg.Retry.TransientBackoffMS > 0 {
		policy.TransientBackoff = time.Duration(cfg.Retry.TransientBackoffMS) * time.Millisecond
	}
	if cfg.Retry.RateLimitMaxAttempts > 0 {
		policy.RateLimitMaxAttempts = cfg.Retry.RateLimitMaxAttempts
	}
	if cfg.Retry.RateLimitBackoffMS > 0 {
		policy.RateLimitBackoff = time.Duration(cfg.Retry.RateLimitBackoffMS) * time.Millisecond
	}
	return policy
}

// Hub returns the event hub jobs publish to.
func (m *Manager) Hub() *notifications.Hub {
	return m.hub
}

// Start validates the executor registry, reclaims jobs abandoned by an
// earlier process, and launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	if err := m.registry.Validate(m.graph); err != nil {
		m.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workerCount)
	m.mu.Unlock()

	if reclaimed, err := m.store.ReclaimAbandoned(runCtx, m.heartbeatTimeout); err != nil {
		m.logger.Warn("reclaim abandoned jobs failed; stale jobs may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "reclaim_failed"))
	} else if reclaimed > 0 {
		m.logger.Info("reclaimed abandoned jobs", logging.Int("count", reclaimed))
	}
	m.pruneFinished(runCtx)

	for i := 0; i < m.workerCount; i++ {
		go m.runWorker(runCtx, i)
	}
	return nil
}

// pruneFinished deletes terminal jobs that finished longer ago than the
// retention window and drops their hub markers so neither the job table nor
// the hub's done set grows without bound.
func (m *Manager) pruneFinished(ctx context.Context) {
	if m.retention <= 0 {
		return
	}
	finished, err := m.store.ListByStatus(ctx, jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled)
	if err != nil {
		m.logger.Warn("list finished jobs failed; retention sweep skipped", logging.Error(err))
		return
	}
	cutoff := time.Now().Add(-m.retention)
	pruned := 0
	for _, job := range finished {
		if job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, job.ID); err != nil {
			m.logger.Warn("delete expired job failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
			continue
		}
		m.hub.Forget(job.ID)
		pruned++
	}
	if pruned > 0 {
		m.logger.Info("pruned finished jobs", logging.Int("count", pruned))
	}
}

// Stop terminates background processing and waits for in-flight jobs to
// settle into a terminal state.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Cancel requests cancellation of a job. A pending job transitions to
// Cancelled directly; a running job's context is cancelled and its run loop
// drains in-flight steps before the terminal transition. Cancelling a job
// that already finished returns ErrJobFinished.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	// The store is checked before the in-flight table: terminal status is
	// persisted before a run loop untracks its job, so this ordering cannot
	// cancel an already-finished job.
	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}

	m.mu.Lock()
	cancelJob, inFlight := m.active[jobID]
	m.mu.Unlock()
	if inFlight {
		cancelJob()
		return nil
	}

	switch job.Status {
	case jobs.StatusPending:
		if _, err := m.store.Update(ctx, jobID, func(j *jobs.Job) error {
			if j.Status != jobs.StatusPending {
				return fmt.Errorf("job no longer pending")
			}
			j.SetCancelled()
			return nil
		}); err != nil {
			return err
		}
		m.hub.Publish(jobID, notifications.Event{Type: notifications.EventCancelled})
		return nil
	default:
		// Running but not tracked here: claimed by another process instance
		// or mid-handoff. The caller can retry.
		return fmt.Errorf("job %s is not cancellable from this orchestrator right now", jobID)
	}
}

// Health reports the readiness of every registered executor.
func (m *Manager) Health(ctx context.Context) []step.Health {
	checks := make([]step.Health, 0, m.graph.Len())
	for _, id := range m.graph.Steps() {
		exec, ok := m.registry[id]
		if !ok {
			checks = append(checks, step.Unhealthy(string(id), "no executor registered"))
			continue
		}
		checks = append(checks, exec.HealthCheck(ctx))
	}
	return checks
}

func (m *Manager) trackJob(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.active[jobID] = cancel
	m.mu.Unlock()
}

func (m *Manager) untrackJob(jobID string) {
	m.mu.Lock()
	delete(m.active, jobID)
	m.mu.Unlock()
}
