package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"vidsight/internal/jobs"
	"vidsight/internal/logging"
	"vidsight/internal/notifications"
	"vidsight/internal/pipeline"
	"vidsight/internal/progress"
	"vidsight/internal/staging"
	"vidsight/internal/step"
	"vidsight/internal/textutil"
)

// jobEvent is one message from a step goroutine to the job's run loop: either
// a progress report or a step outcome.
type jobEvent struct {
	step     pipeline.Step
	progress bool
	percent  float64
	message  string
	outcome  *stepOutcome
}

// stepOutcome describes one finished attempt. final marks the attempt that
// ends the step, either success or a failure the policy will not retry.
type stepOutcome struct {
	attempt   int
	output    json.RawMessage
	err       error
	kind      step.ErrorKind
	success   bool
	final     bool
	cancelled bool
	startedAt time.Time
	endedAt   time.Time
}

// runJob owns a claimed job until it reaches a terminal state. It is the only
// goroutine that mutates or persists the job record; step goroutines hand it
// progress and outcomes over the events channel.
func (m *Manager) runJob(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	m.trackJob(job.ID, cancelJob)
	defer m.untrackJob(job.ID)

	logger = logger.With(logging.String(logging.FieldJobID, job.ID))
	logger.Info("job started", logging.String(logging.FieldEventType, "job_started"))
	m.recorder.JobStarted()
	started := time.Now()

	status := m.driveJob(jobCtx, cancelJob, logger, job)

	// Failed jobs keep their staging directory for inspection; the stale
	// sweep at daemon startup reclaims it eventually.
	if status != jobs.StatusFailed {
		if err := staging.Remove(m.cfg.Paths.StagingDir, job.ID); err != nil {
			logger.Warn("staging cleanup failed", logging.Error(err))
		}
	}

	m.recorder.JobFinished(status, time.Since(started).Seconds())
	logger.Info("job finished",
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("status", string(status)))
}

func (m *Manager) driveJob(jobCtx context.Context, cancelJob context.CancelFunc, logger *slog.Logger, job *jobs.Job) jobs.Status {
	tracker := progress.NewTracker(m.graph)
	events := make(chan jobEvent, 64)
	completed := make(map[pipeline.Step]struct{}, m.graph.Len())
	outputs := make(map[pipeline.Step]json.RawMessage, m.graph.Len())
	launched := make(map[pipeline.Step]bool, m.graph.Len())
	running := 0
	lastPersisted := -1
	var failure *jobs.JobError

	launchReady := func() {
		if failure != nil || jobCtx.Err() != nil {
			return
		}
		for _, id := range m.graph.ReadyToRun(completed) {
			if launched[id] {
				continue
			}
			launched[id] = true
			running++
			exec := m.registry[id]
			req := &step.Request{
				JobID:     job.ID,
				SourceURL: job.SourceURL,
				Options:   job.Options,
				Outputs:   snapshotOutputs(outputs),
			}
			go m.runStep(jobCtx, exec, req, events)
		}
	}
	launchReady()

	heartbeats := m.heartbeatTicker()
	defer heartbeats.Stop()

	for running > 0 {
		select {
		case <-heartbeats.C():
			if err := m.store.UpdateHeartbeat(context.Background(), job.ID); err != nil {
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
			continue
		case ev := <-events:
			if ev.progress {
				overall := tracker.Record(ev.step, ev.percent)
				m.hub.Publish(job.ID, notifications.Event{
					Type:            notifications.EventProgress,
					Step:            ev.step,
					StepProgress:    tracker.StepProgress(ev.step),
					OverallProgress: overall,
					Message:         ev.message,
				})
				if overall != lastPersisted {
					lastPersisted = overall
					m.persistProgress(logger, job.ID, ev.step, overall)
				}
				continue
			}

			out := ev.outcome
			switch {
			case out.success:
				running--
				completed[ev.step] = struct{}{}
				outputs[ev.step] = out.output
				overall := tracker.Complete(ev.step)
				m.recorder.StepAttempt(ev.step, "success", out.endedAt.Sub(out.startedAt).Seconds())
				m.persistStepResult(logger, job.ID, jobs.StepResult{
					Step:      ev.step,
					Attempt:   out.attempt,
					State:     jobs.StepSucceeded,
					Success:   true,
					Data:      out.output,
					StartedAt: out.startedAt,
					EndedAt:   out.endedAt,
				}, overall)
				lastPersisted = overall
				m.hub.Publish(job.ID, notifications.Event{
					Type:            notifications.EventProgress,
					Step:            ev.step,
					StepProgress:    100,
					OverallProgress: overall,
					Message:         string(ev.step) + " completed",
				})
				logger.Info("step succeeded",
					logging.String(logging.FieldStep, string(ev.step)),
					logging.Int(logging.FieldAttempt, out.attempt),
					logging.Int(logging.FieldProgress, overall))
				launchReady()

			case out.cancelled:
				if out.final {
					running--
					m.persistStepResult(logger, job.ID, jobs.StepResult{
						Step:      ev.step,
						Attempt:   out.attempt,
						State:     jobs.StepCancelled,
						StartedAt: out.startedAt,
						EndedAt:   out.endedAt,
					}, lastPersisted)
				}

			default:
				m.recorder.StepAttempt(ev.step, string(out.kind), out.endedAt.Sub(out.startedAt).Seconds())
				m.persistStepResult(logger, job.ID, jobs.StepResult{
					Step:        ev.step,
					Attempt:     out.attempt,
					State:       jobs.StepFailed,
					ErrorKind:   out.kind,
					ErrorDetail: errorDetail(out.err),
					StartedAt:   out.startedAt,
					EndedAt:     out.endedAt,
				}, lastPersisted)
				logger.Warn("step attempt failed",
					logging.String(logging.FieldStep, string(ev.step)),
					logging.Int(logging.FieldAttempt, out.attempt),
					logging.String(logging.FieldErrorKind, string(out.kind)),
					logging.Error(out.err))
				if !out.final {
					continue
				}
				running--
				if failure == nil {
					failure = &jobs.JobError{
						Step:    ev.step,
						Kind:    out.kind,
						Message: errorDetail(out.err),
					}
					// An aborting failure cancels the job's siblings; their
					// cancelled outcomes drain before the terminal transition.
					cancelJob()
				}
			}
		}
	}

	switch {
	case failure != nil:
		return m.finishFailed(logger, job.ID, *failure, tracker.Overall())
	case jobCtx.Err() != nil:
		return m.finishCancelled(logger, job.ID, tracker.Overall())
	default:
		return m.finishCompleted(logger, job.ID, outputs[pipeline.StepFinalization])
	}
}

// persistProgress stores a progress-only update; persistence failures are
// logged and tolerated since the next update will carry the newer value.
func (m *Manager) persistProgress(logger *slog.Logger, jobID string, current pipeline.Step, overall int) {
	_, err := m.store.Update(context.Background(), jobID, func(j *jobs.Job) error {
		if overall > j.Progress {
			j.Progress = overall
		}
		j.CurrentStep = current.Label()
		return nil
	})
	if err != nil {
		logger.Warn("persist progress failed", logging.Error(err))
	}
}

func (m *Manager) persistStepResult(logger *slog.Logger, jobID string, result jobs.StepResult, overall int) {
	_, err := m.store.Update(context.Background(), jobID, func(j *jobs.Job) error {
		j.RecordStepResult(result)
		if overall > j.Progress {
			j.Progress = overall
		}
		return nil
	})
	if err != nil {
		logger.Warn("persist step result failed", logging.Error(err))
	}
}

func (m *Manager) finishCompleted(logger *slog.Logger, jobID string, result json.RawMessage) jobs.Status {
	_, err := m.store.Update(context.Background(), jobID, func(j *jobs.Job) error {
		j.SetCompleted(result)
		return nil
	})
	if err != nil {
		logger.Error("persist completed job failed", logging.Error(err))
	}
	m.hub.Publish(jobID, notifications.Event{
		Type:            notifications.EventCompleted,
		OverallProgress: 100,
		Message:         "analysis complete",
	})

	title, score := reportHeadline(result)
	m.notify(logger, func(ctx context.Context) error {
		return m.notifier.NotifyJobCompleted(ctx, jobID, title, score)
	})
	return jobs.StatusCompleted
}

func (m *Manager) finishFailed(logger *slog.Logger, jobID string, jobErr jobs.JobError, overall int) jobs.Status {
	updated, err := m.store.Update(context.Background(), jobID, func(j *jobs.Job) error {
		markUnstartedSkipped(j, m.graph)
		j.SetFailed(jobErr)
		return nil
	})
	if err != nil {
		logger.Error("persist failed job failed", logging.Error(err))
	}
	m.hub.Publish(jobID, notifications.Event{
		Type:            notifications.EventFailed,
		Step:            jobErr.Step,
		OverallProgress: overall,
		ErrorKind:       string(jobErr.Kind),
		Message:         jobErr.Message,
		StepResults:     m.stepSummaries(updated),
	})
	if jobErr.Kind == step.KindUnclassified {
		logger.Error("unclassified step error aborted job; policy table may need a new kind",
			logging.String(logging.FieldStep, string(jobErr.Step)),
			logging.String(logging.FieldErrorHint, "classify the underlying failure in the executor"))
	}
	m.notify(logger, func(ctx context.Context) error {
		return m.notifier.NotifyJobFailed(ctx, jobID, jobErr.Step, string(jobErr.Kind), jobErr.Message)
	})
	return jobs.StatusFailed
}

func (m *Manager) finishCancelled(logger *slog.Logger, jobID string, overall int) jobs.Status {
	_, err := m.store.Update(context.Background(), jobID, func(j *jobs.Job) error {
		markUnstartedSkipped(j, m.graph)
		j.SetCancelled()
		return nil
	})
	if err != nil {
		logger.Error("persist cancelled job failed", logging.Error(err))
	}
	m.hub.Publish(jobID, notifications.Event{
		Type:            notifications.EventCancelled,
		OverallProgress: overall,
		Message:         "job cancelled",
	})
	m.notify(logger, func(ctx context.Context) error {
		return m.notifier.NotifyJobCancelled(ctx, jobID)
	})
	return jobs.StatusCancelled
}

func (m *Manager) notify(logger *slog.Logger, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := send(ctx); err != nil {
		logger.Warn("notification delivery failed", logging.Error(err))
	}
}

// runStep executes one step to its final outcome, applying the retry policy
// between attempts. Exactly one final outcome is sent per invocation.
func (m *Manager) runStep(ctx context.Context, exec step.Executor, req *step.Request, events chan<- jobEvent) {
	id := exec.Step()
	report := func(percent float64, message string) {
		select {
		case events <- jobEvent{step: id, progress: true, percent: percent, message: message}:
		case <-ctx.Done():
		}
	}

	attempt := 1
	for {
		attemptCtx := ctx
		cancel := func() {}
		if m.stepTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, m.stepTimeout)
		}
		startedAt := time.Now()
		output, err := exec.Execute(attemptCtx, req, report)
		cancel()
		endedAt := time.Now()

		if err == nil {
			events <- jobEvent{step: id, outcome: &stepOutcome{
				attempt: attempt, output: output, success: true, final: true,
				startedAt: startedAt, endedAt: endedAt,
			}}
			return
		}
		if ctx.Err() != nil {
			events <- jobEvent{step: id, outcome: &stepOutcome{
				attempt: attempt, err: ctx.Err(), cancelled: true, final: true,
				startedAt: startedAt, endedAt: endedAt,
			}}
			return
		}

		kind := step.KindOf(err)
		decision := m.policy.Classify(kind)
		final := !decision.Retry || attempt >= decision.MaxAttempts
		events <- jobEvent{step: id, outcome: &stepOutcome{
			attempt: attempt, err: err, kind: kind, final: final,
			startedAt: startedAt, endedAt: endedAt,
		}}
		if final {
			return
		}

		select {
		case <-ctx.Done():
			events <- jobEvent{step: id, outcome: &stepOutcome{
				attempt: attempt, err: ctx.Err(), cancelled: true, final: true,
			}}
			return
		case <-time.After(decision.Delay(attempt)):
		}
		attempt++
	}
}

func snapshotOutputs(outputs map[pipeline.Step]json.RawMessage) map[pipeline.Step]json.RawMessage {
	snapshot := make(map[pipeline.Step]json.RawMessage, len(outputs))
	for k, v := range outputs {
		snapshot[k] = v
	}
	return snapshot
}

// stepSummaries flattens a job's step results into graph order for the
// failed-event payload.
func (m *Manager) stepSummaries(j *jobs.Job) []notifications.StepSummary {
	if j == nil {
		return nil
	}
	summaries := make([]notifications.StepSummary, 0, len(j.StepResults))
	for _, id := range m.graph.Steps() {
		res, ok := j.StepResults[id]
		if !ok {
			continue
		}
		summaries = append(summaries, notifications.StepSummary{
			Step:      id,
			State:     string(res.State),
			Attempt:   res.Attempt,
			ErrorKind: string(res.ErrorKind),
		})
	}
	return summaries
}

func markUnstartedSkipped(j *jobs.Job, graph *pipeline.Graph) {
	for _, id := range graph.Steps() {
		if _, ok := j.StepResults[id]; ok {
			continue
		}
		j.RecordStepResult(jobs.StepResult{Step: id, State: jobs.StepSkipped})
	}
}

const maxErrorDetail = 500

func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	return textutil.Truncate(err.Error(), maxErrorDetail)
}

// reportHeadline pulls the title and overall score out of the final report
// for the push notification; a report that will not decode just leaves them
// empty.
func reportHeadline(result json.RawMessage) (string, float64) {
	var rep struct {
		Summary struct {
			VideoTitle   string  `json:"video_title"`
			OverallScore float64 `json:"overall_score"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(result, &rep); err != nil {
		return "", 0
	}
	return rep.Summary.VideoTitle, rep.Summary.OverallScore
}
