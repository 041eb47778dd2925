package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vidsight/internal/config"
	"vidsight/internal/jobs"
	"vidsight/internal/logging"
	"vidsight/internal/notifications"
	"vidsight/internal/pipeline"
	"vidsight/internal/step"
	"vidsight/internal/testsupport"
)

type stubExecutor struct {
	id pipeline.Step
	fn func(ctx context.Context, req *step.Request, report step.ProgressFunc) (json.RawMessage, error)

	mu    sync.Mutex
	calls int
}

func (s *stubExecutor) Step() pipeline.Step { return s.id }

func (s *stubExecutor) HealthCheck(context.Context) step.Health {
	return step.Healthy(string(s.id))
}

func (s *stubExecutor) Execute(ctx context.Context, req *step.Request, report step.ProgressFunc) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, req, report)
	}
	return json.RawMessage(fmt.Sprintf(`{"step":%q}`, s.id)), nil
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type captureNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	cancelled []string
}

func (c *captureNotifier) NotifyJobCompleted(_ context.Context, jobID, _ string, _ float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, jobID)
	return nil
}

func (c *captureNotifier) NotifyJobFailed(_ context.Context, jobID string, _ pipeline.Step, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, jobID)
	return nil
}

func (c *captureNotifier) NotifyJobCancelled(_ context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, jobID)
	return nil
}

func (c *captureNotifier) TestNotification(context.Context) error { return nil }

func okStub(id pipeline.Step) *stubExecutor {
	return &stubExecutor{id: id}
}

func allOKStubs() []*stubExecutor {
	return []*stubExecutor{
		okStub(pipeline.StepExtraction),
		okStub(pipeline.StepTranscription),
		okStub(pipeline.StepContentAnalysis),
		okStub(pipeline.StepCommentAnalysis),
		okStub(pipeline.StepFinalization),
	}
}

func fastPolicy() step.Policy {
	return step.Policy{
		TransientMaxAttempts: 3,
		TransientBackoff:     time.Millisecond,
		RateLimitMaxAttempts: 5,
		RateLimitBackoff:     time.Millisecond,
	}
}

type harness struct {
	cfg      *config.Config
	store    *jobs.Store
	manager  *Manager
	notifier *captureNotifier
}

func newHarness(t *testing.T, stubs []*stubExecutor) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	executors := make([]step.Executor, len(stubs))
	for i, s := range stubs {
		executors[i] = s
	}
	registry, err := step.NewRegistry(executors...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	notifier := &captureNotifier{}
	manager := NewManager(cfg, store, registry, nil, nil, logging.NewNop(),
		WithNotifier(notifier), WithPolicy(fastPolicy()))
	return &harness{cfg: cfg, store: store, manager: manager, notifier: notifier}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

func (h *harness) submit(t *testing.T) *jobs.Job {
	t.Helper()
	return testsupport.NewJob(t, h.store, "https://youtu.be/dQw4w9WgXcQ")
}

func waitForStatus(t *testing.T, store *jobs.Store, jobID string, want jobs.Status) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job.Status == want {
			return job
		}
		if job.Status.Terminal() {
			t.Fatalf("job reached %s, want %s (error: %+v)", job.Status, want, job.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job did not reach %s in time", want)
	return nil
}

func collectEvents(t *testing.T, sub *notifications.Subscriber) []notifications.Event {
	t.Helper()
	var events []notifications.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("event stream did not close; got %d events", len(events))
		}
	}
}

func TestJobRunsToCompletion(t *testing.T) {
	h := newHarness(t, allOKStubs())
	job := h.submit(t)
	sub := h.manager.Hub().Subscribe(job.ID)
	h.start(t)

	done := waitForStatus(t, h.store, job.ID, jobs.StatusCompleted)
	events := collectEvents(t, sub)

	if done.Progress != 100 {
		t.Fatalf("progress = %d, want 100", done.Progress)
	}
	if len(done.Result) == 0 {
		t.Fatal("completed job has no result payload")
	}
	for _, id := range pipeline.Default().Steps() {
		res, ok := done.StepResults[id]
		if !ok || res.State != jobs.StepSucceeded {
			t.Fatalf("step %s result = %+v", id, res)
		}
	}

	if len(events) == 0 {
		t.Fatal("no events received")
	}
	last := events[len(events)-1]
	if last.Type != notifications.EventCompleted {
		t.Fatalf("last event type = %s, want completed", last.Type)
	}
	prev := -1
	seen := map[int]bool{}
	for i, ev := range events {
		if ev.Type.Terminal() && i != len(events)-1 {
			t.Fatalf("terminal event at index %d of %d", i, len(events))
		}
		if ev.OverallProgress < prev {
			t.Fatalf("overall progress regressed: %d then %d", prev, ev.OverallProgress)
		}
		prev = ev.OverallProgress
		seen[ev.OverallProgress] = true
	}
	for _, checkpoint := range []int{20, 95, 100} {
		if !seen[checkpoint] {
			t.Fatalf("missing overall progress checkpoint %d in %v", checkpoint, events)
		}
	}

	if len(h.notifier.completed) != 1 {
		t.Fatalf("completion notifications = %v", h.notifier.completed)
	}
}

func TestValidationErrorAbortsWithoutRetry(t *testing.T) {
	stubs := allOKStubs()
	stubs[0].fn = func(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
		return nil, step.Wrap(step.ErrValidation, "extraction", "parse source", "bad URL", nil)
	}
	h := newHarness(t, stubs)
	job := h.submit(t)
	sub := h.manager.Hub().Subscribe(job.ID)
	h.start(t)

	done := waitForStatus(t, h.store, job.ID, jobs.StatusFailed)

	if stubs[0].callCount() != 1 {
		t.Fatalf("extraction attempts = %d, want 1", stubs[0].callCount())
	}
	if done.Error == nil || done.Error.Kind != step.KindValidation {
		t.Fatalf("job error = %+v", done.Error)
	}
	if done.Error.Step != pipeline.StepExtraction {
		t.Fatalf("failing step = %s", done.Error.Step)
	}
	for _, id := range []pipeline.Step{pipeline.StepTranscription, pipeline.StepCommentAnalysis, pipeline.StepFinalization} {
		if res := done.StepResults[id]; res.State != jobs.StepSkipped {
			t.Fatalf("step %s state = %s, want skipped", id, res.State)
		}
	}

	events := collectEvents(t, sub)
	last := events[len(events)-1]
	if last.Type != notifications.EventFailed || last.ErrorKind != string(step.KindValidation) {
		t.Fatalf("last event = %+v", last)
	}
	if len(h.notifier.failed) != 1 {
		t.Fatalf("failure notifications = %v", h.notifier.failed)
	}
}

func TestFailedEventCarriesStepDispositions(t *testing.T) {
	stubs := allOKStubs()
	stubs[1].fn = func(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
		return nil, step.Wrap(step.ErrValidation, "transcription", "validate audio", "unreadable audio", nil)
	}
	// comment analysis runs alongside transcription and is interrupted by the abort
	stubs[3].fn = func(ctx context.Context, _ *step.Request, _ step.ProgressFunc) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newHarness(t, stubs)
	job := h.submit(t)
	sub := h.manager.Hub().Subscribe(job.ID)
	h.start(t)

	waitForStatus(t, h.store, job.ID, jobs.StatusFailed)
	events := collectEvents(t, sub)

	last := events[len(events)-1]
	if last.Type != notifications.EventFailed {
		t.Fatalf("last event = %+v", last)
	}
	if len(last.StepResults) != len(pipeline.Default().Steps()) {
		t.Fatalf("failed event step results = %+v", last.StepResults)
	}
	byStep := map[pipeline.Step]notifications.StepSummary{}
	for _, s := range last.StepResults {
		byStep[s.Step] = s
	}
	if got := byStep[pipeline.StepExtraction]; got.State != string(jobs.StepSucceeded) {
		t.Fatalf("extraction summary = %+v", got)
	}
	tr := byStep[pipeline.StepTranscription]
	if tr.State != string(jobs.StepFailed) || tr.ErrorKind != string(step.KindValidation) {
		t.Fatalf("transcription summary = %+v", tr)
	}
	if got := byStep[pipeline.StepCommentAnalysis]; got.State != string(jobs.StepCancelled) {
		t.Fatalf("comment analysis summary = %+v", got)
	}
	for _, id := range []pipeline.Step{pipeline.StepContentAnalysis, pipeline.StepFinalization} {
		if got := byStep[id]; got.State != string(jobs.StepSkipped) {
			t.Fatalf("%s summary = %+v", id, got)
		}
	}
}

func TestTransientErrorRetriesToBudget(t *testing.T) {
	stubs := allOKStubs()
	stubs[1].fn = func(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
		return nil, step.Wrap(step.ErrTransient, "transcription", "transcribe audio", "upstream unavailable", nil)
	}
	h := newHarness(t, stubs)
	job := h.submit(t)
	h.start(t)

	done := waitForStatus(t, h.store, job.ID, jobs.StatusFailed)

	if got := stubs[1].callCount(); got != 3 {
		t.Fatalf("transcription attempts = %d, want 3", got)
	}
	if done.Error == nil || done.Error.Kind != step.KindTransient {
		t.Fatalf("job error = %+v", done.Error)
	}
	res := done.StepResults[pipeline.StepTranscription]
	if res.State != jobs.StepFailed || res.Attempt != 3 {
		t.Fatalf("transcription result = %+v", res)
	}
	// extraction finished before the abort and keeps its success
	if done.StepResults[pipeline.StepExtraction].State != jobs.StepSucceeded {
		t.Fatalf("extraction result = %+v", done.StepResults[pipeline.StepExtraction])
	}
}

func TestTransientRecoveryWithinBudget(t *testing.T) {
	stubs := allOKStubs()
	var mu sync.Mutex
	failures := 2
	stubs[1].fn = func(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return nil, step.Wrap(step.ErrTransient, "transcription", "transcribe audio", "flaky", nil)
		}
		return json.RawMessage(`{"ok":true}`), nil
	}
	h := newHarness(t, stubs)
	job := h.submit(t)
	h.start(t)

	done := waitForStatus(t, h.store, job.ID, jobs.StatusCompleted)

	if got := stubs[1].callCount(); got != 3 {
		t.Fatalf("transcription attempts = %d, want 3", got)
	}
	res := done.StepResults[pipeline.StepTranscription]
	if res.State != jobs.StepSucceeded || res.Attempt != 3 {
		t.Fatalf("transcription result = %+v", res)
	}
}

func TestCancelRunningJobRecordsCompletedSteps(t *testing.T) {
	stubs := allOKStubs()
	extractionDone := make(chan struct{})
	stubs[0].fn = func(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
		defer close(extractionDone)
		return json.RawMessage(`{"step":"extraction"}`), nil
	}
	stubs[1].fn = func(ctx context.Context, _ *step.Request, _ step.ProgressFunc) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newHarness(t, stubs)
	job := h.submit(t)
	sub := h.manager.Hub().Subscribe(job.ID)
	h.start(t)

	<-extractionDone
	// let the run loop persist extraction's success before cancelling
	waitFor(t, func() bool {
		j, err := h.store.GetByID(context.Background(), job.ID)
		return err == nil && j.StepResults[pipeline.StepExtraction].State == jobs.StepSucceeded
	})

	if err := h.manager.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	done := waitForStatus(t, h.store, job.ID, jobs.StatusCancelled)
	if done.StepResults[pipeline.StepExtraction].State != jobs.StepSucceeded {
		t.Fatalf("extraction result = %+v", done.StepResults[pipeline.StepExtraction])
	}
	// transcription was in flight when the job was cancelled; only the
	// never-scheduled steps are skipped
	if done.StepResults[pipeline.StepTranscription].State != jobs.StepCancelled {
		t.Fatalf("transcription result = %+v", done.StepResults[pipeline.StepTranscription])
	}
	if done.StepResults[pipeline.StepContentAnalysis].State != jobs.StepSkipped {
		t.Fatalf("content analysis result = %+v", done.StepResults[pipeline.StepContentAnalysis])
	}
	if done.StepResults[pipeline.StepFinalization].State != jobs.StepSkipped {
		t.Fatalf("finalization result = %+v", done.StepResults[pipeline.StepFinalization])
	}

	events := collectEvents(t, sub)
	if events[len(events)-1].Type != notifications.EventCancelled {
		t.Fatalf("last event = %+v", events[len(events)-1])
	}
	if len(h.notifier.cancelled) != 1 {
		t.Fatalf("cancellation notifications = %v", h.notifier.cancelled)
	}
}

func TestCancelPendingJob(t *testing.T) {
	h := newHarness(t, allOKStubs())
	job := h.submit(t)

	if err := h.manager.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, err := h.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != jobs.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestStartPrunesExpiredFinishedJobs(t *testing.T) {
	h := newHarness(t, allOKStubs())

	expired := h.submit(t)
	finishedAt := time.Now().Add(-40 * 24 * time.Hour)
	_, err := h.store.Update(context.Background(), expired.ID, func(j *jobs.Job) error {
		j.SetCompleted(json.RawMessage(`{}`))
		j.CompletedAt = &finishedAt
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	h.manager.Hub().Publish(expired.ID, notifications.Event{Type: notifications.EventCompleted})

	recent := h.submit(t)
	if _, err := h.store.Update(context.Background(), recent.ID, func(j *jobs.Job) error {
		j.SetCompleted(json.RawMessage(`{}`))
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	h.start(t)

	if _, err := h.store.GetByID(context.Background(), expired.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expired job lookup error = %v, want ErrNotFound", err)
	}
	if _, err := h.store.GetByID(context.Background(), recent.ID); err != nil {
		t.Fatalf("recent job was pruned: %v", err)
	}

	// the hub forgot the pruned job, so a fresh stream is open again
	sub := h.manager.Hub().Subscribe(expired.ID)
	defer sub.Close()
	select {
	case _, open := <-sub.Events():
		if !open {
			t.Fatal("subscription for pruned job is still closed")
		}
		t.Fatal("unexpected event for pruned job")
	default:
	}
}

func TestCancelFinishedJob(t *testing.T) {
	h := newHarness(t, allOKStubs())
	job := h.submit(t)
	h.start(t)
	waitForStatus(t, h.store, job.ID, jobs.StatusCompleted)

	err := h.manager.Cancel(context.Background(), job.ID)
	if !errors.Is(err, ErrJobFinished) {
		t.Fatalf("Cancel error = %v, want ErrJobFinished", err)
	}
}

func TestStartRejectsIncompleteRegistry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry, err := step.NewRegistry(okStub(pipeline.StepExtraction))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	manager := NewManager(cfg, store, registry, nil, nil, logging.NewNop())
	if err := manager.Start(context.Background()); err == nil {
		manager.Stop()
		t.Fatal("expected Start to fail with missing executors")
	}
}

func TestStepOutputsFlowToDependents(t *testing.T) {
	stubs := allOKStubs()
	var gotExtraction json.RawMessage
	var mu sync.Mutex
	stubs[0].fn = func(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
		return json.RawMessage(`{"video_id":"abc123xyz45"}`), nil
	}
	stubs[1].fn = func(_ context.Context, req *step.Request, _ step.ProgressFunc) (json.RawMessage, error) {
		mu.Lock()
		gotExtraction, _ = req.Output(pipeline.StepExtraction)
		mu.Unlock()
		return json.RawMessage(`{}`), nil
	}
	h := newHarness(t, stubs)
	job := h.submit(t)
	h.start(t)
	waitForStatus(t, h.store, job.ID, jobs.StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	if string(gotExtraction) != `{"video_id":"abc123xyz45"}` {
		t.Fatalf("transcription saw extraction output %q", gotExtraction)
	}
}

func TestUnclassifiedErrorAborts(t *testing.T) {
	stubs := allOKStubs()
	stubs[0].fn = func(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
		return nil, errors.New("something nobody classified")
	}
	h := newHarness(t, stubs)
	job := h.submit(t)
	h.start(t)

	done := waitForStatus(t, h.store, job.ID, jobs.StatusFailed)
	if stubs[0].callCount() != 1 {
		t.Fatalf("attempts = %d, want 1", stubs[0].callCount())
	}
	if done.Error == nil || done.Error.Kind != step.KindUnclassified {
		t.Fatalf("job error = %+v", done.Error)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
