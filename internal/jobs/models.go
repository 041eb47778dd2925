package jobs

import (
	"encoding/json"
	"strings"
	"time"

	"vidsight/internal/pipeline"
	"vidsight/internal/step"
)

// Status represents the lifecycle of an analysis job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StepState is the terminal disposition of one step within a job.
type StepState string

const (
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
	// StepCancelled marks a step whose attempt was interrupted mid-flight;
	// StepSkipped is reserved for steps that were never scheduled.
	StepCancelled StepState = "cancelled"
	StepSkipped   StepState = "skipped"
)

// StepResult is the immutable outcome of one attempt of one step. The job
// keeps one entry per attempted step, overwritten by the latest attempt.
type StepResult struct {
	Step        pipeline.Step   `json:"step"`
	Attempt     int             `json:"attempt"`
	State       StepState       `json:"state"`
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	ErrorKind   step.ErrorKind  `json:"error_kind,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     time.Time       `json:"ended_at"`
}

// JobError identifies the step and classified kind behind a failed job. Only
// Kind and Message are stable; step-internal detail is never displayed verbatim.
type JobError struct {
	Step    pipeline.Step  `json:"step"`
	Kind    step.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// Job is one user-submitted analysis request persisted in SQLite.
type Job struct {
	ID          string
	SourceURL   string
	Options     map[string]string
	Status      Status
	Progress    int
	CurrentStep string
	StepResults map[pipeline.Step]StepResult
	Result      json.RawMessage
	Error       *JobError

	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	LastHeartbeat *time.Time
}

// RecordStepResult stores the latest attempt for a step, replacing any earlier one.
func (j *Job) RecordStepResult(res StepResult) {
	if j.StepResults == nil {
		j.StepResults = make(map[pipeline.Step]StepResult)
	}
	j.StepResults[res.Step] = res
}

// SetFailed moves the job to Failed, retaining whatever progress had been
// reached for diagnostics.
func (j *Job) SetFailed(jobErr JobError) {
	j.Status = StatusFailed
	j.Error = &jobErr
	j.CurrentStep = "Failed"
	j.LastHeartbeat = nil
}

// SetCompleted moves the job to Completed with the aggregated report.
func (j *Job) SetCompleted(report json.RawMessage) {
	j.Status = StatusCompleted
	j.Result = report
	j.Progress = 100
	j.CurrentStep = "Completed"
	j.Error = nil
	j.LastHeartbeat = nil
}

// SetCancelled moves the job to Cancelled, keeping partial results and progress.
func (j *Job) SetCancelled() {
	j.Status = StatusCancelled
	j.CurrentStep = "Cancelled"
	j.LastHeartbeat = nil
}
