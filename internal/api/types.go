// Package api exposes the analysis service over HTTP: job submission and
// inspection, report retrieval and export, live event streaming, service
// status, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"time"

	"vidsight/internal/jobs"
	"vidsight/internal/pipeline"
	"vidsight/internal/step"
)

// Orchestrator is the slice of the job manager the API needs.
type Orchestrator interface {
	Cancel(ctx context.Context, jobID string) error
	Health(ctx context.Context) []step.Health
}

// SubmitRequest is the body of POST /api/v1/jobs.
type SubmitRequest struct {
	SourceURL string            `json:"source_url"`
	Options   map[string]string `json:"options,omitempty"`
}

// StepResult mirrors a persisted step outcome for API consumers.
type StepResult struct {
	Step        string          `json:"step"`
	Attempt     int             `json:"attempt,omitempty"`
	State       string          `json:"state"`
	Data        json.RawMessage `json:"data,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
}

// JobError is the classified failure surfaced on a failed job.
type JobError struct {
	Step    string `json:"step"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is the API rendering of a stored job. Result payloads are served by the
// dedicated result and export endpoints, not inlined here.
type Job struct {
	ID          string            `json:"id"`
	SourceURL   string            `json:"source_url"`
	Options     map[string]string `json:"options,omitempty"`
	Status      string            `json:"status"`
	Progress    int               `json:"progress"`
	CurrentStep string            `json:"current_step,omitempty"`
	StepResults []StepResult      `json:"step_results,omitempty"`
	Error       *JobError         `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// JobListResponse wraps GET /api/v1/jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// StepHealth reports one executor's readiness in the status payload.
type StepHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StatusResponse wraps GET /api/v1/status.
type StatusResponse struct {
	Running bool           `json:"running"`
	PID     int            `json:"pid"`
	Jobs    map[string]int `json:"jobs"`
	Steps   []StepHealth   `json:"steps"`
	Version string         `json:"version,omitempty"`
}

// FromJob converts a stored job into its API form, ordering step results by
// the step's position in the pipeline for stable output.
func FromJob(job *jobs.Job, order []pipeline.Step) Job {
	out := Job{
		ID:          job.ID,
		SourceURL:   job.SourceURL,
		Options:     job.Options,
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Error != nil {
		out.Error = &JobError{
			Step:    string(job.Error.Step),
			Kind:    string(job.Error.Kind),
			Message: job.Error.Message,
		}
	}
	for _, id := range order {
		res, ok := job.StepResults[id]
		if !ok {
			continue
		}
		out.StepResults = append(out.StepResults, StepResult{
			Step:        string(res.Step),
			Attempt:     res.Attempt,
			State:       string(res.State),
			Data:        res.Data,
			ErrorKind:   string(res.ErrorKind),
			ErrorDetail: res.ErrorDetail,
		})
	}
	return out
}
