package notifications

import "vidsight/internal/pipeline"

// EventType distinguishes the kinds of job events a subscriber can receive.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Terminal reports whether the event type ends a job's stream.
func (t EventType) Terminal() bool {
	switch t {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	}
	return false
}

// Event is one entry in a job's ordered event stream. Sequence is assigned by
// the hub at publish time and is strictly increasing per job.
type Event struct {
	Sequence        int64         `json:"sequence"`
	Type            EventType     `json:"type"`
	JobID           string        `json:"job_id"`
	Step            pipeline.Step `json:"step,omitempty"`
	StepProgress    float64       `json:"step_progress,omitempty"`
	OverallProgress int           `json:"overall_progress"`
	Message         string        `json:"message,omitempty"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	StepResults     []StepSummary `json:"step_results,omitempty"`
}

// StepSummary captures the final disposition of one pipeline step. Failed
// events carry one summary per step so subscribers can see which work
// survived without a follow-up job lookup.
type StepSummary struct {
	Step      pipeline.Step `json:"step"`
	State     string        `json:"state"`
	Attempt   int           `json:"attempt,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
}
