package step

import (
	"context"
	"encoding/json"
	"fmt"

	"vidsight/internal/pipeline"
)

// Request carries everything an executor may need for one attempt: the job's
// submitted input plus the JSON outputs of every step that already succeeded.
// Executors decode only the outputs they declared dependencies on.
type Request struct {
	JobID     string
	SourceURL string
	Options   map[string]string
	Outputs   map[pipeline.Step]json.RawMessage
}

// Output returns the stored output of a completed dependency step.
func (r *Request) Output(step pipeline.Step) (json.RawMessage, bool) {
	data, ok := r.Outputs[step]
	return data, ok
}

// DecodeOutput unmarshals a dependency's output into v, wrapping a missing
// dependency as a validation failure since it indicates a wiring bug rather
// than a recoverable external condition.
func (r *Request) DecodeOutput(step pipeline.Step, v any) error {
	data, ok := r.Outputs[step]
	if !ok {
		return Wrap(ErrValidation, string(step), "decode output", "dependency output missing", nil)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Wrap(ErrValidation, string(step), "decode output", "dependency output malformed", err)
	}
	return nil
}

// ProgressFunc reports a step's own fractional progress (0-100) with a short
// human-readable message. Executors may call it zero or more times; calls are
// cheap and never block on downstream delivery.
type ProgressFunc func(percent float64, message string)

// Executor is the contract every step satisfies: a cancellable call that
// produces a JSON payload or a classified error. The payload is opaque to the
// orchestrator beyond being keyed by step identifier.
type Executor interface {
	Step() pipeline.Step
	Execute(ctx context.Context, req *Request, report ProgressFunc) (json.RawMessage, error)
	HealthCheck(ctx context.Context) Health
}

// Registry maps step identifiers to their executors. It is built once at
// startup and injected into the orchestrator, never shared process-wide, so
// independent orchestrator instances (tests included) cannot leak state.
type Registry map[pipeline.Step]Executor

// NewRegistry indexes executors by their declared step, rejecting duplicates.
func NewRegistry(executors ...Executor) (Registry, error) {
	reg := make(Registry, len(executors))
	for _, exec := range executors {
		if exec == nil {
			return nil, fmt.Errorf("step: nil executor")
		}
		id := exec.Step()
		if _, dup := reg[id]; dup {
			return nil, fmt.Errorf("step: duplicate executor for %q", id)
		}
		reg[id] = exec
	}
	return reg, nil
}

// Validate checks that the registry covers every step the graph declares.
func (r Registry) Validate(graph *pipeline.Graph) error {
	for _, step := range graph.Steps() {
		if _, ok := r[step]; !ok {
			return fmt.Errorf("step: no executor registered for %q", step)
		}
	}
	return nil
}
