// Package progress converts per-step fractional progress into one weighted
// overall job percentage using the workflow graph's step weights.
package progress

import (
	"math"

	"vidsight/internal/pipeline"
)

// Tracker accumulates per-step progress for a single job run. It is owned by
// the one orchestration flow driving that job and is not safe for concurrent
// use. Regressing step reports are ignored, which keeps the overall value
// monotonic and makes duplicate reports idempotent.
type Tracker struct {
	graph *pipeline.Graph
	steps map[pipeline.Step]float64
}

// NewTracker builds a tracker over the given graph with every step at zero.
func NewTracker(graph *pipeline.Graph) *Tracker {
	return &Tracker{
		graph: graph,
		steps: make(map[pipeline.Step]float64, graph.Len()),
	}
}

// Record stores the step's latest progress (clamped to 0-100) and returns the
// resulting overall percentage. Values below the step's last-known progress
// are discarded.
func (t *Tracker) Record(step pipeline.Step, percent float64) int {
	if !t.graph.Contains(step) {
		return t.Overall()
	}
	percent = math.Max(0, math.Min(100, percent))
	if percent > t.steps[step] {
		t.steps[step] = percent
	}
	return t.Overall()
}

// Complete forces the step to 100% regardless of its last report and returns
// the resulting overall percentage.
func (t *Tracker) Complete(step pipeline.Step) int {
	return t.Record(step, 100)
}

// StepProgress returns the last-known progress for a step (zero until reported).
func (t *Tracker) StepProgress(step pipeline.Step) float64 {
	return t.steps[step]
}

// Overall returns floor(sum(weight * stepProgress / 100)) across all steps.
func (t *Tracker) Overall() int {
	total := 0.0
	for _, step := range t.graph.Steps() {
		total += float64(t.graph.Weight(step)) * t.steps[step] / 100
	}
	return int(math.Floor(total))
}
