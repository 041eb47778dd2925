package pipeline

import (
	"fmt"
	"strings"
)

// Step identifies one unit of pipeline work.
type Step string

const (
	StepExtraction      Step = "extraction"
	StepTranscription   Step = "transcription"
	StepContentAnalysis Step = "content_analysis"
	StepCommentAnalysis Step = "comment_analysis"
	StepFinalization    Step = "finalization"
)

// StepSpec declares one step's weight and dependencies when building a graph.
type StepSpec struct {
	Step      Step
	Weight    int
	DependsOn []Step
}

// Graph is the static workflow topology. Construct with New; immutable after.
type Graph struct {
	order   []Step
	weights map[Step]int
	deps    map[Step][]Step
}

// totalWeight is the required sum of all step weights. Overall progress is a
// percentage, so the weights must account for exactly all of it.
const totalWeight = 100

// New builds and validates a workflow graph. Duplicate steps, edges to unknown
// steps, weights that do not sum to 100, and dependency cycles are all
// configuration errors and fail construction.
func New(specs []StepSpec) (*Graph, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("pipeline: graph requires at least one step")
	}

	g := &Graph{
		weights: make(map[Step]int, len(specs)),
		deps:    make(map[Step][]Step, len(specs)),
	}

	sum := 0
	for _, spec := range specs {
		name := Step(strings.TrimSpace(string(spec.Step)))
		if name == "" {
			return nil, fmt.Errorf("pipeline: step name must not be empty")
		}
		if _, dup := g.weights[name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate step %q", name)
		}
		if spec.Weight <= 0 {
			return nil, fmt.Errorf("pipeline: step %q weight must be positive, got %d", name, spec.Weight)
		}
		g.order = append(g.order, name)
		g.weights[name] = spec.Weight
		g.deps[name] = append([]Step(nil), spec.DependsOn...)
		sum += spec.Weight
	}

	if sum != totalWeight {
		return nil, fmt.Errorf("pipeline: step weights must sum to %d, got %d", totalWeight, sum)
	}

	for step, deps := range g.deps {
		for _, dep := range deps {
			if _, ok := g.weights[dep]; !ok {
				return nil, fmt.Errorf("pipeline: step %q depends on unknown step %q", step, dep)
			}
			if dep == step {
				return nil, fmt.Errorf("pipeline: step %q depends on itself", step)
			}
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		parts := make([]string, len(cycle))
		for i, s := range cycle {
			parts[i] = string(s)
		}
		return nil, fmt.Errorf("pipeline: dependency cycle: %s", strings.Join(parts, " -> "))
	}

	return g, nil
}

// MustNew is New for static topologies known to be valid; it panics on error.
func MustNew(specs []StepSpec) *Graph {
	g, err := New(specs)
	if err != nil {
		panic(err)
	}
	return g
}

// Default returns the standard video-analysis topology. Comment analysis
// intentionally depends only on extraction, not transcription: comments are
// available as soon as the source data has been pulled.
func Default() *Graph {
	return MustNew([]StepSpec{
		{Step: StepExtraction, Weight: 20},
		{Step: StepTranscription, Weight: 30, DependsOn: []Step{StepExtraction}},
		{Step: StepContentAnalysis, Weight: 25, DependsOn: []Step{StepTranscription}},
		{Step: StepCommentAnalysis, Weight: 20, DependsOn: []Step{StepExtraction}},
		{Step: StepFinalization, Weight: 5, DependsOn: []Step{StepContentAnalysis, StepCommentAnalysis}},
	})
}

// Steps returns the graph's steps in declaration order.
func (g *Graph) Steps() []Step {
	cp := make([]Step, len(g.order))
	copy(cp, g.order)
	return cp
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// Contains reports whether the graph declares the step.
func (g *Graph) Contains(step Step) bool {
	_, ok := g.weights[step]
	return ok
}

// Weight returns the step's share of overall progress. Unknown steps weigh zero.
func (g *Graph) Weight(step Step) int {
	return g.weights[step]
}

// Dependencies returns the steps that must succeed before the given step may run.
func (g *Graph) Dependencies(step Step) []Step {
	deps := g.deps[step]
	cp := make([]Step, len(deps))
	copy(cp, deps)
	return cp
}

// ReadyToRun returns every step not yet completed whose full dependency set is
// contained in completed. Results follow declaration order so callers schedule
// deterministically. Pure: the graph and the completed set are not modified.
func (g *Graph) ReadyToRun(completed map[Step]struct{}) []Step {
	var ready []Step
	for _, step := range g.order {
		if _, done := completed[step]; done {
			continue
		}
		satisfied := true
		for _, dep := range g.deps[step] {
			if _, done := completed[dep]; !done {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, step)
		}
	}
	return ready
}

// findCycle runs a depth-first walk over the dependency edges and returns the
// first cycle found, or nil.
func (g *Graph) findCycle() []Step {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Step]int, len(g.order))

	var stack []Step
	var walk func(step Step) []Step
	walk = func(step Step) []Step {
		state[step] = visiting
		stack = append(stack, step)
		for _, dep := range g.deps[step] {
			switch state[dep] {
			case visiting:
				for i, s := range stack {
					if s == dep {
						return append(append([]Step(nil), stack[i:]...), dep)
					}
				}
			case unvisited:
				if cycle := walk(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[step] = done
		return nil
	}

	for _, step := range g.order {
		if state[step] == unvisited {
			if cycle := walk(step); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// ParseStep converts a string into a known default-topology step identifier.
func ParseStep(value string) (Step, bool) {
	normalized := Step(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StepExtraction, StepTranscription, StepContentAnalysis, StepCommentAnalysis, StepFinalization:
		return normalized, true
	default:
		return "", false
	}
}

// Label returns the human-readable description used in progress reporting.
func (s Step) Label() string {
	switch s {
	case StepExtraction:
		return "Extracting source data"
	case StepTranscription:
		return "Transcribing audio"
	case StepContentAnalysis:
		return "Analyzing content"
	case StepCommentAnalysis:
		return "Analyzing comments"
	case StepFinalization:
		return "Generating report"
	default:
		return string(s)
	}
}
