package analysis

import (
	"context"
	"encoding/json"
	"log/slog"

	"vidsight/internal/logging"
	"vidsight/internal/pipeline"
	"vidsight/internal/report"
	"vidsight/internal/step"
)

// Finalizer merges the upstream step outputs into the job's final report. It
// performs no external calls; its failures are always wiring or data bugs, so
// they classify as validation and never retry.
type Finalizer struct {
	logger *slog.Logger
}

// NewFinalizer builds the finalization executor.
func NewFinalizer(logger *slog.Logger) *Finalizer {
	return &Finalizer{logger: logging.NewComponentLogger(logger, "finalizer")}
}

func (f *Finalizer) Step() pipeline.Step {
	return pipeline.StepFinalization
}

func (f *Finalizer) HealthCheck(ctx context.Context) step.Health {
	return step.Healthy("finalizer")
}

func (f *Finalizer) Execute(ctx context.Context, req *step.Request, progress step.ProgressFunc) (json.RawMessage, error) {
	const name = "finalization"

	input, err := report.FromStepOutputs(req.Outputs)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, name, "collect step outputs", "incomplete upstream data", err)
	}
	progress(30, "aggregating step outputs")

	rep := report.Aggregate(input)
	payload, err := json.Marshal(rep)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, name, "encode report", "marshal report", err)
	}
	progress(95, "report assembled")

	f.logger.Info("report finalized",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("video_title", rep.Summary.VideoTitle))
	return payload, nil
}
