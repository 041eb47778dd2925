package analysis

import (
	"log/slog"

	"vidsight/internal/config"
	"vidsight/internal/step"
)

// NewRegistry wires the production executor for every pipeline step.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (step.Registry, error) {
	return step.NewRegistry(
		NewExtractor(cfg, logger),
		NewTranscriber(cfg, logger),
		NewContentAnalyzer(cfg, logger),
		NewCommentAnalyzer(cfg, logger),
		NewFinalizer(logger),
	)
}
