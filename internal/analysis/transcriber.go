package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"

	"vidsight/internal/config"
	"vidsight/internal/logging"
	"vidsight/internal/pipeline"
	"vidsight/internal/report"
	"vidsight/internal/step"
)

// Transcriber converts the extracted audio track to text through the OpenAI
// transcription API.
type Transcriber struct {
	cfg    *config.Config
	client openai.Client
	logger *slog.Logger
}

// NewTranscriber builds the transcription executor.
func NewTranscriber(cfg *config.Config, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		cfg:    cfg,
		client: newOpenAIClient(cfg),
		logger: logging.NewComponentLogger(logger, "transcriber"),
	}
}

func (t *Transcriber) Step() pipeline.Step {
	return pipeline.StepTranscription
}

func (t *Transcriber) HealthCheck(ctx context.Context) step.Health {
	const name = "transcriber"
	if strings.TrimSpace(t.cfg.OpenAI.APIKey) == "" {
		return step.Unhealthy(name, "OpenAI API key not configured")
	}
	return step.Healthy(name)
}

func (t *Transcriber) Execute(ctx context.Context, req *step.Request, progress step.ProgressFunc) (json.RawMessage, error) {
	const name = "transcription"

	var extraction report.ExtractionData
	if err := req.DecodeOutput(pipeline.StepExtraction, &extraction); err != nil {
		return nil, err
	}
	if strings.TrimSpace(extraction.AudioPath) == "" {
		return nil, step.Wrap(step.ErrValidation, name, "open audio", "extraction produced no audio track", nil)
	}

	file, err := os.Open(extraction.AudioPath)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, name, "open audio", extraction.AudioPath, err)
	}
	defer file.Close()
	progress(10, "submitting audio for transcription")

	transcription, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.cfg.OpenAI.TranscriptionModel),
		File:  file,
	})
	if err != nil {
		return nil, classifyOpenAIError(name, "transcribe audio", err)
	}
	progress(90, "received transcript")

	text := strings.TrimSpace(transcription.Text)
	if text == "" {
		return nil, step.Wrap(step.ErrValidation, name, "transcribe audio", "empty transcript returned", nil)
	}

	data := report.TranscriptionData{
		Language:        extraction.VideoInfo.Language,
		DurationSeconds: float64(extraction.VideoInfo.DurationSeconds),
		FullText:        text,
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, name, "encode output", "marshal transcription data", err)
	}

	t.logger.Info("transcription complete",
		logging.String(logging.FieldJobID, req.JobID),
		logging.Int("words", len(strings.Fields(text))))
	return payload, nil
}
