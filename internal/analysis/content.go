package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"

	"vidsight/internal/config"
	"vidsight/internal/logging"
	"vidsight/internal/pipeline"
	"vidsight/internal/report"
	"vidsight/internal/step"
	"vidsight/internal/textutil"
)

// maxTranscriptChars bounds the transcript excerpt sent to the model so a
// long video cannot blow the context window.
const maxTranscriptChars = 12000

const contentPromptTemplate = `You are a video content analyst. Analyze the transcript below and respond with a single JSON object using exactly these keys:
{
  "summary": "2-3 sentence summary of the video",
  "sentiment_analysis": {"overall_sentiment": "positive|neutral|negative", "confidence": 0.0},
  "main_topics": ["topic", ...],
  "key_points": ["point", ...],
  "content_structure": {"introduction_quality": 0.0, "conclusion_quality": 0.0, "overall_structure_score": 0.0},
  "overall_quality": 0.0
}
All scores are between 0 and 1. Respond with JSON only.

Video title: %s

Transcript:
%s`

// ContentAnalyzer derives summary, sentiment, topics, and quality scores from
// the transcript using a chat completion constrained to JSON output.
type ContentAnalyzer struct {
	cfg    *config.Config
	client openai.Client
	logger *slog.Logger
}

// NewContentAnalyzer builds the content-analysis executor.
func NewContentAnalyzer(cfg *config.Config, logger *slog.Logger) *ContentAnalyzer {
	return &ContentAnalyzer{
		cfg:    cfg,
		client: newOpenAIClient(cfg),
		logger: logging.NewComponentLogger(logger, "content-analyzer"),
	}
}

func (a *ContentAnalyzer) Step() pipeline.Step {
	return pipeline.StepContentAnalysis
}

func (a *ContentAnalyzer) HealthCheck(ctx context.Context) step.Health {
	const name = "content-analyzer"
	if strings.TrimSpace(a.cfg.OpenAI.APIKey) == "" {
		return step.Unhealthy(name, "OpenAI API key not configured")
	}
	return step.Healthy(name)
}

func (a *ContentAnalyzer) Execute(ctx context.Context, req *step.Request, progress step.ProgressFunc) (json.RawMessage, error) {
	const name = "content_analysis"

	var extraction report.ExtractionData
	if err := req.DecodeOutput(pipeline.StepExtraction, &extraction); err != nil {
		return nil, err
	}
	var transcription report.TranscriptionData
	if err := req.DecodeOutput(pipeline.StepTranscription, &transcription); err != nil {
		return nil, err
	}

	transcript := textutil.Truncate(transcription.FullText, maxTranscriptChars)
	if strings.TrimSpace(transcript) == "" {
		return nil, step.Wrap(step.ErrValidation, name, "build prompt", "transcript is empty", nil)
	}
	progress(10, "analyzing transcript")

	prompt := fmt.Sprintf(contentPromptTemplate, extraction.VideoInfo.Title, transcript)
	var data report.ContentData
	if err := completeJSON(ctx, a.client, a.cfg.OpenAI.AnalysisModel, name, prompt, &data); err != nil {
		return nil, err
	}
	normalizeContentData(&data)
	progress(90, "content analysis complete")

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, name, "encode output", "marshal content data", err)
	}

	a.logger.Info("content analysis complete",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("sentiment", data.Sentiment.OverallSentiment),
		logging.Int("topics", len(data.MainTopics)))
	return payload, nil
}

// normalizeContentData clamps model-provided scores into their documented
// ranges and lowercases the sentiment label.
func normalizeContentData(data *report.ContentData) {
	data.Sentiment.OverallSentiment = strings.ToLower(strings.TrimSpace(data.Sentiment.OverallSentiment))
	data.Sentiment.Confidence = clampScore(data.Sentiment.Confidence)
	data.Structure.IntroductionQuality = clampScore(data.Structure.IntroductionQuality)
	data.Structure.ConclusionQuality = clampScore(data.Structure.ConclusionQuality)
	data.Structure.OverallStructureScore = clampScore(data.Structure.OverallStructureScore)
	data.OverallQuality = clampScore(data.OverallQuality)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
