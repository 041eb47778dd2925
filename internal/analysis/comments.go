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
)

const commentPromptTemplate = `You are an audience analyst. Classify the YouTube comments below and respond with a single JSON object using exactly these keys:
{
  "sentiment_distribution": {"positive": 0, "neutral": 0, "negative": 0},
  "key_themes": ["theme", ...]
}
The three sentiment counts must sum to the number of comments. Respond with JSON only.

Comments (one per line):
%s`

// CommentAnalyzer classifies audience comments by sentiment and recurring
// theme, and measures how actively the creator replies. Sentiment and themes
// come from a chat completion; creator interaction is computed locally from
// reply authorship, which the extraction step already established.
type CommentAnalyzer struct {
	cfg    *config.Config
	client openai.Client
	logger *slog.Logger
}

// NewCommentAnalyzer builds the comment-analysis executor.
func NewCommentAnalyzer(cfg *config.Config, logger *slog.Logger) *CommentAnalyzer {
	return &CommentAnalyzer{
		cfg:    cfg,
		client: newOpenAIClient(cfg),
		logger: logging.NewComponentLogger(logger, "comment-analyzer"),
	}
}

func (a *CommentAnalyzer) Step() pipeline.Step {
	return pipeline.StepCommentAnalysis
}

func (a *CommentAnalyzer) HealthCheck(ctx context.Context) step.Health {
	const name = "comment-analyzer"
	if strings.TrimSpace(a.cfg.OpenAI.APIKey) == "" {
		return step.Unhealthy(name, "OpenAI API key not configured")
	}
	return step.Healthy(name)
}

func (a *CommentAnalyzer) Execute(ctx context.Context, req *step.Request, progress step.ProgressFunc) (json.RawMessage, error) {
	const name = "comment_analysis"

	var extraction report.ExtractionData
	if err := req.DecodeOutput(pipeline.StepExtraction, &extraction); err != nil {
		return nil, err
	}

	data := report.CommentData{
		TotalAnalyzed:      len(extraction.Comments),
		CreatorInteraction: creatorInteraction(extraction.Comments),
	}

	// A video with no comments still produces a valid, empty analysis.
	if len(extraction.Comments) == 0 {
		progress(90, "no comments to analyze")
		return marshalCommentData(data)
	}
	progress(10, fmt.Sprintf("classifying %d comments", len(extraction.Comments)))

	prompt := fmt.Sprintf(commentPromptTemplate, commentLines(extraction.Comments))
	var classified struct {
		SentimentDistribution report.SentimentDistribution `json:"sentiment_distribution"`
		KeyThemes             []string                     `json:"key_themes"`
	}
	if err := completeJSON(ctx, a.client, a.cfg.OpenAI.AnalysisModel, name, prompt, &classified); err != nil {
		return nil, err
	}
	data.Sentiment = classified.SentimentDistribution
	data.KeyThemes = classified.KeyThemes
	progress(90, "comment analysis complete")

	a.logger.Info("comment analysis complete",
		logging.String(logging.FieldJobID, req.JobID),
		logging.Int("comments", data.TotalAnalyzed),
		logging.Int("themes", len(data.KeyThemes)))
	return marshalCommentData(data)
}

func marshalCommentData(data report.CommentData) (json.RawMessage, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, "comment_analysis", "encode output", "marshal comment data", err)
	}
	return payload, nil
}

// creatorInteraction computes the creator's reply rate: the share of
// top-level comments that received a reply from the video's own channel.
func creatorInteraction(comments []report.Comment) report.CreatorInteraction {
	var topLevel, authorReplies int
	replied := make(map[string]struct{})
	for _, c := range comments {
		if c.ParentID == "" {
			topLevel++
			continue
		}
		if c.IsAuthorReply {
			authorReplies++
			replied[c.ParentID] = struct{}{}
		}
	}

	interaction := report.CreatorInteraction{AuthorReplies: authorReplies}
	if topLevel > 0 {
		interaction.ResponseRate = float64(len(replied)) / float64(topLevel)
	}
	return interaction
}

// commentLines renders comments for the prompt, one per line, with newlines
// inside a comment flattened so line count equals comment count.
func commentLines(comments []report.Comment) string {
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		text := strings.ReplaceAll(c.Text, "\n", " ")
		text = strings.TrimSpace(text)
		if text == "" {
			text = "(empty)"
		}
		lines = append(lines, "- "+text)
	}
	return strings.Join(lines, "\n")
}
