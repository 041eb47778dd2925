package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsight/internal/pipeline"
)

func sampleInput() Input {
	return Input{
		Extraction: ExtractionData{
			VideoID: "dQw4w9WgXcQ",
			VideoInfo: VideoInfo{
				ID:              "dQw4w9WgXcQ",
				Title:           "Understanding Goroutines",
				ChannelTitle:    "Go Channel",
				DurationSeconds: 600,
				ViewCount:       10000,
				LikeCount:       400,
			},
			Comments: []Comment{
				{ID: "c1", Text: "Great explanation of goroutines", Author: "alice"},
				{ID: "c2", Text: "The scheduler part confused me", Author: "bob"},
			},
		},
		Transcription: TranscriptionData{
			Language:        "en",
			DurationSeconds: 600,
			FullText:        "goroutines are lightweight threads managed by the go runtime scheduler",
		},
		Content: ContentData{
			Summary:        "An introduction to goroutines.",
			Sentiment:      SentimentSummary{OverallSentiment: "positive", Confidence: 0.9},
			MainTopics:     []string{"goroutines", "scheduler", "concurrency"},
			Structure:      ContentStructure{IntroductionQuality: 0.8, ConclusionQuality: 0.7, OverallStructureScore: 0.75},
			OverallQuality: 0.85,
		},
		Comments: CommentData{
			TotalAnalyzed:      2,
			Sentiment:          SentimentDistribution{Positive: 1, Neutral: 1},
			KeyThemes:          []string{"goroutines", "scheduler"},
			CreatorInteraction: CreatorInteraction{ResponseRate: 0.0, AuthorReplies: 0},
		},
	}
}

func TestAggregateSummary(t *testing.T) {
	rep := Aggregate(sampleInput())

	assert.Equal(t, "Understanding Goroutines", rep.Summary.VideoTitle)
	assert.Equal(t, "Go Channel", rep.Summary.Channel)
	assert.Equal(t, 10.0, rep.Summary.DurationMinutes)
	assert.Equal(t, 2, rep.Summary.CommentCount)
	// mean(quality 0.85, structure 0.75, positive ratio 0.5) * 100
	assert.Equal(t, 70.0, rep.Summary.OverallScore)
}

func TestAggregateTranscriptAnalysis(t *testing.T) {
	rep := Aggregate(sampleInput())

	assert.Equal(t, 10, rep.TranscriptAnalysis.WordCount)
	assert.Equal(t, 1.0, rep.TranscriptAnalysis.SpeakingRateWPM)
	assert.Equal(t, "en", rep.TranscriptAnalysis.Language)
}

func TestAggregateCrossInsights(t *testing.T) {
	rep := Aggregate(sampleInput())

	align := rep.CrossInsights.ContentAudienceAlignment
	require.NotNil(t, align)
	assert.Equal(t, "positive", align.ContentTone)
	assert.Equal(t, 0.5, align.AudiencePositiveRatio)
	assert.Equal(t, 0.5, align.AlignmentScore)

	eng := rep.CrossInsights.EngagementPatterns
	require.NotNil(t, eng)
	assert.Equal(t, 0.04, eng.LikeToViewRatio)
	assert.Equal(t, "medium", eng.Quality)

	res := rep.CrossInsights.TopicResonance
	require.NotNil(t, res)
	// intersection {goroutines, scheduler} = 2, union = 3
	assert.Equal(t, 0.67, res.OverlapScore)
	assert.Equal(t, "high", res.ResonanceLevel)
}

func TestAggregateCrossInsightsMissingInputs(t *testing.T) {
	in := sampleInput()
	in.Extraction.VideoInfo.ViewCount = 0
	in.Comments.Sentiment = SentimentDistribution{}
	in.Comments.KeyThemes = nil

	rep := Aggregate(in)

	assert.Nil(t, rep.CrossInsights.EngagementPatterns)
	assert.Nil(t, rep.CrossInsights.ContentAudienceAlignment)
	assert.Nil(t, rep.CrossInsights.TopicResonance)
}

func TestRecommendationRules(t *testing.T) {
	in := sampleInput()
	in.Content.Structure.IntroductionQuality = 0.3
	in.Transcription.FullText = "short text"
	in.Comments.Sentiment = SentimentDistribution{Positive: 1, Negative: 4}
	in.Comments.CreatorInteraction.ResponseRate = 0.05

	rep := Aggregate(in)

	assert.NotEmpty(t, rep.Recommendations.ContentOptimization)
	assert.NotEmpty(t, rep.Recommendations.TechnicalImprovements)
	assert.Len(t, rep.Recommendations.AudienceEngagement, 2)
}

func TestAggregateDeterministic(t *testing.T) {
	first, err := json.Marshal(Aggregate(sampleInput()))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		next, err := json.Marshal(Aggregate(sampleInput()))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(next))
	}
}

func TestFromStepOutputs(t *testing.T) {
	in := sampleInput()
	outputs := map[pipeline.Step]json.RawMessage{
		pipeline.StepExtraction:      mustMarshal(t, in.Extraction),
		pipeline.StepTranscription:   mustMarshal(t, in.Transcription),
		pipeline.StepContentAnalysis: mustMarshal(t, in.Content),
		pipeline.StepCommentAnalysis: mustMarshal(t, in.Comments),
	}

	decoded, err := FromStepOutputs(outputs)
	require.NoError(t, err)
	assert.Equal(t, in.Extraction.VideoID, decoded.Extraction.VideoID)
	assert.Equal(t, in.Comments.TotalAnalyzed, decoded.Comments.TotalAnalyzed)
}

func TestFromStepOutputsMissingStep(t *testing.T) {
	outputs := map[pipeline.Step]json.RawMessage{
		pipeline.StepExtraction: mustMarshal(t, sampleInput().Extraction),
	}

	_, err := FromStepOutputs(outputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing output")
}

func TestMarkdownContainsSections(t *testing.T) {
	md := Markdown(Aggregate(sampleInput()))

	for _, heading := range []string{
		"# Analysis Report: Understanding Goroutines",
		"## Summary",
		"## Transcript",
		"## Content Insights",
		"## Audience Feedback",
		"## Cross-Analysis Insights",
		"## Recommendations",
	} {
		assert.Contains(t, md, heading)
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
