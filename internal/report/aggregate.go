package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"vidsight/internal/pipeline"
	"vidsight/internal/textutil"
)

// Input collects the decoded step outputs feeding one report.
type Input struct {
	Extraction    ExtractionData
	Transcription TranscriptionData
	Content       ContentData
	Comments      CommentData
}

// FromStepOutputs decodes the raw outputs recorded for the upstream steps.
// Every step except finalization must be present.
func FromStepOutputs(outputs map[pipeline.Step]json.RawMessage) (Input, error) {
	var in Input
	for step, dst := range map[pipeline.Step]any{
		pipeline.StepExtraction:      &in.Extraction,
		pipeline.StepTranscription:   &in.Transcription,
		pipeline.StepContentAnalysis: &in.Content,
		pipeline.StepCommentAnalysis: &in.Comments,
	} {
		raw, ok := outputs[step]
		if !ok {
			return Input{}, fmt.Errorf("missing output for step %s", step)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return Input{}, fmt.Errorf("decode %s output: %w", step, err)
		}
	}
	return in, nil
}

// Aggregate merges the step outputs into the final report. The computation is
// pure: no clocks, no randomness, no ordering dependent on map iteration.
func Aggregate(in Input) Report {
	rep := Report{
		Summary:            buildSummary(in),
		TranscriptAnalysis: buildTranscriptAnalysis(in.Transcription),
		ContentInsights:    in.Content,
		AudienceFeedback:   in.Comments,
		CrossInsights:      buildCrossInsights(in),
	}
	rep.Recommendations = buildRecommendations(in, rep)
	return rep
}

func buildSummary(in Input) Summary {
	return Summary{
		VideoTitle:      in.Extraction.VideoInfo.Title,
		Channel:         in.Extraction.VideoInfo.ChannelTitle,
		DurationMinutes: round2(float64(in.Extraction.VideoInfo.DurationSeconds) / 60),
		ViewCount:       in.Extraction.VideoInfo.ViewCount,
		LikeCount:       in.Extraction.VideoInfo.LikeCount,
		CommentCount:    len(in.Extraction.Comments),
		OverallScore:    overallScore(in),
	}
}

// overallScore averages content quality, the audience positive ratio, and the
// structure score, each on a 0-1 scale, then reports it on 0-100.
func overallScore(in Input) float64 {
	components := []float64{
		clamp01(in.Content.OverallQuality),
		clamp01(in.Content.Structure.OverallStructureScore),
	}
	if total := in.Comments.Sentiment.Total(); total > 0 {
		components = append(components, float64(in.Comments.Sentiment.Positive)/float64(total))
	}
	var sum float64
	for _, c := range components {
		sum += c
	}
	return round2(sum / float64(len(components)) * 100)
}

func buildTranscriptAnalysis(t TranscriptionData) TranscriptAnalysis {
	words := textutil.WordCount(t.FullText)
	var wpm float64
	if t.DurationSeconds > 0 {
		wpm = round2(float64(words) / (t.DurationSeconds / 60))
	}
	return TranscriptAnalysis{
		Language:        t.Language,
		WordCount:       words,
		DurationSeconds: round2(t.DurationSeconds),
		SpeakingRateWPM: wpm,
	}
}

func buildCrossInsights(in Input) CrossInsights {
	return CrossInsights{
		ContentAudienceAlignment: alignmentInsight(in.Content, in.Comments),
		EngagementPatterns:       engagementInsight(in.Extraction),
		TopicResonance:           topicResonance(in.Content.MainTopics, in.Comments.KeyThemes),
	}
}

// alignmentInsight scores how closely audience sentiment tracks the content's
// own tone. For positive content the score is the positive ratio itself, for
// negative content its complement, and for neutral content the distance from
// an even split.
func alignmentInsight(content ContentData, comments CommentData) *AlignmentInsight {
	total := comments.Sentiment.Total()
	if total == 0 {
		return nil
	}
	positiveRatio := float64(comments.Sentiment.Positive) / float64(total)
	tone := strings.ToLower(content.Sentiment.OverallSentiment)
	var score float64
	switch tone {
	case "positive":
		score = positiveRatio
	case "negative":
		score = 1 - positiveRatio
	default:
		score = 1 - math.Abs(positiveRatio-0.5)*2
	}
	return &AlignmentInsight{
		ContentTone:           tone,
		AudiencePositiveRatio: round2(positiveRatio),
		AlignmentScore:        round2(clamp01(score)),
	}
}

func engagementInsight(ex ExtractionData) *EngagementInsight {
	views := ex.VideoInfo.ViewCount
	if views <= 0 {
		return nil
	}
	likeRatio := float64(ex.VideoInfo.LikeCount) / float64(views)
	commentRatio := float64(len(ex.Comments)) / float64(views)
	rate := likeRatio + commentRatio
	quality := "low"
	switch {
	case rate > 0.05:
		quality = "high"
	case rate > 0.01:
		quality = "medium"
	}
	return &EngagementInsight{
		LikeToViewRatio:    round4(likeRatio),
		CommentToViewRatio: round4(commentRatio),
		EngagementRate:     round4(rate),
		Quality:            quality,
	}
}

// topicResonance computes the Jaccard overlap between the topics the content
// covers and the themes the audience raises. Matching is case-insensitive.
func topicResonance(topics, themes []string) *TopicResonance {
	if len(topics) == 0 || len(themes) == 0 {
		return nil
	}
	overlap := textutil.Jaccard(topics, themes)
	level := "low"
	switch {
	case overlap >= 0.6:
		level = "high"
	case overlap >= 0.3:
		level = "medium"
	}
	return &TopicResonance{
		ContentTopics:  topics,
		AudienceThemes: themes,
		OverlapScore:   round2(overlap),
		ResonanceLevel: level,
	}
}

func buildRecommendations(in Input, rep Report) Recommendations {
	var rec Recommendations

	if in.Content.Structure.IntroductionQuality < 0.5 {
		rec.ContentOptimization = append(rec.ContentOptimization,
			"Strengthen the opening: state the video's value within the first 30 seconds.")
	}
	if in.Content.Structure.ConclusionQuality < 0.5 {
		rec.ContentOptimization = append(rec.ContentOptimization,
			"Add a clear conclusion that recaps key points and includes a call to action.")
	}
	if wpm := rep.TranscriptAnalysis.SpeakingRateWPM; wpm > 0 {
		if wpm < 120 {
			rec.TechnicalImprovements = append(rec.TechnicalImprovements,
				"Speaking rate is on the slow side; tightening the pacing could improve retention.")
		} else if wpm > 180 {
			rec.TechnicalImprovements = append(rec.TechnicalImprovements,
				"Speaking rate is fast; slowing down slightly would improve comprehension.")
		}
	}
	if total := in.Comments.Sentiment.Total(); total > 0 {
		if in.Comments.CreatorInteraction.ResponseRate < 0.1 {
			rec.AudienceEngagement = append(rec.AudienceEngagement,
				"Creator response rate is low; replying to more comments tends to lift engagement.")
		}
		if negRatio := float64(in.Comments.Sentiment.Negative) / float64(total); negRatio > 0.3 {
			rec.AudienceEngagement = append(rec.AudienceEngagement,
				"A large share of comments are negative; review recurring criticisms in the key themes.")
		}
	}
	if eng := rep.CrossInsights.EngagementPatterns; eng != nil && eng.Quality == "low" {
		rec.StrategicInsights = append(rec.StrategicInsights,
			"Engagement relative to reach is low; experiment with titles, thumbnails, and prompts for interaction.")
	}
	if res := rep.CrossInsights.TopicResonance; res != nil && res.ResonanceLevel == "low" {
		rec.StrategicInsights = append(rec.StrategicInsights,
			"Audience discussion diverges from the content's topics; consider covering the themes viewers raise.")
	}
	return rec
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
