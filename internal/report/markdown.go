package report

import (
	"fmt"
	"strings"
)

// Markdown renders the report as a human-readable document. The output is a
// pure function of the report contents.
func Markdown(rep Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Analysis Report: %s\n\n", orDash(rep.Summary.VideoTitle))
	fmt.Fprintf(&b, "**Channel:** %s\n\n", orDash(rep.Summary.Channel))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Duration: %.2f minutes\n", rep.Summary.DurationMinutes)
	fmt.Fprintf(&b, "- Views: %d\n", rep.Summary.ViewCount)
	fmt.Fprintf(&b, "- Likes: %d\n", rep.Summary.LikeCount)
	fmt.Fprintf(&b, "- Comments analyzed: %d\n", rep.Summary.CommentCount)
	fmt.Fprintf(&b, "- Overall score: %.2f / 100\n\n", rep.Summary.OverallScore)

	b.WriteString("## Transcript\n\n")
	fmt.Fprintf(&b, "- Language: %s\n", orDash(rep.TranscriptAnalysis.Language))
	fmt.Fprintf(&b, "- Word count: %d\n", rep.TranscriptAnalysis.WordCount)
	fmt.Fprintf(&b, "- Speaking rate: %.2f words/minute\n\n", rep.TranscriptAnalysis.SpeakingRateWPM)

	b.WriteString("## Content Insights\n\n")
	if rep.ContentInsights.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", rep.ContentInsights.Summary)
	}
	fmt.Fprintf(&b, "- Sentiment: %s (confidence %.2f)\n",
		orDash(rep.ContentInsights.Sentiment.OverallSentiment), rep.ContentInsights.Sentiment.Confidence)
	fmt.Fprintf(&b, "- Quality: %.2f\n", rep.ContentInsights.OverallQuality)
	fmt.Fprintf(&b, "- Structure: %.2f\n", rep.ContentInsights.Structure.OverallStructureScore)
	writeList(&b, "Main topics", rep.ContentInsights.MainTopics)
	writeList(&b, "Key points", rep.ContentInsights.KeyPoints)
	b.WriteString("\n")

	b.WriteString("## Audience Feedback\n\n")
	dist := rep.AudienceFeedback.Sentiment
	fmt.Fprintf(&b, "- Analyzed: %d comments\n", rep.AudienceFeedback.TotalAnalyzed)
	fmt.Fprintf(&b, "- Sentiment: %d positive / %d neutral / %d negative\n",
		dist.Positive, dist.Neutral, dist.Negative)
	fmt.Fprintf(&b, "- Creator response rate: %.2f\n", rep.AudienceFeedback.CreatorInteraction.ResponseRate)
	writeList(&b, "Key themes", rep.AudienceFeedback.KeyThemes)
	b.WriteString("\n")

	b.WriteString("## Cross-Analysis Insights\n\n")
	if a := rep.CrossInsights.ContentAudienceAlignment; a != nil {
		fmt.Fprintf(&b, "- Content/audience alignment: %.2f (content tone %s, positive ratio %.2f)\n",
			a.AlignmentScore, a.ContentTone, a.AudiencePositiveRatio)
	}
	if e := rep.CrossInsights.EngagementPatterns; e != nil {
		fmt.Fprintf(&b, "- Engagement: %s (rate %.4f)\n", e.Quality, e.EngagementRate)
	}
	if t := rep.CrossInsights.TopicResonance; t != nil {
		fmt.Fprintf(&b, "- Topic resonance: %s (overlap %.2f)\n", t.ResonanceLevel, t.OverlapScore)
	}
	b.WriteString("\n")

	b.WriteString("## Recommendations\n\n")
	writeRecSection(&b, "Content optimization", rep.Recommendations.ContentOptimization)
	writeRecSection(&b, "Audience engagement", rep.Recommendations.AudienceEngagement)
	writeRecSection(&b, "Technical improvements", rep.Recommendations.TechnicalImprovements)
	writeRecSection(&b, "Strategic insights", rep.Recommendations.StrategicInsights)
	if len(rep.Recommendations.ContentOptimization)+len(rep.Recommendations.AudienceEngagement)+
		len(rep.Recommendations.TechnicalImprovements)+len(rep.Recommendations.StrategicInsights) == 0 {
		b.WriteString("No recommendations; the analysis found no areas needing attention.\n")
	}

	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}

func writeRecSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
