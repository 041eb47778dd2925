// Package report defines the typed payloads produced by each pipeline step
// and the aggregator that merges them, plus cross-step derived insights, into
// the final analysis report.
package report

// VideoInfo is the source metadata captured by the extraction step.
type VideoInfo struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	ChannelID       string `json:"channel_id"`
	ChannelTitle    string `json:"channel_title"`
	DurationSeconds int    `json:"duration_seconds"`
	ViewCount       int64  `json:"view_count"`
	LikeCount       int64  `json:"like_count"`
	PublishedAt     string `json:"published_at,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	Language        string `json:"language,omitempty"`
}

// Comment is one audience comment captured by the extraction step.
type Comment struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Author        string `json:"author"`
	LikeCount     int    `json:"like_count"`
	ReplyCount    int    `json:"reply_count"`
	PublishedAt   string `json:"published_at,omitempty"`
	IsAuthorReply bool   `json:"is_author_reply,omitempty"`
	ParentID      string `json:"parent_id,omitempty"`
}

// ExtractionData is the extraction step's output payload.
type ExtractionData struct {
	VideoID   string    `json:"video_id"`
	VideoInfo VideoInfo `json:"video_info"`
	AudioPath string    `json:"audio_path,omitempty"`
	Comments  []Comment `json:"comments"`
}

// TranscriptSegment is one timed span of transcribed speech.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionData is the transcription step's output payload.
type TranscriptionData struct {
	Language        string              `json:"language"`
	DurationSeconds float64             `json:"duration_seconds"`
	FullText        string              `json:"full_text"`
	Segments        []TranscriptSegment `json:"segments,omitempty"`
}

// SentimentSummary is the content analyzer's verdict on the video's own tone.
type SentimentSummary struct {
	OverallSentiment string  `json:"overall_sentiment"`
	Confidence       float64 `json:"confidence"`
}

// ContentStructure scores the video's narrative structure, each value 0-1.
type ContentStructure struct {
	IntroductionQuality   float64 `json:"introduction_quality"`
	ConclusionQuality     float64 `json:"conclusion_quality"`
	OverallStructureScore float64 `json:"overall_structure_score"`
}

// ContentData is the content-analysis step's output payload.
type ContentData struct {
	Summary        string           `json:"summary"`
	Sentiment      SentimentSummary `json:"sentiment_analysis"`
	MainTopics     []string         `json:"main_topics"`
	KeyPoints      []string         `json:"key_points,omitempty"`
	Structure      ContentStructure `json:"content_structure"`
	OverallQuality float64          `json:"overall_quality"`
}

// SentimentDistribution counts audience comments per sentiment bucket.
type SentimentDistribution struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Total returns the number of classified comments.
func (d SentimentDistribution) Total() int {
	return d.Positive + d.Neutral + d.Negative
}

// CreatorInteraction measures how actively the author engages with comments.
type CreatorInteraction struct {
	ResponseRate  float64 `json:"response_rate"`
	AuthorReplies int     `json:"author_replies"`
}

// CommentData is the comment-analysis step's output payload.
type CommentData struct {
	TotalAnalyzed      int                   `json:"total_analyzed"`
	Sentiment          SentimentDistribution `json:"sentiment_distribution"`
	KeyThemes          []string              `json:"key_themes"`
	CreatorInteraction CreatorInteraction    `json:"creator_interaction"`
}

// Summary is the report's headline section.
type Summary struct {
	VideoTitle      string  `json:"video_title"`
	Channel         string  `json:"channel"`
	DurationMinutes float64 `json:"duration_minutes"`
	ViewCount       int64   `json:"view_count"`
	LikeCount       int64   `json:"like_count"`
	CommentCount    int     `json:"comment_count"`
	OverallScore    float64 `json:"overall_score"`
}

// TranscriptAnalysis summarizes the transcript's shape.
type TranscriptAnalysis struct {
	Language        string  `json:"language"`
	WordCount       int     `json:"word_count"`
	DurationSeconds float64 `json:"duration_seconds"`
	SpeakingRateWPM float64 `json:"speaking_rate_wpm"`
}

// AlignmentInsight compares the content's own tone with audience response.
type AlignmentInsight struct {
	ContentTone           string  `json:"content_tone"`
	AudiencePositiveRatio float64 `json:"audience_positive_ratio"`
	AlignmentScore        float64 `json:"alignment_score"`
}

// EngagementInsight summarizes audience interaction relative to reach.
type EngagementInsight struct {
	LikeToViewRatio    float64 `json:"like_to_view_ratio"`
	CommentToViewRatio float64 `json:"comment_to_view_ratio"`
	EngagementRate     float64 `json:"overall_engagement_rate"`
	Quality            string  `json:"engagement_quality"`
}

// TopicResonance measures overlap between content topics and audience themes.
type TopicResonance struct {
	ContentTopics  []string `json:"content_topics"`
	AudienceThemes []string `json:"audience_themes"`
	OverlapScore   float64  `json:"topic_overlap_score"`
	ResonanceLevel string   `json:"resonance_level"`
}

// CrossInsights holds the derived cross-step signals. A nil section means the
// inputs required to compute it were absent.
type CrossInsights struct {
	ContentAudienceAlignment *AlignmentInsight  `json:"content_audience_alignment,omitempty"`
	EngagementPatterns       *EngagementInsight `json:"engagement_patterns,omitempty"`
	TopicResonance           *TopicResonance    `json:"topic_resonance,omitempty"`
}

// Recommendations groups advisory text produced by rule evaluation.
type Recommendations struct {
	ContentOptimization   []string `json:"content_optimization,omitempty"`
	AudienceEngagement    []string `json:"audience_engagement,omitempty"`
	TechnicalImprovements []string `json:"technical_improvements,omitempty"`
	StrategicInsights     []string `json:"strategic_insights,omitempty"`
}

// Report is the aggregate produced once every step has succeeded. It contains
// no timestamps or other run-dependent values: identical step outputs always
// aggregate to an identical report.
type Report struct {
	Summary            Summary            `json:"summary"`
	TranscriptAnalysis TranscriptAnalysis `json:"transcript_analysis"`
	ContentInsights    ContentData        `json:"content_insights"`
	AudienceFeedback   CommentData        `json:"audience_feedback"`
	CrossInsights      CrossInsights      `json:"cross_analysis_insights"`
	Recommendations    Recommendations    `json:"recommendations"`
}
