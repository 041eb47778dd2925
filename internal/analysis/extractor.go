package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vidsight/internal/config"
	"vidsight/internal/logging"
	"vidsight/internal/pipeline"
	"vidsight/internal/report"
	"vidsight/internal/staging"
	"vidsight/internal/step"
)

const defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID extracts the 11-character video identifier from a YouTube URL
// or accepts a bare identifier.
func ParseVideoID(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("empty source")
	}
	if videoIDPattern.MatchString(source) {
		return source, nil
	}

	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse source URL: %w", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var id string
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.TrimPrefix(u.Path, "/live/")
		}
	case "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	default:
		return "", fmt.Errorf("unsupported host %q", u.Hostname())
	}

	id = strings.TrimSuffix(id, "/")
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video id in %q", source)
	}
	return id, nil
}

// AudioDownloader fetches the source's audio track into destDir and returns
// the file path. The production implementation shells out to yt-dlp.
type AudioDownloader func(ctx context.Context, videoID, destDir string) (string, error)

// Extractor fetches video metadata and comments from the YouTube Data API
// and downloads the audio track for downstream transcription.
type Extractor struct {
	cfg        *config.Config
	client     *http.Client
	baseURL    string
	downloader AudioDownloader
	logger     *slog.Logger
}

// NewExtractor builds the extraction executor.
func NewExtractor(cfg *config.Config, logger *slog.Logger) *Extractor {
	timeout := time.Duration(cfg.YouTube.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimSpace(cfg.YouTube.BaseURL)
	if base == "" {
		base = defaultYouTubeBaseURL
	}
	return &Extractor{
		cfg:        cfg,
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(base, "/"),
		downloader: ytdlpDownloader,
		logger:     logging.NewComponentLogger(logger, "extractor"),
	}
}

// SetDownloader overrides the audio downloader, used by tests.
func (e *Extractor) SetDownloader(d AudioDownloader) {
	e.downloader = d
}

func (e *Extractor) Step() pipeline.Step {
	return pipeline.StepExtraction
}

func (e *Extractor) HealthCheck(ctx context.Context) step.Health {
	const name = "extractor"
	if strings.TrimSpace(e.cfg.YouTube.APIKey) == "" {
		return step.Unhealthy(name, "YouTube API key not configured")
	}
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return step.Unhealthy(name, "yt-dlp not found on PATH")
	}
	return step.Healthy(name)
}

func (e *Extractor) Execute(ctx context.Context, req *step.Request, progress step.ProgressFunc) (json.RawMessage, error) {
	const name = "extraction"

	videoID, err := ParseVideoID(req.SourceURL)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, name, "parse source", "unrecognized YouTube URL", err)
	}
	progress(5, "validated source URL")

	info, err := e.fetchVideoInfo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	progress(35, "fetched video metadata")

	comments, err := e.fetchComments(ctx, videoID, info.ChannelID)
	if err != nil {
		return nil, err
	}
	progress(60, fmt.Sprintf("fetched %d comments", len(comments)))

	audioPath, err := e.downloadAudio(ctx, req.JobID, videoID)
	if err != nil {
		return nil, err
	}
	progress(95, "downloaded audio track")

	data := report.ExtractionData{
		VideoID:   videoID,
		VideoInfo: info,
		AudioPath: audioPath,
		Comments:  comments,
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, step.Wrap(step.ErrValidation, name, "encode output", "marshal extraction data", err)
	}

	e.logger.Info("extraction complete",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("video_id", videoID),
		logging.Int("comments", len(comments)))
	return payload, nil
}

func (e *Extractor) fetchVideoInfo(ctx context.Context, videoID string) (report.VideoInfo, error) {
	const name = "extraction"

	query := url.Values{}
	query.Set("part", "snippet,contentDetails,statistics")
	query.Set("id", videoID)
	query.Set("key", e.cfg.YouTube.APIKey)

	var payload videoListResponse
	if err := e.getJSON(ctx, "/videos", query, &payload); err != nil {
		return report.VideoInfo{}, err
	}
	if len(payload.Items) == 0 {
		return report.VideoInfo{}, step.Wrap(step.ErrValidation, name, "fetch video", fmt.Sprintf("video %s not found or private", videoID), nil)
	}

	item := payload.Items[0]
	info := report.VideoInfo{
		ID:              videoID,
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		ChannelID:       item.Snippet.ChannelID,
		ChannelTitle:    item.Snippet.ChannelTitle,
		PublishedAt:     item.Snippet.PublishedAt,
		Language:        firstNonEmpty(item.Snippet.DefaultAudioLanguage, item.Snippet.DefaultLanguage),
		DurationSeconds: parseISODuration(item.ContentDetails.Duration),
		ViewCount:       parseCount(item.Statistics.ViewCount),
		LikeCount:       parseCount(item.Statistics.LikeCount),
	}
	if thumb := item.Snippet.Thumbnails.High.URL; thumb != "" {
		info.ThumbnailURL = thumb
	} else {
		info.ThumbnailURL = item.Snippet.Thumbnails.Default.URL
	}
	return info, nil
}

func (e *Extractor) fetchComments(ctx context.Context, videoID, channelID string) ([]report.Comment, error) {
	maxComments := e.cfg.YouTube.MaxComments
	if maxComments <= 0 {
		maxComments = 100
	}

	var comments []report.Comment
	pageToken := ""
	for len(comments) < maxComments {
		query := url.Values{}
		query.Set("part", "snippet,replies")
		query.Set("videoId", videoID)
		query.Set("maxResults", "100")
		query.Set("order", "relevance")
		query.Set("textFormat", "plainText")
		query.Set("key", e.cfg.YouTube.APIKey)
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var payload commentThreadsResponse
		if err := e.getJSON(ctx, "/commentThreads", query, &payload); err != nil {
			// Disabled comments are an attribute of the video, not a failure.
			if isCommentsDisabled(err) {
				return nil, nil
			}
			return nil, err
		}

		for _, thread := range payload.Items {
			top := thread.Snippet.TopLevelComment
			comments = append(comments, report.Comment{
				ID:          top.ID,
				Text:        top.Snippet.TextDisplay,
				Author:      top.Snippet.AuthorDisplayName,
				LikeCount:   top.Snippet.LikeCount,
				ReplyCount:  thread.Snippet.TotalReplyCount,
				PublishedAt: top.Snippet.PublishedAt,
			})
			for _, reply := range thread.Replies.Comments {
				comments = append(comments, report.Comment{
					ID:            reply.ID,
					Text:          reply.Snippet.TextDisplay,
					Author:        reply.Snippet.AuthorDisplayName,
					LikeCount:     reply.Snippet.LikeCount,
					PublishedAt:   reply.Snippet.PublishedAt,
					ParentID:      top.ID,
					IsAuthorReply: channelID != "" && reply.Snippet.AuthorChannelID.Value == channelID,
				})
			}
		}

		pageToken = payload.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if len(comments) > maxComments {
		comments = comments[:maxComments]
	}
	return comments, nil
}

func (e *Extractor) downloadAudio(ctx context.Context, jobID, videoID string) (string, error) {
	destDir := staging.Dir(e.cfg.Paths.StagingDir, jobID)
	path, err := e.downloader(ctx, videoID, destDir)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", step.Wrap(step.ErrTransient, "extraction", "download audio", "yt-dlp failed", err)
	}
	return path, nil
}

func (e *Extractor) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	const name = "extraction"

	endpoint := e.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return step.Wrap(step.ErrValidation, name, "build request", path, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return step.Wrap(step.ErrTransient, name, "call YouTube API", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return step.Wrap(step.ErrTransient, name, "read response", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyYouTubeError(name, path, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return step.Wrap(step.ErrTransient, name, "decode response", path, err)
	}
	return nil
}

// classifyYouTubeError maps a Data API error response onto a step sentinel.
// A 403 covers both quota exhaustion and disabled comments, so the error
// reason from the body decides.
func classifyYouTubeError(name, path string, status int, body []byte) error {
	reason := youtubeErrorReason(body)
	detail := fmt.Sprintf("%s returned %d (%s)", path, status, reason)

	switch {
	case status == http.StatusForbidden && (reason == "quotaExceeded" || reason == "dailyLimitExceeded" || reason == "rateLimitExceeded"):
		return step.Wrap(step.ErrQuotaExhausted, name, "call YouTube API", detail, nil)
	case status == http.StatusForbidden && reason == "commentsDisabled":
		return step.Wrap(errCommentsDisabled, name, "call YouTube API", detail, nil)
	case status == http.StatusForbidden, status == http.StatusUnauthorized:
		return step.Wrap(step.ErrValidation, name, "call YouTube API", detail, nil)
	case status == http.StatusTooManyRequests:
		return step.Wrap(step.ErrRateLimited, name, "call YouTube API", detail, nil)
	case status == http.StatusBadRequest, status == http.StatusNotFound:
		return step.Wrap(step.ErrValidation, name, "call YouTube API", detail, nil)
	case status >= 500:
		return step.Wrap(step.ErrTransient, name, "call YouTube API", detail, nil)
	default:
		return step.Wrap(step.ErrTransient, name, "call YouTube API", detail, nil)
	}
}

func youtubeErrorReason(body []byte) string {
	var payload struct {
		Error struct {
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "unknown"
	}
	if len(payload.Error.Errors) == 0 {
		return "unknown"
	}
	return payload.Error.Errors[0].Reason
}

// ytdlpDownloader invokes yt-dlp to extract the best audio track. It is the
// default AudioDownloader wired into the extractor.
func ytdlpDownloader(ctx context.Context, videoID, destDir string) (string, error) {
	outPath := filepath.Join(destDir, videoID+".m4a")
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--quiet",
		"--no-playlist",
		"--extract-audio",
		"--audio-format", "m4a",
		"--output", outPath,
		"https://www.youtube.com/watch?v="+videoID,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return outPath, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseISODuration converts an ISO 8601 duration such as PT1H2M3S into whole
// seconds. Unparseable input yields zero.
func parseISODuration(s string) int {
	s = strings.TrimSpace(strings.ToUpper(s))
	if !strings.HasPrefix(s, "P") {
		return 0
	}
	s = s[1:]

	var total, number int
	inTime := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			number = number*10 + int(r-'0')
		case r == 'T':
			inTime = true
			number = 0
		case r == 'D':
			total += number * 86400
			number = 0
		case r == 'H' && inTime:
			total += number * 3600
			number = 0
		case r == 'M' && inTime:
			total += number * 60
			number = 0
		case r == 'S' && inTime:
			total += number
			number = 0
		default:
			return 0
		}
	}
	return total
}
