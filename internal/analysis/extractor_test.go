package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsight/internal/logging"
	"vidsight/internal/report"
	"vidsight/internal/step"
	"vidsight/internal/testsupport"
)

func TestParseVideoID(t *testing.T) {
	cases := []struct {
		name    string
		source  string
		want    string
		wantErr bool
	}{
		{name: "watch url", source: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "short url", source: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "shorts", source: "https://youtube.com/shorts/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "embed", source: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "bare id", source: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "watch with extras", source: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", want: "dQw4w9WgXcQ"},
		{name: "wrong host", source: "https://vimeo.com/12345", wantErr: true},
		{name: "no id", source: "https://www.youtube.com/watch", wantErr: true},
		{name: "empty", source: "", wantErr: true},
		{name: "garbage", source: "not a url at all!!", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseVideoID(tc.source)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseISODuration(t *testing.T) {
	cases := map[string]int{
		"PT10M":      600,
		"PT1H2M3S":   3723,
		"PT45S":      45,
		"P1DT1H":     90000,
		"PT0S":       0,
		"":           0,
		"10 minutes": 0,
	}
	for input, want := range cases {
		assert.Equal(t, want, parseISODuration(input), "input %q", input)
	}
}

func fakeYouTube(t *testing.T, videoStatus int, videoBody string, commentStatus int, commentBody string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/videos":
			w.WriteHeader(videoStatus)
			w.Write([]byte(videoBody))
		case "/commentThreads":
			w.WriteHeader(commentStatus)
			w.Write([]byte(commentBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

const videoOKBody = `{"items":[{
	"snippet":{"title":"Test Video","channelId":"UC123","channelTitle":"Test Channel","publishedAt":"2024-01-01T00:00:00Z","defaultAudioLanguage":"en"},
	"contentDetails":{"duration":"PT10M"},
	"statistics":{"viewCount":"1000","likeCount":"50","commentCount":"2"}
}]}`

const commentsOKBody = `{"items":[{
	"snippet":{
		"topLevelComment":{"id":"c1","snippet":{"textDisplay":"Nice video","authorDisplayName":"alice","likeCount":3,"publishedAt":"2024-01-02T00:00:00Z"}},
		"totalReplyCount":1
	},
	"replies":{"comments":[{"id":"c1r1","snippet":{"textDisplay":"Thanks!","authorDisplayName":"Test Channel","authorChannelId":{"value":"UC123"},"likeCount":1}}]}
}]}`

func newTestExtractor(t *testing.T, baseURL string) *Extractor {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithYouTubeBaseURL(baseURL))
	ex := NewExtractor(cfg, logging.NewNop())
	ex.SetDownloader(func(ctx context.Context, videoID, destDir string) (string, error) {
		return filepath.Join(destDir, videoID+".m4a"), nil
	})
	return ex
}

func TestExtractorExecute(t *testing.T) {
	server := fakeYouTube(t, 200, videoOKBody, 200, commentsOKBody)
	ex := newTestExtractor(t, server.URL)

	var progressCalls int
	payload, err := ex.Execute(context.Background(), &step.Request{
		JobID:     "job-1",
		SourceURL: "https://youtu.be/dQw4w9WgXcQ",
	}, func(percent float64, message string) { progressCalls++ })
	require.NoError(t, err)
	require.Positive(t, progressCalls)

	var data report.ExtractionData
	require.NoError(t, json.Unmarshal(payload, &data))
	assert.Equal(t, "dQw4w9WgXcQ", data.VideoID)
	assert.Equal(t, "Test Video", data.VideoInfo.Title)
	assert.Equal(t, 600, data.VideoInfo.DurationSeconds)
	assert.Equal(t, int64(1000), data.VideoInfo.ViewCount)
	require.Len(t, data.Comments, 2)
	assert.Equal(t, "c1", data.Comments[0].ID)
	assert.True(t, data.Comments[1].IsAuthorReply)
	assert.Equal(t, "c1", data.Comments[1].ParentID)
	assert.NotEmpty(t, data.AudioPath)
}

func TestExtractorInvalidURL(t *testing.T) {
	ex := newTestExtractor(t, "http://127.0.0.1:0")

	_, err := ex.Execute(context.Background(), &step.Request{
		JobID:     "job-1",
		SourceURL: "https://example.com/notyoutube",
	}, func(float64, string) {})
	require.Error(t, err)
	assert.Equal(t, step.KindValidation, step.KindOf(err))
}

func TestExtractorVideoNotFound(t *testing.T) {
	server := fakeYouTube(t, 200, `{"items":[]}`, 200, commentsOKBody)
	ex := newTestExtractor(t, server.URL)

	_, err := ex.Execute(context.Background(), &step.Request{
		JobID:     "job-1",
		SourceURL: "dQw4w9WgXcQ",
	}, func(float64, string) {})
	require.Error(t, err)
	assert.Equal(t, step.KindValidation, step.KindOf(err))
}

func TestExtractorQuotaExhausted(t *testing.T) {
	body := `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`
	server := fakeYouTube(t, 403, body, 200, commentsOKBody)
	ex := newTestExtractor(t, server.URL)

	_, err := ex.Execute(context.Background(), &step.Request{
		JobID:     "job-1",
		SourceURL: "dQw4w9WgXcQ",
	}, func(float64, string) {})
	require.Error(t, err)
	assert.Equal(t, step.KindQuotaExhausted, step.KindOf(err))
}

func TestExtractorRateLimited(t *testing.T) {
	server := fakeYouTube(t, 429, `{}`, 200, commentsOKBody)
	ex := newTestExtractor(t, server.URL)

	_, err := ex.Execute(context.Background(), &step.Request{
		JobID:     "job-1",
		SourceURL: "dQw4w9WgXcQ",
	}, func(float64, string) {})
	require.Error(t, err)
	assert.Equal(t, step.KindRateLimit, step.KindOf(err))
}

func TestExtractorServerErrorIsTransient(t *testing.T) {
	server := fakeYouTube(t, 500, `{}`, 200, commentsOKBody)
	ex := newTestExtractor(t, server.URL)

	_, err := ex.Execute(context.Background(), &step.Request{
		JobID:     "job-1",
		SourceURL: "dQw4w9WgXcQ",
	}, func(float64, string) {})
	require.Error(t, err)
	assert.Equal(t, step.KindTransient, step.KindOf(err))
}

func TestExtractorCommentsDisabled(t *testing.T) {
	body := `{"error":{"errors":[{"reason":"commentsDisabled"}]}}`
	server := fakeYouTube(t, 200, videoOKBody, 403, body)
	ex := newTestExtractor(t, server.URL)

	payload, err := ex.Execute(context.Background(), &step.Request{
		JobID:     "job-1",
		SourceURL: "dQw4w9WgXcQ",
	}, func(float64, string) {})
	require.NoError(t, err)

	var data report.ExtractionData
	require.NoError(t, json.Unmarshal(payload, &data))
	assert.Empty(t, data.Comments)
}
