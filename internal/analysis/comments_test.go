package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsight/internal/logging"
	"vidsight/internal/pipeline"
	"vidsight/internal/report"
	"vidsight/internal/step"
	"vidsight/internal/testsupport"
)

// fakeCompletions serves the chat completions endpoint, returning content as
// the assistant message of every request.
func fakeCompletions(t *testing.T, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		response := map[string]any{
			"id":      "cmpl-test",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)
	return server
}

func extractionRequest(t *testing.T, data report.ExtractionData) *step.Request {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &step.Request{
		JobID:     "job-1",
		SourceURL: "https://youtu.be/dQw4w9WgXcQ",
		Outputs:   map[pipeline.Step]json.RawMessage{pipeline.StepExtraction: raw},
	}
}

func TestCommentAnalyzerExecute(t *testing.T) {
	server := fakeCompletions(t, `{"sentiment_distribution":{"positive":2,"neutral":1,"negative":0},"key_themes":["pacing","examples"]}`)
	cfg := testsupport.NewConfig(t, testsupport.WithOpenAIBaseURL(server.URL))
	analyzer := NewCommentAnalyzer(cfg, logging.NewNop())

	req := extractionRequest(t, report.ExtractionData{
		VideoID: "dQw4w9WgXcQ",
		Comments: []report.Comment{
			{ID: "c1", Text: "Loved it"},
			{ID: "c2", Text: "Good pacing"},
			{ID: "c3", Text: "ok"},
		},
	})

	payload, err := analyzer.Execute(context.Background(), req, func(float64, string) {})
	require.NoError(t, err)

	var data report.CommentData
	require.NoError(t, json.Unmarshal(payload, &data))
	assert.Equal(t, 3, data.TotalAnalyzed)
	assert.Equal(t, 2, data.Sentiment.Positive)
	assert.Equal(t, []string{"pacing", "examples"}, data.KeyThemes)
}

func TestCommentAnalyzerNoCommentsSkipsModelCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("model should not be called for an empty comment set")
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithOpenAIBaseURL(server.URL))
	analyzer := NewCommentAnalyzer(cfg, logging.NewNop())

	payload, err := analyzer.Execute(context.Background(), extractionRequest(t, report.ExtractionData{VideoID: "dQw4w9WgXcQ"}), func(float64, string) {})
	require.NoError(t, err)

	var data report.CommentData
	require.NoError(t, json.Unmarshal(payload, &data))
	assert.Zero(t, data.TotalAnalyzed)
	assert.Zero(t, data.Sentiment.Total())
}

func TestCommentAnalyzerMissingDependency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	analyzer := NewCommentAnalyzer(cfg, logging.NewNop())

	_, err := analyzer.Execute(context.Background(), &step.Request{JobID: "job-1"}, func(float64, string) {})
	require.Error(t, err)
	assert.Equal(t, step.KindValidation, step.KindOf(err))
}

func TestCreatorInteraction(t *testing.T) {
	comments := []report.Comment{
		{ID: "c1"},
		{ID: "c2"},
		{ID: "c3"},
		{ID: "c4"},
		{ID: "r1", ParentID: "c1", IsAuthorReply: true},
		{ID: "r2", ParentID: "c1", IsAuthorReply: true},
		{ID: "r3", ParentID: "c2"},
	}

	interaction := creatorInteraction(comments)
	assert.Equal(t, 2, interaction.AuthorReplies)
	// one of four top-level comments got a creator reply
	assert.Equal(t, 0.25, interaction.ResponseRate)
}

func TestCommentLinesFlattenNewlines(t *testing.T) {
	lines := commentLines([]report.Comment{
		{Text: "line one\nline two"},
		{Text: "   "},
	})
	parts := strings.Split(lines, "\n")
	require.Len(t, parts, 2)
	assert.Equal(t, "- line one line two", parts[0])
	assert.Equal(t, "- (empty)", parts[1])
}

func TestClassifyOpenAIErrorStatuses(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   step.ErrorKind
	}{
		{429, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, step.KindRateLimit},
		{429, `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`, step.KindQuotaExhausted},
		{400, `{"error":{"message":"bad request"}}`, step.KindValidation},
		{401, `{"error":{"message":"bad key"}}`, step.KindValidation},
		{500, `{"error":{"message":"oops"}}`, step.KindTransient},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_%s", tc.status, tc.want), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			t.Cleanup(server.Close)

			cfg := testsupport.NewConfig(t, testsupport.WithOpenAIBaseURL(server.URL))
			analyzer := NewCommentAnalyzer(cfg, logging.NewNop())

			req := extractionRequest(t, report.ExtractionData{
				VideoID:  "dQw4w9WgXcQ",
				Comments: []report.Comment{{ID: "c1", Text: "hello"}},
			})
			_, err := analyzer.Execute(context.Background(), req, func(float64, string) {})
			require.Error(t, err)
			assert.Equal(t, tc.want, step.KindOf(err))
		})
	}
}
