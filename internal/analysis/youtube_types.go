package analysis

import "errors"

// errCommentsDisabled marks the Data API's commentsDisabled rejection so the
// extractor can treat it as an empty comment set instead of a failure.
var errCommentsDisabled = errors.New("comments disabled")

func isCommentsDisabled(err error) bool {
	return errors.Is(err, errCommentsDisabled)
}

type videoListResponse struct {
	Items []struct {
		Snippet struct {
			Title                string `json:"title"`
			Description          string `json:"description"`
			ChannelID            string `json:"channelId"`
			ChannelTitle         string `json:"channelTitle"`
			PublishedAt          string `json:"publishedAt"`
			DefaultLanguage      string `json:"defaultLanguage"`
			DefaultAudioLanguage string `json:"defaultAudioLanguage"`
			Thumbnails           struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type commentSnippet struct {
	TextDisplay       string `json:"textDisplay"`
	AuthorDisplayName string `json:"authorDisplayName"`
	AuthorChannelID   struct {
		Value string `json:"value"`
	} `json:"authorChannelId"`
	LikeCount   int    `json:"likeCount"`
	PublishedAt string `json:"publishedAt"`
}

type commentResource struct {
	ID      string         `json:"id"`
	Snippet commentSnippet `json:"snippet"`
}

type commentThreadsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			TopLevelComment commentResource `json:"topLevelComment"`
			TotalReplyCount int             `json:"totalReplyCount"`
		} `json:"snippet"`
		Replies struct {
			Comments []commentResource `json:"comments"`
		} `json:"replies"`
	} `json:"items"`
}
