package jobs

import (
	"strconv"
	"time"

	twitterscraper "github.com/imperatrona/twitter-scraper"
	"github.com/sirupsen/logrus"
)

// TweetResult is the shared tweet shape both backends normalize into, so
// callers never see which backend served them.
type TweetResult struct {
	ID             int64     `json:"id"`
	TweetID        string    `json:"tweet_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Username       string    `json:"username,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	Timestamp      int64     `json:"timestamp"`

	IsQuoted     bool `json:"is_quoted,omitempty"`
	IsPin        bool `json:"is_pin,omitempty"`
	IsReply      bool `json:"is_reply,omitempty"`
	IsRetweet    bool `json:"is_retweet,omitempty"`
	IsSelfThread bool `json:"is_self_thread,omitempty"`

	Likes    int      `json:"likes"`
	Replies  int      `json:"replies"`
	Retweets int      `json:"retweets"`
	Views    int      `json:"views,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	HTML     string   `json:"html,omitempty"`
	URLs     []string `json:"urls,omitempty"`

	Photos []Photo `json:"photos,omitempty"`
	Videos []Video `json:"videos,omitempty"`

	RetweetedStatusID string `json:"retweeted_status_id,omitempty"`
	SensitiveContent  bool   `json:"sensitive_content,omitempty"`
}

type Photo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Video struct {
	ID      string `json:"id"`
	Preview string `json:"preview,omitempty"`
	URL     string `json:"url"`
	HLSURL  string `json:"hls_url,omitempty"`
}

func tweetResultFromScraper(tweet twitterscraper.Tweet) *TweetResult {
	id, err := strconv.ParseInt(tweet.ID, 10, 64)
	if err != nil {
		logrus.Warnf("failed to convert tweet ID to int64: %s", tweet.ID)
		id = 0
	}

	createdAt := time.Unix(tweet.Timestamp, 0).UTC()

	return &TweetResult{
		ID:             id,
		TweetID:        tweet.ID,
		ConversationID: tweet.ConversationID,
		UserID:         tweet.UserID,
		Username:       tweet.Username,
		Text:           tweet.Text,
		CreatedAt:      createdAt,
		Timestamp:      tweet.Timestamp,
		IsQuoted:       tweet.IsQuoted,
		IsPin:          tweet.IsPin,
		IsReply:        tweet.IsReply,
		IsRetweet:      tweet.IsRetweet,
		IsSelfThread:   tweet.IsSelfThread,
		Likes:          tweet.Likes,
		Replies:        tweet.Replies,
		Retweets:       tweet.Retweets,
		Views:          tweet.Views,
		Hashtags:       tweet.Hashtags,
		HTML:           tweet.HTML,
		URLs:           tweet.URLs,
		Photos: func() []Photo {
			var photos []Photo
			for _, photo := range tweet.Photos {
				photos = append(photos, Photo{
					ID:  photo.ID,
					URL: photo.URL,
				})
			}
			return photos
		}(),
		Videos: func() []Video {
			var videos []Video
			for _, video := range tweet.Videos {
				videos = append(videos, Video{
					ID:      video.ID,
					Preview: video.Preview,
					URL:     video.URL,
					HLSURL:  video.HLSURL,
				})
			}
			return videos
		}(),
		RetweetedStatusID: tweet.RetweetedStatusID,
		SensitiveContent:  tweet.SensitiveContent,
	}
}

// providerTweet is the raw tweet shape the Node.js provider emits.
type providerTweet struct {
	ID             string `json:"id"`
	FullText       string `json:"fullText"`
	CreatedAt      string `json:"createdAt"`
	LikeCount      int    `json:"likeCount"`
	ReplyCount     int    `json:"replyCount"`
	RetweetCount   int    `json:"retweetCount"`
	ViewCount      int    `json:"viewCount"`
	ConversationID string `json:"conversationId"`
	TweetBy        struct {
		ID       string `json:"id"`
		UserName string `json:"userName"`
	} `json:"tweetBy"`
	Media []struct {
		URL  string `json:"url"`
		Type string `json:"type"`
	} `json:"media"`
	RetweetedTweetID string `json:"retweetedTweetId"`
}

func tweetResultFromProvider(t providerTweet) *TweetResult {
	id, err := strconv.ParseInt(t.ID, 10, 64)
	if err != nil {
		logrus.Warnf("failed to convert tweet ID to int64: %s", t.ID)
		id = 0
	}

	// Provider timestamps look like "Mon Jan 02 15:04:05 -0700 2006".
	createdAt, err := time.Parse(time.RubyDate, t.CreatedAt)
	if err != nil {
		logrus.Warnf("failed to parse tweet timestamp %q: %v", t.CreatedAt, err)
	}
	createdAt = createdAt.UTC()

	result := &TweetResult{
		ID:                id,
		TweetID:           t.ID,
		ConversationID:    t.ConversationID,
		UserID:            t.TweetBy.ID,
		Username:          t.TweetBy.UserName,
		Text:              t.FullText,
		CreatedAt:         createdAt,
		Timestamp:         createdAt.Unix(),
		Likes:             t.LikeCount,
		Replies:           t.ReplyCount,
		Retweets:          t.RetweetCount,
		Views:             t.ViewCount,
		IsRetweet:         t.RetweetedTweetID != "",
		RetweetedStatusID: t.RetweetedTweetID,
	}
	for _, m := range t.Media {
		switch m.Type {
		case "video":
			result.Videos = append(result.Videos, Video{URL: m.URL})
		default:
			result.Photos = append(result.Photos, Photo{URL: m.URL})
		}
	}
	return result
}
