package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	twitterscraper "github.com/imperatrona/twitter-scraper"
	"github.com/sirupsen/logrus"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/jobs/twitter"
	"github.com/tweetscout/tweetscout/internal/stats"
)

// Native operation names.
const (
	NativeSearchByQuery        = "searchbyquery"
	NativeGetByID              = "getbyid"
	NativeGetProfileByUsername = "getprofilebyusername"
	NativeGetTweets            = "gettweets"
	NativeGetReplies           = "getreplies"
)

type nativeConfiguration struct {
	Accounts              []string `json:"twitter_accounts"`
	DataDir               string   `json:"data_dir"`
	SkipLoginVerification bool     `json:"skip_login_verification,omitempty"`
}

// NativeScraper serves operations through cookie-session accounts, in
// process, without a worker subprocess.
type NativeScraper struct {
	configuration  nativeConfiguration
	accountManager *twitter.AccountManager
	statsCollector *stats.StatsCollector
}

func NewNativeScraper(jc types.JobConfiguration, c *stats.StatsCollector) *NativeScraper {
	config := nativeConfiguration{}
	if err := jc.Unmarshal(&config); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal native scraper configuration")
		return nil
	}
	accounts := parseAccounts(config.Accounts)
	if len(accounts) == 0 {
		logrus.Warn("No native accounts configured")
	}
	return &NativeScraper{
		configuration:  config,
		accountManager: twitter.NewAccountManager(accounts),
		statsCollector: c,
	}
}

func parseAccounts(accountPairs []string) []*twitter.Account {
	return filterMap(accountPairs, func(pair string) (*twitter.Account, bool) {
		credentials := strings.Split(pair, ":")
		if len(credentials) != 2 {
			logrus.Warnf("invalid account credentials: %s", pair)
			return nil, false
		}
		return &twitter.Account{
			Username: strings.TrimSpace(credentials[0]),
			Password: strings.TrimSpace(credentials[1]),
		}, true
	})
}

func filterMap[T any, R any](slice []T, f func(T) (R, bool)) []R {
	result := make([]R, 0, len(slice))
	for _, v := range slice {
		if r, ok := f(v); ok {
			result = append(result, r)
		}
	}
	return result
}

func (ns *NativeScraper) getAuthenticatedScraper(j types.Job) (*twitter.Scraper, *twitter.Account, error) {
	var account *twitter.Account
	if j.Identity != "" {
		account = ns.accountManager.GetAccountByUsername(j.Identity)
	} else {
		account = ns.accountManager.GetNextAccount()
	}
	if account == nil {
		ns.statsCollector.Add(j.Identity, stats.AuthErrors, 1)
		return nil, nil, &types.AuthError{
			Kind:     types.AuthErrorMissingCredential,
			Username: j.Identity,
			Message:  "no account available for native scraping",
		}
	}

	scraper := twitter.NewScraper(twitter.AuthConfig{
		Account:               account,
		BaseDir:               ns.configuration.DataDir,
		SkipLoginVerification: ns.configuration.SkipLoginVerification,
	})
	if scraper == nil {
		ns.statsCollector.Add(account.Username, stats.AuthErrors, 1)
		return nil, account, &types.AuthError{
			Kind:     types.AuthErrorInvalidCredential,
			Username: account.Username,
			Message:  "authentication failed",
		}
	}
	return scraper, account, nil
}

// handleError detects rate limits and puts the account into cooldown.
// Returns true when the error was a rate limit.
func (ns *NativeScraper) handleError(j types.Job, err error, account *twitter.Account) bool {
	ns.statsCollector.Add(j.Identity, stats.NativeErrors, 1)
	if strings.Contains(err.Error(), "Rate limit exceeded") {
		if account != nil {
			ns.accountManager.MarkAccountRateLimited(account)
			logrus.Warnf("rate limited: %s", account.Username)
		}
		return true
	}
	return false
}

// SearchByQuery scrapes tweets matching a search query.
func (ns *NativeScraper) SearchByQuery(ctx context.Context, j types.Job, query string, count int) ([]*TweetResult, error) {
	scraper, account, err := ns.getAuthenticatedScraper(j)
	if err != nil {
		return nil, err
	}

	ns.statsCollector.Add(account.Username, stats.NativeScrapes, 1)
	scraper.SetSearchMode(twitterscraper.SearchLatest)

	tweets := make([]*TweetResult, 0, count)
	for tweet := range scraper.SearchTweets(ctx, query, count) {
		if tweet.Error != nil {
			_ = ns.handleError(j, tweet.Error, account)
			return nil, tweet.Error
		}
		tweets = append(tweets, tweetResultFromScraper(tweet.Tweet))
	}

	ns.statsCollector.Add(account.Username, stats.NativeTweets, uint(len(tweets)))
	return tweets, nil
}

// GetByID retrieves a single tweet by ID.
func (ns *NativeScraper) GetByID(j types.Job, tweetID string) (*TweetResult, error) {
	scraper, account, err := ns.getAuthenticatedScraper(j)
	if err != nil {
		return nil, err
	}

	ns.statsCollector.Add(account.Username, stats.NativeScrapes, 1)
	tweet, err := scraper.GetTweet(tweetID)
	if err != nil {
		_ = ns.handleError(j, err, account)
		return nil, err
	}
	if tweet == nil {
		return nil, fmt.Errorf("tweet %s not found", tweetID)
	}

	ns.statsCollector.Add(account.Username, stats.NativeTweets, 1)
	return tweetResultFromScraper(*tweet), nil
}

// GetProfileByUsername retrieves a profile.
func (ns *NativeScraper) GetProfileByUsername(j types.Job, username string) (*twitterscraper.Profile, error) {
	scraper, account, err := ns.getAuthenticatedScraper(j)
	if err != nil {
		return nil, err
	}

	ns.statsCollector.Add(account.Username, stats.NativeScrapes, 1)
	profile, err := scraper.GetProfile(username)
	if err != nil {
		_ = ns.handleError(j, err, account)
		return nil, err
	}
	return &profile, nil
}

// GetTweets retrieves a user's tweets, paginating with a cursor when one is
// supplied.
func (ns *NativeScraper) GetTweets(ctx context.Context, j types.Job, username string, count int, cursor string) ([]*TweetResult, string, error) {
	scraper, account, err := ns.getAuthenticatedScraper(j)
	if err != nil {
		return nil, "", err
	}

	ns.statsCollector.Add(account.Username, stats.NativeScrapes, 1)

	var tweets []*TweetResult
	var nextCursor string

	if cursor != "" {
		fetched, fetchCursor, err := scraper.FetchTweets(username, count, cursor)
		if err != nil {
			_ = ns.handleError(j, err, account)
			return nil, "", err
		}
		for _, tweet := range fetched {
			tweets = append(tweets, tweetResultFromScraper(*tweet))
		}
		nextCursor = fetchCursor
	} else {
		for tweet := range scraper.GetTweets(ctx, username, count) {
			if tweet.Error != nil {
				_ = ns.handleError(j, tweet.Error, account)
				return nil, "", tweet.Error
			}
			tweets = append(tweets, tweetResultFromScraper(tweet.Tweet))
		}
		if len(tweets) > 0 {
			nextCursor = strconv.FormatInt(tweets[len(tweets)-1].ID, 10)
		}
	}

	ns.statsCollector.Add(account.Username, stats.NativeTweets, uint(len(tweets)))
	return tweets, nextCursor, nil
}

// GetReplies retrieves replies to a tweet.
func (ns *NativeScraper) GetReplies(j types.Job, tweetID, cursor string) ([]*TweetResult, error) {
	scraper, account, err := ns.getAuthenticatedScraper(j)
	if err != nil {
		return nil, err
	}

	ns.statsCollector.Add(account.Username, stats.NativeScrapes, 1)
	tweets, _, err := scraper.GetTweetReplies(tweetID, cursor)
	if err != nil {
		_ = ns.handleError(j, err, account)
		return nil, err
	}

	var replies []*TweetResult
	for _, tweet := range tweets {
		replies = append(replies, tweetResultFromScraper(*tweet))
	}

	ns.statsCollector.Add(account.Username, stats.NativeTweets, uint(len(replies)))
	return replies, nil
}
