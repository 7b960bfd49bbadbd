package twitter

import (
	"math/rand"
	"time"

	twitterscraper "github.com/imperatrona/twitter-scraper"
	"github.com/sirupsen/logrus"
)

const (
	minSleepDuration  = 500 * time.Millisecond
	maxSleepDuration  = 2 * time.Second
	RateLimitDuration = 15 * time.Minute
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

type Scraper struct {
	*twitterscraper.Scraper
	skipLoginVerification bool // false by default
}

func newTwitterScraper() *twitterscraper.Scraper {
	return twitterscraper.New()
}

// SetSkipLoginVerification configures whether to skip the login verification
// API call, avoiding rate limits on the verify_credentials endpoint.
func (s *Scraper) SetSkipLoginVerification(skip bool) *Scraper {
	s.skipLoginVerification = skip
	return s
}

// IsLoggedIn checks if the scraper is logged in. If skipLoginVerification is
// true, it assumes the session is valid without making the API call.
func (s *Scraper) IsLoggedIn() bool {
	loggedIn := s.Scraper.IsLoggedIn()
	if s.skipLoginVerification {
		return true
	}
	return loggedIn
}

// RandomSleep jitters consecutive requests so login and scrape traffic does
// not look mechanical.
func RandomSleep() {
	duration := minSleepDuration + time.Duration(rng.Int63n(int64(maxSleepDuration-minSleepDuration)))
	logrus.Debugf("Sleeping for %v", duration)
	time.Sleep(duration)
}
