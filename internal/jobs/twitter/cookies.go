package twitter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	twitterscraper "github.com/imperatrona/twitter-scraper"
	"github.com/sirupsen/logrus"
)

func cookieFile(baseDir, username string) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s_twitter_cookies.json", username))
}

func SaveCookies(scraper *twitterscraper.Scraper, account *Account, baseDir string) error {
	logrus.Debugf("Saving cookies for user %s", account.Username)
	cookies := scraper.GetCookies()

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("error marshaling cookies: %v", err)
	}

	if err = os.WriteFile(cookieFile(baseDir, account.Username), data, 0600); err != nil {
		return fmt.Errorf("error saving cookies: %v", err)
	}
	return nil
}

func LoadCookies(scraper *twitterscraper.Scraper, account *Account, baseDir string) error {
	data, err := os.ReadFile(cookieFile(baseDir, account.Username))
	if err != nil {
		return fmt.Errorf("error reading cookies file: %v", err)
	}

	var cookies []*http.Cookie
	if err = json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("error unmarshaling cookies: %v", err)
	}
	logrus.Debugf("Loaded %d cookies for %s", len(cookies), account.Username)
	scraper.SetCookies(cookies)
	return nil
}
