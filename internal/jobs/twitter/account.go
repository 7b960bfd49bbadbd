package twitter

import (
	"sync"
	"time"
)

// Account is a username/password pair used for cookie-session scraping.
type Account struct {
	Username         string
	Password         string
	TwoFACode        string
	RateLimitedUntil time.Time
}

type AccountManager struct {
	accounts []*Account
	index    int
	mutex    sync.Mutex
}

func NewAccountManager(accounts []*Account) *AccountManager {
	return &AccountManager{
		accounts: accounts,
		index:    0,
	}
}

// GetNextAccount returns the next account that is not cooling down from a
// rate limit, or nil when every account is.
func (manager *AccountManager) GetNextAccount() *Account {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	for i := 0; i < len(manager.accounts); i++ {
		account := manager.accounts[manager.index]
		manager.index = (manager.index + 1) % len(manager.accounts)
		if time.Now().After(account.RateLimitedUntil) {
			return account
		}
	}
	return nil
}

func (manager *AccountManager) MarkAccountRateLimited(account *Account) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	account.RateLimitedUntil = time.Now().Add(RateLimitDuration)
}

func (manager *AccountManager) GetAccountByUsername(username string) *Account {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	for _, account := range manager.accounts {
		if account.Username == username {
			return account
		}
	}
	return nil
}
